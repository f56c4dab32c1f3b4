package wavez

import "sort"

// Default collection names.
const (
	DefaultFunctionCollection  = "WavezFunctions"
	DefaultExecutionCollection = "WavezExecutions"
)

// Property describes one custom property declared in configuration.
type Property struct {
	DataType    string `yaml:"data_type" json:"data_type"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Settings is the resolved configuration consumed by the tracer.
// Treat it as immutable once handed to New.
type Settings struct {
	// Properties is nil when no custom properties were defined.
	Properties          map[string]Property
	GlobalValues        map[string]any
	FunctionCollection  string
	ExecutionCollection string
}

// DefaultSettings returns settings with default collection names and no properties.
func DefaultSettings() *Settings {
	return &Settings{
		FunctionCollection:  DefaultFunctionCollection,
		ExecutionCollection: DefaultExecutionCollection,
	}
}

// HasProperties reports whether any custom property is defined.
func (s *Settings) HasProperties() bool {
	return s != nil && len(s.Properties) > 0
}

// Allows reports whether key is a recognized call-time tag.
func (s *Settings) Allows(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s.Properties[key]
	return ok
}

// AllowedKeys returns the recognized tag keys in sorted order.
func (s *Settings) AllowedKeys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.Properties))
	for k := range s.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
