// Package config resolves wavez settings from the environment and the custom
// properties file.
package config

import (
	stderrors "errors"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/zoobzio/wavez"
	"github.com/zoobzio/wavez/logging"
)

// Sentinel errors for comparison with errors.Is.
var (
	ErrInvalidProperty = stderrors.New("invalid custom property")
	ErrPropertiesFile  = stderrors.New("unusable properties file")
)

// Env holds all environment configuration, read with the WAVEZ prefix.
// Nested fields are prefixed by their struct, e.g. WAVEZ_REDIS_URL.
type Env struct {
	FunctionCollection  string `envconfig:"COLLECTION_NAME" default:"WavezFunctions"`
	ExecutionCollection string `envconfig:"EXECUTION_COLLECTION_NAME" default:"WavezExecutions"`
	PropertiesFile      string `envconfig:"PROPERTIES_FILE" default:".wavez_properties"`
	Redis               RedisConfig
	Log                 LogConfig
}

// RedisConfig holds store connection settings.
type RedisConfig struct {
	URL       string `envconfig:"URL" default:"redis://localhost:6379/0"`
	Namespace string `envconfig:"NAMESPACE" default:"wavez"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"`
	Development bool   `envconfig:"DEV" default:"false"`
}

// Logging converts the settings for logging.New.
func (l LogConfig) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	if l.Development {
		cfg = logging.DevelopmentConfig()
	}
	if l.Level != "" {
		cfg.Level = l.Level
	}
	return cfg
}

// Prefix is the environment variable prefix.
const Prefix = "wavez"

// LoadEnv reads Env from environment variables.
func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(Prefix, &env); err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	return &env, nil
}

// Load reads the environment, the properties file and the global values.
func Load(logger *zap.Logger) (*wavez.Settings, *Env, error) {
	env, err := LoadEnv()
	if err != nil {
		return nil, nil, err
	}
	settings, err := Resolve(env, logger)
	if err != nil {
		return nil, nil, err
	}
	return settings, env, nil
}

// Resolve builds settings from env. Properties file problems other than a
// malformed property definition are logged and leave properties undefined.
func Resolve(env *Env, logger *zap.Logger) (*wavez.Settings, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := &wavez.Settings{
		FunctionCollection:  env.FunctionCollection,
		ExecutionCollection: env.ExecutionCollection,
	}

	props, err := LoadProperties(env.PropertiesFile, logger)
	switch {
	case stderrors.Is(err, ErrInvalidProperty):
		return nil, err
	case err != nil:
		logger.Warn("custom properties not loaded",
			zap.String("path", env.PropertiesFile),
			zap.Error(err))
	}

	if len(props) > 0 {
		settings.Properties = props
		settings.GlobalValues = GlobalValues(props, os.LookupEnv, logger)
	}
	return settings, nil
}

// LoadProperties reads the custom property definitions at path.
// A missing file yields nil properties and no error. The file is YAML; JSON
// documents are accepted as-is.
func LoadProperties(path string, logger *zap.Logger) (map[string]wavez.Property, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Debug("custom properties file not found", zap.String("path", path))
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(ErrPropertiesFile, "read %s: %v", path, err)
	}

	logger.Info("loading custom properties", zap.String("path", path))
	return ParseProperties(data)
}

// ParseProperties decodes a name -> {data_type, description} mapping.
func ParseProperties(data []byte) (map[string]wavez.Property, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.Wrapf(ErrPropertiesFile, "parse: %v", err)
	}
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, errors.Wrap(ErrPropertiesFile, "root is not a mapping")
	}

	mapping := root.Content[0]
	props := make(map[string]wavez.Property, len(mapping.Content)/2)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		name := mapping.Content[i].Value
		node := mapping.Content[i+1]
		if node.Kind != yaml.MappingNode {
			return nil, errors.Wrapf(ErrInvalidProperty, "%q must be a mapping", name)
		}
		var p wavez.Property
		if err := node.Decode(&p); err != nil {
			return nil, errors.Wrapf(ErrInvalidProperty, "%q: %v", name, err)
		}
		dt, err := NormalizeDataType(p.DataType)
		if err != nil {
			return nil, errors.Wrapf(err, "%q", name)
		}
		p.DataType = dt
		props[name] = p
	}
	return props, nil
}

// Data types accepted for custom properties.
const (
	TypeText        = "TEXT"
	TypeInt         = "INT"
	TypeNumber      = "NUMBER"
	TypeBool        = "BOOL"
	TypeDate        = "DATE"
	TypeUUID        = "UUID"
	TypeTextArray   = "TEXT_ARRAY"
	TypeIntArray    = "INT_ARRAY"
	TypeNumberArray = "NUMBER_ARRAY"
	TypeBoolArray   = "BOOL_ARRAY"
)

var dataTypes = map[string]bool{
	TypeText: true, TypeInt: true, TypeNumber: true, TypeBool: true,
	TypeDate: true, TypeUUID: true, TypeTextArray: true, TypeIntArray: true,
	TypeNumberArray: true, TypeBoolArray: true,
}

// NormalizeDataType upper-cases dt and checks it is supported.
func NormalizeDataType(dt string) (string, error) {
	if dt == "" {
		return "", errors.Wrap(ErrInvalidProperty, "data_type is missing")
	}
	upper := strings.ToUpper(strings.TrimSpace(dt))
	if !dataTypes[upper] {
		return "", errors.Wrapf(ErrInvalidProperty, "unsupported data_type %q", dt)
	}
	return upper, nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// GlobalValues reads a default for each property from the environment
// variable named after it in upper case, coerced to the property's type.
// Values that fail coercion are dropped with a warning.
func GlobalValues(props map[string]wavez.Property, lookup LookupFunc, logger *zap.Logger) map[string]any {
	if logger == nil {
		logger = zap.NewNop()
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make(map[string]any)
	for _, name := range names {
		envName := strings.ToUpper(name)
		raw, ok := lookup(envName)
		if !ok || raw == "" {
			continue
		}
		v, err := Coerce(props[name].DataType, raw)
		if err != nil {
			logger.Warn("global value dropped",
				zap.String("property", name),
				zap.String("env", envName),
				zap.Error(err))
			continue
		}
		values[name] = v
		logger.Debug("loaded global value", zap.String("property", name), zap.String("env", envName))
	}
	return values
}

// Coerce converts raw to the Go type matching dataType.
func Coerce(dataType, raw string) (any, error) {
	switch dataType {
	case TypeInt:
		return strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	case TypeNumber:
		return strconv.ParseFloat(strings.TrimSpace(raw), 64)
	case TypeBool:
		return strconv.ParseBool(strings.TrimSpace(raw))
	default:
		return raw, nil
	}
}
