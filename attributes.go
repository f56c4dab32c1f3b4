package wavez

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// ResolveTags returns the subset of tags whose keys are allowed by settings.
// Called once per function definition. Every dropped key is reported with a
// warning naming the function; when settings define no properties at all, all
// tags are dropped with a single warning.
func ResolveTags(logger *zap.Logger, function string, tags map[string]any, settings *Settings) map[string]any {
	if logger == nil {
		logger = zap.NewNop()
	}
	valid := make(map[string]any, len(tags))
	if len(tags) == 0 {
		return valid
	}

	keys := sortedKeys(tags)
	if !settings.HasProperties() {
		logger.Warn("execution tags ignored: no custom properties defined",
			zap.String("function", function),
			zap.Strings("tags", keys))
		return valid
	}

	for _, key := range keys {
		if settings.Allows(key) {
			valid[key] = tags[key]
			continue
		}
		logger.Warn("undefined execution tag ignored",
			zap.String("function", function),
			zap.String("tag", key))
	}
	return valid
}

// MergeKwargs builds the full keyword set seen by the root and span scopes.
// Valid tags override caller values sharing a key; the function identity is
// always injected under FunctionUUIDKey.
func MergeKwargs(kw Kwargs, valid map[string]any, functionUUID string) Kwargs {
	full := kw.Clone()
	for k, v := range valid {
		full[k] = v
	}
	full[FunctionUUIDKey] = functionUUID
	return full
}

// StripKwargs removes every instrumentation-only key before the business call:
// valid tags, declared tags (valid or not) and the function identity.
func StripKwargs(kw Kwargs, declared, valid map[string]any) Kwargs {
	out := kw.Clone()
	for k := range valid {
		delete(out, k)
	}
	for k := range declared {
		delete(out, k)
	}
	delete(out, FunctionUUIDKey)
	return out
}

// captureAttributes copies the values of keys present in kw, normalized.
func captureAttributes(kw Kwargs, keys []string) map[string]any {
	if len(keys) == 0 || len(kw) == 0 {
		return nil
	}
	captured := make(map[string]any, len(keys))
	for _, key := range keys {
		if v, ok := kw[key]; ok {
			captured[key] = Normalize(v)
		}
	}
	return captured
}

// Normalize returns v unchanged when a sink can store it directly, otherwise
// its string form.
func Normalize(v any) any {
	switch v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		[]any, map[string]any,
		[]string, []int, []int64, []float64, []bool:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
