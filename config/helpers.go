package config

// Safe type assertion helpers for the raw configuration document. YAML
// decodes mappings as map[string]any and sequences as []any.

// GetString safely extracts a string value from a config map
func GetString(cfg map[string]any, key string, defaultVal string) string {
	if val, ok := cfg[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return defaultVal
}

// GetMap safely extracts a nested mapping, nil when absent or not a mapping
func GetMap(cfg map[string]any, key string) map[string]any {
	if val, ok := cfg[key]; ok {
		if m, ok := val.(map[string]any); ok {
			return m
		}
	}
	return nil
}

// GetSlice safely extracts a sequence, nil when absent or not a sequence
func GetSlice(cfg map[string]any, key string) []any {
	if val, ok := cfg[key]; ok {
		if s, ok := val.([]any); ok {
			return s
		}
	}
	return nil
}

// HasKey checks if a key exists in the config map
func HasKey(cfg map[string]any, key string) bool {
	_, ok := cfg[key]
	return ok
}

// deepMergeMaps recursively merges two maps, with override taking precedence.
// Explicit nulls in override keep the base value.
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base)+len(override))

	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}

		// If both base and override have maps at this key, merge them
		if baseMap, baseOk := base[k].(map[string]any); baseOk {
			if overrideMap, overrideOk := v.(map[string]any); overrideOk {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}

		result[k] = v
	}

	return result
}
