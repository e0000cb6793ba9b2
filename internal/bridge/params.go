package bridge

// Helpers for digging values out of decoded tool-input maps.

func stringParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	if value, ok := params[key].(string); ok {
		return value
	}
	return ""
}

func sliceParam(params map[string]any, key string) []any {
	if params == nil {
		return nil
	}
	if value, ok := params[key].([]any); ok {
		return value
	}
	return nil
}

func mapValue(value any) map[string]any {
	if m, ok := value.(map[string]any); ok {
		return m
	}
	return nil
}
