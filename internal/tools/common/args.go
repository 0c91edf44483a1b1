package common

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// StringArg returns the trimmed string argument name, or def when it is
// absent or empty.
func StringArg(args map[string]interface{}, name, def string) string {
	v, ok := args[name].(string)
	if !ok {
		return def
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}

// RequiredStringArg returns the trimmed string argument name or an error
// suitable for a tool result.
func RequiredStringArg(args map[string]interface{}, name string) (string, error) {
	raw, present := args[name]
	if !present || raw == nil {
		return "", fmt.Errorf("%s is required", name)
	}
	v, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", name)
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%s cannot be empty", name)
	}
	return v, nil
}

// IntArg returns the integer argument name. JSON numbers arrive as float64;
// numeric strings are accepted too. Values outside the int32 range are
// rejected.
func IntArg(args map[string]interface{}, name string, def int) (int, error) {
	raw, present := args[name]
	if !present || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%s must be an integer", name)
		}
		if v > math.MaxInt32 || v < math.MinInt32 {
			return 0, fmt.Errorf("%s is out of range", name)
		}
		return int(v), nil
	case int:
		if v > math.MaxInt32 || v < math.MinInt32 {
			return 0, fmt.Errorf("%s is out of range", name)
		}
		return v, nil
	case int64:
		if v > math.MaxInt32 || v < math.MinInt32 {
			return 0, fmt.Errorf("%s is out of range", name)
		}
		return int(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return def, nil
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 32)
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer", name)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("%s must be an integer", name)
	}
}

// BoolArg returns the boolean argument name; "true" and "false" strings are
// accepted.
func BoolArg(args map[string]interface{}, name string, def bool) (bool, error) {
	raw, present := args[name]
	if !present || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return def, nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("%s must be a boolean", name)
		}
		return b, nil
	default:
		return false, fmt.Errorf("%s must be a boolean", name)
	}
}

// FolderFromArgs returns the folder a tool call acts on, for audit records.
func FolderFromArgs(args map[string]interface{}) string {
	for _, key := range []string{"folder", "source_folder"} {
		if v := StringArg(args, key, ""); v != "" {
			return v
		}
	}
	return ""
}
