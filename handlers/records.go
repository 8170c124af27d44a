// ABOUTME: Content-side record row helpers
// ABOUTME: Decodes array-valued field data and coerces row values for reconciliation
package handlers

import (
	"strconv"
	"strings"
)

// rowsFromValue normalizes a content field value into record rows. The
// store round-trips values through JSON, so arrays arrive as []any of
// map[string]any. A single map is treated as a one-row array.
func rowsFromValue(value any) []map[string]any {
	switch v := value.(type) {
	case nil:
		return nil
	case []map[string]any:
		return v
	case map[string]any:
		return []map[string]any{v}
	case []any:
		var rows []map[string]any
		for _, item := range v {
			if row, ok := item.(map[string]any); ok {
				rows = append(rows, row)
			}
		}
		return rows
	}
	return nil
}

// rowInt coerces a row value to int. String ids arrive trimmed or not,
// JSON numbers arrive as float64.
func rowInt(row map[string]any, key string) int {
	switch v := row[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

func rowString(row map[string]any, key string) string {
	switch v := row[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

// rowBool coerces a row value to bool, accepting the platform's "0"/"1"
// string encoding alongside native booleans and numbers.
func rowBool(row map[string]any, key string) bool {
	switch v := row[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case string:
		s := strings.TrimSpace(v)
		return s != "" && s != "0" && !strings.EqualFold(s, "false")
	}
	return false
}

// rowID returns the CRM-assigned id of a row, 0 when not yet persisted.
func rowID(row map[string]any) int {
	return rowInt(row, "id")
}

// toggle compares a boolean property before and after an edit. It
// returns "on" for false to true, "off" for true to false, and ""
// when unchanged.
func toggle(prev, current bool) string {
	if !prev && current {
		return "on"
	}
	if prev && !current {
		return "off"
	}
	return ""
}
