// ABOUTME: Per-field-type value coercion between CRM and content representations
// ABOUTME: Handles date formats, boolean encodings, and numeric strings
package handlers

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const contentDateFormat = "2006-01-02"

// coerceForContent converts a CRM value into the representation the
// content field expects. The registered field type drives the target
// representation; unregistered fields pass through unchanged.
func coerceForContent(fieldType string, value any) any {
	switch fieldType {
	case "date", "date_picker":
		switch v := value.(type) {
		case time.Time:
			return v.Format(contentDateFormat)
		case *time.Time:
			if v == nil {
				return ""
			}
			return v.Format(contentDateFormat)
		case string:
			if t, err := time.Parse("2006-01-02 15:04:05", v); err == nil {
				return t.Format(contentDateFormat)
			}
			return v
		}
	case "true_false", "boolean":
		switch v := value.(type) {
		case bool:
			return v
		case string:
			return v == "1" || strings.EqualFold(v, "true")
		case float64:
			return v != 0
		case int:
			return v != 0
		}
	case "number":
		switch v := value.(type) {
		case string:
			if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return n
			}
			return v
		}
	}
	return value
}

// stringify renders any scalar value as the CRM's string encoding.
// Booleans use the "0"/"1" convention.
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case time.Time:
		return v.Format(contentDateFormat)
	}
	return fmt.Sprintf("%v", value)
}
