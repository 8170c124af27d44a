// ABOUTME: Test suite for record classification and row helpers
// ABOUTME: Verifies diff planning, value coercion, and toggle detection
package handlers

import (
	"testing"
	"time"
)

func TestClassifyRecordsEmptyCRMSet(t *testing.T) {
	rows := []map[string]any{
		{"id": 0, "city": "Chicago"},
		{"id": float64(9), "city": "Berlin"},
	}

	// With nothing on the CRM side every row is a create, even rows
	// carrying a stale id.
	plan := classifyRecords(rows, nil)
	if len(plan.createIdx) != 2 || len(plan.updateIdx) != 0 || len(plan.deleteIDs) != 0 {
		t.Errorf("Expected all creates against empty set, got %+v", plan)
	}
}

func TestClassifyRecordsPartition(t *testing.T) {
	rows := []map[string]any{
		{"id": 0},            // create
		{"id": float64(2)},   // update
		{"id": "3"},          // update, string id
	}
	existing := []int{2, 3, 4}

	plan := classifyRecords(rows, existing)

	if len(plan.createIdx) != 1 || plan.createIdx[0] != 0 {
		t.Errorf("Expected row 0 as create, got %v", plan.createIdx)
	}
	if len(plan.updateIdx) != 2 {
		t.Errorf("Expected 2 updates, got %v", plan.updateIdx)
	}
	// Record 4 is referenced by no row: deletion by omission.
	if len(plan.deleteIDs) != 1 || plan.deleteIDs[0] != 4 {
		t.Errorf("Expected record 4 deleted, got %v", plan.deleteIDs)
	}
}

func TestClassifyRecordsIdempotent(t *testing.T) {
	// Submitting exactly the CRM state plans no deletes or creates.
	rows := []map[string]any{
		{"id": float64(1)},
		{"id": float64(2)},
	}
	plan := classifyRecords(rows, []int{1, 2})
	if len(plan.createIdx) != 0 || len(plan.deleteIDs) != 0 {
		t.Errorf("Expected stable plan, got %+v", plan)
	}
}

func TestRowsFromValue(t *testing.T) {
	if rows := rowsFromValue(nil); rows != nil {
		t.Errorf("Expected nil rows for nil value, got %v", rows)
	}

	// JSON round-trip shape.
	rows := rowsFromValue([]any{
		map[string]any{"city": "Chicago"},
		"not a row",
		map[string]any{"city": "Berlin"},
	})
	if len(rows) != 2 {
		t.Errorf("Expected 2 rows, non-maps skipped, got %d", len(rows))
	}

	// A bare map is a one-row array.
	rows = rowsFromValue(map[string]any{"city": "Oslo"})
	if len(rows) != 1 || rows[0]["city"] != "Oslo" {
		t.Errorf("Expected single row, got %v", rows)
	}
}

func TestRowCoercion(t *testing.T) {
	row := map[string]any{
		"float_id":  float64(7),
		"string_id": " 8 ",
		"bad_id":    "x",
		"bool_str":  "1",
		"bool_off":  "0",
		"bool_raw":  true,
	}

	if got := rowInt(row, "float_id"); got != 7 {
		t.Errorf("Expected 7, got %d", got)
	}
	if got := rowInt(row, "string_id"); got != 8 {
		t.Errorf("Expected 8 from padded string, got %d", got)
	}
	if got := rowInt(row, "bad_id"); got != 0 {
		t.Errorf("Expected 0 for unparsable id, got %d", got)
	}
	if !rowBool(row, "bool_str") || rowBool(row, "bool_off") || !rowBool(row, "bool_raw") {
		t.Error("Expected '1'/'0'/true coercion to succeed")
	}
	if rowBool(row, "missing") {
		t.Error("Expected missing key to coerce to false")
	}
}

func TestToggle(t *testing.T) {
	if got := toggle(false, true); got != "on" {
		t.Errorf("Expected 'on', got %q", got)
	}
	if got := toggle(true, false); got != "off" {
		t.Errorf("Expected 'off', got %q", got)
	}
	if got := toggle(true, true); got != "" {
		t.Errorf("Expected unchanged to be empty, got %q", got)
	}
	if got := toggle(false, false); got != "" {
		t.Errorf("Expected unchanged to be empty, got %q", got)
	}
}

func TestCoerceForContent(t *testing.T) {
	when := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

	if got := coerceForContent("date_picker", when); got != "2026-03-14" {
		t.Errorf("Expected date string, got %v", got)
	}
	if got := coerceForContent("date", "2026-03-14 10:30:00"); got != "2026-03-14" {
		t.Errorf("Expected CRM timestamp trimmed to date, got %v", got)
	}
	if got := coerceForContent("true_false", "1"); got != true {
		t.Errorf("Expected '1' to coerce true, got %v", got)
	}
	if got := coerceForContent("boolean", float64(0)); got != false {
		t.Errorf("Expected 0 to coerce false, got %v", got)
	}
	if got := coerceForContent("number", "12.5"); got != 12.5 {
		t.Errorf("Expected numeric string parsed, got %v", got)
	}
	// Unregistered field types pass through.
	if got := coerceForContent("", "raw"); got != "raw" {
		t.Errorf("Expected passthrough, got %v", got)
	}
}

func TestStringify(t *testing.T) {
	if got := stringify(true); got != "1" {
		t.Errorf("Expected '1', got %q", got)
	}
	if got := stringify(false); got != "0" {
		t.Errorf("Expected '0', got %q", got)
	}
	if got := stringify(float64(3)); got != "3" {
		t.Errorf("Expected '3', got %q", got)
	}
	if got := stringify(nil); got != "" {
		t.Errorf("Expected empty string for nil, got %q", got)
	}
}

func TestAdjustIDList(t *testing.T) {
	ids := []string{"1", "2"}

	added, changed := adjustIDList(ids, "3", true)
	if !changed || len(added) != 3 {
		t.Errorf("Expected id appended, got %v", added)
	}

	same, changed := adjustIDList(added, "3", true)
	if changed || len(same) != 3 {
		t.Errorf("Expected duplicate add to be a no-op, got %v", same)
	}

	removed, changed := adjustIDList(same, "2", false)
	if !changed || len(removed) != 2 {
		t.Errorf("Expected id removed, got %v", removed)
	}

	_, changed = adjustIDList(removed, "9", false)
	if changed {
		t.Error("Expected removing an absent id to be a no-op")
	}
}
