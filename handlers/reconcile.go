// ABOUTME: Multi-valued record reconciliation classification
// ABOUTME: Diffs a content-side row array against the CRM's current record set
package handlers

// reconcilePlan classifies each side of a record diff. Indices point
// into the submitted row slice; deleteIDs are CRM record ids.
type reconcilePlan struct {
	createIdx []int
	updateIdx []int
	deleteIDs []int
}

// classifyRecords computes the reconciliation plan for one content
// field. Rows without a CRM-assigned id are creates; rows with an id
// are update candidates; CRM records whose id no row references are
// deletes. When the CRM set is empty every row is a create and no
// diffing happens.
func classifyRecords(rows []map[string]any, existingIDs []int) reconcilePlan {
	var plan reconcilePlan

	if len(existingIDs) == 0 {
		for i := range rows {
			plan.createIdx = append(plan.createIdx, i)
		}
		return plan
	}

	referenced := make(map[int]bool, len(rows))
	for i, row := range rows {
		id := rowID(row)
		if id == 0 {
			plan.createIdx = append(plan.createIdx, i)
			continue
		}
		referenced[id] = true
		plan.updateIdx = append(plan.updateIdx, i)
	}

	for _, id := range existingIDs {
		if !referenced[id] {
			plan.deleteIDs = append(plan.deleteIDs, id)
		}
	}

	return plan
}
