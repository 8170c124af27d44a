// ABOUTME: Reentrancy guard for cross-platform writes
// ABOUTME: Suspends a platform's native listeners with guaranteed paired resume
package mapper

// Platform identifies one of the two synchronized platforms.
type Platform int

const (
	PlatformCRM Platform = iota
	PlatformContent
)

func (p Platform) String() string {
	if p == PlatformCRM {
		return "crm"
	}
	return "content"
}

// Guard tracks which platforms currently have their native listeners
// suspended. Suspension nests: each Suspend must be paired with its
// returned resume func, and callers defer the resume so an error or
// panic mid-handler never leaves the system deaf to later events.
type Guard struct {
	depth [2]int
}

// Suspend disables native listeners for the platform and returns the
// resume func. The resume func is idempotent.
func (g *Guard) Suspend(p Platform) func() {
	g.depth[p]++
	resumed := false
	return func() {
		if resumed {
			return
		}
		resumed = true
		g.depth[p]--
	}
}

// Suspended reports whether the platform's native listeners are
// currently off.
func (g *Guard) Suspended(p Platform) bool {
	return g.depth[p] > 0
}
