package orchestrate

import "sync"

// AdmissionController paces submissions so the client does not flood the
// scheduler with jobs that would only queue server-side. It mirrors the
// server's tag concurrency limits as advisory local counters: the server
// remains the authority, so inFlight may legitimately exceed a limit when
// a caller decides to submit anyway.
type AdmissionController struct {
	mu       sync.Mutex
	limits   map[string]int
	inFlight map[string]int
	deferred map[string]int
}

// NewAdmissionController builds a controller from a tag -> limit map.
// Tags absent from the map are admitted unconditionally.
func NewAdmissionController(limits map[string]int) *AdmissionController {
	c := &AdmissionController{
		limits:   make(map[string]int),
		inFlight: make(map[string]int),
		deferred: make(map[string]int),
	}
	for tag, limit := range limits {
		c.limits[tag] = limit
	}
	return c
}

// TryAdmit reports whether a submission carrying the given tags should
// proceed now. On success the in-flight counter of every tag is
// incremented; on refusal nothing changes except the deferral count of
// the saturated tag. A tag repeated on one submission counts once.
func (c *AdmissionController) TryAdmit(tags ...string) bool {
	tags = uniqueTags(tags)

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, tag := range tags {
		limit, limited := c.limits[tag]
		if limited && c.inFlight[tag] >= limit {
			c.deferred[tag]++
			return false
		}
	}
	c.admitLocked(tags)
	return true
}

// Admit increments the in-flight counters unconditionally. Used when a
// caller gives up deferring and submits anyway, letting the server queue
// the job.
func (c *AdmissionController) Admit(tags ...string) {
	tags = uniqueTags(tags)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.admitLocked(tags)
}

func (c *AdmissionController) admitLocked(tags []string) {
	for _, tag := range tags {
		c.inFlight[tag]++
	}
}

// Release decrements the in-flight counters once a job carrying the tags
// reaches a terminal state. Duplicate tags release one slot, mirroring
// what admission claimed.
func (c *AdmissionController) Release(tags ...string) {
	tags = uniqueTags(tags)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tag := range tags {
		if c.inFlight[tag] > 0 {
			c.inFlight[tag]--
		}
	}
}

// uniqueTags drops repeated tags so one job never claims a limit slot
// twice. Order is preserved.
func uniqueTags(tags []string) []string {
	if len(tags) < 2 {
		return tags
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// InFlight returns the current in-flight count for a tag.
func (c *AdmissionController) InFlight(tag string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight[tag]
}

// Deferred returns how many admissions were refused for a tag.
func (c *AdmissionController) Deferred(tag string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deferred[tag]
}

// Limit returns the configured limit for a tag and whether one exists.
func (c *AdmissionController) Limit(tag string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	limit, ok := c.limits[tag]
	return limit, ok
}

// Reload replaces the limit map, e.g. after re-reading the server's
// configured limits. In-flight counters are preserved.
func (c *AdmissionController) Reload(limits map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limits = make(map[string]int, len(limits))
	for tag, limit := range limits {
		c.limits[tag] = limit
	}
}
