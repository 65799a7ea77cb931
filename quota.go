package routed

import "sync"

// UploadQuotaTracker is the per-request monotonic byte counter described
// in spec.md §3: it enforces maxDiskUsage across every file in one
// multipart request and is released wholesale on cleanup.
type UploadQuotaTracker struct {
	mu    sync.Mutex
	used  int64
	limit int64
}

// NewUploadQuotaTracker returns a tracker admitting up to limit bytes
// total. A non-positive limit disables quota enforcement.
func NewUploadQuotaTracker(limit int64) *UploadQuotaTracker {
	return &UploadQuotaTracker{limit: limit}
}

// TryConsume attempts to admit n more bytes, returning false (without
// mutating the tracker) if doing so would exceed the configured limit.
func (t *UploadQuotaTracker) TryConsume(n int64) bool {
	if t.limit <= 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.used+n > t.limit {
		return false
	}
	t.used += n
	return true
}

// Release gives back n bytes of previously consumed quota, used during
// partial-upload cleanup (spec.md §4.4's "release consumed quota bytes").
func (t *UploadQuotaTracker) Release(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.used -= n
	if t.used < 0 {
		t.used = 0
	}
}

// Used returns the number of bytes currently counted against the quota.
func (t *UploadQuotaTracker) Used() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.used
}
