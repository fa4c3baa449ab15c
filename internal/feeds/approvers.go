package feeds

import (
	"sync"

	"golang.org/x/text/cases"
)

// ApproverCache answers "is this handle an approver for this feed on this
// platform" without re-walking the raw config on every moderation command.
// Entries are built lazily per (feed, platform) and dropped on Refresh, which
// callers invoke after a provider reload.
//
// Handles are compared case-folded, matching how platforms treat them.
type ApproverCache struct {
	provider Provider

	mu      sync.RWMutex
	entries map[string]map[string]struct{} // feedID+"\x00"+platform -> folded handles
}

// NewApproverCache builds a cache over the given provider.
func NewApproverCache(p Provider) *ApproverCache {
	return &ApproverCache{
		provider: p,
		entries:  make(map[string]map[string]struct{}),
	}
}

// IsApprover reports whether handle is authorized to moderate feedID on
// platform. Unknown feeds are simply not authorized.
func (c *ApproverCache) IsApprover(feedID, platform, handle string) bool {
	fold := cases.Fold()
	key := fold.String(feedID) + "\x00" + fold.String(platform)

	c.mu.RLock()
	set, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		set = c.build(feedID, platform, key)
		if set == nil {
			return false
		}
	}
	_, ok = set[fold.String(handle)]
	return ok
}

// ApproverFeeds returns, out of candidates, the feed IDs that handle may
// moderate on platform. Used by the poller to fan a single moderation reply
// out to every feed the replier is authorized for.
func (c *ApproverCache) ApproverFeeds(candidates []string, platform, handle string) []string {
	var out []string
	for _, feedID := range candidates {
		if c.IsApprover(feedID, platform, handle) {
			out = append(out, feedID)
		}
	}
	return out
}

// Refresh drops all cached entries so subsequent lookups rebuild from the
// provider. Call after Provider reload.
func (c *ApproverCache) Refresh() {
	c.mu.Lock()
	c.entries = make(map[string]map[string]struct{})
	c.mu.Unlock()
}

// build materializes the approver set for one (feed, platform) pair and
// stores it under key. Returns nil when the feed does not exist.
func (c *ApproverCache) build(feedID, platform, key string) map[string]struct{} {
	fc, err := c.provider.GetFeedConfig(feedID)
	if err != nil {
		return nil
	}

	fold := cases.Fold()
	set := make(map[string]struct{})
	for plat, handles := range fc.Moderation.Approvers {
		if fold.String(plat) != fold.String(platform) {
			continue
		}
		for _, h := range handles {
			set[fold.String(h)] = struct{}{}
		}
	}

	c.mu.Lock()
	c.entries[key] = set
	c.mu.Unlock()
	return set
}
