// Package feeds loads and serves feed configuration: which feeds exist, who
// may approve submissions for each feed, and the transform/distribute chain a
// feed runs on approval.
//
// Feed definitions are read from a JSON file once at startup and on explicit
// Reload. The rest of the application treats the provider as read-only; the
// processing orchestrator snapshots the stream config at job creation so a
// reload never retroactively alters a running job.
package feeds

import (
	"encoding/json"
	"errors"
	"os"
	"sync"

	"golang.org/x/text/cases"
)

// ErrFeedNotFound is returned when a feed ID is not present in the loaded
// configuration.
var ErrFeedNotFound = errors.New("feed not found")

// StepConfig is one entry of a transform or distribute chain: the plugin to
// invoke and its opaque configuration blob.
type StepConfig struct {
	Plugin string         `json:"plugin"`
	Config map[string]any `json:"config,omitempty"`
}

// StreamConfig is a feed's output pipeline. Transform entries are ordered;
// distribute entries are unordered siblings.
type StreamConfig struct {
	Enabled    bool         `json:"enabled"`
	Transform  []StepConfig `json:"transform,omitempty"`
	Distribute []StepConfig `json:"distribute,omitempty"`
}

// OutputsConfig groups a feed's output surfaces. Only the stream pipeline is
// modeled here.
type OutputsConfig struct {
	Stream StreamConfig `json:"stream"`
}

// ModerationConfig lists approver handles per platform for a feed.
type ModerationConfig struct {
	// Approvers maps a platform name (e.g. "twitter") to the handles
	// authorized to approve or reject submissions for this feed.
	Approvers map[string][]string `json:"approvers"`
}

// FeedConfig is the full configuration of one feed.
type FeedConfig struct {
	ID          string           `json:"id"`
	Name        string           `json:"name,omitempty"`
	Description string           `json:"description,omitempty"`
	Moderation  ModerationConfig `json:"moderation"`
	Outputs     OutputsConfig    `json:"outputs"`
}

// Provider is the read-only feed configuration surface consumed by the
// ingestion, moderation, and processing layers.
type Provider interface {
	// GetFeedConfig returns the configuration for feedID, or ErrFeedNotFound.
	GetFeedConfig(feedID string) (*FeedConfig, error)

	// ListFeeds returns all configured feeds.
	ListFeeds() []FeedConfig
}

// FileProvider loads feed configuration from a JSON file. It is safe for
// concurrent use; Reload atomically swaps the loaded set.
type FileProvider struct {
	path string

	mu    sync.RWMutex
	byID  map[string]FeedConfig
	order []string
}

// configFile is the on-disk shape: either a bare array of feeds or an object
// with a "feeds" key.
type configFile struct {
	Feeds []FeedConfig `json:"feeds"`
}

// NewFileProvider loads path and returns a provider backed by it.
func NewFileProvider(path string) (*FileProvider, error) {
	p := &FileProvider{path: path}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads the configuration file and atomically replaces the loaded
// feed set. Feed IDs are compared case-insensitively throughout the
// application, so they are folded once here.
func (p *FileProvider) Reload() error {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return err
	}

	var list []FeedConfig
	if err := json.Unmarshal(raw, &list); err != nil {
		var wrapped configFile
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil {
			return err
		}
		list = wrapped.Feeds
	}

	fold := cases.Fold()
	byID := make(map[string]FeedConfig, len(list))
	order := make([]string, 0, len(list))
	for _, fc := range list {
		if fc.ID == "" {
			return errors.New("feed config entry missing id")
		}
		id := fold.String(fc.ID)
		fc.ID = id
		if _, dup := byID[id]; dup {
			return errors.New("duplicate feed id: " + id)
		}
		byID[id] = fc
		order = append(order, id)
	}

	p.mu.Lock()
	p.byID = byID
	p.order = order
	p.mu.Unlock()
	return nil
}

// GetFeedConfig returns the configuration for feedID (case-insensitive), or
// ErrFeedNotFound.
func (p *FileProvider) GetFeedConfig(feedID string) (*FeedConfig, error) {
	id := cases.Fold().String(feedID)

	p.mu.RLock()
	fc, ok := p.byID[id]
	p.mu.RUnlock()
	if !ok {
		return nil, ErrFeedNotFound
	}
	return &fc, nil
}

// ListFeeds returns all configured feeds in file order.
func (p *FileProvider) ListFeeds() []FeedConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]FeedConfig, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.byID[id])
	}
	return out
}
