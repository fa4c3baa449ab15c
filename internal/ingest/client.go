// Package ingest turns inbound social-platform mentions into submissions and
// moderation decisions. A single periodic poller fetches new mentions,
// classifies each as a submit or moderation command, and hands the resulting
// work to the submission store and the moderation engine.
package ingest

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Mention is an inbound message that tagged the bot account.
type Mention struct {
	ID           string
	AuthorID     string
	AuthorHandle string
	Text         string
	InReplyToID  string
	CreatedAt    time.Time
}

// Message is a resolved platform message, typically the original content a
// submit command replied to.
type Message struct {
	ID           string
	AuthorID     string
	AuthorHandle string
	Text         string
	CreatedAt    time.Time
}

// ErrMessageNotFound is returned by SocialClient implementations when a
// message ID cannot be resolved.
var ErrMessageNotFound = errors.New("message not found")

// SocialClient is the platform surface the poller consumes. Implementations
// wrap a concrete platform API; MemoryClient backs tests and local runs.
type SocialClient interface {
	// FetchNewMentions returns mentions strictly newer than sinceID in
	// ascending order. An empty sinceID returns everything available.
	FetchNewMentions(ctx context.Context, sinceID string) ([]Mention, error)

	// GetMessage resolves a message by platform ID.
	GetMessage(ctx context.Context, id string) (Message, error)

	// Acknowledge marks a command as processed (e.g. a like). Fire-and-forget
	// from the poller's perspective; failures never block ingestion.
	Acknowledge(ctx context.Context, id string) error

	// ResolveHandleID maps a handle to its platform-native account ID.
	ResolveHandleID(ctx context.Context, handle string) (string, error)
}

// MemoryClient is an in-memory SocialClient for tests and local development.
// Mentions are consumed in insertion order; message lookups are served from a
// seeded map.
type MemoryClient struct {
	mu       sync.Mutex
	mentions []Mention
	messages map[string]Message
	handles  map[string]string
	acked    []string
	ackErr   error
}

// NewMemoryClient returns an empty MemoryClient.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		messages: make(map[string]Message),
		handles:  make(map[string]string),
	}
}

// AddMessage seeds a resolvable message and its author's handle mapping.
func (c *MemoryClient) AddMessage(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages[m.ID] = m
	if m.AuthorHandle != "" {
		c.handles[m.AuthorHandle] = m.AuthorID
	}
}

// AddHandle seeds a handle to account-ID mapping.
func (c *MemoryClient) AddHandle(handle, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handles[handle] = id
}

// AddMention queues a mention for the next fetch.
func (c *MemoryClient) AddMention(m Mention) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mentions = append(c.mentions, m)
}

// SetAckError makes Acknowledge fail, for exercising the fire-and-forget path.
func (c *MemoryClient) SetAckError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ackErr = err
}

// Acked returns the IDs acknowledged so far.
func (c *MemoryClient) Acked() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.acked...)
}

// FetchNewMentions implements SocialClient.
func (c *MemoryClient) FetchNewMentions(_ context.Context, sinceID string) ([]Mention, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := 0
	if sinceID != "" {
		for i, m := range c.mentions {
			if m.ID == sinceID {
				start = i + 1
				break
			}
		}
	}
	out := make([]Mention, len(c.mentions)-start)
	copy(out, c.mentions[start:])
	return out, nil
}

// GetMessage implements SocialClient.
func (c *MemoryClient) GetMessage(_ context.Context, id string) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.messages[id]; ok {
		return m, nil
	}
	return Message{}, ErrMessageNotFound
}

// Acknowledge implements SocialClient.
func (c *MemoryClient) Acknowledge(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ackErr != nil {
		return c.ackErr
	}
	c.acked = append(c.acked, id)
	return nil
}

// ResolveHandleID implements SocialClient. Unknown handles resolve to
// ErrMessageNotFound.
func (c *MemoryClient) ResolveHandleID(_ context.Context, handle string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.handles[handle]; ok {
		return id, nil
	}
	return "", ErrMessageNotFound
}
