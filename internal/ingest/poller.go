package ingest

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"gorm.io/gorm"

	"github.com/curationhub/curation-backend/internal/domain"
	"github.com/curationhub/curation-backend/internal/feeds"
	"github.com/curationhub/curation-backend/internal/repo"
)

// Ingestion failure modes. All of them are per-mention: the poller logs the
// outcome and moves on, never aborting the polling pass.
var (
	// ErrNotAReply is returned when a submit or moderation command is not a
	// reply to another message.
	ErrNotAReply = errors.New("command is not a reply")

	// ErrCuratorBlocked is returned when the command author is the bot itself
	// or appears on the curator blacklist.
	ErrCuratorBlocked = errors.New("curator is blocked")

	// ErrQuotaExceeded is returned when a curator has reached the daily
	// submission limit.
	ErrQuotaExceeded = errors.New("daily submission quota exceeded")
)

// seenCacheSize bounds the dedup cache; seenCacheTTL ages entries out so the
// cache tracks roughly one day of traffic.
const (
	seenCacheSize = 4096
	seenCacheTTL  = 24 * time.Hour
)

// Moderator applies a moderation decision to one (submission, feed) pair.
// Satisfied by the moderation engine.
type Moderator interface {
	Moderate(ctx context.Context, submissionID, feedID, adminHandle, action, note, referenceID string) (*domain.SubmissionFeed, error)
}

// Poller periodically fetches new mentions of the bot account, classifies
// each as a submit or moderation command, and applies it. A single instance
// runs per platform; an atomic in-flight guard makes overlapping ticks
// harmless, so at most one polling pass executes at a time.
type Poller struct {
	db        *gorm.DB
	client    SocialClient
	feeds     feeds.Provider
	approvers *feeds.ApproverCache
	moderator Moderator

	platform   string
	botHandle  string
	botID      string
	blacklist  map[string]struct{}
	dailyLimit int
	interval   time.Duration

	cursor   string
	inFlight atomic.Bool
	seen     *expirable.LRU[string, struct{}]
}

// NewPoller wires a poller. blacklist handles and the bot handle are folded
// once so later comparisons are case-insensitive.
func NewPoller(db *gorm.DB, client SocialClient, provider feeds.Provider, approvers *feeds.ApproverCache, moderator Moderator, platform, botHandle string, blacklist []string, dailyLimit int, interval time.Duration) *Poller {
	fold := cases.Fold()
	blocked := make(map[string]struct{}, len(blacklist))
	for _, h := range blacklist {
		blocked[fold.String(h)] = struct{}{}
	}
	return &Poller{
		db:         db,
		client:     client,
		feeds:      provider,
		approvers:  approvers,
		moderator:  moderator,
		platform:   platform,
		botHandle:  fold.String(botHandle),
		blacklist:  blocked,
		dailyLimit: dailyLimit,
		interval:   interval,
		seen:       expirable.NewLRU[string, struct{}](seenCacheSize, nil, seenCacheTTL),
	}
}

// Run polls on the configured interval until ctx is cancelled. An initial
// pass runs immediately.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll executes one polling pass. If a previous pass is still running the
// call returns immediately; per-mention failures are logged and skipped so a
// single bad mention never stalls the stream.
func (p *Poller) Poll(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		log.Debug().Msg("ingest: poll already in flight, skipping tick")
		return
	}
	defer p.inFlight.Store(false)

	// The bot's account ID backs handle-independent self-detection; handles
	// can be renamed, account IDs cannot.
	if p.botID == "" {
		if id, err := p.client.ResolveHandleID(ctx, p.botHandle); err == nil {
			p.botID = id
		} else {
			log.Debug().Err(err).Str("handle", p.botHandle).Msg("ingest: bot handle not resolvable yet")
		}
	}

	mentions, err := p.client.FetchNewMentions(ctx, p.cursor)
	if err != nil {
		log.Error().Err(err).Msg("ingest: fetch mentions failed")
		return
	}

	for _, m := range mentions {
		p.cursor = m.ID
		if _, dup := p.seen.Get(m.ID); dup {
			continue
		}
		p.seen.Add(m.ID, struct{}{})

		if err := p.handleMention(ctx, m); err != nil {
			log.Warn().Err(err).
				Str("mention_id", m.ID).
				Str("author", m.AuthorHandle).
				Msg("ingest: mention not processed")
		}
	}
}

// handleMention classifies and applies one mention.
func (p *Poller) handleMention(ctx context.Context, m Mention) error {
	cmd := ParseCommand(m.Text)
	switch cmd.Kind {
	case CommandSubmit:
		return p.handleSubmission(ctx, m, cmd)
	case CommandApprove:
		return p.handleModeration(ctx, m, cmd, domain.ActionApprove)
	case CommandReject:
		return p.handleModeration(ctx, m, cmd, domain.ActionReject)
	default:
		return nil
	}
}

// handleSubmission processes a submit command: resolve the replied-to content,
// create the submission if it is new, associate it with the hashtag-matched
// feeds plus the catch-all feed, and apply self-curation where the curator is
// an approver.
func (p *Poller) handleSubmission(ctx context.Context, m Mention, cmd Command) error {
	if m.InReplyToID == "" {
		return ErrNotAReply
	}
	fold := cases.Fold()
	curator := fold.String(m.AuthorHandle)
	if curator == p.botHandle || (p.botID != "" && m.AuthorID == p.botID) {
		return ErrCuratorBlocked
	}
	if _, blocked := p.blacklist[curator]; blocked {
		return ErrCuratorBlocked
	}

	sub, err := repo.GetSubmissionByContentID(ctx, p.db, m.InReplyToID)
	switch {
	case err == nil:
		// Already known content: only new feed associations are added below.
	case errors.Is(err, repo.ErrNotFound):
		sub, err = p.createSubmission(ctx, m, cmd)
		if err != nil {
			return err
		}
	default:
		return err
	}

	feedIDs := p.matchFeeds(cmd.Hashtags)
	for _, feedID := range feedIDs {
		if err := p.associateFeed(ctx, sub, feedID, m); err != nil {
			log.Warn().Err(err).
				Str("submission_id", sub.ID).
				Str("feed_id", feedID).
				Msg("ingest: feed association failed")
		}
	}

	p.acknowledge(m.ID)
	return nil
}

// createSubmission enforces the daily quota, resolves the original message,
// and inserts the Submission row.
func (p *Poller) createSubmission(ctx context.Context, m Mention, cmd Command) (*domain.Submission, error) {
	if p.dailyLimit > 0 {
		since := time.Now().UTC().Truncate(24 * time.Hour)
		n, err := repo.CountSubmissionsByCuratorSince(ctx, p.db, m.AuthorID, since)
		if err != nil {
			return nil, err
		}
		if n >= int64(p.dailyLimit) {
			return nil, ErrQuotaExceeded
		}
	}

	orig, err := p.client.GetMessage(ctx, m.InReplyToID)
	if err != nil {
		return nil, err
	}
	if cases.Fold().String(orig.AuthorHandle) == p.botHandle || (p.botID != "" && orig.AuthorID == p.botID) {
		return nil, ErrCuratorBlocked
	}

	sub, err := repo.CreateSubmission(ctx, p.db, &domain.Submission{
		ContentID:          orig.ID,
		AuthorID:           orig.AuthorID,
		AuthorHandle:       orig.AuthorHandle,
		BodyText:           orig.Text,
		CuratorID:          m.AuthorID,
		CuratorHandle:      m.AuthorHandle,
		CuratorNote:        cmd.Note,
		CuratorReferenceID: m.ID,
	})
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("submission_id", sub.ID).
		Str("content_id", sub.ContentID).
		Str("curator", sub.CuratorHandle).
		Msg("ingest: submission created")
	return sub, nil
}

// matchFeeds maps folded hashtags to configured feed IDs, always including
// the catch-all feed. Unknown hashtags are ignored.
func (p *Poller) matchFeeds(hashtags []string) []string {
	out := []string{domain.FeedIDAll}
	for _, tag := range hashtags {
		if tag == domain.FeedIDAll {
			continue
		}
		if _, err := p.feeds.GetFeedConfig(tag); err == nil {
			out = append(out, tag)
		}
	}
	return out
}

// associateFeed creates the pending (submission, feed) row if absent and
// applies self-curation: when the curator is an approver of the feed, the
// pending row is approved on their behalf, whether they just created it or
// re-submitted content someone else left pending. Resolved rows are left
// untouched.
func (p *Poller) associateFeed(ctx context.Context, sub *domain.Submission, feedID string, m Mention) error {
	existing, err := repo.GetSubmissionFeed(ctx, p.db, sub.ID, feedID)
	switch {
	case err == nil:
		if existing.Status != domain.FeedStatusPending {
			return nil
		}
	case errors.Is(err, repo.ErrNotFound):
		if _, err := repo.CreateSubmissionFeed(ctx, p.db, sub.ID, feedID); err != nil {
			return err
		}
	default:
		return err
	}

	if p.moderator != nil && p.approvers.IsApprover(feedID, p.platform, m.AuthorHandle) {
		_, err := p.moderator.Moderate(ctx, sub.ID, feedID, m.AuthorHandle, domain.ActionApprove, "self-curated", m.ID)
		if err != nil {
			log.Warn().Err(err).
				Str("submission_id", sub.ID).
				Str("feed_id", feedID).
				Msg("ingest: self-curation approval failed")
		}
	}
	return nil
}

// handleModeration processes an approve or reject reply. The decision fans
// out to every feed the replier is authorized for that still has a pending
// row; repliers with no authority anywhere are silently ignored.
func (p *Poller) handleModeration(ctx context.Context, m Mention, cmd Command, action string) error {
	if m.InReplyToID == "" {
		return ErrNotAReply
	}

	sub, err := repo.GetSubmissionByReference(ctx, p.db, m.InReplyToID)
	if errors.Is(err, repo.ErrNotFound) {
		// Moderation replies target the submit command; anything else is
		// not a moderation command for us.
		log.Debug().Str("mention_id", m.ID).Msg("ingest: moderation reply does not reference a submission")
		return nil
	}
	if err != nil {
		return err
	}

	rows, err := repo.ListSubmissionFeeds(ctx, p.db, sub.ID)
	if err != nil {
		return err
	}
	var pending []string
	for _, sf := range rows {
		if sf.Status == domain.FeedStatusPending {
			pending = append(pending, sf.FeedID)
		}
	}

	authorized := p.approvers.ApproverFeeds(pending, p.platform, m.AuthorHandle)
	if len(authorized) == 0 {
		log.Debug().
			Str("mention_id", m.ID).
			Str("author", m.AuthorHandle).
			Msg("ingest: moderation reply from unauthorized handle ignored")
		return nil
	}

	for _, feedID := range authorized {
		_, err := p.moderator.Moderate(ctx, sub.ID, feedID, m.AuthorHandle, action, cmd.Note, m.ID)
		if err != nil {
			log.Warn().Err(err).
				Str("submission_id", sub.ID).
				Str("feed_id", feedID).
				Str("action", action).
				Msg("ingest: moderation not applied")
		}
	}

	p.acknowledge(m.ID)
	return nil
}

// acknowledge likes the processed command in the background. Failures are
// logged and never surfaced; acknowledgement is cosmetic.
func (p *Poller) acknowledge(id string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.client.Acknowledge(ctx, id); err != nil {
			log.Debug().Err(err).Str("mention_id", id).Msg("ingest: acknowledge failed")
		}
	}()
}
