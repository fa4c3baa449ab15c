package ingest

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// CommandKind classifies a parsed mention.
type CommandKind int

const (
	// CommandNone means the mention carried no recognized keyword.
	CommandNone CommandKind = iota
	// CommandSubmit proposes the replied-to message as a submission.
	CommandSubmit
	// CommandApprove approves a pending submission.
	CommandApprove
	// CommandReject rejects a pending submission.
	CommandReject
)

// Command is the structured form of a mention's text.
type Command struct {
	Kind     CommandKind
	Hashtags []string
	Note     string
}

var (
	hashtagRe = regexp.MustCompile(`#(\w+)`)
	mentionRe = regexp.MustCompile(`@\w+`)
	keywordRe = regexp.MustCompile(`(?i)!(submit|approve|reject)\b`)
)

// ParseCommand extracts the curation command from raw mention text. Keywords
// are matched case-insensitively anywhere in the text; the first one wins.
// Hashtags become candidate feed IDs, folded for case-insensitive matching.
// Whatever remains after stripping the keyword, hashtags and @-mentions is
// kept as the curator note.
func ParseCommand(text string) Command {
	cmd := Command{Kind: CommandNone}
	if strings.TrimSpace(text) == "" {
		return cmd
	}

	m := keywordRe.FindString(text)
	if m == "" {
		return cmd
	}
	switch strings.ToLower(strings.TrimPrefix(m, "!")) {
	case "submit":
		cmd.Kind = CommandSubmit
	case "approve":
		cmd.Kind = CommandApprove
	case "reject":
		cmd.Kind = CommandReject
	}

	fold := cases.Fold()
	seen := make(map[string]struct{})
	for _, tag := range hashtagRe.FindAllStringSubmatch(text, -1) {
		id := fold.String(tag[1])
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		cmd.Hashtags = append(cmd.Hashtags, id)
	}

	note := keywordRe.ReplaceAllString(text, "")
	note = hashtagRe.ReplaceAllString(note, "")
	note = mentionRe.ReplaceAllString(note, "")
	cmd.Note = strings.Join(strings.Fields(note), " ")
	return cmd
}
