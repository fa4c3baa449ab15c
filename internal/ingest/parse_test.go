package ingest

import (
	"reflect"
	"testing"
)

func TestParseCommand_Submit(t *testing.T) {
	cmd := ParseCommand("@curationbot !submit #Solana #DeFi great thread")
	if cmd.Kind != CommandSubmit {
		t.Fatalf("kind = %v, want CommandSubmit", cmd.Kind)
	}
	if !reflect.DeepEqual(cmd.Hashtags, []string{"solana", "defi"}) {
		t.Fatalf("hashtags = %v", cmd.Hashtags)
	}
	if cmd.Note != "great thread" {
		t.Fatalf("note = %q", cmd.Note)
	}
}

func TestParseCommand_KeywordCaseInsensitive(t *testing.T) {
	for text, want := range map[string]CommandKind{
		"!SUBMIT":        CommandSubmit,
		"!Approve nice":  CommandApprove,
		"please !REJECT": CommandReject,
	} {
		if got := ParseCommand(text).Kind; got != want {
			t.Errorf("ParseCommand(%q).Kind = %v, want %v", text, got, want)
		}
	}
}

func TestParseCommand_FirstKeywordWins(t *testing.T) {
	cmd := ParseCommand("!approve but actually !reject")
	if cmd.Kind != CommandApprove {
		t.Fatalf("kind = %v, want CommandApprove", cmd.Kind)
	}
}

func TestParseCommand_NoKeyword(t *testing.T) {
	for _, text := range []string{"", "   ", "just chatting #solana", "submit without bang"} {
		if got := ParseCommand(text).Kind; got != CommandNone {
			t.Errorf("ParseCommand(%q).Kind = %v, want CommandNone", text, got)
		}
	}
}

func TestParseCommand_DuplicateHashtagsDeduped(t *testing.T) {
	cmd := ParseCommand("!submit #solana #SOLANA #Solana")
	if !reflect.DeepEqual(cmd.Hashtags, []string{"solana"}) {
		t.Fatalf("hashtags = %v", cmd.Hashtags)
	}
}

func TestParseCommand_NoteStripsMentionsAndTags(t *testing.T) {
	cmd := ParseCommand("@curationbot !reject #spam obvious   bot content @other")
	if cmd.Note != "obvious bot content" {
		t.Fatalf("note = %q", cmd.Note)
	}
}
