package channel

import (
	"strings"
	"testing"
)

func TestSplitMessage_ShortPassthrough(t *testing.T) {
	chunks := splitMessage("hello", 100)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Errorf("chunks = %v", chunks)
	}
}

func TestSplitMessage_PrefersNewlines(t *testing.T) {
	msg := strings.Repeat("alpha beta gamma\n", 20)
	chunks := splitMessage(msg, 100)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 100 {
			t.Errorf("chunk %d length %d exceeds limit", i, len(c))
		}
		if i < len(chunks)-1 && !strings.HasSuffix(c, "\n") {
			t.Errorf("chunk %d does not end on a line boundary: %q", i, c)
		}
	}
	if strings.Join(chunks, "") != msg {
		t.Error("chunks do not reassemble to the original message")
	}
}

func TestSplitMessage_HardCutWithoutNewlines(t *testing.T) {
	msg := strings.Repeat("x", 250)
	chunks := splitMessage(msg, 100)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	if len(chunks[0]) != 100 || len(chunks[1]) != 100 || len(chunks[2]) != 50 {
		t.Errorf("chunk sizes = %d/%d/%d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
}

func TestRenderChunks_TextUnfenced(t *testing.T) {
	chunks := renderChunks("plain reply", "text", 100)
	if len(chunks) != 1 || chunks[0] != "plain reply" {
		t.Errorf("chunks = %v", chunks)
	}
}

func TestRenderChunks_CodeFencesEveryChunk(t *testing.T) {
	content := strings.Repeat("alert line\n", 30)
	chunks := renderChunks(content, "code", 120)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if !strings.HasPrefix(c, "```\n") || !strings.HasSuffix(c, "\n```") {
			t.Errorf("chunk %d not fenced: %q", i, c)
		}
		if len(c) > 120 {
			t.Errorf("chunk %d length %d exceeds limit", i, len(c))
		}
	}
}

func TestValidDiscordUserID(t *testing.T) {
	for _, ok := range []string{"1", "123456789012345678"} {
		if !ValidDiscordUserID(ok) {
			t.Errorf("ValidDiscordUserID(%q) = false", ok)
		}
	}
	for _, bad := range []string{"", "12a45", "user", "-123"} {
		if ValidDiscordUserID(bad) {
			t.Errorf("ValidDiscordUserID(%q) = true", bad)
		}
	}
}

func TestValidSlackUserID(t *testing.T) {
	for _, ok := range []string{"U02ABCDEF", "W12345"} {
		if !ValidSlackUserID(ok) {
			t.Errorf("ValidSlackUserID(%q) = false", ok)
		}
	}
	for _, bad := range []string{"", "U", "B02BOT", "123"} {
		if ValidSlackUserID(bad) {
			t.Errorf("ValidSlackUserID(%q) = true", bad)
		}
	}
}

func TestValidMatrixIDs(t *testing.T) {
	if !ValidMatrixUserID("@alice:example.org") {
		t.Error("user id rejected")
	}
	if ValidMatrixUserID("alice") || ValidMatrixUserID("@alice") {
		t.Error("malformed user id accepted")
	}
	if !ValidMatrixRoomID("!abc123:example.org") {
		t.Error("room id rejected")
	}
	if ValidMatrixRoomID("#general:example.org") {
		t.Error("alias accepted as room id")
	}
}

func TestMatrixLocalpart(t *testing.T) {
	if got := matrixLocalpart("@alice:example.org"); got != "alice" {
		t.Errorf("localpart = %q", got)
	}
	if got := matrixLocalpart("bob"); got != "bob" {
		t.Errorf("localpart = %q", got)
	}
}
