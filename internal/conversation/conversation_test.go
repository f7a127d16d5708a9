package conversation

import (
	"strings"
	"testing"
)

func shotMessage(n int, dose, yield, duration, score, notes string) Message {
	content := "## Shot Summary\n\n## Shot #" + itoa(n) + "\n" +
		"**Dose**: " + dose + "g\n" +
		"**Yield**: " + yield + "g\n" +
		"**Duration**: " + duration + "s\n" +
		"**Score**: " + score + "\n" +
		`**Notes**: "` + notes + `"`
	return Message{Role: RoleUser, Content: content}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}

func TestTrimProducesSummaryPlusLastPair(t *testing.T) {
	messages := []Message{
		shotMessage(1, "18.0", "36.0", "28", "85", "fruity notes here"),
		{Role: RoleAssistant, Content: "Nice shot! Try grinding finer next time."},
		shotMessage(2, "18.0", "37.0", "30", "70", "a bit sour"),
		{Role: RoleAssistant, Content: "Consider a longer preinfusion."},
		{Role: RoleUser, Content: "What do you think of my espresso machine overall?"},
		{Role: RoleAssistant, Content: "It's a solid choice for home baristas."},
	}

	trimmed := Trim(messages, 1)
	if len(trimmed) != 4 {
		t.Fatalf("len(trimmed) = %d, want 4", len(trimmed))
	}
	if trimmed[0].Role != RoleUser {
		t.Errorf("trimmed[0].Role = %v, want user", trimmed[0].Role)
	}
	if !strings.HasPrefix(trimmed[0].Content, "Previous shots summary:\n") {
		t.Errorf("summary content = %q, want prefix %q", trimmed[0].Content, "Previous shots summary:\n")
	}
	if trimmed[1].Content != ackMessage {
		t.Errorf("trimmed[1].Content = %q, want ack message", trimmed[1].Content)
	}
	if trimmed[2] != messages[4] || trimmed[3] != messages[5] {
		t.Error("expected the last verbatim pair to be carried through unchanged")
	}
}

func TestTrimIncludesAdviceFromFollowingReply(t *testing.T) {
	messages := []Message{
		shotMessage(1, "18.0", "36.0", "28", "85", "fruity"),
		{Role: RoleAssistant, Content: "Nice work!\nTry grinding a touch finer for more body."},
		{Role: RoleUser, Content: "tail user"},
		{Role: RoleAssistant, Content: "tail assistant"},
	}
	trimmed := Trim(messages, 1)
	if !strings.Contains(trimmed[0].Content, "Advice: Try grinding a touch finer for more body.") {
		t.Errorf("summary = %q, expected advice line", trimmed[0].Content)
	}
}

func TestTrimTruncatesNotesToFortyCharacters(t *testing.T) {
	messages := []Message{
		shotMessage(1, "18.0", "36.0", "28", "85", "Floral, bright, long finish and slightly acidic"),
		{Role: RoleAssistant, Content: "Great shot."},
		{Role: RoleUser, Content: "tail user"},
		{Role: RoleAssistant, Content: "tail assistant"},
	}
	trimmed := Trim(messages, 1)
	if !strings.Contains(trimmed[0].Content, `"Floral, bright, long finish and sli..."`) {
		t.Errorf("summary = %q, want 40-char truncated notes", trimmed[0].Content)
	}
}

func TestTrimCountsNonShotMessagesDropped(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Content: "hey how's it going"},
		{Role: RoleAssistant, Content: "good, you?"},
		{Role: RoleUser, Content: "just chatting"},
		{Role: RoleAssistant, Content: "cool"},
		{Role: RoleUser, Content: "tail user"},
		{Role: RoleAssistant, Content: "tail assistant"},
	}
	trimmed := Trim(messages, 1)
	if !strings.Contains(trimmed[0].Content, "(2 earlier follow-up messages omitted for brevity)") {
		t.Errorf("summary = %q, want omitted-count line", trimmed[0].Content)
	}
}

func TestTrimReturnsOriginalWhenShortEnough(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	}
	trimmed := Trim(messages, 5)
	if len(trimmed) != len(messages) {
		t.Fatalf("len(trimmed) = %d, want %d (no trimming needed)", len(trimmed), len(messages))
	}
}

func TestExtractAdviceReturnsEmptyWithoutMatch(t *testing.T) {
	if got := extractAdvice("Looks like a tasty shot, enjoy!"); got != "" {
		t.Errorf("extractAdvice = %q, want empty", got)
	}
}

func TestFormatFTSLikeNoteTruncationNotApplicableHere(t *testing.T) {
	// sanity check of the truncate helper directly, independent of regex wiring.
	got := truncate("abcdefghij", 5)
	if got != "abcde..." {
		t.Errorf("truncate = %q", got)
	}
}
