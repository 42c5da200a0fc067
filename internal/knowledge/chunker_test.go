package knowledge

import (
	"strings"
	"testing"
)

func TestSplitTextDeterministic(t *testing.T) {
	text := "First paragraph with some content.\n\nSecond paragraph. It has two sentences.\n\nThird."
	a := SplitText(text, "doc.txt", 40, 8)
	b := SplitText(text, "doc.txt", 40, 8)

	if len(a) != len(b) {
		t.Fatalf("chunk count differs between runs: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Text != b[i].Text || a[i].Position != b[i].Position {
			t.Errorf("chunk %d differs between runs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestSplitTextReturnPolicyExample(t *testing.T) {
	// Two sentences that cannot share a 40-char chunk must yield two chunks.
	text := "Our return policy is 30 days. No questions asked."
	chunks := SplitText(text, "policy.txt", 40, 5)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %#v", len(chunks), chunks)
	}
	if !strings.Contains(chunks[0].Text, "30 days") {
		t.Errorf("first chunk should contain %q, got %q", "30 days", chunks[0].Text)
	}
	for i, c := range chunks {
		if c.Position != i {
			t.Errorf("chunk %d has position %d", i, c.Position)
		}
		if c.Source != "policy.txt" {
			t.Errorf("chunk %d has source %q", i, c.Source)
		}
		if len([]rune(c.Text)) > 40 {
			t.Errorf("chunk %d exceeds budget: %d runes", i, len([]rune(c.Text)))
		}
	}
}

func TestSplitTextOverlap(t *testing.T) {
	text := "Our return policy is 30 days. No questions asked."
	chunks := SplitText(text, "policy.txt", 40, 5)
	if len(chunks) < 2 {
		t.Fatalf("need at least 2 chunks, got %d", len(chunks))
	}

	prev := []rune(chunks[0].Text)
	tail := string(prev[len(prev)-5:])
	if !strings.HasPrefix(chunks[1].Text, tail) {
		t.Errorf("second chunk %q does not start with overlap %q", chunks[1].Text, tail)
	}
}

func TestSplitTextEmptyInput(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace", "   \n\t  \n\n "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SplitText(tt.text, "s", 100, 10); got != nil {
				t.Errorf("expected nil chunks, got %d", len(got))
			}
		})
	}
}

func TestSplitTextHardCut(t *testing.T) {
	// A single "sentence" with no terminators longer than the budget must be
	// hard-cut rather than dropped or oversized.
	word := strings.Repeat("x", 250)
	chunks := SplitText(word, "blob", 100, 0)

	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks for 250 runes at budget 100, got %d", len(chunks))
	}
	var rebuilt strings.Builder
	for i, c := range chunks {
		if n := len([]rune(c.Text)); n > 100 {
			t.Errorf("chunk %d exceeds budget: %d runes", i, n)
		}
		rebuilt.WriteString(strings.ReplaceAll(c.Text, " ", ""))
	}
	if rebuilt.String() != word {
		t.Error("hard-cut chunks do not reassemble the input")
	}
}

func TestSplitTextStableIDs(t *testing.T) {
	// Re-ingesting a source with changed text keeps ids stable per position.
	a := SplitText("Version one of the text.", "doc", 100, 0)
	b := SplitText("Version two, same source.", "doc", 100, 0)
	if len(a) == 0 || len(b) == 0 {
		t.Fatal("expected chunks from both inputs")
	}
	if a[0].ID != b[0].ID {
		t.Errorf("position 0 id changed across re-ingestion: %s vs %s", a[0].ID, b[0].ID)
	}
	if other := SplitText("Version one of the text.", "other-doc", 100, 0); other[0].ID == a[0].ID {
		t.Error("different sources must not share chunk ids")
	}
}

func TestSplitTextDefaults(t *testing.T) {
	// Non-positive parameters fall back to defaults instead of failing.
	chunks := SplitText("Just one short sentence.", "s", 0, -3)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "Just one short sentence." {
		t.Errorf("unexpected chunk text %q", chunks[0].Text)
	}
}
