package knowledge

import (
	"regexp"
	"strings"
)

// Default chunking parameters. The values mirror the sizes the ingestion
// pipeline was tuned for: chunks small enough to embed whole, with enough
// overlap that a sentence straddling a boundary stays retrievable.
const (
	DefaultMaxChunkChars = 1200
	DefaultOverlapChars  = 200
)

var (
	paragraphSplit = regexp.MustCompile(`\n{2,}`)

	// A sentence is a run of non-terminator characters followed by one or
	// more terminators and optional closing quotes/brackets; the final
	// pattern branch captures a trailing fragment without a terminator.
	sentenceSplit = regexp.MustCompile(`[^.!?]+[.!?]+[")'\]]*|[^.!?]+$`)
)

// SplitText splits raw text into ordered, bounded chunks for the given
// source. Boundaries prefer paragraphs, then sentences, then a hard cut when
// a single sentence exceeds the budget. Adjacent chunks share overlapChars
// of trailing/leading context.
//
// The function is deterministic: identical arguments always produce
// identical boundaries and ids. Empty or whitespace-only input yields nil,
// which is not an error. Chunk CreatedAt is left zero; the ingestion path
// stamps it when entries are built.
func SplitText(text, source string, maxChars, overlapChars int) []Chunk {
	if maxChars <= 0 {
		maxChars = DefaultMaxChunkChars
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	// Overlap approaching the chunk budget would leave no room for new
	// content per chunk; clamp to a quarter of the budget.
	if overlapChars >= maxChars/2 {
		overlapChars = maxChars / 4
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	// Units (sentences or fragments) are capped so that a chunk seeded with
	// an overlap prefix still fits within maxChars.
	unitCap := maxChars - overlapChars - 1
	if unitCap < 1 {
		unitCap = 1
	}

	units := splitUnits(trimmed, unitCap)
	texts := packUnits(units, maxChars, overlapChars)

	chunks := make([]Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = Chunk{
			ID:       ChunkID(source, i),
			Source:   source,
			Position: i,
			Text:     t,
		}
	}
	return chunks
}

// splitUnits breaks text into ordered units no longer than unitCap runes.
// Paragraphs that fit become single units; longer paragraphs are split into
// sentences, and sentences over the cap are hard-cut.
func splitUnits(text string, unitCap int) []string {
	var units []string
	for _, para := range paragraphSplit.Split(text, -1) {
		// Collapse internal whitespace so boundaries do not depend on
		// incidental formatting of the source document.
		para = strings.Join(strings.Fields(para), " ")
		if para == "" {
			continue
		}
		if len([]rune(para)) <= unitCap {
			units = append(units, para)
			continue
		}
		for _, sent := range sentenceSplit.FindAllString(para, -1) {
			sent = strings.TrimSpace(sent)
			if sent == "" {
				continue
			}
			sr := []rune(sent)
			for len(sr) > unitCap {
				units = append(units, string(sr[:unitCap]))
				sr = sr[unitCap:]
			}
			if rest := strings.TrimSpace(string(sr)); rest != "" {
				units = append(units, rest)
			}
		}
	}
	return units
}

// packUnits greedily joins units into chunk texts of at most maxChars runes,
// seeding every chunk after the first with the previous chunk's trailing
// overlap runes.
func packUnits(units []string, maxChars, overlap int) []string {
	var out []string
	var cur []rune

	seed := func() []rune {
		if len(out) == 0 || overlap <= 0 {
			return nil
		}
		prev := []rune(out[len(out)-1])
		if len(prev) > overlap {
			prev = prev[len(prev)-overlap:]
		}
		return append(prev, ' ')
	}

	for _, u := range units {
		ur := []rune(u)
		switch {
		case len(cur) == 0:
			cur = append(seed(), ur...)
		case len(cur)+1+len(ur) > maxChars:
			out = append(out, string(cur))
			cur = append(seed(), ur...)
		default:
			cur = append(cur, ' ')
			cur = append(cur, ur...)
		}
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}
