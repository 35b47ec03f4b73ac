package chunker

import (
	"strings"
	"unicode/utf8"
)

type ChunkerConfig struct {
	MaxChars     int
	OverlapChars int
}

// Chunker splits normalized text into overlapping, sentence-boundary-aware
// windows. Splitting is deterministic: the same text always yields the same
// chunks.
type Chunker struct {
	config ChunkerConfig
}

func NewWithConfig(config ChunkerConfig) Chunker {
	if config.MaxChars == 0 {
		config.MaxChars = 1000
	}
	if config.OverlapChars == 0 {
		config.OverlapChars = 200
	}
	if config.OverlapChars >= config.MaxChars {
		// Config validation rejects this upstream; clamp so the cursor can
		// still make progress if a caller skips validation.
		config.OverlapChars = config.MaxChars - 1
	}

	return Chunker{
		config: config,
	}
}

// Split chunks text into windows of at most MaxChars characters. Each window
// prefers to end on a sentence boundary (". ") when one falls at or past 60%
// of the window; otherwise it is a hard cut. Consecutive chunks overlap by
// OverlapChars characters so context survives the cut points. Empty input
// yields no chunks.
func (c *Chunker) Split(text string) []string {
	text = Normalize(text)
	if text == "" {
		return nil
	}

	var chunks []string

	start := 0
	for start < len(text) {
		end := start + c.config.MaxChars
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}

		end = alignRune(text, end)
		if end <= start {
			_, size := utf8.DecodeRuneInString(text[start:])
			end = start + size
		}

		window := text[start:end]
		if cut := strings.LastIndex(window, ". "); cut >= 0 {
			// cut+1 keeps the period with the chunk
			if cut+1 >= (len(window)*6)/10 {
				end = start + cut + 1
			}
		}

		chunks = append(chunks, text[start:end])

		next := alignRune(text, end-c.config.OverlapChars)
		if next <= start {
			// The overlap swallowed the whole chunk; drop it for this step
			// so the cursor always advances.
			next = end
		}
		start = next
	}

	return chunks
}

// alignRune backs i up to the start of the rune it falls inside, so a hard
// cut never splits a multi-byte character into invalid UTF-8.
func alignRune(text string, i int) int {
	for i > 0 && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

// Normalize collapses whitespace runs to single spaces and trims the ends.
func Normalize(text string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(text), " "))
}
