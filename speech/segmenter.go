// Package speech turns model text into spoken audio and microphone audio
// into text.
//
// Information Hiding:
// - Sentence boundary detection over a growing text buffer
// - Vendor request formats for synthesis and transcription
package speech

import (
	"strings"
	"unicode"
)

// isTerminator reports whether r ends a sentence.
func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？', '\n':
		return true
	}
	return false
}

// SplitSentences extracts the complete sentences from buffer. A run of
// consecutive terminators is one boundary. A run that touches the end of the
// buffer is not yet a boundary, because the next fragment may extend it.
// The remainder is the text after the last boundary, without leading
// whitespace.
func SplitSentences(buffer string) (sentences []string, remainder string) {
	last := 0
	runStart := -1

	for i, r := range buffer {
		if isTerminator(r) {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		if runStart >= 0 {
			// The run ended at i.
			if sentence := strings.TrimSpace(buffer[last:i]); sentence != "" {
				sentences = append(sentences, sentence)
			}
			last = i
			runStart = -1
		}
	}

	return sentences, strings.TrimLeftFunc(buffer[last:], unicode.IsSpace)
}

// Segmenter accumulates streamed fragments and yields sentences as soon as
// they are complete. The zero value is ready to use.
type Segmenter struct {
	buffer string
}

// Feed appends a fragment and returns the sentences it completed.
func (s *Segmenter) Feed(fragment string) []string {
	sentences, remainder := SplitSentences(s.buffer + fragment)
	s.buffer = remainder
	return sentences
}

// Flush returns the trailing text, trimmed, and resets the segmenter.
func (s *Segmenter) Flush() string {
	rest := strings.TrimSpace(s.buffer)
	s.buffer = ""
	return rest
}

// Pending returns the buffered text without clearing it.
func (s *Segmenter) Pending() string {
	return s.buffer
}
