package knowledge

import (
	"strings"
	"unicode/utf8"
)

var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// SplitText splits text into chunks of at most size runes, carrying overlap
// runes from the end of one chunk into the next. Separators are tried in
// order of priority, falling back to a plain rune split.
func SplitText(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return splitRecursive(text, defaultSeparators, size, overlap)
}

func splitRecursive(text string, separators []string, size, overlap int) []string {
	if utf8.RuneCountInString(text) <= size {
		return []string{text}
	}

	sep := ""
	var parts []string
	rest := separators
	for i, candidate := range separators {
		if candidate == "" {
			parts = splitByRunes(text, size)
			rest = nil
			break
		}
		if split := strings.Split(text, candidate); len(split) > 1 {
			sep = candidate
			parts = split
			rest = separators[i+1:]
			break
		}
	}

	var chunks []string
	var current strings.Builder
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
	}

	for _, part := range parts {
		if utf8.RuneCountInString(part) > size && len(rest) > 0 {
			flush()
			current.Reset()
			chunks = append(chunks, splitRecursive(part, rest, size, overlap)...)
			continue
		}

		candidate := current.String()
		if candidate != "" {
			candidate += sep
		}
		candidate += part

		if utf8.RuneCountInString(candidate) > size && current.Len() > 0 {
			flush()
			tail := overlapTail(current.String(), overlap)
			current.Reset()
			if tail != "" && utf8.RuneCountInString(tail)+utf8.RuneCountInString(sep)+utf8.RuneCountInString(part) <= size {
				current.WriteString(tail)
				current.WriteString(sep)
			}
			current.WriteString(part)
			continue
		}

		current.Reset()
		current.WriteString(candidate)
	}
	flush()
	return chunks
}

func overlapTail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if n >= len(runes) {
		return s
	}
	return string(runes[len(runes)-n:])
}

func splitByRunes(text string, n int) []string {
	runes := []rune(text)
	segments := make([]string, 0, len(runes)/n+1)
	for i := 0; i < len(runes); i += n {
		end := min(i+n, len(runes))
		segments = append(segments, string(runes[i:end]))
	}
	return segments
}
