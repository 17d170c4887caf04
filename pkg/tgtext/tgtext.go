// Package tgtext holds Telegram text-limit helpers shared by the adapter
// and the command layer.
package tgtext

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageLen is Telegram's text message size limit in characters.
const MaxMessageLen = 4096

// TruncRunes returns s truncated to at most n runes.
// It appends an ellipsis "…" when truncated.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	cut := 0
	for i, r := range s {
		count++
		if count == n {
			cut = i + utf8.RuneLen(r)
			continue
		}
		if count > n {
			if cut <= 0 {
				cut = i
			}
			return s[:cut] + "…"
		}
	}
	return s
}

// Split breaks text into chunks of at most limit runes, preferring line
// boundaries so a long /list does not get cut mid-entry. A single
// over-long line is hard-split.
func Split(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLen
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
			curLen = 0
		}
	}

	for _, line := range strings.Split(text, "\n") {
		lineLen := utf8.RuneCountInString(line)
		for lineLen > limit {
			// hard-split an over-long line
			flush()
			head := truncExact(line, limit)
			chunks = append(chunks, head)
			line = line[len(head):]
			lineLen = utf8.RuneCountInString(line)
		}
		if curLen > 0 && curLen+1+lineLen > limit {
			flush()
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
		curLen += lineLen + 1
	}
	flush()
	return chunks
}

// truncExact cuts at exactly n runes without adding an ellipsis.
func truncExact(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
