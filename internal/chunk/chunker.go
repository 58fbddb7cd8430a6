// Package chunk splits large text into line-aligned pieces sized for one
// provider request.
package chunk

import (
	"iter"
	"strings"
)

// Seq yields line-aligned chunks of text, each at most maxChunkSize bytes
// unless a single line is longer, in which case that line is yielded alone.
// Joining the yielded chunks with "\n" reproduces text exactly.
func Seq(text string, maxChunkSize int) iter.Seq[string] {
	return func(yield func(string) bool) {
		if text == "" {
			return
		}
		if maxChunkSize <= 0 {
			yield(text)
			return
		}

		var buf strings.Builder
		lines := 0
		rest := text
		for {
			line, tail, more := strings.Cut(rest, "\n")
			if lines > 0 && buf.Len()+1+len(line) > maxChunkSize {
				if !yield(buf.String()) {
					return
				}
				buf.Reset()
				lines = 0
			}
			if lines > 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(line)
			lines++
			if !more {
				break
			}
			rest = tail
		}
		if lines > 0 {
			yield(buf.String())
		}
	}
}

// Split collects Seq into a slice.
func Split(text string, maxChunkSize int) []string {
	var out []string
	for c := range Seq(text, maxChunkSize) {
		out = append(out, c)
	}
	return out
}

// Count returns how many chunks Split would produce.
func Count(text string, maxChunkSize int) int {
	n := 0
	for range Seq(text, maxChunkSize) {
		n++
	}
	return n
}

// CountBytes is the fixed-size chunk count used by byte-offset readers:
// ceil(size / chunkSize).
func CountBytes(size int64, chunkSize int) int {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((size + int64(chunkSize) - 1) / int64(chunkSize))
}
