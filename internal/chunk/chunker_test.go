package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSingleChunk(t *testing.T) {
	text := "Jane Doe, jane@x.com, Engineer, Acme"
	chunks := Split(text, 50_000)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestSplitEmpty(t *testing.T) {
	assert.Empty(t, Split("", 100))
	assert.Equal(t, 0, Count("", 100))
}

func TestSplitLargeTextIntoThree(t *testing.T) {
	// 1200 lines of 99 chars: 500 lines fit in 49,999 bytes, 501 would not.
	line := strings.Repeat("a", 99)
	lines := make([]string, 1200)
	for i := range lines {
		lines[i] = line
	}
	text := strings.Join(lines, "\n")
	require.Greater(t, len(text), 119_000)

	chunks := Split(text, 50_000)
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 50_000)
	}
	assert.Equal(t, text, strings.Join(chunks, "\n"))
}

func TestSplitPreservesLines(t *testing.T) {
	cases := []struct {
		name string
		text string
		max  int
	}{
		{"leading blank lines", "\n\nabc\ndef", 4},
		{"trailing newline", "abc\ndef\n", 5},
		{"only newlines", "\n\n\n", 1},
		{"mixed widths", "a\nbbbbbb\ncc\nd\neeeeeeeeeeee\nf", 6},
		{"unicode", "héllo wörld\nnaïve café\nżółć", 14},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chunks := Split(tc.text, tc.max)
			assert.Equal(t, tc.text, strings.Join(chunks, "\n"))
			for _, c := range chunks {
				if len(c) > tc.max {
					assert.NotContains(t, c, "\n", "only single oversized lines may exceed the budget")
				}
			}
		})
	}
}

func TestSplitOversizedLineAlone(t *testing.T) {
	long := strings.Repeat("x", 30)
	text := "short\n" + long + "\ntail"
	chunks := Split(text, 10)
	require.Equal(t, []string{"short", long, "tail"}, chunks)
}

func TestSeqStopsEarly(t *testing.T) {
	n := 0
	for range Seq("a\nb\nc\nd", 1) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestCountBytes(t *testing.T) {
	assert.Equal(t, 0, CountBytes(0, 10))
	assert.Equal(t, 1, CountBytes(10, 10))
	assert.Equal(t, 2, CountBytes(11, 10))
	assert.Equal(t, 3, CountBytes(120_000, 50_000))
}
