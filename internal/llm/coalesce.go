package llm

import (
	"strings"
	"unicode/utf8"
)

// Coalescer merges token-sized deltas into phrase-sized chunks for clients that
// render each message separately.
type Coalescer struct {
	minChars int
	firstMin int

	pending string
	emitted bool
}

func NewCoalescer(minChars int) *Coalescer {
	if minChars <= 0 {
		minChars = 24
	}
	// The first chunk goes out early so the client can show progress.
	firstMin := minChars / 4
	if firstMin < 2 {
		firstMin = 2
	}
	return &Coalescer{minChars: minChars, firstMin: firstMin}
}

func (c *Coalescer) Consume(delta string) []string {
	if delta == "" {
		return nil
	}
	c.pending += delta
	return c.flush(false)
}

// Finalize returns whatever is still buffered.
func (c *Coalescer) Finalize() []string {
	return c.flush(true)
}

func (c *Coalescer) flush(force bool) []string {
	var out []string
	for {
		threshold := c.minChars
		if !c.emitted {
			threshold = c.firstMin
		}
		segment, rest, ok := nextSegment(c.pending, threshold, force)
		if !ok {
			break
		}
		c.pending = rest
		if !c.emitted {
			segment = strings.TrimLeft(segment, " \t\r\n")
		}
		if strings.TrimSpace(segment) == "" {
			continue
		}
		out = append(out, segment)
		c.emitted = true
	}
	return out
}

func nextSegment(input string, minChars int, force bool) (segment, rest string, ok bool) {
	if input == "" {
		return "", "", false
	}
	if force {
		return input, "", true
	}
	if idx := boundaryAfterMin(input, minChars); idx >= 0 {
		return input[:idx+1], input[idx+1:], true
	}
	// Long runs without punctuation are cut at whitespace.
	if len(input) >= minChars*2 {
		cut := whitespaceCut(input, minChars)
		return input[:cut], input[cut:], true
	}
	return "", input, false
}

func boundaryAfterMin(input string, minChars int) int {
	if minChars < 1 {
		minChars = 1
	}
	for i := minChars - 1; i < len(input); i++ {
		switch input[i] {
		case '.', '!', '?', '\n':
			return i
		}
	}
	return -1
}

func whitespaceCut(input string, minChars int) int {
	if len(input) <= minChars {
		return len(input)
	}
	limit := minChars + 20
	if limit > len(input) {
		limit = len(input)
	}
	for i := minChars; i < limit; i++ {
		switch input[i] {
		case ' ', '\t', '\n', '\r':
			return i
		}
	}
	cut := minChars
	for cut < len(input) && !utf8.RuneStart(input[cut]) {
		cut++
	}
	return cut
}
