package session

import (
	"strings"
	"unicode/utf8"
)

const (
	// segmentCharBudget caps how long a synthesis segment may grow before it
	// is force-cut at the budget boundary.
	segmentCharBudget = 250

	// hangupSentinel is the marker the persona emits to end the call. The
	// match is case-insensitive and the marker may arrive split across
	// arbitrarily many tokens.
	hangupSentinel = "[HANGUP]"
)

// Segment is one unit of text handed to speech synthesis. Final marks the
// closing phrase of a persona-initiated hangup; a final segment may carry
// empty text when the reply was nothing but the sentinel.
type Segment struct {
	Text  string
	Final bool
}

// SegmentExtractor incrementally turns an LLM token stream into synthesis
// segments while scanning for the hangup sentinel.
//
// Text that could be the start of the sentinel is held back from both token
// release and segmentation until it resolves one way or the other, so the
// client never sees a partial "[HAN". Segments are cut at the rightmost
// sentence boundary within the character budget, or hard at the budget when no
// boundary exists. Not safe for concurrent use; one extractor serves one turn.
type SegmentExtractor struct {
	pending   string // text not yet cut into segments
	forwarded int    // bytes of pending already released as tokens
	raw       strings.Builder
	rawKept   int // bytes of raw text preceding the sentinel; -1 until seen
	done      bool
}

// NewSegmentExtractor returns an extractor ready for one turn.
func NewSegmentExtractor() *SegmentExtractor {
	return &SegmentExtractor{rawKept: -1}
}

// Append ingests one token. It returns the text now safe to forward to the
// client, any segments completed by this token, and whether the hangup
// sentinel was resolved. After the sentinel resolves, further appends are
// ignored.
func (e *SegmentExtractor) Append(tok string) (forward string, segs []Segment, hangup bool) {
	if e.done || tok == "" {
		return "", nil, false
	}
	e.raw.WriteString(tok)
	e.pending += tok

	if p := indexSentinel(e.pending); p >= 0 {
		e.done = true
		e.rawKept = e.raw.Len() - len(e.pending) + p
		if e.forwarded < p {
			forward = e.pending[e.forwarded:p]
		}
		closing := strings.TrimRight(e.pending[:p], " \t\r\n")
		segs = splitClosing(closing)
		e.pending = ""
		e.forwarded = 0
		return forward, segs, true
	}

	// Hold back any suffix that could still grow into the sentinel.
	safe := len(e.pending) - holdbackLen(e.pending)
	if safe > e.forwarded {
		forward = e.pending[e.forwarded:safe]
		e.forwarded = safe
	}
	segs = e.cut(safe)
	return forward, segs, false
}

// Flush ends the stream without a sentinel: any held-back text is released as
// ordinary tokens and the remaining buffer becomes the last segment.
func (e *SegmentExtractor) Flush() (forward string, segs []Segment) {
	if e.done {
		return "", nil
	}
	e.done = true
	if e.forwarded < len(e.pending) {
		forward = e.pending[e.forwarded:]
	}
	segs = e.cut(len(e.pending))
	if rest := strings.TrimSpace(e.pending); rest != "" {
		segs = append(segs, Segment{Text: rest})
	}
	e.pending = ""
	e.forwarded = 0
	return forward, segs
}

// FinalText returns the assistant text to commit to history: everything
// before the sentinel (or the whole reply when none was seen), trimmed.
func (e *SegmentExtractor) FinalText() string {
	s := e.raw.String()
	if e.rawKept >= 0 {
		s = s[:e.rawKept]
	}
	return strings.TrimSpace(s)
}

// HangupDetected reports whether the sentinel was seen.
func (e *SegmentExtractor) HangupDetected() bool {
	return e.rawKept >= 0
}

// cut repeatedly slices completed segments off the front of pending, looking
// only at the first `limit` bytes. Whitespace-only cuts are dropped.
func (e *SegmentExtractor) cut(limit int) []Segment {
	var segs []Segment
	for {
		end := boundaryCut(e.pending[:limit])
		if end < 0 {
			return segs
		}
		if text := strings.TrimSpace(e.pending[:end]); text != "" {
			segs = append(segs, Segment{Text: text})
		}
		e.pending = e.pending[end:]
		limit -= end
		if e.forwarded > end {
			e.forwarded -= end
		} else {
			e.forwarded = 0
		}
	}
}

// boundaryCut returns the byte offset to cut s at: just after the rightmost
// sentence boundary within the character budget, or hard at the budget when
// the window is full with no boundary. Returns -1 when s should keep growing.
func boundaryCut(s string) int {
	end := -1
	runes := 0
	budgetEnd := len(s)
	for i, r := range s {
		if runes == segmentCharBudget {
			budgetEnd = i
			break
		}
		runes++
		if isBoundaryRune(r) {
			end = i + utf8.RuneLen(r)
		}
	}
	if end >= 0 {
		return end
	}
	if runes >= segmentCharBudget {
		return budgetEnd
	}
	return -1
}

func isBoundaryRune(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '\n':
		return true
	}
	return false
}

// splitClosing turns the text before the sentinel into segments, marking the
// last one final. A sentinel-only reply yields a single empty final segment so
// the hangup flow still runs.
func splitClosing(closing string) []Segment {
	tmp := &SegmentExtractor{rawKept: -1, pending: closing}
	segs := tmp.cut(len(closing))
	if rest := strings.TrimSpace(tmp.pending); rest != "" {
		segs = append(segs, Segment{Text: rest})
	}
	if len(segs) == 0 {
		return []Segment{{Final: true}}
	}
	segs[len(segs)-1].Final = true
	return segs
}

// indexSentinel returns the byte offset of the first case-insensitive
// occurrence of the hangup sentinel, or -1.
func indexSentinel(s string) int {
	n := len(hangupSentinel)
	for i := 0; i+n <= len(s); i++ {
		if s[i] != '[' {
			continue
		}
		if strings.EqualFold(s[i:i+n], hangupSentinel) {
			return i
		}
	}
	return -1
}

// holdbackLen returns the length of the longest suffix of s that is a prefix
// of the sentinel, i.e. the bytes that must be withheld until more tokens
// arrive.
func holdbackLen(s string) int {
	max := len(hangupSentinel) - 1
	if max > len(s) {
		max = len(s)
	}
	for k := max; k > 0; k-- {
		if strings.EqualFold(s[len(s)-k:], hangupSentinel[:k]) {
			return k
		}
	}
	return 0
}
