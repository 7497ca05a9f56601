package subtitles

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is a timed span of text. Start and End are offsets in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Cue is a decoded subtitle block.
type Cue struct {
	Index int
	Segment
}

// Encode renders segments as SubRip text. Each block carries a 1-based index,
// the start/end timestamps, the trimmed text, and a blank separator line.
// Blank lines inside a segment's text are dropped so every segment stays one block.
func Encode(segments []Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", FormatTimestamp(seg.Start), FormatTimestamp(seg.End))
		b.WriteString(cueText(seg.Text))
		b.WriteString("\n\n")
	}
	return b.String()
}

func cueText(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if !strings.Contains(text, "\n") {
		return text
	}
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// Decode parses SubRip text into cues. Blocks are separated by blank lines;
// the index line is optional, the timing line is required.
func Decode(content string) ([]Cue, error) {
	content = strings.TrimPrefix(content, "\ufeff")
	content = strings.ReplaceAll(content, "\r\n", "\n")

	var (
		cues  []Cue
		block []string
	)
	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		cue, err := decodeBlock(block, len(cues)+1)
		block = block[:0]
		if err != nil {
			return err
		}
		cues = append(cues, cue)
		return nil
	}
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		block = append(block, line)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return cues, nil
}

func decodeBlock(lines []string, position int) (Cue, error) {
	cue := Cue{Index: position}
	timing := 0
	if !strings.Contains(lines[0], "-->") {
		idx, err := strconv.Atoi(strings.TrimSpace(lines[0]))
		if err != nil {
			return cue, fmt.Errorf("block %d: invalid index %q", position, lines[0])
		}
		cue.Index = idx
		timing = 1
	}
	if timing >= len(lines) {
		return cue, fmt.Errorf("block %d: missing timing line", position)
	}
	startText, endText, ok := strings.Cut(lines[timing], "-->")
	if !ok {
		return cue, fmt.Errorf("block %d: invalid timing line %q", position, lines[timing])
	}
	start, err := ParseTimestamp(startText)
	if err != nil {
		return cue, fmt.Errorf("block %d: %w", position, err)
	}
	// WebVTT cue settings may follow the end timestamp.
	endFields := strings.Fields(endText)
	if len(endFields) == 0 {
		return cue, fmt.Errorf("block %d: missing end timestamp", position)
	}
	end, err := ParseTimestamp(endFields[0])
	if err != nil {
		return cue, fmt.Errorf("block %d: %w", position, err)
	}
	cue.Start = start
	cue.End = end
	cue.Text = strings.Join(lines[timing+1:], "\n")
	return cue, nil
}

// Segments strips cue indices.
func Segments(cues []Cue) []Segment {
	out := make([]Segment, len(cues))
	for i, cue := range cues {
		out[i] = cue.Segment
	}
	return out
}
