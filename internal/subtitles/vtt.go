package subtitles

import (
	"fmt"
	"strings"
)

// EncodeVTT renders segments as WebVTT text.
func EncodeVTT(segments []Segment) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n")
	for _, seg := range segments {
		b.WriteByte('\n')
		fmt.Fprintf(&b, "%s --> %s\n", FormatVTTTimestamp(seg.Start), FormatVTTTimestamp(seg.End))
		b.WriteString(cueText(seg.Text))
		b.WriteByte('\n')
	}
	return b.String()
}

// ConvertSRTToVTT re-renders SubRip text as WebVTT.
func ConvertSRTToVTT(srt string) (string, error) {
	cues, err := Decode(srt)
	if err != nil {
		return "", err
	}
	return EncodeVTT(Segments(cues)), nil
}
