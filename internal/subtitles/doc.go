// Package subtitles converts timed segments to and from subtitle text.
//
// Encode and Decode handle SubRip (.srt); EncodeVTT renders WebVTT for
// clients that prefer it. All functions are pure. Timestamps are truncated to
// whole milliseconds and hours are unbounded, so files covering long media
// render as 100:00:00,000 rather than wrapping.
package subtitles
