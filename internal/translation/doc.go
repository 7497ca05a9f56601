// Package translation renders a finished transcript's captions in another
// language.
//
// The Adapter loads the transcript record written by a transcription job,
// sends each segment through a Translator backend independently (timings are
// preserved), and writes <source>_<lang>.srt only when every segment
// succeeded.
package translation
