// Package artifacts owns the on-disk layout of job outputs.
//
// Every completed transcription leaves a SubRip file and a JSON transcript
// record named after the job id; translations leave a SubRip file named
// <id>_<lang>. Writes go through a temp file and rename so pollers never read
// a half-written artifact.
package artifacts
