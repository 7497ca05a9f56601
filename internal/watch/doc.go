// Package watch turns an inbox directory into a submission queue: media files
// dropped there are moved into the upload directory under a fresh job id and
// submitted for transcription once they stop changing.
//
// fsnotify drives discovery; a poll loop takes over when the platform or
// filesystem cannot deliver events.
package watch
