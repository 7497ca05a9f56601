package media

import (
	"path/filepath"
	"strings"
)

// Kind classifies an upload by the decoding it needs before transcription.
type Kind string

const (
	KindAudio   Kind = "audio"
	KindVideo   Kind = "video"
	KindUnknown Kind = ""
)

var extensionKinds = map[string]Kind{
	"mp4":  KindVideo,
	"avi":  KindVideo,
	"mov":  KindVideo,
	"mkv":  KindVideo,
	"webm": KindVideo,
	"mpeg": KindVideo,
	"mp3":  KindAudio,
	"wav":  KindAudio,
	"ogg":  KindAudio,
}

// KindForPath derives the media kind from the file extension.
func KindForPath(path string) Kind {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	return extensionKinds[ext]
}

// IsVideo reports whether k requires audio extraction.
func (k Kind) IsVideo() bool {
	return k == KindVideo
}
