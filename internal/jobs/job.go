package jobs

import (
	"time"

	"captioner/internal/subtitles"
)

// State is the lifecycle position of a job.
type State string

const (
	StatePending    State = "PENDING"
	StateProcessing State = "PROCESSING"
	StateSuccess    State = "SUCCESS"
	StateFailure    State = "FAILURE"
)

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure
}

// Kind distinguishes the two pipelines.
type Kind string

const (
	KindTranscription Kind = "transcription"
	KindTranslation   Kind = "translation"
)

// Status messages published at each checkpoint.
const (
	StatusUploaded           = "File uploaded, starting processing"
	StatusProcessingAudio    = "Processing audio extraction"
	StatusExtractingAudio    = "Extracting audio from video file"
	StatusTranscribing       = "Transcribing audio"
	StatusWritingSubtitles   = "Writing subtitles"
	StatusCompleted          = "Completed"
	StatusTranslationStarted = "Starting translation"
	StatusTranslating        = "Translating subtitles"
	StatusTranslationDone    = "Translation complete"
	StatusNotFound           = "Not found"
)

// Result references the artifacts a successful job produced.
type Result struct {
	ArtifactID       string              `json:"artifact_id"`
	SourceID         string              `json:"source_id,omitempty"`
	SubtitlePath     string              `json:"subtitle_path"`
	TranscriptPath   string              `json:"transcript_path,omitempty"`
	Language         string              `json:"language,omitempty"`
	LanguageDetected bool                `json:"language_detected,omitempty"`
	Segments         []subtitles.Segment `json:"segments"`
}

// Job is the registry's record for one submission.
type Job struct {
	ID        string
	Kind      Kind
	State     State
	Status    string
	Progress  int
	Result    *Result
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time

	run uint64
}

// View is a point-in-time copy of a job as returned to API callers.
type View struct {
	ID        string    `json:"id,omitempty"`
	Kind      Kind      `json:"kind,omitempty"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	State     State     `json:"state"`
	Result    *Result   `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// NotFoundView is reported for identifiers the registry has never seen.
func NotFoundView(id string) View {
	return View{ID: id, Status: StatusNotFound, Progress: 0, State: StateFailure}
}

// Found reports whether the view describes a tracked job rather than the
// not-found placeholder.
func (v View) Found() bool {
	return v.Kind != ""
}

func (j *Job) view() View {
	v := View{
		ID:        j.ID,
		Kind:      j.Kind,
		Status:    j.Status,
		Progress:  j.Progress,
		State:     j.State,
		Error:     j.Error,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
	if j.Result != nil {
		res := *j.Result
		res.Segments = append([]subtitles.Segment(nil), j.Result.Segments...)
		v.Result = &res
	}
	return v
}
