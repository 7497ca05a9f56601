package whisperx

import "time"

// Config captures runtime settings for WhisperX runs.
type Config struct {
	// Model is the WhisperX model name (e.g. "turbo", "large-v3").
	Model string
	// CUDAEnabled selects the CUDA wheel index and device.
	CUDAEnabled bool
	// VADMethod selects the voice activity detector ("silero" or "pyannote").
	VADMethod string
	// HFToken authenticates pyannote model downloads.
	HFToken string
	// WorkDir receives per-run output directories. Defaults to os.TempDir().
	WorkDir string
	// Timeout bounds a single transcription. Zero disables the bound.
	Timeout time.Duration
}

// WhisperX invocation constants.
const (
	DefaultModel      = "turbo"
	CUDAIndexURL      = "https://download.pytorch.org/whl/cu128"
	PypiIndexURL      = "https://pypi.org/simple"
	BatchSize         = "4"
	ChunkSize         = "15"
	VADOnset          = "0.08"
	VADOffset         = "0.07"
	BeamSize          = "5"
	Temperature       = "0.0"
	SegmentResolution = "sentence"
	OutputFormat      = "json"
	CPUDevice         = "cpu"
	CUDADevice        = "cuda"
	CPUComputeType    = "float32"
	VADMethodPyannote = "pyannote"
	VADMethodSilero   = "silero"
	UVXCommand        = "uvx"
	EngineName        = "whisperx"
)
