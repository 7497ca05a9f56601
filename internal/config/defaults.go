package config

const (
	defaultConfigPath                = "~/.config/captioner/config.toml"
	defaultUploadDir                 = "~/.local/share/captioner/uploads"
	defaultResultsDir                = "~/.local/share/captioner/results"
	defaultLogDir                    = "~/.local/share/captioner/logs"
	defaultCatalogPath               = "~/.local/share/captioner/catalog.db"
	defaultWatchDir                  = "~/.local/share/captioner/inbox"
	defaultAPIBind                   = "127.0.0.1:5000"
	defaultMaxUploadMB               = 500
	defaultFFmpegBinary              = "ffmpeg"
	defaultTranscriptionEngine       = "whisperx"
	defaultTranscriptionModel        = "turbo"
	defaultVADMethod                 = "silero"
	defaultTranslationBackend        = "llm"
	defaultTranslationLLMBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
	defaultTranslationLibreBaseURL   = "https://libretranslate.com"
	defaultTranslationModel          = "google/gemini-3-flash-preview"
	defaultTranslationReferer        = "https://github.com/captioner/captioner"
	defaultTranslationTitle          = "Captioner Translation"
	defaultTranslationTimeoutSeconds = 60
	defaultTranslationRetryAttempts  = 2
	defaultWatchSettleMillis         = 2000
	defaultNtfyTimeoutSeconds        = 10
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
	defaultLogRetentionDays          = 30
)

// Transcription engine identifiers.
const (
	EngineWhisperX = "whisperx"
	EngineRemote   = "remote"
)

// Translation backend identifiers.
const (
	BackendLLM            = "llm"
	BackendLibreTranslate = "libretranslate"
)

// defaultAllowedExtensions mirrors the media kinds the normalizer understands.
func defaultAllowedExtensions() []string {
	return []string{"mp4", "avi", "mov", "mp3", "wav", "ogg", "webm", "mkv", "mpeg"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			UploadDir:  defaultUploadDir,
			ResultsDir: defaultResultsDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Upload: Upload{
			AllowedExtensions: defaultAllowedExtensions(),
			MaxUploadMB:       defaultMaxUploadMB,
		},
		Media: Media{
			FFmpegBinary: defaultFFmpegBinary,
		},
		Transcription: Transcription{
			Engine:    defaultTranscriptionEngine,
			Model:     defaultTranscriptionModel,
			VADMethod: defaultVADMethod,
		},
		Translation: Translation{
			Backend:        defaultTranslationBackend,
			Model:          defaultTranslationModel,
			Referer:        defaultTranslationReferer,
			Title:          defaultTranslationTitle,
			TimeoutSeconds: defaultTranslationTimeoutSeconds,
			RetryAttempts:  defaultTranslationRetryAttempts,
		},
		Catalog: Catalog{
			Enabled: true,
			Path:    defaultCatalogPath,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeoutSeconds,
			NotifySuccess:         true,
			NotifyFailure:         true,
		},
		Watch: Watch{
			Dir:          defaultWatchDir,
			SettleMillis: defaultWatchSettleMillis,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
