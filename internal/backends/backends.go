// Package backends builds the configured transcription engine and translation
// backend from a Config.
package backends

import (
	"time"

	"captioner/internal/config"
	"captioner/internal/services"
	"captioner/internal/services/libretranslate"
	"captioner/internal/services/llm"
	"captioner/internal/services/remotewhisper"
	"captioner/internal/services/whisperx"
	"captioner/internal/transcription"
	"captioner/internal/translation"
)

// Engine describes the configured transcription engine without loading it.
type Engine struct {
	Name   string
	Model  string
	Loader transcription.Loader
}

// TranscriptionEngine resolves cfg.Transcription into a lazy loader.
func TranscriptionEngine(cfg *config.Config) (Engine, error) {
	t := cfg.Transcription
	timeout := seconds(t.TimeoutSeconds)
	switch t.Engine {
	case config.EngineWhisperX, "":
		svc := whisperx.NewService(whisperx.Config{
			Model:       t.Model,
			CUDAEnabled: t.CUDAEnabled,
			VADMethod:   t.VADMethod,
			HFToken:     t.HuggingFace,
			Timeout:     timeout,
		})
		return Engine{Name: svc.Name(), Model: svc.Model(), Loader: svc.Load}, nil
	case config.EngineRemote:
		model := t.Model
		if model == whisperx.DefaultModel {
			model = remotewhisper.DefaultModel
		}
		client := remotewhisper.New(remotewhisper.Config{
			URL:     t.RemoteURL,
			APIKey:  t.RemoteAPIKey,
			Model:   model,
			Timeout: timeout,
		})
		return Engine{Name: client.Name(), Model: client.Model(), Loader: client.Load}, nil
	default:
		return Engine{}, services.Wrap(services.ErrConfiguration, "backends", "transcription", "unknown engine "+t.Engine, nil)
	}
}

// Translator resolves cfg.Translation into a backend client.
func Translator(cfg *config.Config) (translation.Translator, error) {
	t := cfg.Translation
	switch t.Backend {
	case config.BackendLLM, "":
		return llm.NewClient(llm.Config{
			APIKey:  t.APIKey,
			BaseURL: t.BaseURL,
			Model:   t.Model,
			Referer: t.Referer,
			Title:   t.Title,
			Timeout: seconds(t.TimeoutSeconds),
		}, llm.WithRetryMaxAttempts(t.RetryAttempts)), nil
	case config.BackendLibreTranslate:
		return libretranslate.New(libretranslate.Config{
			BaseURL: t.BaseURL,
			APIKey:  t.APIKey,
			Timeout: seconds(t.TimeoutSeconds),
		}), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "backends", "translation", "unknown backend "+t.Backend, nil)
	}
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
