package api

import (
	"captioner/internal/catalog"
	"captioner/internal/jobs"
)

// SubmitResponse acknowledges an accepted upload.
type SubmitResponse struct {
	Message string     `json:"message"`
	FileID  string     `json:"file_id"`
	State   jobs.State `json:"state"`
}

// TranslationRequest asks for a stored transcript to be translated.
type TranslationRequest struct {
	FileID         string `json:"file_id"`
	TargetLanguage string `json:"target_language"`
}

// TranslationResponse acknowledges an accepted translation.
type TranslationResponse struct {
	Message       string     `json:"message"`
	TranslationID string     `json:"translation_id"`
	State         jobs.State `json:"state"`
}

// JobListResponse lists tracked jobs.
type JobListResponse struct {
	Jobs []jobs.View `json:"jobs"`
}

// ArtifactListResponse lists catalogued artifacts.
type ArtifactListResponse struct {
	Artifacts []catalog.Entry `json:"artifacts"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// Health summarizes daemon readiness.
type Health struct {
	Status             string             `json:"status"`
	PID                int                `json:"pid"`
	Engine             string             `json:"engine"`
	Model              string             `json:"model"`
	ModelLoaded        bool               `json:"model_loaded"`
	TranslationBackend string             `json:"translation_backend"`
	Jobs               int                `json:"jobs"`
	CatalogPath        string             `json:"catalog_path,omitempty"`
	Notifications      bool               `json:"notifications"`
	Dependencies       []DependencyStatus `json:"dependencies"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}
