package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"captioner/internal/catalog"
	"captioner/internal/jobs"
	"captioner/internal/logging"
	"captioner/internal/services"
	"captioner/internal/subtitles"
)

const (
	multipartMemory   = 32 << 20
	maxJSONBodyBytes  = 1 << 20
	subtitleMediaType = "application/x-subrip"
	vttMediaType      = "text/vtt; charset=utf-8"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if limit := s.cfg.MaxUploadBytes(); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "No file part")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "No file part")
		return
	}
	defer file.Close()
	name := filepath.Base(strings.TrimSpace(header.Filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		s.writeError(w, http.StatusBadRequest, "No selected file")
		return
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if !s.cfg.AllowedExtension(ext) {
		s.writeError(w, http.StatusBadRequest, "File type not allowed")
		return
	}

	id := jobs.NewID()
	dest := filepath.Join(s.cfg.Paths.UploadDir, id+"."+ext)
	if err := saveUpload(file, dest); err != nil {
		s.writeServiceError(w, r, services.Wrap(services.ErrExternalTool, "api", "save upload", name, err))
		return
	}

	id, err = s.jobs.SubmitTranscription(r.Context(), jobs.TranscriptionRequest{
		ID:       id,
		Path:     dest,
		Language: r.FormValue("language"),
	})
	if err != nil {
		_ = os.Remove(dest)
		s.writeServiceError(w, r, err)
		return
	}
	s.log(r).Info("upload accepted",
		logging.String(logging.FieldJobID, id),
		logging.String("filename", name),
		logging.Int64("bytes", header.Size),
		logging.String(logging.FieldEventType, "upload_accepted"),
	)
	s.writeJSON(w, http.StatusOK, SubmitResponse{
		Message: "File uploaded successfully and processing started",
		FileID:  id,
		State:   s.jobs.Status(id).State,
	})
}

func saveUpload(src io.Reader, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return err
	}
	return out.Close()
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req TranslationRequest
	body := http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Missing parameters")
		return
	}
	if strings.TrimSpace(req.FileID) == "" || strings.TrimSpace(req.TargetLanguage) == "" {
		s.writeError(w, http.StatusBadRequest, "Missing parameters")
		return
	}
	id, err := s.jobs.SubmitTranslation(r.Context(), req.FileID, req.TargetLanguage)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, TranslationResponse{
		Message:       "Translation started",
		TranslationID: id,
		State:         s.jobs.Status(id).State,
	})
}

func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	list := s.jobs.List()
	if list == nil {
		list = []jobs.View{}
	}
	s.writeJSON(w, http.StatusOK, JobListResponse{Jobs: list})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	view := s.jobs.Status(r.PathValue("id"))
	if !view.Found() {
		s.writeJSON(w, http.StatusNotFound, view)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, err := s.store.ReadSubtitle(id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "Subtitle file not found")
			return
		}
		s.writeServiceError(w, r, err)
		return
	}

	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	switch format {
	case "", "srt":
		w.Header().Set("Content-Type", subtitleMediaType)
		w.Header().Set("Content-Disposition", `attachment; filename="subtitles.srt"`)
	case "vtt":
		converted, err := subtitles.ConvertSRTToVTT(string(data))
		if err != nil {
			s.writeServiceError(w, r, services.Wrap(services.ErrValidation, "api", "convert subtitle", id, err))
			return
		}
		data = []byte(converted)
		w.Header().Set("Content-Type", vttMediaType)
		w.Header().Set("Content-Disposition", `attachment; filename="subtitles.vtt"`)
	default:
		s.writeError(w, http.StatusBadRequest, "unsupported format "+format)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		s.writeJSON(w, http.StatusOK, ArtifactListResponse{Artifacts: []catalog.Entry{}})
		return
	}
	entries, err := s.catalog.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("source")))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []catalog.Entry{}
	}
	s.writeJSON(w, http.StatusOK, ArtifactListResponse{Artifacts: entries})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.healthSnapshot(r.Context()))
}
