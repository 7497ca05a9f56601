package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"captioner/internal/api"
	"captioner/internal/artifacts"
	"captioner/internal/catalog"
	"captioner/internal/config"
	"captioner/internal/jobs"
	"captioner/internal/services"
	"captioner/internal/subtitles"
	"captioner/internal/testsupport"
)

type fakeJobs struct {
	reg *jobs.Registry

	mu             sync.Mutex
	transcriptions []jobs.TranscriptionRequest
	translateErr   error
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{reg: jobs.NewRegistry()}
}

func (f *fakeJobs) SubmitTranscription(_ context.Context, req jobs.TranscriptionRequest) (string, error) {
	f.mu.Lock()
	f.transcriptions = append(f.transcriptions, req)
	f.mu.Unlock()
	f.reg.Put(req.ID, jobs.KindTranscription, jobs.StatusUploaded, 5)
	return req.ID, nil
}

func (f *fakeJobs) SubmitTranslation(_ context.Context, sourceID, target string) (string, error) {
	if f.translateErr != nil {
		return "", f.translateErr
	}
	id := artifacts.TranslationID(sourceID, target)
	f.reg.Put(id, jobs.KindTranslation, jobs.StatusTranslationStarted, 10)
	return id, nil
}

func (f *fakeJobs) Status(id string) jobs.View                  { return f.reg.Status(id) }
func (f *fakeJobs) List() []jobs.View                           { return f.reg.List() }
func (f *fakeJobs) Watch(id string) (<-chan jobs.View, func()) { return f.reg.Watch(id) }

type fixture struct {
	cfg   *config.Config
	jobs  *fakeJobs
	store *artifacts.Store
	srv   *api.Server
}

func newFixture(t *testing.T, cat api.ArtifactLister, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	fj := newFakeJobs()
	store := artifacts.NewStore(cfg.Paths.ResultsDir)
	srv, err := api.New(api.Options{Config: cfg, Jobs: fj, Store: store, Catalog: cat})
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	return &fixture{cfg: cfg, jobs: fj, store: store, srv: srv}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, path, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestUploadSubmitsTranscription(t *testing.T) {
	for _, path := range []string{"/api/transcriptions", "/upload"} {
		t.Run(path, func(t *testing.T) {
			f := newFixture(t, nil)
			rec := f.do(uploadRequest(t, path, "Clip.MP3", []byte("audio"), map[string]string{"language": "en"}))
			if rec.Code != http.StatusOK {
				t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
			}
			resp := decode[api.SubmitResponse](t, rec)
			if resp.FileID == "" || resp.State != jobs.StatePending {
				t.Fatalf("unexpected response %+v", resp)
			}
			if resp.Message != "File uploaded successfully and processing started" {
				t.Fatalf("unexpected message %q", resp.Message)
			}
			saved := filepath.Join(f.cfg.Paths.UploadDir, resp.FileID+".mp3")
			data, err := os.ReadFile(saved)
			if err != nil || string(data) != "audio" {
				t.Fatalf("expected upload saved at %s: %v", saved, err)
			}
			if len(f.jobs.transcriptions) != 1 {
				t.Fatalf("expected one submission, got %d", len(f.jobs.transcriptions))
			}
			got := f.jobs.transcriptions[0]
			if got.ID != resp.FileID || got.Path != saved || got.Language != "en" {
				t.Fatalf("unexpected submission %+v", got)
			}
		})
	}
}

func TestUploadRejectsBadRequests(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(uploadRequest(t, "/api/transcriptions", "", nil, map[string]string{"language": "en"}))
	if rec.Code != http.StatusBadRequest || decode[api.ErrorResponse](t, rec).Error != "No file part" {
		t.Fatalf("missing file: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = f.do(uploadRequest(t, "/api/transcriptions", "notes.txt", []byte("text"), nil))
	if rec.Code != http.StatusBadRequest || decode[api.ErrorResponse](t, rec).Error != "File type not allowed" {
		t.Fatalf("bad extension: status %d body %s", rec.Code, rec.Body.String())
	}

	entries, err := os.ReadDir(f.cfg.Paths.UploadDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 || len(f.jobs.transcriptions) != 0 {
		t.Fatalf("rejected uploads must not be stored or submitted")
	}
}

func TestUploadEnforcesSizeLimit(t *testing.T) {
	f := newFixture(t, nil, testsupport.WithMaxUploadMB(1))
	big := bytes.Repeat([]byte{0x42}, 2<<20)
	rec := f.do(uploadRequest(t, "/api/transcriptions", "big.wav", big, nil))
	if rec.Code != http.StatusRequestEntityTooLarge && rec.Code != http.StatusBadRequest {
		t.Fatalf("expected rejection, got %d", rec.Code)
	}
	if len(f.jobs.transcriptions) != 0 {
		t.Fatalf("oversized upload must not be submitted")
	}
}

func TestTranslateEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return f.do(req)
	}

	for _, body := range []string{`{}`, `{"file_id":"abc"}`, `{"target_language":"fr"}`, `not json`} {
		rec := post("/api/translations", body)
		if rec.Code != http.StatusBadRequest || decode[api.ErrorResponse](t, rec).Error != "Missing parameters" {
			t.Fatalf("body %s: status %d %s", body, rec.Code, rec.Body.String())
		}
	}

	rec := post("/translate", `{"file_id":"abc","target_language":"fr"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	resp := decode[api.TranslationResponse](t, rec)
	if resp.TranslationID != "abc_fr" || resp.Message != "Translation started" || resp.State != jobs.StatePending {
		t.Fatalf("unexpected response %+v", resp)
	}

	f.jobs.translateErr = services.Wrap(services.ErrValidation, "submit", "translation", "invalid target language", nil)
	if rec := post("/api/translations", `{"file_id":"abc","target_language":"zz-nope"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("validation error: expected 400, got %d", rec.Code)
	}
	f.jobs.translateErr = services.Wrap(services.ErrConfiguration, "submit", "translation", "no backend", nil)
	if rec := post("/api/translations", `{"file_id":"abc","target_language":"fr"}`); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("configuration error: expected 503, got %d", rec.Code)
	}
}

func TestJobStatus(t *testing.T) {
	f := newFixture(t, nil)
	run := f.jobs.reg.Put("job-1", jobs.KindTranscription, jobs.StatusUploaded, 5)
	f.jobs.reg.Advance("job-1", run, 40, jobs.StatusTranscribing)

	for _, path := range []string{"/api/jobs/job-1", "/status/job-1"} {
		rec := f.do(httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, rec.Code)
		}
		view := decode[jobs.View](t, rec)
		if view.State != jobs.StateProcessing || view.Progress != 40 || view.Status != jobs.StatusTranscribing {
			t.Fatalf("%s: unexpected view %+v", path, view)
		}
	}

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown job: status %d", rec.Code)
	}
	view := decode[jobs.View](t, rec)
	if view.Status != "Not found" || view.State != jobs.StateFailure || view.Progress != 0 {
		t.Fatalf("unexpected not-found view %+v", view)
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	list := decode[api.JobListResponse](t, rec)
	if len(list.Jobs) != 1 || list.Jobs[0].ID != "job-1" {
		t.Fatalf("unexpected job list %+v", list)
	}
}

func TestDownload(t *testing.T) {
	f := newFixture(t, nil)
	segments := testsupport.SampleSegments()
	testsupport.WriteTranscript(t, f.store, "job-1", "en", segments)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/download/job-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "subtitles.srt") {
		t.Fatalf("unexpected disposition %q", got)
	}
	if rec.Body.String() != subtitles.Encode(segments) {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/download/job-1?format=vtt", nil))
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "WEBVTT") {
		t.Fatalf("vtt: status %d body %q", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "00:00:01.500 --> 00:00:03.250") {
		t.Fatalf("vtt timestamps missing in %q", rec.Body.String())
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/download/job-1?format=ass", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unsupported format: status %d", rec.Code)
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/download/unknown", nil))
	if rec.Code != http.StatusNotFound || decode[api.ErrorResponse](t, rec).Error != "Subtitle file not found" {
		t.Fatalf("missing subtitle: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestArtifactsListing(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/artifacts", nil))
	if rec.Code != http.StatusOK || len(decode[api.ArtifactListResponse](t, rec).Artifacts) != 0 {
		t.Fatalf("without catalog: status %d body %s", rec.Code, rec.Body.String())
	}

	cfg := testsupport.NewConfig(t)
	cat := testsupport.MustOpenCatalog(t, cfg)
	ctx := context.Background()
	for _, entry := range []catalog.Entry{
		{ID: "a", Kind: catalog.KindTranscript, SubtitlePath: "/r/a.srt", SegmentCount: 2},
		{ID: "a_fr", Kind: catalog.KindTranslation, SourceID: "a", Language: "fr", SubtitlePath: "/r/a_fr.srt", SegmentCount: 2},
		{ID: "b", Kind: catalog.KindTranscript, SubtitlePath: "/r/b.srt"},
	} {
		if err := cat.Upsert(ctx, entry); err != nil {
			t.Fatalf("upsert %s: %v", entry.ID, err)
		}
	}
	f = newFixture(t, cat)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/artifacts", nil))
	if got := decode[api.ArtifactListResponse](t, rec).Artifacts; len(got) != 3 {
		t.Fatalf("expected 3 artifacts, got %+v", got)
	}
	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/artifacts?source=a", nil))
	got := decode[api.ArtifactListResponse](t, rec).Artifacts
	if len(got) != 2 {
		t.Fatalf("expected a and its translation, got %+v", got)
	}
	for _, entry := range got {
		if entry.ID == "b" {
			t.Fatalf("unrelated artifact listed: %+v", got)
		}
	}
}

func TestAuthAndRequestID(t *testing.T) {
	f := newFixture(t, nil, testsupport.WithAPIToken("secret"))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	if rec := f.do(req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set(api.RequestIDHeader, "req-42")
	rec = f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
	if got := rec.Header().Get(api.RequestIDHeader); got != "req-42" {
		t.Fatalf("request id not echoed: %q", got)
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health must not require a token, got %d", rec.Code)
	}
	if decode[api.Health](t, rec).Status != "ok" {
		t.Fatalf("unexpected health body %s", rec.Body.String())
	}
	if rec.Header().Get(api.RequestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}
}

func dialWatch(t *testing.T, ts *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/jobs/" + id + "/watch"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestWatchStreamsUntilTerminal(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	run := f.jobs.reg.Put("job-1", jobs.KindTranscription, jobs.StatusUploaded, 5)
	conn := dialWatch(t, ts, "job-1")

	var first jobs.View
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first view: %v", err)
	}
	if first.ID != "job-1" || first.State != jobs.StatePending {
		t.Fatalf("unexpected first view %+v", first)
	}

	f.jobs.reg.Advance("job-1", run, 40, jobs.StatusTranscribing)
	f.jobs.reg.Succeed("job-1", run, jobs.StatusCompleted, &jobs.Result{ArtifactID: "job-1"})

	var last jobs.View
	for !last.State.Terminal() {
		if err := conn.ReadJSON(&last); err != nil {
			t.Fatalf("read view: %v", err)
		}
	}
	if last.State != jobs.StateSuccess || last.Progress != 100 {
		t.Fatalf("unexpected final view %+v", last)
	}

	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.CloseNormalClosure {
		t.Fatalf("expected normal close after terminal view, got %v", err)
	}
}

func TestWatchUnknownJob(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	conn := dialWatch(t, ts, "nope")
	var view jobs.View
	if err := conn.ReadJSON(&view); err != nil {
		t.Fatalf("read view: %v", err)
	}
	if view.Status != jobs.StatusNotFound || view.State != jobs.StateFailure {
		t.Fatalf("unexpected view %+v", view)
	}
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
}

func TestIndexPage(t *testing.T) {
	f := newFixture(t, nil, testsupport.WithAPIToken("secret"))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected public upload page, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("unexpected content type %q", ct)
	}
	for _, route := range []string{`"/upload"`, `"/status/"`, `"/download/"`, `"/translate"`} {
		if !strings.Contains(rec.Body.String(), route) {
			t.Fatalf("upload page does not reference %s", route)
		}
	}

	open := newFixture(t, nil)
	if rec := open.do(httptest.NewRequest(http.MethodGet, "/missing", nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown path, got %d", rec.Code)
	}
}
