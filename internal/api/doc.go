// Package api exposes captioner over HTTP.
//
// Routes:
//
//	POST /api/transcriptions        multipart "file" (+ optional "language")
//	POST /api/translations          {"file_id", "target_language"}
//	GET  /api/jobs                  every tracked job
//	GET  /api/jobs/{id}             one job; 404 with the not-found view
//	GET  /api/jobs/{id}/watch       websocket stream of views until terminal
//	GET  /api/download/{id}         subtitle attachment (?format=vtt)
//	GET  /api/artifacts             catalogued artifacts (?source=<id>)
//	GET  /api/health                readiness of engines and dependencies
//
// The original form-based routes (/upload, /status/{id}, /download/{id},
// /translate) are served as aliases. When an API token is configured every
// route except /api/health requires "Authorization: Bearer <token>".
//
// The payload types are shared with the CLI client in internal/apiclient.
package api
