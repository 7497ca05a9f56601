// Package llm translates subtitle text through an OpenRouter-compatible chat
// completion API.
//
// Each Translate call sends one segment with a JSON-only system prompt and
// expects {"text": "..."} back. Responses wrapped in code fences or prose are
// tolerated by DecodeLLMJSON.
//
// Requests failing with HTTP 408/429/5xx, a network timeout, or empty content
// are retried with exponential backoff; Retry-After headers are honoured up to
// the maximum delay. Context cancellation aborts retries immediately. Final
// failures carry services.ErrTranslation.
package llm
