package logging

import "strings"

// ProgressSampler suppresses repetitive job progress logs. It emits when the
// status message changes or the percent crosses into a new bucket.
type ProgressSampler struct {
	bucket     int
	lastStatus string
	lastBucket int
}

// NewProgressSampler constructs a sampler with the given bucket width in
// percent (default 10).
func NewProgressSampler(bucket int) *ProgressSampler {
	if bucket <= 0 {
		bucket = 10
	}
	return &ProgressSampler{bucket: bucket, lastBucket: -1}
}

// ShouldLog reports whether a progress update is worth a log line.
func (s *ProgressSampler) ShouldLog(percent int, status string) bool {
	if s == nil {
		return true
	}
	emit := false
	status = strings.TrimSpace(status)
	if status != "" && status != s.lastStatus {
		s.lastStatus = status
		emit = true
	}
	if percent > 100 {
		percent = 100
	}
	if percent >= 0 {
		if b := percent / s.bucket; b > s.lastBucket {
			s.lastBucket = b
			emit = true
		}
	}
	return emit
}
