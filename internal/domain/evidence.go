package domain

import "time"

// Evidence stores metadata for a file attached to a completion report.
type Evidence struct {
	ID         string
	RequestID  string
	TaskID     string
	StorageKey string
	URL        string
	FileName   string
	MimeType   string
	SizeBytes  int64
	UploadedBy string
	CreatedAt  time.Time
}
