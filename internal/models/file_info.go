package models

import "time"

// FileInfo is the metadata the upload store keeps for one stored log file.
// ContentKey is the xxhash64 of the stored bytes, in the same format the
// parse result cache uses, so identical uploads are recognizable.
type FileInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ContentKey string    `json:"contentKey,omitempty"`
	UploadedAt time.Time `json:"uploadedAt"`
	Status     string    `json:"status"` // "uploaded", "parsing", "parsed", "error"
}
