package model

import "time"

// MediaAsset is a blob uploaded to object storage, referenced by content
// items through FileURL.
type MediaAsset struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	FileName    string    `json:"file_name" gorm:"not null"`
	FileType    string    `json:"file_type"` // video, pdf, thumbnail, subtitle
	ContentType string    `json:"content_type"`
	FileSize    int64     `json:"file_size"`
	StorageKey  string    `json:"storage_key" gorm:"uniqueIndex;not null"`
	UploadedBy  string    `json:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
