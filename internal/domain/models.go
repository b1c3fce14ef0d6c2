package domain

import (
	"time"
)

const (
	MaxNameLength  = 50
	MaxUploadBytes = int64(5 * 1024 * 1024) // 5MB

	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimeWebP = "image/webp"
)

// AllowedImageTypes is the set of MIME types accepted for profile uploads.
var AllowedImageTypes = []string{MimeJPEG, MimePNG, MimeWebP}

// Profile is the single profile record served by both the persistent store
// and the in-memory fallback.
type Profile struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	ProfileImage string    `json:"profileImage"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ProfileUpdate is a partial update. Nil fields are left unchanged.
type ProfileUpdate struct {
	FirstName    *string
	LastName     *string
	ProfileImage *string
}

type ImageMetadata struct {
	ProfileID    string    `json:"profileId"`
	OriginalName string    `json:"originalName"`
	FileName     string    `json:"fileName"`
	MimeType     string    `json:"mimeType"`
	FileSize     int64     `json:"fileSize"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ImageUpload is a raw image as received from a client.
type ImageUpload struct {
	Data         []byte
	MimeType     string
	OriginalName string
	Size         int64
}

func IsAllowedImageType(mimeType string) bool {
	for _, t := range AllowedImageTypes {
		if t == mimeType {
			return true
		}
	}
	return false
}
