package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// NormalizeNames trims both names and checks they are present and short enough.
func NormalizeNames(firstName, lastName string) (string, string, error) {
	first := strings.TrimSpace(firstName)
	last := strings.TrimSpace(lastName)

	if first == "" || last == "" {
		return "", "", &ValidationError{Msg: "First name and last name are required"}
	}
	if utf8.RuneCountInString(first) > MaxNameLength || utf8.RuneCountInString(last) > MaxNameLength {
		return "", "", &ValidationError{Msg: fmt.Sprintf("Names must be %d characters or less", MaxNameLength)}
	}

	return first, last, nil
}

// ValidateImageUpload checks an upload against the size limit and the allowed types.
func ValidateImageUpload(u ImageUpload, maxBytes int64) error {
	if len(u.Data) == 0 {
		return &ValidationError{Field: "image", Msg: "No image file provided"}
	}
	size := u.Size
	if size < int64(len(u.Data)) {
		size = int64(len(u.Data))
	}
	return ValidateImageHeader(u.MimeType, size, maxBytes)
}

// ValidateImageHeader checks the declared size and type of an upload before
// its content is read.
func ValidateImageHeader(mimeType string, size, maxBytes int64) error {
	if size > maxBytes {
		return &ValidationError{
			Field: "image",
			Msg:   fmt.Sprintf("File size too large. Maximum size is %dMB.", maxBytes/(1024*1024)),
		}
	}
	if !IsAllowedImageType(mimeType) {
		return &ValidationError{Field: "image", Msg: "Invalid file type. Only JPEG, PNG, and WebP are allowed."}
	}
	return nil
}
