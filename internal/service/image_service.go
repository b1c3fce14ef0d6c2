package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"photoshare/internal/domain"
)

func (s *profileService) UpdateProfileImage(ctx context.Context, upload domain.ImageUpload) (ImageResult, error) {
	if err := domain.ValidateImageUpload(upload, s.cfg.App.MaxUploadSize); err != nil {
		return ImageResult{}, err
	}

	data, err := s.proc.Normalize(upload.Data)
	if err != nil {
		s.log.Warn("Failed to process image",
			zap.String("original_name", upload.OriginalName),
			zap.Error(err))
		return ImageResult{}, &domain.ImageProcessingError{Err: err}
	}

	target, persistent, err := s.resolveTarget(ctx)
	if err != nil {
		return ImageResult{}, err
	}

	fileName := imageFileName(target.ID, s.now())
	imageURL := s.storeImage(ctx, fileName, data)

	if persistent {
		p, err := s.persistImage(ctx, target.ID, fileName, imageURL, upload)
		if err == nil {
			s.fallback.Overwrite(p)
			s.log.Info("Profile image updated",
				zap.String("profile_id", p.ID),
				zap.String("file_name", fileName))
			return ImageResult{ImageURL: imageURL, Profile: p}, nil
		}
		if ferr := s.storeFailure(ctx, "update profile image", err); ferr != nil {
			return ImageResult{}, ferr
		}
	}

	p := s.fallback.Update(domain.ProfileUpdate{ProfileImage: &imageURL})
	s.log.Info("Profile image updated in fallback mode",
		zap.String("file_name", fileName))

	return ImageResult{ImageURL: imageURL, Profile: p, Degraded: true}, nil
}

// resolveTarget picks the profile the image belongs to and reports whether it
// lives in the document store.
func (s *profileService) resolveTarget(ctx context.Context) (domain.Profile, bool, error) {
	if s.flag.IsAvailable() {
		p, err := s.loadPersistent(ctx)
		if err == nil {
			return p, true, nil
		}
		if ferr := s.storeFailure(ctx, "find profile for image", err); ferr != nil {
			return domain.Profile{}, false, ferr
		}
	}
	return s.fallback.Get(), false, nil
}

func (s *profileService) persistImage(ctx context.Context, profileID, fileName, imageURL string, upload domain.ImageUpload) (domain.Profile, error) {
	meta := domain.ImageMetadata{
		ProfileID:    profileID,
		OriginalName: upload.OriginalName,
		FileName:     fileName,
		MimeType:     domain.MimeJPEG,
		FileSize:     upload.Size,
		CreatedAt:    s.now(),
	}
	if err := s.repo.InsertImageMetadata(ctx, meta); err != nil {
		return domain.Profile{}, err
	}
	return s.repo.SetProfileImage(ctx, profileID, imageURL)
}

// storeImage saves the normalized image and returns its URL. When the image
// store fails the image is inlined as a data URL.
func (s *profileService) storeImage(ctx context.Context, fileName string, data []byte) string {
	url, err := s.images.Save(ctx, fileName, data, domain.MimeJPEG)
	if err == nil {
		return url
	}

	s.log.Warn("Failed to store image, inlining as data URL",
		zap.String("file_name", fileName),
		zap.Error(err))
	return "data:" + domain.MimeJPEG + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func imageFileName(profileID string, now time.Time) string {
	return fmt.Sprintf("profile-%s-%d-%s.jpg", profileID, now.UnixMilli(), uuid.NewString()[:8])
}
