package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"photoshare/internal/config"
	"photoshare/internal/domain"
	"photoshare/internal/repository"
)

// Availability is the service's view of the shared store flag.
type Availability interface {
	IsAvailable() bool
	MarkUnavailable()
}

type ImageNormalizer interface {
	Normalize(data []byte) ([]byte, error)
}

type ProfileResult struct {
	Profile domain.Profile
	// Degraded is set when the result came from the in-memory fallback.
	Degraded bool
}

type ImageResult struct {
	ImageURL string
	Profile  domain.Profile
	Degraded bool
}

// ProfileService serves the single profile from the document store when it is
// available and from the in-memory fallback otherwise. Connectivity failures
// are never returned: they demote the store and the call is served from the
// fallback instead. Updates made in fallback mode are written back on the
// next successful store call.
type ProfileService interface {
	ReadProfile(ctx context.Context) (ProfileResult, error)
	UpdateProfile(ctx context.Context, firstName, lastName string) (ProfileResult, error)
	UpdateProfileImage(ctx context.Context, upload domain.ImageUpload) (ImageResult, error)
	FallbackProfile() domain.Profile
	// Sync writes back any update made in fallback mode and then resyncs the
	// fallback from the store. It does not demote on failure.
	Sync(ctx context.Context) (domain.Profile, error)
}

type profileService struct {
	repo     repository.ProfileRepository
	images   repository.ImageStore
	proc     ImageNormalizer
	flag     Availability
	fallback *FallbackProfile
	cfg      *config.Config
	log      *zap.Logger
	now      func() time.Time
}

func NewProfileService(
	repo repository.ProfileRepository,
	images repository.ImageStore,
	proc ImageNormalizer,
	flag Availability,
	fallback *FallbackProfile,
	cfg *config.Config,
	log *zap.Logger,
) ProfileService {
	return &profileService{
		repo:     repo,
		images:   images,
		proc:     proc,
		flag:     flag,
		fallback: fallback,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// DefaultProfile builds the seed profile from configuration.
func DefaultProfile(cfg *config.Config) domain.Profile {
	return domain.Profile{
		ID:           "1",
		FirstName:    cfg.Profile.DefaultFirstName,
		LastName:     cfg.Profile.DefaultLastName,
		ProfileImage: cfg.Profile.DefaultImage,
	}
}

func (s *profileService) FallbackProfile() domain.Profile {
	return s.fallback.Get()
}

// storeFailure decides how a failed store call is answered. It returns nil
// after demoting the store, and the caller then serves the fallback. A
// cancelled caller gets its context error and a record error is returned
// as is. Neither demotes.
func (s *profileService) storeFailure(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		s.log.Warn("Request cancelled during store operation",
			zap.String("op", op),
			zap.Error(err))
		return ctx.Err()
	}

	if domain.IsRecordError(err) {
		s.log.Warn("Document store rejected operation",
			zap.String("op", op),
			zap.Error(err))
		return err
	}

	s.log.Error("Document store error, switching to fallback profile",
		zap.String("op", op),
		zap.Error(err))
	s.flag.MarkUnavailable()
	return nil
}

// flushPending writes an update made in fallback mode back to the store, so a
// recovered store never replaces what clients last saw with an older record.
func (s *profileService) flushPending(ctx context.Context) error {
	fb, pending := s.fallback.Pending()
	if !pending {
		return nil
	}

	p, err := s.repo.UpsertNames(ctx, fb.FirstName, fb.LastName, DefaultProfile(s.cfg))
	if err != nil {
		return err
	}
	if p.ProfileImage != fb.ProfileImage {
		if p, err = s.repo.SetProfileImage(ctx, p.ID, fb.ProfileImage); err != nil {
			return err
		}
	}

	s.fallback.Overwrite(p)
	s.log.Info("Fallback profile written back to document store",
		zap.String("id", p.ID),
		zap.Time("fallback_updated_at", fb.UpdatedAt))
	return nil
}

func (s *profileService) loadPersistent(ctx context.Context) (domain.Profile, error) {
	if err := s.flushPending(ctx); err != nil {
		return domain.Profile{}, err
	}
	return s.repo.FindOrCreate(ctx, DefaultProfile(s.cfg))
}

func (s *profileService) Sync(ctx context.Context) (domain.Profile, error) {
	p, err := s.loadPersistent(ctx)
	if err != nil {
		return domain.Profile{}, err
	}
	return s.fallback.Overwrite(p), nil
}

func (s *profileService) ReadProfile(ctx context.Context) (ProfileResult, error) {
	if s.flag.IsAvailable() {
		p, err := s.loadPersistent(ctx)
		if err == nil {
			s.fallback.Overwrite(p)
			return ProfileResult{Profile: p}, nil
		}
		if ferr := s.storeFailure(ctx, "read profile", err); ferr != nil {
			return ProfileResult{Profile: s.fallback.Get(), Degraded: true}, ferr
		}
	}

	s.log.Debug("Using fallback profile data")
	return ProfileResult{Profile: s.fallback.Get(), Degraded: true}, nil
}

func (s *profileService) UpdateProfile(ctx context.Context, firstName, lastName string) (ProfileResult, error) {
	first, last, err := domain.NormalizeNames(firstName, lastName)
	if err != nil {
		return ProfileResult{}, err
	}

	if s.flag.IsAvailable() {
		var p domain.Profile
		err := s.flushPending(ctx)
		if err == nil {
			p, err = s.repo.UpsertNames(ctx, first, last, DefaultProfile(s.cfg))
		}
		if err == nil {
			s.fallback.Overwrite(p)
			return ProfileResult{Profile: p}, nil
		}
		if ferr := s.storeFailure(ctx, "update profile", err); ferr != nil {
			return ProfileResult{}, ferr
		}
	}

	s.log.Info("Updating fallback profile data",
		zap.String("first_name", first),
		zap.String("last_name", last))

	p := s.fallback.Update(domain.ProfileUpdate{FirstName: &first, LastName: &last})
	return ProfileResult{Profile: p, Degraded: true}, nil
}
