package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"photoshare/internal/availability"
	"photoshare/internal/config"
	"photoshare/internal/domain"
)

var errStoreDown = errors.New("server selection error: context deadline exceeded")

// fakeRepo is an in-memory document store that can be switched off.
type fakeRepo struct {
	mu       sync.Mutex
	down     bool
	profile  *domain.Profile
	metadata []domain.ImageMetadata
	calls    int
	// errs fails single operations while the store stays reachable.
	errs map[string]error
}

func (r *fakeRepo) setDown(down bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.down = down
}

func (r *fakeRepo) stored() *domain.Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.profile == nil {
		return nil
	}
	p := *r.profile
	return &p
}

func (r *fakeRepo) fail(op string) error {
	r.calls++
	if r.down {
		return &domain.StoreError{Op: op, Err: errStoreDown}
	}
	if err := r.errs[op]; err != nil {
		return &domain.StoreError{Op: op, Err: err}
	}
	return nil
}

func (r *fakeRepo) FindOrCreate(ctx context.Context, defaults domain.Profile) (domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("find profile"); err != nil {
		return domain.Profile{}, err
	}
	if r.profile == nil {
		p := defaults
		p.ID = "66aa00000000000000000001"
		p.UpdatedAt = time.Now()
		r.profile = &p
	}
	return *r.profile, nil
}

func (r *fakeRepo) UpsertNames(ctx context.Context, firstName, lastName string, defaults domain.Profile) (domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("update profile"); err != nil {
		return domain.Profile{}, err
	}
	if r.profile == nil {
		p := defaults
		p.ID = "66aa00000000000000000001"
		r.profile = &p
	}
	r.profile.FirstName = firstName
	r.profile.LastName = lastName
	r.profile.UpdatedAt = time.Now()
	return *r.profile, nil
}

func (r *fakeRepo) SetProfileImage(ctx context.Context, profileID, imageURL string) (domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("set profile image"); err != nil {
		return domain.Profile{}, err
	}
	if r.profile == nil || r.profile.ID != profileID {
		return domain.Profile{}, &domain.StoreError{Op: "set profile image", Err: domain.ErrProfileNotFound}
	}
	r.profile.ProfileImage = imageURL
	r.profile.UpdatedAt = time.Now()
	return *r.profile, nil
}

func (r *fakeRepo) InsertImageMetadata(ctx context.Context, meta domain.ImageMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("insert image metadata"); err != nil {
		return err
	}
	for _, m := range r.metadata {
		if m.FileName == meta.FileName {
			return &domain.StoreError{Op: "insert image metadata", Err: domain.ErrDuplicateImage}
		}
	}
	r.metadata = append(r.metadata, meta)
	return nil
}

func (r *fakeRepo) EnsureIndexes(ctx context.Context) error { return nil }

type fakeImageStore struct {
	mu    sync.Mutex
	err   error
	files map[string][]byte
}

func (s *fakeImageStore) Save(ctx context.Context, fileName string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	if s.files == nil {
		s.files = map[string][]byte{}
	}
	s.files[fileName] = data
	return "/uploads/" + fileName, nil
}

func (s *fakeImageStore) Open(ctx context.Context, fileName string) (io.ReadCloser, error) {
	return nil, domain.ErrImageNotFound
}

type fakeProcessor struct {
	calls int
	err   error
}

func (p *fakeProcessor) Normalize(data []byte) ([]byte, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return []byte("normalized-jpeg"), nil
}

type fixture struct {
	svc      ProfileService
	repo     *fakeRepo
	images   *fakeImageStore
	proc     *fakeProcessor
	flag     *availability.Flag
	fallback *FallbackProfile
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{MaxUploadSize: domain.MaxUploadBytes},
		Profile: config.ProfileConfig{
			DefaultFirstName: "Kheepo",
			DefaultLastName:  "Motsinoi",
			DefaultImage:     "/kheepo-profile.jpg",
		},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testConfig()
	f := &fixture{
		repo:     &fakeRepo{},
		images:   &fakeImageStore{},
		proc:     &fakeProcessor{},
		flag:     availability.New(),
		fallback: NewFallbackProfile(DefaultProfile(cfg)),
	}
	f.svc = NewProfileService(f.repo, f.images, f.proc, f.flag, f.fallback, cfg, zap.NewNop())
	return f
}

func jpegUpload(size int) domain.ImageUpload {
	return domain.ImageUpload{
		Data:         make([]byte, size),
		MimeType:     domain.MimeJPEG,
		OriginalName: "me.jpg",
		Size:         int64(size),
	}
}

func TestReadProfilePersistentResyncsFallback(t *testing.T) {
	f := newFixture(t)
	f.repo.profile = &domain.Profile{ID: "66aa", FirstName: "Ada", LastName: "Lovelace", ProfileImage: "/a.jpg", UpdatedAt: time.Now()}

	res, err := f.svc.ReadProfile(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, "Ada", res.Profile.FirstName)
	assert.Equal(t, res.Profile, f.fallback.Get())
}

func TestReadProfileCreatesDefault(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.ReadProfile(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, "Kheepo", res.Profile.FirstName)
	require.NotNil(t, f.repo.stored())
	assert.Equal(t, "66aa00000000000000000001", f.repo.stored().ID)
}

func TestFallbackAlwaysAnswers(t *testing.T) {
	f := newFixture(t)
	f.repo.setDown(true)

	want := "Kheepo"
	for i := 0; i < 3; i++ {
		res, err := f.svc.ReadProfile(context.Background())
		require.NoError(t, err)
		assert.True(t, res.Degraded)
		assert.Equal(t, want, res.Profile.FirstName)

		// Simulate the connector optimistically flipping back between calls.
		f.flag.Set(availability.StateConnected)

		res, err = f.svc.UpdateProfile(context.Background(), fmt.Sprintf("A%d", i), "B")
		require.NoError(t, err)
		assert.True(t, res.Degraded)
		assert.Equal(t, fmt.Sprintf("A%d", i), res.Profile.FirstName)
		want = res.Profile.FirstName
	}
	assert.False(t, f.flag.IsAvailable())
}

func TestStoreFailureDemotes(t *testing.T) {
	f := newFixture(t)
	f.repo.setDown(true)

	_, err := f.svc.ReadProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, availability.StateUnavailable, f.flag.State())

	calls := f.repo.calls
	_, err = f.svc.ReadProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, calls, f.repo.calls, "unavailable store must not be retried per request")
}

func TestNoRegressionOnDemotion(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.UpdateProfile(context.Background(), "A", "B")
	require.NoError(t, err)
	require.False(t, res.Degraded)

	f.repo.setDown(true)

	res, err = f.svc.ReadProfile(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, "A", res.Profile.FirstName)
	assert.Equal(t, "B", res.Profile.LastName)
}

func TestValidationPrecedesMutation(t *testing.T) {
	for _, available := range []bool{true, false} {
		t.Run(fmt.Sprintf("available=%v", available), func(t *testing.T) {
			f := newFixture(t)
			f.repo.profile = &domain.Profile{ID: "66aa", FirstName: "P", LastName: "Q"}
			if !available {
				f.flag.MarkUnavailable()
			}
			before := f.fallback.Get()

			for _, names := range [][2]string{
				{"", "X"},
				{"A" + strings.Repeat("x", 60), "B"},
				{"A", "   "},
			} {
				_, err := f.svc.UpdateProfile(context.Background(), names[0], names[1])
				require.Error(t, err)
				assert.True(t, domain.IsValidation(err))
			}

			assert.Equal(t, before, f.fallback.Get())
			assert.Equal(t, "P", f.repo.stored().FirstName)
			assert.Equal(t, "Q", f.repo.stored().LastName)
			assert.Equal(t, 0, f.repo.calls)
			assert.Equal(t, available, f.flag.IsAvailable())
		})
	}
}

func TestUpdateProfileTrimsNames(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.UpdateProfile(context.Background(), "  Ada ", " Lovelace ")
	require.NoError(t, err)
	assert.Equal(t, "Ada", res.Profile.FirstName)
	assert.Equal(t, "Lovelace", f.repo.stored().LastName)
}

func TestRecoveryRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.repo.setDown(true)

	res, err := f.svc.UpdateProfile(context.Background(), "C", "D")
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, "C", f.fallback.Get().FirstName)
	assert.Nil(t, f.repo.stored())

	f.repo.setDown(false)
	f.flag.Set(availability.StateConnected)

	res, err = f.svc.UpdateProfile(context.Background(), "E", "F")
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	require.NotNil(t, f.repo.stored())
	assert.Equal(t, "E", f.repo.stored().FirstName)
	assert.Equal(t, "F", f.repo.stored().LastName)

	fb := f.fallback.Get()
	assert.Equal(t, "E", fb.FirstName)
	assert.Equal(t, "F", fb.LastName)
}

func TestUploadRejectsOversizedBeforeProcessing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateProfileImage(context.Background(), jpegUpload(6*1024*1024))
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, 0, f.proc.calls)
	assert.Equal(t, 0, f.repo.calls)
}

func TestUploadRejectsDisallowedType(t *testing.T) {
	f := newFixture(t)
	up := jpegUpload(10)
	up.MimeType = "image/gif"

	_, err := f.svc.UpdateProfileImage(context.Background(), up)
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, 0, f.proc.calls)
}

func TestUploadProcessingErrorLeavesStateAlone(t *testing.T) {
	f := newFixture(t)
	f.proc.err = errors.New("unexpected EOF")
	before := f.fallback.Get()

	_, err := f.svc.UpdateProfileImage(context.Background(), jpegUpload(100))
	require.Error(t, err)
	assert.True(t, domain.IsImageProcessing(err))
	assert.Equal(t, before, f.fallback.Get())
	assert.Equal(t, 0, f.repo.calls)
	assert.True(t, f.flag.IsAvailable())
}

func TestUploadPersistentPath(t *testing.T) {
	f := newFixture(t)

	prev, err := f.svc.ReadProfile(context.Background())
	require.NoError(t, err)

	first, err := f.svc.UpdateProfileImage(context.Background(), jpegUpload(100*1024))
	require.NoError(t, err)
	assert.False(t, first.Degraded)
	assert.NotEqual(t, prev.Profile.ProfileImage, first.ImageURL)
	assert.Equal(t, first.ImageURL, f.repo.stored().ProfileImage)
	assert.Equal(t, first.ImageURL, f.fallback.Get().ProfileImage)
	assert.True(t, strings.HasPrefix(first.ImageURL, "/uploads/profile-66aa00000000000000000001-"))

	second, err := f.svc.UpdateProfileImage(context.Background(), jpegUpload(100*1024))
	require.NoError(t, err)
	assert.NotEqual(t, first.ImageURL, second.ImageURL)

	require.Len(t, f.repo.metadata, 2)
	assert.NotEqual(t, f.repo.metadata[0].FileName, f.repo.metadata[1].FileName)
	assert.Equal(t, "66aa00000000000000000001", f.repo.metadata[0].ProfileID)
	assert.Equal(t, domain.MimeJPEG, f.repo.metadata[0].MimeType)
	assert.EqualValues(t, 100*1024, f.repo.metadata[0].FileSize)
	assert.Equal(t, "me.jpg", f.repo.metadata[0].OriginalName)
	assert.Len(t, f.images.files, 2)
}

func TestUploadFallbackPath(t *testing.T) {
	f := newFixture(t)
	f.flag.MarkUnavailable()

	res, err := f.svc.UpdateProfileImage(context.Background(), jpegUpload(1024))
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.True(t, strings.HasPrefix(res.ImageURL, "/uploads/profile-1-"))
	assert.Equal(t, res.ImageURL, f.fallback.Get().ProfileImage)
	assert.Empty(t, f.repo.metadata)
	assert.Equal(t, 0, f.repo.calls)
}

func TestUploadDemotesWhenStoreFails(t *testing.T) {
	f := newFixture(t)
	f.repo.setDown(true)

	res, err := f.svc.UpdateProfileImage(context.Background(), jpegUpload(1024))
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.False(t, f.flag.IsAvailable())
	assert.Equal(t, res.ImageURL, f.fallback.Get().ProfileImage)
}

func TestUploadInlinesImageWhenStoreFails(t *testing.T) {
	f := newFixture(t)
	f.images.err = errors.New("bucket unreachable")
	f.flag.MarkUnavailable()

	res, err := f.svc.UpdateProfileImage(context.Background(), jpegUpload(1024))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.ImageURL, "data:image/jpeg;base64,"))
	assert.Equal(t, res.ImageURL, f.fallback.Get().ProfileImage)
}

func TestCancelledRequestDoesNotDemote(t *testing.T) {
	f := newFixture(t)
	f.repo.setDown(true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.UpdateProfile(ctx, "A", "B")
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, f.flag.IsAvailable())
	assert.Equal(t, "Kheepo", f.fallback.Get().FirstName)

	res, err := f.svc.ReadProfile(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "Kheepo", res.Profile.FirstName)
	assert.True(t, f.flag.IsAvailable())
}

func TestConcurrentFallbackUpdates(t *testing.T) {
	f := newFixture(t)
	f.flag.MarkUnavailable()

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.UpdateProfile(context.Background(), fmt.Sprintf("F%d", i), fmt.Sprintf("L%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got := f.svc.FallbackProfile()
	var idx int
	_, err := fmt.Sscanf(got.FirstName, "F%d", &idx)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("L%d", idx), got.LastName)
}

func TestDegradedWriteSurvivesRecovery(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.UpdateProfile(context.Background(), "A", "B")
	require.NoError(t, err)
	require.False(t, res.Degraded)
	persisted := res.Profile.UpdatedAt

	f.repo.setDown(true)
	res, err = f.svc.UpdateProfile(context.Background(), "C", "D")
	require.NoError(t, err)
	require.True(t, res.Degraded)
	degraded := res.Profile.UpdatedAt

	f.repo.setDown(false)
	f.flag.Set(availability.StateConnected)

	res, err = f.svc.ReadProfile(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, "C", res.Profile.FirstName)
	assert.Equal(t, "D", res.Profile.LastName)
	assert.False(t, res.Profile.UpdatedAt.Before(degraded))
	assert.False(t, res.Profile.UpdatedAt.Before(persisted))

	assert.Equal(t, "C", f.repo.stored().FirstName)
	assert.Equal(t, "D", f.repo.stored().LastName)

	_, pending := f.fallback.Pending()
	assert.False(t, pending)
}

func TestDegradedImageSurvivesRecoveredNameUpdate(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ReadProfile(context.Background())
	require.NoError(t, err)

	f.repo.setDown(true)
	img, err := f.svc.UpdateProfileImage(context.Background(), jpegUpload(1024))
	require.NoError(t, err)
	require.True(t, img.Degraded)

	f.repo.setDown(false)
	f.flag.Set(availability.StateConnected)

	res, err := f.svc.UpdateProfile(context.Background(), "E", "F")
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, img.ImageURL, res.Profile.ProfileImage)
	assert.Equal(t, img.ImageURL, f.repo.stored().ProfileImage)
	assert.Equal(t, "E", f.repo.stored().FirstName)
}

func TestSyncWritesBackPendingUpdate(t *testing.T) {
	f := newFixture(t)
	f.repo.profile = &domain.Profile{ID: "66aa", FirstName: "Old", LastName: "Record", UpdatedAt: time.Now().Add(-time.Hour)}
	f.flag.MarkUnavailable()

	_, err := f.svc.UpdateProfile(context.Background(), "New", "Name")
	require.NoError(t, err)

	f.flag.Set(availability.StateConnected)
	p, err := f.svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "New", p.FirstName)
	assert.Equal(t, "New", f.repo.stored().FirstName)
	assert.Equal(t, p, f.fallback.Get())
}

func TestSyncWithoutPendingTakesStoredRecord(t *testing.T) {
	f := newFixture(t)
	stored := domain.Profile{ID: "66aa", FirstName: "Ada", LastName: "Lovelace", UpdatedAt: time.Now().Add(-time.Hour)}
	f.repo.profile = &stored

	p, err := f.svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stored, p)
	assert.Equal(t, stored, f.fallback.Get())
}

func TestSyncFailureDoesNotDemote(t *testing.T) {
	f := newFixture(t)
	f.flag.Set(availability.StateConnected)
	f.repo.setDown(true)

	_, err := f.svc.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, f.flag.IsAvailable())
}

func TestRecordErrorsDoNotDemote(t *testing.T) {
	tests := []struct {
		op  string
		err error
	}{
		{"insert image metadata", domain.ErrDuplicateImage},
		{"set profile image", domain.ErrProfileNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.ReadProfile(context.Background())
			require.NoError(t, err)
			before := f.fallback.Get()

			f.repo.errs = map[string]error{tt.op: tt.err}
			_, err = f.svc.UpdateProfileImage(context.Background(), jpegUpload(1024))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.True(t, f.flag.IsAvailable())
			assert.Equal(t, before, f.fallback.Get())
		})
	}
}
