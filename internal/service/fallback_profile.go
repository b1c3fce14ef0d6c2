package service

import (
	"sync"
	"time"

	"photoshare/internal/domain"
)

// FallbackProfile is the in-memory profile served while the document store is
// unavailable. It is kept in sync with every successful persistent read and
// write so a demotion never serves data older than what clients last saw.
type FallbackProfile struct {
	mu       sync.Mutex
	defaults domain.Profile
	current  domain.Profile
	now      func() time.Time

	// pending is set while current holds a write the store has not seen.
	pending bool
}

func NewFallbackProfile(defaults domain.Profile) *FallbackProfile {
	f := &FallbackProfile{defaults: defaults, now: time.Now}
	f.current = defaults
	f.current.UpdatedAt = f.now()
	return f
}

func (f *FallbackProfile) Get() domain.Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Update overwrites the non-nil fields of u and stamps UpdatedAt.
func (f *FallbackProfile) Update(u domain.ProfileUpdate) domain.Profile {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u.FirstName != nil {
		f.current.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		f.current.LastName = *u.LastName
	}
	if u.ProfileImage != nil {
		f.current.ProfileImage = *u.ProfileImage
	}
	f.current.UpdatedAt = f.stamp()
	f.pending = true

	return f.current
}

// Pending returns the held record and whether it carries a write made while
// the store was unavailable.
func (f *FallbackProfile) Pending() (domain.Profile, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.pending
}

// Overwrite replaces the held record with one read from or written to the
// persistent store.
func (f *FallbackProfile) Overwrite(p domain.Profile) domain.Profile {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.current = p
	f.pending = false
	return f.current
}

func (f *FallbackProfile) Reset() domain.Profile {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.current = f.defaults
	f.current.UpdatedAt = f.now()
	f.pending = false
	return f.current
}

// stamp never goes backwards relative to the held record. Callers hold f.mu.
func (f *FallbackProfile) stamp() time.Time {
	t := f.now()
	if t.Before(f.current.UpdatedAt) {
		return f.current.UpdatedAt
	}
	return t
}
