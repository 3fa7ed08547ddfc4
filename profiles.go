package profile_rate_limiter

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Profile names shipped with DefaultProfiles.
const (
	ProfileAuth          = "AUTH"
	ProfilePasswordReset = "PASSWORD_RESET"
	ProfileCheckout      = "CHECKOUT"
	ProfileSearch        = "SEARCH"
	ProfileUpload        = "UPLOAD"
	ProfileAdmin         = "ADMIN"
)

// Profile is a named quota: at most MaxRequests per sliding Window.
// MaxRequests of 0 denies every request.
type Profile struct {
	Name        string
	MaxRequests int64
	Window      time.Duration
}

// Validate checks the profile is usable.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidProfile)
	}
	if p.MaxRequests < 0 {
		return fmt.Errorf("%w: %s max requests must not be negative, got %d", ErrInvalidProfile, p.Name, p.MaxRequests)
	}
	if p.Window <= 0 {
		return fmt.Errorf("%w: %s window must be positive, got %v", ErrInvalidProfile, p.Name, p.Window)
	}
	return nil
}

// DefaultProfiles returns the built-in profile table.
func DefaultProfiles() []Profile {
	return []Profile{
		{Name: ProfileAuth, MaxRequests: 5, Window: 15 * time.Minute},
		{Name: ProfilePasswordReset, MaxRequests: 3, Window: time.Hour},
		{Name: ProfileCheckout, MaxRequests: 10, Window: time.Minute},
		{Name: ProfileSearch, MaxRequests: 30, Window: time.Minute},
		{Name: ProfileUpload, MaxRequests: 10, Window: 10 * time.Minute},
		{Name: ProfileAdmin, MaxRequests: 100, Window: time.Minute},
	}
}

// ProfileRegistry is an immutable name to profile table, validated once when
// it is built.
type ProfileRegistry struct {
	profiles map[string]Profile
}

// NewProfileRegistry validates profiles and indexes them by name. Names are
// case-insensitive and stored upper-cased.
func NewProfileRegistry(profiles ...Profile) (*ProfileRegistry, error) {
	r := &ProfileRegistry{profiles: make(map[string]Profile, len(profiles))}

	for _, p := range profiles {
		p.Name = normalizeProfileName(p.Name)
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, ok := r.profiles[p.Name]; ok {
			return nil, fmt.Errorf("%w: duplicate profile %s", ErrInvalidProfile, p.Name)
		}
		r.profiles[p.Name] = p
	}

	return r, nil
}

// Lookup returns the profile registered under name.
func (r *ProfileRegistry) Lookup(name string) (Profile, error) {
	p, ok := r.profiles[normalizeProfileName(name)]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p, nil
}

// MustLookup is Lookup for startup wiring; it panics on unknown names.
func (r *ProfileRegistry) MustLookup(name string) Profile {
	p, err := r.Lookup(name)
	if err != nil {
		panic(err)
	}
	return p
}

// Names lists the registered profile names in order.
func (r *ProfileRegistry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MergeProfiles returns base with every entry of overrides replacing the
// profile of the same name, or appended when the name is new.
func MergeProfiles(base []Profile, overrides ...Profile) []Profile {
	merged := make([]Profile, 0, len(base)+len(overrides))
	index := make(map[string]int, len(base))

	for _, p := range base {
		p.Name = normalizeProfileName(p.Name)
		index[p.Name] = len(merged)
		merged = append(merged, p)
	}

	for _, p := range overrides {
		p.Name = normalizeProfileName(p.Name)
		if i, ok := index[p.Name]; ok {
			merged[i] = p
			continue
		}
		index[p.Name] = len(merged)
		merged = append(merged, p)
	}

	return merged
}

func normalizeProfileName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
