package profile_rate_limiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProfiles(t *testing.T) {
	registry, err := NewProfileRegistry(DefaultProfiles()...)
	require.NoError(t, err)

	tt := []struct {
		name        string
		maxRequests int64
		window      time.Duration
	}{
		{name: ProfileAuth, maxRequests: 5, window: 15 * time.Minute},
		{name: ProfilePasswordReset, maxRequests: 3, window: time.Hour},
		{name: ProfileCheckout, maxRequests: 10, window: time.Minute},
		{name: ProfileSearch, maxRequests: 30, window: time.Minute},
		{name: ProfileUpload, maxRequests: 10, window: 10 * time.Minute},
		{name: ProfileAdmin, maxRequests: 100, window: time.Minute},
	}

	for _, ts := range tt {
		p, err := registry.Lookup(ts.name)
		require.NoError(t, err, ts.name)
		assert.Equal(t, Profile{Name: ts.name, MaxRequests: ts.maxRequests, Window: ts.window}, p)
	}

	assert.Equal(t, []string{"ADMIN", "AUTH", "CHECKOUT", "PASSWORD_RESET", "SEARCH", "UPLOAD"}, registry.Names())
}

func TestProfileRegistry_Lookup(t *testing.T) {
	registry, err := NewProfileRegistry(Profile{Name: " search ", MaxRequests: 30, Window: time.Minute})
	require.NoError(t, err)

	p, err := registry.Lookup("Search")
	require.NoError(t, err)
	assert.Equal(t, "SEARCH", p.Name)

	_, err = registry.Lookup("CHECKOUT")
	assert.ErrorIs(t, err, ErrUnknownProfile)

	assert.Panics(t, func() { registry.MustLookup("CHECKOUT") })
	assert.NotPanics(t, func() { registry.MustLookup("SEARCH") })
}

func TestNewProfileRegistry_RejectsInvalidProfiles(t *testing.T) {
	tt := []struct {
		desc     string
		profiles []Profile
	}{
		{desc: "empty name", profiles: []Profile{{Name: " ", MaxRequests: 1, Window: time.Second}}},
		{desc: "negative max requests", profiles: []Profile{{Name: "A", MaxRequests: -1, Window: time.Second}}},
		{desc: "zero window", profiles: []Profile{{Name: "A", MaxRequests: 1}}},
		{desc: "duplicate names", profiles: []Profile{
			{Name: "a", MaxRequests: 1, Window: time.Second},
			{Name: "A", MaxRequests: 2, Window: time.Second},
		}},
	}

	for _, ts := range tt {
		t.Run(ts.desc, func(t *testing.T) {
			_, err := NewProfileRegistry(ts.profiles...)
			assert.ErrorIs(t, err, ErrInvalidProfile)
		})
	}
}

func TestProfile_ValidateAllowsZeroMaxRequests(t *testing.T) {
	assert.NoError(t, Profile{Name: "CLOSED", MaxRequests: 0, Window: time.Millisecond}.Validate())
}

func TestMergeProfiles(t *testing.T) {
	merged := MergeProfiles(DefaultProfiles(),
		Profile{Name: "auth", MaxRequests: 10, Window: time.Minute},
		Profile{Name: "REPORTS", MaxRequests: 2, Window: time.Second},
	)

	require.Len(t, merged, len(DefaultProfiles())+1)
	assert.Equal(t, Profile{Name: "AUTH", MaxRequests: 10, Window: time.Minute}, merged[0])
	assert.Equal(t, Profile{Name: "REPORTS", MaxRequests: 2, Window: time.Second}, merged[len(merged)-1])

	_, err := NewProfileRegistry(merged...)
	assert.NoError(t, err)
}
