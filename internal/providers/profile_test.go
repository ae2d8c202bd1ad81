package providers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/streamarr/internal/config"
)

func TestDiagnoseOverrides(t *testing.T) {
	d := Diagnose(&config.Config{RatingProcessor: 0.2, RatingMemory: 3, RatingNetwork: 0.9})
	assert.Equal(t, 0.2, d.Processor)
	assert.Equal(t, 1.0, d.Memory, "ratings are capped at 1")
	assert.Equal(t, neutralRating, d.Storage)
	assert.Equal(t, 0.9, d.Network)
}

func TestOptimizeProfilesAreOrdered(t *testing.T) {
	d := Diagnosis{Processor: 0.5, Memory: 0.5, Storage: 0.5, Network: 0.5}

	speed := Optimize(d, ProfileSpeed)
	mixed := Optimize(d, ProfileMixed)
	result := Optimize(d, ProfileResult)
	crazy := Optimize(d, ProfileCrazy)

	assert.Less(t, speed.TimeLimit, mixed.TimeLimit)
	assert.Less(t, mixed.TimeLimit, result.TimeLimit)
	assert.Less(t, result.TimeLimit, crazy.TimeLimit)
	assert.Less(t, speed.QueryLimit, crazy.QueryLimit)

	assert.False(t, speed.ExpandTitles)
	assert.True(t, mixed.ExpandTitles)
	assert.False(t, mixed.ExpandKeywords)
	assert.True(t, result.ExpandKeywords)

	// A neutral device keeps the base limits
	assert.Equal(t, 90*time.Second, mixed.TimeLimit)
	assert.Equal(t, 6, mixed.QueryLimit)
}

func TestOptimizeScalesWithDevice(t *testing.T) {
	weak := Optimize(Diagnosis{Processor: 0.1, Memory: 0.1, Storage: 0.1, Network: 0.1}, ProfileResult)
	strong := Optimize(Diagnosis{Processor: 1, Memory: 1, Storage: 1, Network: 1}, ProfileResult)

	assert.Greater(t, weak.TimeLimit, strong.TimeLimit)
	assert.Less(t, weak.QueryLimit, strong.QueryLimit)
	assert.False(t, weak.ExpandKeywords, "slow networks skip keyword queries")
	assert.GreaterOrEqual(t, weak.PageLimit, 1)
}

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile("")
	require.NoError(t, err)
	assert.Equal(t, ProfileMixed, p)

	p, err = ParseProfile("crazy")
	require.NoError(t, err)
	assert.Equal(t, ProfileCrazy, p)

	_, err = ParseProfile("fast")
	assert.Error(t, err)
}
