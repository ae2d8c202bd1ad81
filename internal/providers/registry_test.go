package providers

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/streamarr/internal/models"
	"github.com/amaumene/streamarr/internal/utils"
)

type fakeProvider struct {
	id      string
	info    Info
	stopped bool
}

func (f *fakeProvider) ID() string { return f.id }
func (f *fakeProvider) Info() Info { return f.info }
func (f *fakeProvider) Stop() { f.stopped = true }
func (f *fakeProvider) Scrape(ctx context.Context, req *Request, sink Sink) error { return nil }
func (f *fakeProvider) Resolve(ctx context.Context, link string) (string, error) { return link, nil }

func newFake(id string, tier int, kinds ...models.Kind) *fakeProvider {
	return &fakeProvider{id: id, info: Info{Name: id, Tier: tier, Kinds: kinds}}
}

func ids(providers []Provider) []string {
	var out []string
	for _, p := range providers {
		out = append(out, p.ID())
	}
	return out
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r, err := NewRegistry(nil, Options{}, utils.NewTestLogger())
	require.NoError(t, err)

	require.NoError(t, r.Register(newFake("a", 0, models.KindMovie)))
	err = r.Register(newFake("a", 1, models.KindMovie))
	assert.ErrorIs(t, err, ErrDuplicate)

	p, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, 0, p.Info().Tier)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestTiersOrderAndKinds(t *testing.T) {
	r, err := NewRegistry(nil, Options{}, utils.NewTestLogger())
	require.NoError(t, err)

	require.NoError(t, r.Register(newFake("late", 2, models.KindMovie)))
	require.NoError(t, r.Register(newFake("first", 0, models.KindMovie, models.KindEpisode)))
	require.NoError(t, r.Register(newFake("second", 0, models.KindMovie)))
	require.NoError(t, r.Register(newFake("shows", 1, models.KindEpisode)))

	tiers := r.Tiers(models.KindMovie)
	require.Len(t, tiers, 2)
	assert.Equal(t, []string{"first", "second"}, ids(tiers[0]))
	assert.Equal(t, []string{"late"}, ids(tiers[1]))

	tiers = r.Tiers(models.KindEpisode)
	require.Len(t, tiers, 2)
	assert.Equal(t, []string{"first"}, ids(tiers[0]))
	assert.Equal(t, []string{"shows"}, ids(tiers[1]))

	tier, order := r.Order("second")
	assert.Equal(t, 0, tier)
	assert.Equal(t, 2, order)
}

func TestSuppressionAndCooldown(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	db, err := models.NewDatabase(filepath.Join(t.TempDir(), "providers.stat"))
	require.NoError(t, err)
	defer db.Close()

	r, err := NewRegistry(db, Options{FailureThreshold: 2, Cooldown: time.Hour, Now: clock}, utils.NewTestLogger())
	require.NoError(t, err)
	require.NoError(t, r.Register(newFake("flaky", 0, models.KindMovie)))

	hard := NewError("flaky", ErrorHard, errors.New("bad api key"))
	r.RecordFailure("flaky", hard)
	assert.False(t, r.Suppressed("flaky"))
	r.RecordFailure("flaky", hard)
	assert.True(t, r.Suppressed("flaky"))
	assert.Empty(t, r.Tiers(models.KindMovie))

	// Stats survive a restart
	reopened, err := NewRegistry(db, Options{FailureThreshold: 2, Cooldown: time.Hour, Now: clock}, utils.NewTestLogger())
	require.NoError(t, err)
	require.NoError(t, reopened.Register(newFake("flaky", 0, models.KindMovie)))
	assert.True(t, reopened.Suppressed("flaky"))

	now = now.Add(2 * time.Hour)
	assert.False(t, r.Suppressed("flaky"), "cool-down elapsed")

	r.RecordSuccess("flaky")
	stats := r.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, 0, stats[0].Consecutive)
	assert.Equal(t, 2, stats[0].Failures)
	assert.Equal(t, 1, stats[0].Successes)
}

func TestTransientAndCancelledFailures(t *testing.T) {
	r, err := NewRegistry(nil, Options{FailureThreshold: 1, Cooldown: time.Hour}, utils.NewTestLogger())
	require.NoError(t, err)
	require.NoError(t, r.Register(newFake("p", 0, models.KindMovie)))

	r.RecordFailure("p", &net.OpError{Op: "dial", Err: errors.New("refused")})
	r.RecordFailure("p", context.Canceled)
	assert.False(t, r.Suppressed("p"))

	stats := r.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Failures)

	r.RecordFailure("p", StatusError("p", 429, "slow down"))
	assert.True(t, r.Suppressed("p"), "quota failures count")

	require.NoError(t, r.Reset("p"))
	assert.False(t, r.Suppressed("p"))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorQuota, Classify(StatusError("p", 429, "")))
	assert.Equal(t, ErrorTransient, Classify(StatusError("p", 503, "")))
	assert.Equal(t, ErrorHard, Classify(StatusError("p", 401, "")))
	assert.Equal(t, ErrorHard, Classify(errors.New("boom")))
}

func TestStopAll(t *testing.T) {
	r, err := NewRegistry(nil, Options{}, utils.NewTestLogger())
	require.NoError(t, err)
	a, b := newFake("a", 0), newFake("b", 1)
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))

	r.StopAll()
	assert.True(t, a.stopped)
	assert.True(t, b.stopped)
}

func TestRequestKey(t *testing.T) {
	season, episode := 1, 2
	req := &Request{Kind: models.KindEpisode, Titles: []string{"Breaking Bad"}, Years: []int{2008}, Season: &season, Episode: &episode}
	assert.Equal(t, "episode|breaking bad|2008|s1|e2", req.Key())

	req.Query = "custom"
	assert.Equal(t, "custom", req.Key())
}
