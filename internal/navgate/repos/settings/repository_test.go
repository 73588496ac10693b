package settings

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/haukened/navgate/internal/navgate/common/log"
	"github.com/haukened/navgate/internal/navgate/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) (*Repository, *fakeBackend, *fakeBackend) {
	t.Helper()
	tr, p, f, _ := newTestTiered(t)
	return NewRepository(tr, log.NewNoopLogger()), p, f
}

func TestRepository_DefaultsWhenEmpty(t *testing.T) {
	r, _, _ := newTestRepo(t)
	assert.Equal(t, domain.DefaultSettings(), r.Settings(context.Background()))
}

func TestRepository_DefaultsWhenBothTiersFail(t *testing.T) {
	r, p, f := newTestRepo(t)
	p.getErr, f.getErr = errDown, errDown
	s := r.Settings(context.Background())
	assert.True(t, s.EnablePreemptiveChecks)
	assert.True(t, s.EnableCountryBlock)
	assert.Empty(t, s.Whitelist)
}

func TestRepository_DecodesStoredValues(t *testing.T) {
	r, p, _ := newTestRepo(t)
	p.data[domain.KeyWhitelist] = json.RawMessage(`["b.test","a.test"]`)
	p.data[domain.KeyEnablePreemptiveChecks] = json.RawMessage(`false`)
	p.data[domain.KeyBlockedCountries] = json.RawMessage(`["{\"code\":\"RU\",\"name\":\"Russia\"}", {"code":"CN","name":"China"}, "garbage"]`)

	s := r.Settings(context.Background())
	assert.Equal(t, []string{"b.test", "a.test"}, s.Whitelist)
	assert.False(t, s.EnablePreemptiveChecks)
	assert.True(t, s.EnableCountryBlock)
	assert.Equal(t, domain.CountryRecords{{Code: "RU", Name: "Russia"}, {Code: "CN", Name: "China"}}, s.BlockedCountries)
}

func TestRepository_UndecodableValueUsesDefault(t *testing.T) {
	r, p, _ := newTestRepo(t)
	p.data[domain.KeyEnableCountryBlock] = json.RawMessage(`"yes"`)
	p.data[domain.KeyWhitelist] = json.RawMessage(`null`)
	s := r.Settings(context.Background())
	assert.True(t, s.EnableCountryBlock)
	assert.NotNil(t, s.Whitelist)
}

func TestRepository_SaveAndRead(t *testing.T) {
	ctx := context.Background()
	r, _, f := newTestRepo(t)

	require.NoError(t, r.SaveWhitelist(ctx, []string{"x.test"}))
	require.NoError(t, r.SaveBlockedCountries(ctx, domain.CountryRecords{{Code: "KP", Name: "North Korea"}}))
	require.NoError(t, r.SetFlag(ctx, domain.KeyEnableCountryBlock, false))

	assert.Equal(t, []string{"x.test"}, r.Whitelist(ctx))
	assert.True(t, r.BlockedCountries(ctx).Contains("KP"))
	assert.False(t, r.Settings(ctx).EnableCountryBlock)
	// structured on write
	assert.JSONEq(t, `[{"code":"KP","name":"North Korea"}]`, string(f.data[domain.KeyBlockedCountries]))
}

func TestRepository_SetFlagRejectsUnknownKey(t *testing.T) {
	r, p, _ := newTestRepo(t)
	assert.Error(t, r.SetFlag(context.Background(), domain.KeyWhitelist, true))
	assert.Equal(t, 0, p.sets)
}

func TestRepository_SaveAll(t *testing.T) {
	r, p, _ := newTestRepo(t)
	require.NoError(t, r.SaveAll(context.Background(), domain.Settings{}))
	assert.Len(t, p.data, 4)
	assert.JSONEq(t, `[]`, string(p.data[domain.KeyWhitelist]))
}

func TestRepository_UpdateWhitelistWritesOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	r, p, _ := newTestRepo(t)

	add := func(w []string) ([]string, bool) { return domain.AppendUnique(w, "foo.com") }
	got, err := r.UpdateWhitelist(ctx, add)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo.com"}, got)

	got, err = r.UpdateWhitelist(ctx, add)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo.com"}, got)
	assert.Equal(t, 1, p.sets)
	assert.Equal(t, Record{domain.KeyWhitelist: json.RawMessage(`["foo.com"]`)}, p.lastSet)
}

func TestRepository_UpdateErrorWritesNothing(t *testing.T) {
	r, p, _ := newTestRepo(t)
	boom := errors.New("boom")
	_, err := r.Update(context.Background(), func(s *domain.Settings) ([]string, error) {
		s.Whitelist = append(s.Whitelist, "x.test")
		return []string{domain.KeyWhitelist}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, p.sets)
}

func TestRepository_UpdateBlockedCountries(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRepo(t)
	cs, err := r.UpdateBlockedCountries(ctx, func(cs domain.CountryRecords) (domain.CountryRecords, bool) {
		return cs.Add(domain.CountryRecord{Code: "RU", Name: "Russia"})
	})
	require.NoError(t, err)
	assert.True(t, cs.Contains("RU"))
}

func TestRepository_ConcurrentAppendsAreNotLost(t *testing.T) {
	ctx := context.Background()
	tr, err := NewTiered(TieredOptions{Primary: newLockedFake(), Fallback: newLockedFake(), Logger: log.NewNoopLogger()})
	require.NoError(t, err)
	r := NewRepository(tr, log.NewNoopLogger())

	var wg sync.WaitGroup
	for _, d := range []string{"a.test", "b.test", "c.test", "d.test", "e.test", "f.test"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.UpdateWhitelist(ctx, func(w []string) ([]string, bool) { return domain.AppendUnique(w, d) })
		}()
	}
	wg.Wait()
	assert.Len(t, r.Whitelist(ctx), 6)
}

// lockedFake is a goroutine-safe fakeBackend.
type lockedFake struct {
	mu sync.Mutex
	*fakeBackend
}

func newLockedFake() *lockedFake { return &lockedFake{fakeBackend: newFake("locked")} }

func (l *lockedFake) Get(ctx context.Context, keys []string) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fakeBackend.Get(ctx, keys)
}

func (l *lockedFake) Set(ctx context.Context, rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fakeBackend.Set(ctx, rec)
}
