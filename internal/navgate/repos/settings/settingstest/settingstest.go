// Package settingstest holds the behaviour every settings.Backend must share.
package settingstest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/haukened/navgate/internal/navgate/repos/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBackendTests exercises b as a fresh, empty backend. b is closed by the
// caller.
func RunBackendTests(t *testing.T, b settings.Backend) {
	t.Helper()
	ctx := context.Background()

	assert.NotEmpty(t, b.Name())

	got, err := b.Get(ctx, []string{"whitelist", "enableCountryBlock"})
	require.NoError(t, err)
	assert.Empty(t, got, "fresh backend returns no keys")

	require.NoError(t, b.Set(ctx, settings.Record{
		"whitelist":          json.RawMessage(`["a.test","*.b.test"]`),
		"enableCountryBlock": json.RawMessage(`false`),
	}))

	got, err = b.Get(ctx, []string{"whitelist", "enableCountryBlock", "blockedCountries"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.JSONEq(t, `["a.test","*.b.test"]`, string(got["whitelist"]))
	assert.JSONEq(t, `false`, string(got["enableCountryBlock"]))
	_, ok := got["blockedCountries"]
	assert.False(t, ok, "absent keys are omitted")

	// partial overwrite leaves other keys alone
	require.NoError(t, b.Set(ctx, settings.Record{"whitelist": json.RawMessage(`[]`)}))
	got, err = b.Get(ctx, []string{"whitelist", "enableCountryBlock"})
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(got["whitelist"]))
	assert.JSONEq(t, `false`, string(got["enableCountryBlock"]))

	got, err = b.Get(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
