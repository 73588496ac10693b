package bolt

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/haukened/navgate/internal/navgate/repos/settings"
	"github.com/haukened/navgate/internal/navgate/repos/settings/settingstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "settings.db")
}

func TestBoltStore_Backend(t *testing.T) {
	st, err := New(tempDB(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	settingstest.RunBackendTests(t, st)
}

func TestBoltStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := tempDB(t)

	st, err := New(path)
	require.NoError(t, err)
	require.NoError(t, st.Set(ctx, settings.Record{"whitelist": json.RawMessage(`["kept.test"]`)}))
	require.NoError(t, st.Close())

	st, err = New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	got, err := st.Get(ctx, []string{"whitelist"})
	require.NoError(t, err)
	assert.JSONEq(t, `["kept.test"]`, string(got["whitelist"]))
}

func TestBoltStore_OpenError(t *testing.T) {
	// a directory cannot be opened as a database file
	_, err := New(t.TempDir())
	assert.Error(t, err)
}

func TestBoltStore_ClosedIsUnavailable(t *testing.T) {
	st, err := New(tempDB(t))
	require.NoError(t, err)
	require.NoError(t, st.Close())
	_, err = st.Get(context.Background(), []string{"whitelist"})
	assert.ErrorIs(t, err, settings.ErrBackendUnavailable)
}
