package manager

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDomainList(t *testing.T) {
	input := "\uFEFF# corporate allow list\n" +
		"Example.com\n" +
		"  docs.example.com.   # trailing dot\n" +
		"*.cdn.test\n" +
		".static.test\n" +
		"\n" +
		"127.0.0.1 localhost intranet.corp wiki.corp\n" +
		"::1 ip6-localhost\n" +
		"example.com\n" +
		"nodots\n" +
		"bad..name.test\n" +
		"-dash.test\n" +
		"user@mail.test\n" +
		"*.cdn.test\n"

	got, err := ParseDomainList(strings.NewReader(input), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"example.com",
		"docs.example.com",
		"*.cdn.test",
		"*.static.test",
		"intranet.corp",
		"wiki.corp",
	}, got)
}

func TestParseDomainList_Empty(t *testing.T) {
	got, err := ParseDomainList(strings.NewReader("# nothing\n\n"), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseDomainList_LongLabel(t *testing.T) {
	long := strings.Repeat("a", 64) + ".test"
	got, err := ParseDomainList(strings.NewReader(long+"\nok.test\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok.test"}, got)
}

func TestAddDomains(t *testing.T) {
	ctx := context.Background()
	m, repo, _ := newTestManager(t)
	require.NoError(t, repo.SaveWhitelist(ctx, []string{"a.test"}))

	added, err := m.AddDomains(ctx, []string{"a.test", "b.test", "*.c.test"})
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, []string{"a.test", "b.test", "*.c.test"}, repo.Whitelist(ctx))

	added, err = m.AddDomains(ctx, []string{"b.test"})
	require.NoError(t, err)
	assert.Zero(t, added)
}
