package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ctrdash/internal/config"
	"ctrdash/internal/monitor"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o644))
	}
}

func TestFromDirSplitsAtLastDot(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "web.conf", "db.conf", "my.app.conf", "web.bak")

	ids, err := FromDir(dir)
	require.NoError(t, err)
	require.Equal(t, []monitor.UnitID{"db", "my.app", "web"}, ids)
}

func TestFromDirRejectsDotlessEntry(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "web.conf", "README")

	_, err := FromDir(dir)
	require.ErrorContains(t, err, `"README"`)
}

func TestFromDirSkipsHiddenEntries(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, ".hidden", ".conf", ".web.conf.swp", "web.conf")

	ids, err := FromDir(dir)
	require.NoError(t, err)
	require.Equal(t, []monitor.UnitID{"web"}, ids)
}

func TestFromDirMissing(t *testing.T) {
	_, err := FromDir(filepath.Join(t.TempDir(), "absent"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFromDirEmpty(t *testing.T) {
	ids, err := FromDir(t.TempDir())
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestResolvePrefersStaticUnits(t *testing.T) {
	ids, err := Resolve(config.DiscoveryConfig{
		Dir:   filepath.Join(t.TempDir(), "absent"),
		Units: []string{"web", " db ", "web"},
	})
	require.NoError(t, err)
	require.Equal(t, []monitor.UnitID{"db", "web"}, ids)

	dir := t.TempDir()
	touch(t, dir, "mail.conf")
	ids, err = Resolve(config.DiscoveryConfig{Dir: dir})
	require.NoError(t, err)
	require.Equal(t, []monitor.UnitID{"mail"}, ids)
}
