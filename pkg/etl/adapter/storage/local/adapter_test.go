package local_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/datafactory/pkg/etl/adapter/storage/local"
	"github.com/tigerroll/datafactory/pkg/etl/core/config"
)

func TestLocalAdapter_RoundTrip(t *testing.T) {
	root := t.TempDir()
	provider := local.NewLocalProvider(config.NewConfig(root))
	conn, err := local.NewDefaultConnection(provider)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, conn.Upload(ctx, "out/a.csv", strings.NewReader("x\n1\n")))
	require.NoError(t, conn.Upload(ctx, "out/nested/b.csv", strings.NewReader("y\n2\n")))

	rc, err := conn.Download(ctx, "out/a.csv")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "x\n1\n", string(data))

	var names []string
	require.NoError(t, conn.ListObjects(ctx, "out", func(name string) error {
		names = append(names, name)
		return nil
	}))
	sort.Strings(names)
	assert.Equal(t, []string{"out/a.csv", "out/nested/b.csv"}, names)

	exists, err := conn.Exists(ctx, filepath.Join(root, "out", "a.csv"))
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, conn.DeleteObject(ctx, "out/a.csv"))
	require.NoError(t, conn.DeleteObject(ctx, "out/a.csv"))
	exists, err = conn.Exists(ctx, "out/a.csv")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, provider.CloseAll())
}

func TestLocalAdapter_RejectsEscapingRelativePaths(t *testing.T) {
	root := t.TempDir()
	conn, err := local.NewDefaultConnection(local.NewLocalProvider(config.NewConfig(root)))
	require.NoError(t, err)

	err = conn.Upload(context.Background(), "../outside.csv", strings.NewReader("x"))
	assert.Error(t, err)
	_, statErr := os.Stat(filepath.Join(filepath.Dir(root), "outside.csv"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLocalProvider_NamedConnections(t *testing.T) {
	root := t.TempDir()
	cfg := config.NewConfig(root)
	cfg.Storage = map[string]interface{}{
		"reports": map[string]interface{}{"type": "local", "base_dir": "Reports"},
		"remote":  map[string]interface{}{"type": "gcs"},
	}
	provider := local.NewLocalProvider(cfg)

	conn, err := provider.GetConnection("reports")
	require.NoError(t, err)
	assert.Equal(t, "reports", conn.Name())
	assert.DirExists(t, filepath.Join(root, "Reports"))

	again, err := provider.GetConnection("reports")
	require.NoError(t, err)
	assert.Same(t, conn, again)

	_, err = provider.GetConnection("remote")
	assert.Error(t, err)
	_, err = provider.GetConnection("missing")
	assert.Error(t, err)
}
