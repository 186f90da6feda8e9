package resolve

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSource_LoadsInitialValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("openai_base_url: https://api.openai.com\n"), 0o644))

	fs, err := NewFileSource(path, nil)
	require.NoError(t, err)

	v, ok := fs.Get("openai_base_url")
	require.True(t, ok)
	assert.Equal(t, "https://api.openai.com", v)
}

func TestFileSource_HotReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("key: v1\n"), 0o644))

	fs, err := NewFileSource(path, nil)
	require.NoError(t, err)

	stop := make(chan struct{})
	defer close(stop)
	require.NoError(t, fs.Watch(stop))

	require.NoError(t, os.WriteFile(path, []byte("key: v2\n"), 0o644))

	require.Eventually(t, func() bool {
		v, _ := fs.Get("key")
		return v == "v2"
	}, 2*time.Second, 10*time.Millisecond)
}
