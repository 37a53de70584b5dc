package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heapscope/pkg/config"
)

func TestNewLocalStorage(t *testing.T) {
	t.Run("CreatesBaseDirectory", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "objects")

		store, err := NewLocalStorage(base)
		require.NoError(t, err)
		require.NotNil(t, store)

		info, err := os.Stat(base)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		assert.Equal(t, base, store.BasePath())
	})
}

func TestLocalStorage_UploadDownload(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("RoundTrip", func(t *testing.T) {
		content := []byte(`{"snapshot":{}}`)
		require.NoError(t, store.Upload(ctx, "runs/run-1/baseline.heapsnapshot", bytes.NewReader(content)))

		rc, err := store.Download(ctx, "runs/run-1/baseline.heapsnapshot")
		require.NoError(t, err)
		defer rc.Close()

		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, content, data)
	})

	t.Run("DownloadMissing", func(t *testing.T) {
		_, err := store.Download(ctx, "runs/missing/baseline.heapsnapshot")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "object not found")
	})

	t.Run("CanceledContext", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		assert.Error(t, store.Upload(canceled, "x", bytes.NewReader(nil)))
	})
}

func TestLocalStorage_DownloadFile(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "a/b.json", bytes.NewReader([]byte("payload"))))

	dest := filepath.Join(t.TempDir(), "nested", "b.json")
	require.NoError(t, store.DownloadFile(ctx, "a/b.json", dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestLocalStorage_DeleteExists(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "key", bytes.NewReader([]byte("v"))))

	ok, err := store.Exists(ctx, "key")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Delete(ctx, "key"))

	ok, err = store.Exists(ctx, "key")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting a missing key is not an error.
	assert.NoError(t, store.Delete(ctx, "key"))
}

func TestLocalStorage_RejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"", "..", "../secret", "runs/../../etc/passwd", "/abs/path"} {
		assert.Error(t, store.Upload(ctx, key, bytes.NewReader(nil)), "key %q", key)
		_, err := store.Download(ctx, key)
		assert.Error(t, err, "key %q", key)
	}

	// Escaping keys never produce a usable path.
	assert.Equal(t, "", store.GetURL("../secret"))
}

func TestLocalStorage_List(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "runs/run-1/baseline.heapsnapshot", bytes.NewReader([]byte("a"))))
	require.NoError(t, store.Upload(ctx, "runs/run-1/result.json.gz", bytes.NewReader([]byte("b"))))
	require.NoError(t, store.Upload(ctx, "runs/run-2/target.heapsnapshot", bytes.NewReader([]byte("c"))))

	keys, err := store.List(ctx, "runs/run-1/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"runs/run-1/baseline.heapsnapshot",
		"runs/run-1/result.json.gz",
	}, keys)

	all, err := store.List(ctx, "runs/")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := store.List(ctx, "runs/run-9/")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestValidateKey(t *testing.T) {
	assert.NoError(t, ValidateKey("runs/run-1/baseline.heapsnapshot"))
	assert.NoError(t, ValidateKey("key"))
	assert.Error(t, ValidateKey(""))
	assert.Error(t, ValidateKey(".."))
	assert.Error(t, ValidateKey("../up"))
	assert.Error(t, ValidateKey("a/../../b"))
	assert.Error(t, ValidateKey("/rooted"))
	assert.Error(t, ValidateKey("a//b"))
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.StorageConfig
		wantErr bool
	}{
		{"NilConfig", nil, true},
		{"LocalValid", &config.StorageConfig{Type: "local", LocalPath: "./data"}, false},
		{"LocalMissingPath", &config.StorageConfig{Type: "local"}, true},
		{"EmptyTypeDefaultsLocal", &config.StorageConfig{LocalPath: "./data"}, false},
		{"UnknownType", &config.StorageConfig{Type: "s3"}, true},
		{"COSValid", &config.StorageConfig{
			Type: "cos", Bucket: "b", Region: "ap-guangzhou", SecretID: "id", SecretKey: "key",
		}, false},
		{"COSMissingBucket", &config.StorageConfig{
			Type: "cos", Region: "ap-guangzhou", SecretID: "id", SecretKey: "key",
		}, true},
		{"COSMissingCredentials", &config.StorageConfig{
			Type: "cos", Bucket: "b", Region: "ap-guangzhou",
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_LocalBackend(t *testing.T) {
	store, err := New(&config.StorageConfig{Type: "local", LocalPath: t.TempDir()})
	require.NoError(t, err)
	_, ok := store.(*LocalStorage)
	assert.True(t, ok)
}
