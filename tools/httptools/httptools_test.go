package httptools

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotysan/rsgislib/pkg/errors"
	"github.com/dotysan/rsgislib/tools/filetools"
)

func mockClient(t *testing.T) *http.Client {
	t.Helper()
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return client
}

func TestCheckURLExists(t *testing.T) {
	client := mockClient(t)
	httpmock.RegisterResponder(http.MethodHead, "https://example.com/data.kea",
		httpmock.NewStringResponder(http.StatusOK, ""))
	httpmock.RegisterResponder(http.MethodHead, "https://example.com/missing.kea",
		httpmock.NewStringResponder(http.StatusNotFound, ""))

	ok, err := CheckURLExists(context.Background(), "https://example.com/data.kea", client)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckURLExists(context.Background(), "https://example.com/missing.kea", client)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDownloadFile(t *testing.T) {
	client := mockClient(t)
	httpmock.RegisterResponder(http.MethodGet, "https://example.com/scene.tif",
		httpmock.NewStringResponder(http.StatusOK, "raster bytes"))

	outPath := filepath.Join(t.TempDir(), "scene.tif")
	err := DownloadFile(context.Background(), "https://example.com/scene.tif", outPath, DownloadOpts{
		Client:  client,
		Retries: 1,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "raster bytes", string(data))
	assert.False(t, filetools.FileExists(outPath+incompleteSuffix),
		"side file must be cleaned up")
}

func TestDownloadFile_ChecksumMismatch(t *testing.T) {
	client := mockClient(t)
	httpmock.RegisterResponder(http.MethodGet, "https://example.com/scene.tif",
		httpmock.NewStringResponder(http.StatusOK, "corrupted"))

	outPath := filepath.Join(t.TempDir(), "scene.tif")
	err := DownloadFile(context.Background(), "https://example.com/scene.tif", outPath, DownloadOpts{
		Client:     client,
		Retries:    2,
		RetryDelay: time.Millisecond,
		MD5:        "d41d8cd98f00b204e9800998ecf8427e",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrChecksumMismatch))
	assert.False(t, filetools.FileExists(outPath), "failed download must not leave a target file")
}

func TestDownloadFile_RetriesThenSucceeds(t *testing.T) {
	client := mockClient(t)
	calls := 0
	httpmock.RegisterResponder(http.MethodGet, "https://example.com/flaky.tif",
		func(*http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return httpmock.NewStringResponse(http.StatusBadGateway, ""), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, "payload"), nil
		})

	outPath := filepath.Join(t.TempDir(), "flaky.tif")
	err := DownloadFile(context.Background(), "https://example.com/flaky.tif", outPath, DownloadOpts{
		Client:     client,
		Retries:    5,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDownloadFile_SkipsExisting(t *testing.T) {
	client := mockClient(t)
	outPath := filepath.Join(t.TempDir(), "done.tif")
	require.NoError(t, os.WriteFile(outPath, []byte("already here"), 0o644))

	err := DownloadFile(context.Background(), "https://example.com/done.tif", outPath, DownloadOpts{
		Client:  client,
		Retries: 1,
	})
	require.NoError(t, err)
	assert.Zero(t, httpmock.GetTotalCallCount())
}

func TestFileListingsDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "listings.db")
	urls := []string{
		"https://example.com/a.tif",
		"https://example.com/b.tif",
	}
	require.NoError(t, CreateFileListingsDB(dbPath, urls, nil))
	// Idempotent: re-recording the same batch must not error or duplicate.
	require.NoError(t, CreateFileListingsDB(dbPath, urls, nil))

	db, err := openListingsDB(dbPath)
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.Model(&FileListing{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestDownloadFilesUseDB(t *testing.T) {
	client := mockClient(t)
	httpmock.RegisterResponder(http.MethodGet, "https://example.com/a.tif",
		httpmock.NewStringResponder(http.StatusOK, "aaa"))
	httpmock.RegisterResponder(http.MethodGet, "https://example.com/b.tif",
		httpmock.NewStringResponder(http.StatusOK, "bbb"))

	dbPath := filepath.Join(t.TempDir(), "listings.db")
	outDir := t.TempDir()
	urls := []string{
		"https://example.com/a.tif",
		"https://example.com/b.tif",
	}
	require.NoError(t, CreateFileListingsDB(dbPath, urls, nil))

	err := DownloadFilesUseDB(context.Background(), dbPath, outDir, 2, DownloadOpts{
		Client:     client,
		Retries:    1,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, filetools.FileExists(filepath.Join(outDir, "a.tif")))
	assert.True(t, filetools.FileExists(filepath.Join(outDir, "b.tif")))

	// Everything is marked downloaded; a second run makes no requests.
	httpmock.ZeroCallCounters()
	require.NoError(t, DownloadFilesUseDB(context.Background(), dbPath, outDir, 2, DownloadOpts{
		Client: client, Retries: 1, RetryDelay: time.Millisecond,
	}))
	assert.Zero(t, httpmock.GetTotalCallCount())
}
