package service

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/hsrelay/pkg/configs"
	"github.com/yeisme/hsrelay/pkg/internal/classifier"
	"github.com/yeisme/hsrelay/pkg/internal/storage"
	"github.com/yeisme/hsrelay/pkg/internal/storage/spool"
)

const spoolDir = "/spool"

func testConfig(baseURL string) *configs.AppConfig {
	return &configs.AppConfig{
		Upload: configs.UploadConfig{
			FieldName:       "files[]",
			MaxFileSize:     15 << 20,
			MaxFormOverhead: 1 << 20,
			AllowedTypes:    configs.DefaultAllowedTypes,
			TempDir:         spoolDir,
			FilePrefix:      "upload-",
		},
		Upstream: configs.UpstreamConfig{
			BaseURL:      baseURL,
			UploadPath:   "/upload",
			AnalyzePath:  "/analyze",
			FileField:    "files[]",
			Timeout:      2 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		Cache: configs.CacheConfig{TTL: time.Minute, KeyPrefix: "test:"},
		Events: configs.EventsConfig{
			Type:       configs.MQTypeGoChannel,
			Producer:   "hsrelay-test",
			Completed:  true,
			Failed:     true,
			BufferSize: 16,
		},
	}
}

// newTestManager 返回指向 upstream 的 Manager 与其临时文件系统.
func newTestManager(t *testing.T, upstream http.Handler) (*storage.Manager, afero.Fs) {
	t.Helper()

	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)

	fs := afero.NewMemMapFs()
	store, err := spool.New(fs, spoolDir, cfg.Upload.FilePrefix)
	require.NoError(t, err)

	return &storage.Manager{
		Config:     cfg,
		Spool:      store,
		Classifier: classifier.New(cfg.Upstream),
	}, fs
}

func uploadRequest(t *testing.T, filename, ctype string, data []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer

	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="files[]"; filename="`+filename+`"`)
	h.Set("Content-Type", ctype)

	pw, err := w.CreatePart(h)
	require.NoError(t, err)

	_, err = pw.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/uploadFile", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())

	return req
}

func spoolEntries(t *testing.T, fs afero.Fs) int {
	t.Helper()

	entries, err := afero.ReadDir(fs, spoolDir)
	require.NoError(t, err)

	return len(entries)
}

// readUpload 解析上游收到的 multipart 请求，返回文件名、类型与内容.
func readUpload(t *testing.T, r *http.Request) (string, string, []byte) {
	t.Helper()

	mr, err := r.MultipartReader()
	require.NoError(t, err)

	p, err := mr.NextPart()
	require.NoError(t, err)

	data, err := io.ReadAll(p)
	require.NoError(t, err)

	return p.FileName(), p.Header.Get("Content-Type"), data
}

func testContext() context.Context {
	return context.Background()
}
