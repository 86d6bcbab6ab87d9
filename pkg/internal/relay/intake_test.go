package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/hsrelay/pkg/configs"
	"github.com/yeisme/hsrelay/pkg/internal/storage/spool"
)

const spoolDir = "/spool"

// part 测试用的 multipart 片段.
type part struct {
	field    string
	filename string // 为空且 noFile 为 false 时写入 filename=""
	ctype    string
	data     []byte
	noFile   bool // 普通表单字段
}

func testUploadConfig() configs.UploadConfig {
	return configs.UploadConfig{
		FieldName:       "files[]",
		MaxFileSize:     15 << 20,
		MaxFormOverhead: 1 << 20,
		AllowedTypes:    configs.DefaultAllowedTypes,
		TempDir:         spoolDir,
		FilePrefix:      "upload-",
	}
}

func newTestStore(t *testing.T) (*spool.Store, afero.Fs) {
	t.Helper()

	fs := afero.NewMemMapFs()
	store, err := spool.New(fs, spoolDir, "upload-")
	require.NoError(t, err)

	return store, fs
}

func encodeParts(t *testing.T, parts ...part) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer

	w := multipart.NewWriter(&buf)

	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		if p.noFile {
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, p.field))
		} else {
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, p.field, p.filename))
		}

		if p.ctype != "" {
			h.Set("Content-Type", p.ctype)
		}

		pw, err := w.CreatePart(h)
		require.NoError(t, err)

		_, err = pw.Write(p.data)
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())

	return &buf, w.FormDataContentType()
}

func uploadRequest(t *testing.T, method string, parts ...part) *http.Request {
	t.Helper()

	body, ctype := encodeParts(t, parts...)
	req := httptest.NewRequest(method, "/api/uploadFile", body)
	req.Header.Set("Content-Type", ctype)

	return req
}

func spoolEntries(t *testing.T, fs afero.Fs) int {
	t.Helper()

	entries, err := afero.ReadDir(fs, spoolDir)
	require.NoError(t, err)

	return len(entries)
}

func readSpooled(t *testing.T, f *AcceptedFile) []byte {
	t.Helper()

	rc, err := f.Handle.Open()
	require.NoError(t, err)

	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)

	return data
}

func TestIntake_AcceptsSingleFile(t *testing.T) {
	store, fs := newTestStore(t)
	scope := store.Scope()
	in := NewIntake(testUploadConfig())

	content := []byte("I love this product")
	req := uploadRequest(t, http.MethodPost,
		part{field: "files[]", filename: "note.txt", ctype: "text/plain", data: content})

	f, err := in.Accept(context.Background(), httptest.NewRecorder(), req, scope)
	require.NoError(t, err)

	assert.Equal(t, "note.txt", f.Filename)
	assert.Equal(t, "text/plain", f.ContentType)
	assert.Equal(t, int64(len(content)), f.Size)
	assert.Equal(t, content, readSpooled(t, f))
	assert.Equal(t, 1, spoolEntries(t, fs))

	require.NoError(t, scope.Cleanup())
	assert.Equal(t, 0, spoolEntries(t, fs))
}

func TestIntake_StripsContentTypeParams(t *testing.T) {
	store, _ := newTestStore(t)
	scope := store.Scope()
	defer scope.Cleanup()

	req := uploadRequest(t, http.MethodPost,
		part{field: "files[]", filename: "a.txt", ctype: "Text/Plain; charset=utf-8", data: []byte("x")})

	f, err := NewIntake(testUploadConfig()).Accept(context.Background(), httptest.NewRecorder(), req, scope)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", f.ContentType)
}

func TestIntake_EmptyFilenameIsStillAFile(t *testing.T) {
	store, _ := newTestStore(t)
	scope := store.Scope()
	defer scope.Cleanup()

	req := uploadRequest(t, http.MethodPost,
		part{field: "files[]", filename: "", ctype: "application/pdf", data: []byte("%PDF-1.4")})

	f, err := NewIntake(testUploadConfig()).Accept(context.Background(), httptest.NewRecorder(), req, scope)
	require.NoError(t, err)
	assert.Empty(t, f.Filename)
}

func TestIntake_SkipsDisallowedAndForeignParts(t *testing.T) {
	store, _ := newTestStore(t)
	scope := store.Scope()
	defer scope.Cleanup()

	req := uploadRequest(t, http.MethodPost,
		part{field: "comment", noFile: true, data: []byte("hello")},
		part{field: "files[]", filename: "pic.png", ctype: "image/png", data: []byte{0x89, 'P', 'N', 'G'}},
		part{field: "attachment", filename: "other.txt", ctype: "text/plain", data: []byte("ignored")},
		part{field: "files[]", filename: "report.pdf", ctype: "application/pdf", data: []byte("%PDF")},
	)

	f, err := NewIntake(testUploadConfig()).Accept(context.Background(), httptest.NewRecorder(), req, scope)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", f.Filename)
	assert.Equal(t, 1, scope.Files())
}

func TestIntake_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		parts   []part
		kind    Kind
		sub     string
		status  int
		message string
	}{
		{
			name:    "get is not allowed",
			method:  http.MethodGet,
			parts:   []part{{field: "files[]", filename: "a.txt", ctype: "text/plain", data: []byte("a")}},
			kind:    KindMethodNotAllowed,
			status:  http.StatusMethodNotAllowed,
			message: MsgMethodNotAllowed,
		},
		{
			name:    "put is not allowed",
			method:  http.MethodPut,
			parts:   []part{{field: "files[]", filename: "a.txt", ctype: "text/plain", data: []byte("a")}},
			kind:    KindMethodNotAllowed,
			status:  http.StatusMethodNotAllowed,
			message: MsgMethodNotAllowed,
		},
		{
			name:    "zero files",
			method:  http.MethodPost,
			parts:   []part{{field: "comment", noFile: true, data: []byte("hi")}},
			kind:    KindNoFileProvided,
			status:  http.StatusBadRequest,
			message: MsgNoFile,
		},
		{
			name:    "only disallowed type",
			method:  http.MethodPost,
			parts:   []part{{field: "files[]", filename: "pic.png", ctype: "image/png", data: []byte("png")}},
			kind:    KindNoFileProvided,
			status:  http.StatusBadRequest,
			message: MsgNoFile,
		},
		{
			name:    "missing content type",
			method:  http.MethodPost,
			parts:   []part{{field: "files[]", filename: "a.txt", data: []byte("a")}},
			kind:    KindNoFileProvided,
			status:  http.StatusBadRequest,
			message: MsgNoFile,
		},
		{
			name:    "file in another field",
			method:  http.MethodPost,
			parts:   []part{{field: "file", filename: "a.txt", ctype: "text/plain", data: []byte("a")}},
			kind:    KindNoFileProvided,
			status:  http.StatusBadRequest,
			message: MsgNoFile,
		},
		{
			name:   "two files",
			method: http.MethodPost,
			parts: []part{
				{field: "files[]", filename: "a.txt", ctype: "text/plain", data: []byte("a")},
				{field: "files[]", filename: "b.txt", ctype: "text/plain", data: []byte("b")},
			},
			kind:    KindParseFailure,
			sub:     SubTooManyFiles,
			status:  http.StatusInternalServerError,
			message: MsgParseForm,
		},
		{
			name:    "empty file",
			method:  http.MethodPost,
			parts:   []part{{field: "files[]", filename: "a.txt", ctype: "text/plain"}},
			kind:    KindParseFailure,
			sub:     SubEmptyFile,
			status:  http.StatusInternalServerError,
			message: MsgParseForm,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, fs := newTestStore(t)
			scope := store.Scope()

			req := uploadRequest(t, tt.method, tt.parts...)

			f, err := NewIntake(testUploadConfig()).Accept(context.Background(), httptest.NewRecorder(), req, scope)
			require.Error(t, err)
			assert.Nil(t, f)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Equal(t, tt.sub, SubKindOf(err))
			assert.Equal(t, tt.status, HTTPStatus(err))
			assert.Equal(t, tt.message, PublicMessage(err))

			require.NoError(t, scope.Cleanup())
			assert.Equal(t, 0, spoolEntries(t, fs))
		})
	}
}

func TestIntake_NotMultipart(t *testing.T) {
	store, _ := newTestStore(t)
	scope := store.Scope()

	req := httptest.NewRequest(http.MethodPost, "/api/uploadFile", bytes.NewBufferString(`{"a":1}`))
	req.Header.Set("Content-Type", "application/json")

	_, err := NewIntake(testUploadConfig()).Accept(context.Background(), httptest.NewRecorder(), req, scope)
	require.Error(t, err)
	assert.Equal(t, KindParseFailure, KindOf(err))
	assert.Equal(t, SubMalformed, SubKindOf(err))
	assert.Equal(t, 0, scope.Files())
}

func TestIntake_TruncatedBody(t *testing.T) {
	store, fs := newTestStore(t)
	scope := store.Scope()

	body, ctype := encodeParts(t, part{field: "files[]", filename: "a.txt", ctype: "text/plain", data: bytes.Repeat([]byte("a"), 4096)})
	truncated := body.Bytes()[:body.Len()-100]

	req := httptest.NewRequest(http.MethodPost, "/api/uploadFile", bytes.NewReader(truncated))
	req.Header.Set("Content-Type", ctype)

	_, err := NewIntake(testUploadConfig()).Accept(context.Background(), httptest.NewRecorder(), req, scope)
	require.Error(t, err)
	assert.Equal(t, KindParseFailure, KindOf(err))

	require.NoError(t, scope.Cleanup())
	assert.Equal(t, 0, spoolEntries(t, fs))
}

func TestIntake_FileAtLimitIsAccepted(t *testing.T) {
	cfg := testUploadConfig()
	cfg.MaxFileSize = 1024

	store, _ := newTestStore(t)
	scope := store.Scope()
	defer scope.Cleanup()

	data := bytes.Repeat([]byte{'z'}, 1024)
	req := uploadRequest(t, http.MethodPost, part{field: "files[]", filename: "a.txt", ctype: "text/plain", data: data})

	f, err := NewIntake(cfg).Accept(context.Background(), httptest.NewRecorder(), req, scope)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), f.Size)
}

func TestIntake_FileOverLimitIsRejected(t *testing.T) {
	cfg := testUploadConfig()
	cfg.MaxFileSize = 1024

	store, fs := newTestStore(t)
	scope := store.Scope()

	data := bytes.Repeat([]byte{'z'}, 1025)
	req := uploadRequest(t, http.MethodPost, part{field: "files[]", filename: "a.txt", ctype: "text/plain", data: data})

	_, err := NewIntake(cfg).Accept(context.Background(), httptest.NewRecorder(), req, scope)
	require.Error(t, err)
	assert.Equal(t, KindParseFailure, KindOf(err))
	assert.Equal(t, SubTooLarge, SubKindOf(err))

	require.NoError(t, scope.Cleanup())
	assert.Equal(t, 0, spoolEntries(t, fs))
}

// countingReader 记录被读取的字节数.
type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))

	return n, err
}

func TestIntake_LargePDFStopsReadingAtLimit(t *testing.T) {
	const total = 20 << 20

	cfg := testUploadConfig()
	store, fs := newTestStore(t)
	scope := store.Scope()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	done := make(chan struct{})

	go func() {
		defer close(done)

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="files[]"; filename="big.pdf"`)
		h.Set("Content-Type", "application/pdf")

		w, err := mw.CreatePart(h)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}

		chunk := bytes.Repeat([]byte{'p'}, 64<<10)
		for written := 0; written < total; written += len(chunk) {
			if _, err := w.Write(chunk); err != nil {
				return
			}
		}

		_ = mw.Close()
		_ = pw.Close()
	}()

	counter := &countingReader{r: pr}
	req := httptest.NewRequest(http.MethodPost, "/api/uploadFile", counter)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	_, err := NewIntake(cfg).Accept(context.Background(), httptest.NewRecorder(), req, scope)

	_ = pr.CloseWithError(io.ErrClosedPipe)
	<-done

	require.Error(t, err)
	assert.Equal(t, KindParseFailure, KindOf(err))
	assert.Equal(t, SubTooLarge, SubKindOf(err))
	assert.Less(t, counter.n.Load(), int64(cfg.MaxFileSize+cfg.MaxFormOverhead))

	require.NoError(t, scope.Cleanup())
	assert.Equal(t, 0, spoolEntries(t, fs))
}

func TestIntake_Allowed(t *testing.T) {
	in := NewIntake(testUploadConfig())

	assert.True(t, in.Allowed("application/pdf"))
	assert.True(t, in.Allowed("application/msword"))
	assert.True(t, in.Allowed("application/vnd.openxmlformats-officedocument.wordprocessingml.document"))
	assert.True(t, in.Allowed("text/plain; charset=utf-8"))
	assert.False(t, in.Allowed("image/png"))
	assert.False(t, in.Allowed(""))
}
