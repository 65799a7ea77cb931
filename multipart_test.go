package routed

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildMultipartBody(t *testing.T, fields map[string]string, fileField, fileName string, fileBody []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := w.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = fw.Write(fileBody)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func newMultipartTestRequest(t *testing.T, e *Engine, fields map[string]string, fileField, fileName string, fileBody []byte) *Request {
	t.Helper()
	body, contentType := buildMultipartBody(t, fields, fileField, fileName, fileBody)

	hr := httptest.NewRequest("POST", "/upload", body)
	hr.Header.Set("Content-Type", contentType)

	req := &Request{}
	req.reset(e, hr, nil)
	return req
}

func TestParseMultipartRejectsDisallowedExtension(t *testing.T) {
	e := New()
	e.Config.Multipart.AllowedExts = []string{"png", "jpg"}
	e.Config.Multipart.UploadDir = t.TempDir()

	req := newMultipartTestRequest(t, e, nil, "avatar", "payload.exe", []byte("MZ"))

	_, err := req.multipartForm(e.Config.Multipart)
	require.Error(t, err)

	fe, ok := err.(*FileExtensionNotAllowedError)
	if assert.True(t, ok) {
		assert.Equal(t, "avatar", fe.FieldName)
	}
	_, status := classify(err)
	assert.Equal(t, 415, status)
}

func TestParseMultipartEnforcesPerRequestDiskQuota(t *testing.T) {
	e := New()
	e.Config.Multipart.AllowedExts = []string{"bin"}
	e.Config.Multipart.MaxDiskUsage = 4
	e.Config.Multipart.UploadDir = t.TempDir()

	req := newMultipartTestRequest(t, e, nil, "blob", "payload.bin", []byte("0123456789"))

	_, err := req.multipartForm(e.Config.Multipart)
	require.Error(t, err)

	_, ok := err.(*FileQuotaExceededError)
	assert.True(t, ok)
	_, status := classify(err)
	assert.Equal(t, 413, status)
}

func TestParseMultipartEnforcesMaxFileSize(t *testing.T) {
	e := New()
	e.Config.Multipart.AllowedExts = []string{"bin"}
	e.Config.Multipart.MaxFileSize = 4
	e.Config.Multipart.UploadDir = t.TempDir()

	req := newMultipartTestRequest(t, e, nil, "blob", "payload.bin", []byte("0123456789"))

	_, err := req.multipartForm(e.Config.Multipart)
	require.Error(t, err)

	_, ok := err.(*FileTooLargeError)
	assert.True(t, ok)
}

func TestParseMultipartStoresAcceptedFileAndFields(t *testing.T) {
	e := New()
	e.Config.Multipart.AllowedExts = []string{"txt"}
	e.Config.Multipart.UploadDir = t.TempDir()

	req := newMultipartTestRequest(t, e, map[string]string{"title": "hello"}, "doc", "note.txt", []byte("hi there"))

	form, err := req.multipartForm(e.Config.Multipart)
	require.NoError(t, err)
	assert.Equal(t, "hello", form.Fields["title"])

	f, ok := form.Files["doc"]
	require.True(t, ok)
	assert.Equal(t, int64(len("hi there")), f.Size)

	cleanupPartialUpload(form)
}

func TestParseMultipartFieldIsNotTruncatedWhenMaxMemoryIsUnlimited(t *testing.T) {
	e := New()
	e.Config.Multipart.MaxMemory = 0
	e.Config.Multipart.UploadDir = t.TempDir()

	req := newMultipartTestRequest(t, e, map[string]string{"bio": "a fairly long field value"}, "", "", nil)

	form, err := req.multipartForm(e.Config.Multipart)
	require.NoError(t, err)
	assert.Equal(t, "a fairly long field value", form.Fields["bio"])
}

func TestParseMultipartEmptyAllowListRejectsEveryUpload(t *testing.T) {
	e := New()
	e.Config.Multipart.UploadDir = t.TempDir()

	req := newMultipartTestRequest(t, e, nil, "doc", "note.txt", []byte("hi"))

	_, err := req.multipartForm(e.Config.Multipart)
	require.Error(t, err)
	_, ok := err.(*FileExtensionNotAllowedError)
	assert.True(t, ok)
}
