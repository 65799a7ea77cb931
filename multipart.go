package routed

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aofei/mimesniffer"
	"golang.org/x/text/encoding/unicode"
)

// MultipartForm is the parsed result of a multipart/form-data body, per
// spec.md §3.
type MultipartForm struct {
	Fields map[string]interface{}
	Files  map[string]*UploadedFile

	order        []string
	quota        *UploadQuotaTracker
	memoryUsed   int64
	maxMemory    int64
}

// UploadedFile describes one file received in a multipart request.
type UploadedFile struct {
	FieldName        string
	ProvidedFilename string
	StoredPath       string
	Size             int64
	ContentType      string
}

var filenameSanitizer = strings.NewReplacer(
	`\`, "_", "/", "_", ":", "_", "*", "_", "?", "_", `"`, "_", "<", "_", ">", "_", "|", "_",
)

// multipartForm parses the request body as multipart/form-data, memoizing
// the result on the Request, per spec.md §4.4.
func (r *Request) multipartForm(cfg MultipartConfig) (*MultipartForm, error) {
	r.formOnce.Do(func() {
		r.multipart, r.multipartErr = parseMultipart(r, cfg)
	})
	return r.multipart, r.multipartErr
}

// FormFile returns the UploadedFile stored for name, or nil if no file was
// uploaded under that field.
func (c *EngineContext) FormFile(name string) (*UploadedFile, error) {
	form, err := c.Request.multipartForm(c.Engine.snapshotConfig().Multipart)
	if err != nil {
		return nil, err
	}
	return form.Files[name], nil
}

func parseMultipart(r *Request, cfg MultipartConfig) (*MultipartForm, error) {
	mr, err := r.hr.MultipartReader()
	if err != nil {
		return nil, NewEngineError(400, "invalid_multipart", err.Error())
	}

	form := &MultipartForm{
		Fields:    map[string]interface{}{},
		Files:     map[string]*UploadedFile{},
		quota:     NewUploadQuotaTracker(cfg.MaxDiskUsage),
		maxMemory: cfg.MaxMemory,
	}

	var writtenPaths []string
	cleanup := func() {
		for i := len(writtenPaths) - 1; i >= 0; i-- {
			os.Remove(writtenPaths[i])
		}
		form.quota.Release(form.quota.Used())
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			cleanup()
			return nil, NewEngineError(400, "invalid_multipart", err.Error())
		}

		fieldName := part.FormName()
		if fieldName == "" {
			part.Close()
			continue
		}

		if part.FileName() == "" {
			if err := form.readField(part, fieldName); err != nil {
				part.Close()
				cleanup()
				return nil, err
			}
			part.Close()
			continue
		}

		stored, size, ctype, err := form.readFile(part, fieldName, cfg)
		part.Close()
		if err != nil {
			cleanup()
			return nil, err
		}
		if stored == "" {
			// Extension rejected by the allow-list: nothing written.
			continue
		}

		writtenPaths = append(writtenPaths, stored)

		if _, exists := form.Files[fieldName]; !exists {
			form.Files[fieldName] = &UploadedFile{
				FieldName:        fieldName,
				ProvidedFilename: part.FileName(),
				StoredPath:       stored,
				Size:             size,
				ContentType:      ctype,
			}
		}
	}

	return form, nil
}

func (form *MultipartForm) readField(part *multipart.Part, fieldName string) error {
	var r io.Reader = part
	if form.maxMemory > 0 {
		r = io.LimitReader(part, form.maxMemory-form.memoryUsed+1)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return NewEngineError(500, "read_error", err.Error())
	}
	form.memoryUsed += int64(len(b))
	if form.maxMemory > 0 && form.memoryUsed > form.maxMemory {
		return NewEngineError(413, "too_large", "request exceeded the in-memory field size limit")
	}

	value := normalizeUTF8(b)

	if existing, ok := form.Fields[fieldName]; ok {
		switch e := existing.(type) {
		case []string:
			form.Fields[fieldName] = append(e, value)
		case string:
			form.Fields[fieldName] = []string{e, value}
		}
	} else {
		form.Fields[fieldName] = value
		form.order = append(form.order, fieldName)
	}

	return nil
}

// readFile streams one file part to disk, enforcing maxMemory (the
// request-wide bytes-read counter), the per-request quota, maxFileSize,
// and the extension allow-list, per spec.md §4.4.
func (form *MultipartForm) readFile(part *multipart.Part, fieldName string, cfg MultipartConfig) (path string, size int64, contentType string, err error) {
	safeName := filenameSanitizer.Replace(part.FileName())
	ext := strings.ToLower(filepath.Ext(safeName))

	if len(cfg.AllowedExts) == 0 {
		return "", 0, "", &FileExtensionNotAllowedError{FieldName: fieldName, Extension: ext}
	}
	allowed := false
	for _, e := range cfg.AllowedExts {
		if strings.EqualFold(e, strings.TrimPrefix(ext, ".")) || strings.EqualFold(e, ext) {
			allowed = true
			break
		}
	}
	if ext == "" || !allowed {
		return "", 0, "", &FileExtensionNotAllowedError{FieldName: fieldName, Extension: ext}
	}

	dir := cfg.UploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, "", NewEngineError(500, "mkdir_failed", err.Error())
	}

	destPath := filepath.Join(dir, fmt.Sprintf("upload_%d_%s", time.Now().UnixMicro(), safeName))
	dest, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", 0, "", NewEngineError(500, "open_failed", err.Error())
	}

	var written int64
	var sniffBuf []byte
	buf := make([]byte, 32*1024)

	for {
		n, readErr := part.Read(buf)
		if n > 0 {
			chunk := buf[:n]

			form.memoryUsed += int64(n)
			if cfg.MaxMemory > 0 && form.memoryUsed > cfg.MaxMemory {
				dest.Close()
				os.Remove(destPath)
				return "", 0, "", NewEngineError(413, "too_large", "request exceeded the in-memory read limit")
			}

			if !form.quota.TryConsume(int64(n)) {
				dest.Close()
				os.Remove(destPath)
				return "", 0, "", &FileQuotaExceededError{FieldName: fieldName, Limit: cfg.MaxDiskUsage}
			}

			written += int64(n)
			if cfg.MaxFileSize > 0 && written > cfg.MaxFileSize {
				dest.Close()
				os.Remove(destPath)
				return "", 0, "", &FileTooLargeError{FieldName: fieldName, Limit: cfg.MaxFileSize}
			}

			if len(sniffBuf) < 512 {
				sniffBuf = append(sniffBuf, chunk...)
			}

			if _, werr := dest.Write(chunk); werr != nil {
				dest.Close()
				os.Remove(destPath)
				return "", 0, "", NewEngineError(500, "write_failed", werr.Error())
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			dest.Close()
			os.Remove(destPath)
			return "", 0, "", NewEngineError(500, "read_failed", readErr.Error())
		}
	}

	dest.Close()

	if cfg.FilePermissions != 0 {
		applyFilePermissions(destPath, cfg.FilePermissions)
	}

	ctype := mimesniffer.Sniff(sniffBuf)
	if mt, _, perr := mime.ParseMediaType(ctype); perr == nil {
		ctype = mt
	}

	return destPath, written, ctype, nil
}

// normalizeUTF8 decodes b as UTF-8, replacing invalid sequences via
// golang.org/x/text's UTF-8 BOM-aware decoder, per spec.md §4.4's "UTF-8
// decode" field step.
func normalizeUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	decoded, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return strconv.Quote(string(b))
	}
	return string(decoded)
}

// CleanupUploads deletes every file this request's multipart parse wrote
// and releases their quota bytes. Handlers call this explicitly when a
// validation failure after a successful parse means the uploaded files
// should not be kept.
func (c *EngineContext) CleanupUploads() {
	if c.Request.multipart != nil {
		cleanupPartialUpload(c.Request.multipart)
	}
}

// cleanupPartialUpload implements spec.md §4.4's cleanup-on-failure: it
// deletes any files the parse wrote, in reverse creation order, and
// releases their quota bytes.
func cleanupPartialUpload(form *MultipartForm) {
	names := make([]string, 0, len(form.Files))
	for name := range form.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	for i := len(names) - 1; i >= 0; i-- {
		f := form.Files[names[i]]
		form.quota.Release(f.Size)
		if _, err := os.Stat(f.StoredPath); err == nil {
			os.Remove(f.StoredPath)
		}
	}
}
