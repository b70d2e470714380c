package handler

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"formkit/internal/gateway/metrics"
	"formkit/internal/gateway/repository/artifact"
)

const (
	defaultFileField = "file"
	multipartMemory  = 8 << 20
	formOverhead     = 1 << 20
)

type UploadConfig struct {
	Store    artifact.Store
	Metrics  *metrics.Metrics
	MaxBytes int64
	// BaseURL prefixes download links when the store has no direct URL.
	BaseURL string
	Logger  logr.Logger
}

type UploadHandler struct {
	store    artifact.Store
	metrics  *metrics.Metrics
	maxBytes int64
	baseURL  string
	log      logr.Logger
	newID    func() string
	now      func() time.Time
}

func NewUploadHandler(cfg UploadConfig) *UploadHandler {
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	return &UploadHandler{
		store:    cfg.Store,
		metrics:  cfg.Metrics,
		maxBytes: maxBytes,
		baseURL:  strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		log:      cfg.Logger.WithName("uploads"),
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

type uploadResponse struct {
	ID          string            `json:"id"`
	FileID      string            `json:"file_id"`
	URL         string            `json:"url"`
	Path        string            `json:"path"`
	Size        int64             `json:"size"`
	ContentType string            `json:"content_type"`
	Encoding    string            `json:"encoding"`
	Meta        map[string]string `json:"meta,omitempty"`
}

type encodedFile struct {
	Filename      string `json:"filename"`
	ContentBase64 string `json:"content_base64"`
	ContentType   string `json:"content_type"`
}

// received is one decoded upload before it is stored.
type received struct {
	name        string
	contentType string
	content     []byte
	meta        map[string]string
}

func fileField(r *http.Request) string {
	if f := strings.TrimSpace(r.URL.Query().Get("field")); f != "" {
		return f
	}
	return defaultFileField
}

// HandleBinary accepts multipart/form-data with the file under the file
// field and every other form value as metadata.
func (h *UploadHandler) HandleBinary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	const encoding = "multipart"
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+formOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.reject(w, encoding, statusForBodyError(err), fmt.Sprintf("invalid multipart body: %v", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	field := fileField(r)
	file, hdr, err := r.FormFile(field)
	if err != nil {
		h.reject(w, encoding, http.StatusBadRequest, fmt.Sprintf("missing file field %q", field))
		return
	}
	defer file.Close()
	content, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		h.reject(w, encoding, http.StatusBadRequest, "unreadable file part")
		return
	}

	meta := make(map[string]string, len(r.MultipartForm.Value))
	for k, vs := range r.MultipartForm.Value {
		if k == field || len(vs) == 0 {
			continue
		}
		meta[k] = vs[0]
	}
	h.persist(w, r, encoding, received{
		name:        hdr.Filename,
		contentType: hdr.Header.Get("Content-Type"),
		content:     content,
		meta:        meta,
	})
}

// HandleJSON accepts a JSON object carrying the file as
// {filename, content_base64, content_type} under the file field. Every other
// top-level member is metadata.
func (h *UploadHandler) HandleJSON(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	const encoding = "json"
	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct != "application/json" {
		h.reject(w, encoding, http.StatusUnsupportedMediaType, "content type must be application/json")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, int64(base64.StdEncoding.EncodedLen(int(h.maxBytes)))+formOverhead)

	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.reject(w, encoding, statusForBodyError(err), "invalid json body")
		return
	}
	field := fileField(r)
	rawFile, ok := body[field]
	if !ok {
		h.reject(w, encoding, http.StatusBadRequest, fmt.Sprintf("missing file field %q", field))
		return
	}
	var ef encodedFile
	if err := json.Unmarshal(rawFile, &ef); err != nil {
		h.reject(w, encoding, http.StatusBadRequest, "file field must be an object")
		return
	}
	content, err := base64.StdEncoding.DecodeString(ef.ContentBase64)
	if err != nil {
		h.reject(w, encoding, http.StatusBadRequest, "content_base64 is not valid base64")
		return
	}

	meta := make(map[string]string, len(body))
	for k, raw := range body {
		if k == field {
			continue
		}
		if v, ok := metaValue(raw); ok {
			meta[k] = v
		}
	}
	h.persist(w, r, encoding, received{
		name:        ef.Filename,
		contentType: ef.ContentType,
		content:     content,
		meta:        meta,
	})
}

func (h *UploadHandler) persist(w http.ResponseWriter, r *http.Request, encoding string, in received) {
	size := int64(len(in.content))
	if size > h.maxBytes {
		h.reject(w, encoding, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %s", humanize.IBytes(uint64(h.maxBytes))))
		return
	}
	ctype := strings.TrimSpace(in.contentType)
	if ctype == "" {
		ctype = http.DetectContentType(in.content)
	}
	id := h.newID()
	key, err := artifact.ObjectKey(id, in.name)
	if err != nil {
		h.reject(w, encoding, http.StatusBadRequest, err.Error())
		return
	}
	if len(in.meta) == 0 {
		in.meta = nil
	}
	if err := h.store.Put(r.Context(), artifact.Object{
		Key:         key,
		ContentType: ctype,
		Size:        size,
		Content:     in.content,
		Meta:        in.meta,
		StoredAt:    h.now(),
	}); err != nil {
		h.metrics.ObserveUpload(encoding, "error", 0)
		h.log.Error(err, "store upload failed", "encoding", encoding, "size", humanize.Bytes(uint64(size)))
		writeError(w, http.StatusBadGateway, "storage unavailable")
		return
	}

	link, err := h.store.GetURL(r.Context(), key)
	if err != nil || link == "" {
		link = h.downloadURL(key)
	}
	h.metrics.ObserveUpload(encoding, "ok", size)
	h.log.Info("upload stored", "encoding", encoding, "size", humanize.Bytes(uint64(size)), "ext", strings.ToLower(path.Ext(key)), "metaFields", len(in.meta))
	writeJSON(w, http.StatusCreated, uploadResponse{
		ID:          id,
		FileID:      id,
		URL:         link,
		Path:        key,
		Size:        size,
		ContentType: ctype,
		Encoding:    encoding,
		Meta:        in.meta,
	})
}

func (h *UploadHandler) downloadURL(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return h.baseURL + "/api/files/" + strings.Join(parts, "/")
}

func (h *UploadHandler) reject(w http.ResponseWriter, encoding string, status int, msg string) {
	h.metrics.ObserveUpload(encoding, "rejected", 0)
	h.log.V(1).Info("upload rejected", "encoding", encoding, "status", status)
	writeError(w, status, msg)
}

// metaValue flattens a JSON member into a string: strings unquoted, null
// dropped, everything else kept as compact JSON.
func metaValue(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s, true
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed), true
	}
	return buf.String(), true
}

func statusForBodyError(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// HandleFile serves a stored upload at /api/files/{key...}.
func (h *UploadHandler) HandleFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/api/files/")
	obj, err := h.store.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		if errors.Is(err, artifact.ErrInvalidKey) {
			writeError(w, http.StatusBadRequest, "invalid file key")
			return
		}
		h.log.Error(err, "load upload failed")
		writeError(w, http.StatusBadGateway, "storage unavailable")
		return
	}
	ctype := obj.ContentType
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(obj.Key)}))
	http.ServeContent(w, r, "", obj.StoredAt, bytes.NewReader(obj.Content))
}
