package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/upload-broker/internal/grant"
	"github.com/maauso/upload-broker/internal/storage"
)

const (
	// DefaultMaxFiles is the default number of files accepted by POST /upload.
	DefaultMaxFiles = 10
	// DefaultMaxUploadMemory is the multipart memory budget before spilling to disk.
	DefaultMaxUploadMemory int64 = 32 << 20
	// DefaultMaxUploadSize caps the whole POST /upload body.
	DefaultMaxUploadSize int64 = 100 << 20

	// maxJSONBody caps the JSON bodies of /callback and /delete-files.
	maxJSONBody int64 = 1 << 20

	defaultBanner = "upload broker service"
)

// GrantService issues and fulfills presigned upload grants.
type GrantService interface {
	Issue(ctx context.Context, filename string) (*grant.Grant, error)
	Fulfill(ctx context.Context, grantKey string) error
}

// ObjectStore is the part of the storage gateway used by the direct routes.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, data io.Reader) (string, error)
	DeleteObjects(ctx context.Context, keys []string) error
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	grants          GrantService
	store           ObjectStore
	validator       *validator.Validate
	logger          *slog.Logger
	maxFiles        int
	maxUploadMemory int64
	maxUploadSize   int64
	banner          string
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithMaxFiles caps the number of files accepted by a single upload.
func WithMaxFiles(n int) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxFiles = n
		}
	}
}

// WithMaxUploadMemory sets how many bytes of a multipart body are held in memory.
func WithMaxUploadMemory(bytes int64) HandlerOption {
	return func(h *Handlers) {
		if bytes > 0 {
			h.maxUploadMemory = bytes
		}
	}
}

// WithMaxUploadSize caps the total size of a POST /upload body in bytes.
func WithMaxUploadSize(bytes int64) HandlerOption {
	return func(h *Handlers) {
		if bytes > 0 {
			h.maxUploadSize = bytes
		}
	}
}

// WithBanner overrides the text served on GET /.
func WithBanner(banner string) HandlerOption {
	return func(h *Handlers) {
		h.banner = banner
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(grants GrantService, store ObjectStore, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		grants:          grants,
		store:           store,
		validator:       validator.New(),
		logger:          logger,
		maxFiles:        DefaultMaxFiles,
		maxUploadMemory: DefaultMaxUploadMemory,
		maxUploadSize:   DefaultMaxUploadSize,
		banner:          defaultBanner,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Index handles GET / requests.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, h.banner)
}

// PresignedURL handles GET /presigned-url requests.
func (h *Handlers) PresignedURL(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")

	g, err := h.grants.Issue(r.Context(), filename)
	if err != nil {
		if errors.Is(err, grant.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, "filename is required", "INVALID_FILENAME")
			return
		}
		h.logger.Error("failed to issue grant",
			slog.String("filename", filename),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create presigned URL", "GRANT_CREATION_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, PresignedURLResponse{
		URL:      g.URL,
		Fields:   g.Fields,
		Location: g.Location,
	})
}

// Callback handles POST /callback requests.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	var req CallbackRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if isBodyTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "REQUEST_TOO_LARGE")
			return
		}
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	err := h.grants.Fulfill(r.Context(), req.URL)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, MessageResponse{Message: "Upload confirmed"})
	case errors.Is(err, grant.ErrNotFound):
		writeError(w, http.StatusNotFound, "URL not found", "URL_NOT_FOUND")
	case errors.Is(err, grant.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "url is required", "VALIDATION_ERROR")
	default:
		h.logger.Error("failed to fulfill grant",
			slog.String("grant_key", req.URL),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}

// Upload handles POST /upload requests. Files arrive in the multipart field
// "files" and are stored under attachments/<pathPrefix>/<filename>.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadMemory); err != nil {
		if isBodyTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "REQUEST_TOO_LARGE")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart body", "INVALID_MULTIPART")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files provided", "NO_FILES")
		return
	}
	if len(files) > h.maxFiles {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d files are allowed", h.maxFiles), "TOO_MANY_FILES")
		return
	}

	prefix := r.URL.Query().Get("pathPrefix")
	keys := make([]string, len(files))
	for i, fh := range files {
		if !isAllowedAttachment(fh.Filename) {
			writeError(w, http.StatusBadRequest, invalidFileTypeMessage, "INVALID_FILE_TYPE")
			return
		}
		key, err := attachmentKey(prefix, fh.Filename)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "INVALID_PATH")
			return
		}
		keys[i] = key
	}

	locations := make([]string, 0, len(files))
	for i, fh := range files {
		f, err := fh.Open()
		if err != nil {
			h.logger.Error("failed to open uploaded file",
				slog.String("filename", fh.Filename),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to upload files", "UPLOAD_FAILED")
			return
		}

		location, err := h.store.Upload(r.Context(), keys[i], attachmentContentType(fh), f)
		_ = f.Close()
		if err != nil {
			h.logger.Error("failed to upload file",
				slog.String("object_key", keys[i]),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to upload files", "UPLOAD_FAILED")
			return
		}
		locations = append(locations, location)
	}

	h.logger.Info("files uploaded",
		slog.Int("count", len(locations)),
		slog.String("path_prefix", prefix),
	)

	writeJSON(w, http.StatusOK, UploadResponse{
		Message:   "Files uploaded successfully",
		Locations: locations,
	})
}

// DeleteFiles handles DELETE /delete-files requests.
func (h *Handlers) DeleteFiles(w http.ResponseWriter, r *http.Request) {
	var req DeleteFilesRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if isBodyTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "REQUEST_TOO_LARGE")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid or empty fileKeys array.", "INVALID_FILE_KEYS")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or empty fileKeys array.", "INVALID_FILE_KEYS")
		return
	}

	if err := h.store.DeleteObjects(r.Context(), req.FileKeys); err != nil {
		if errors.Is(err, storage.ErrNoKeys) || errors.Is(err, storage.ErrKeyRequired) {
			writeError(w, http.StatusBadRequest, "Invalid or empty fileKeys array.", "INVALID_FILE_KEYS")
			return
		}
		h.logger.Error("failed to delete files",
			slog.Int("count", len(req.FileKeys)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "Failed to delete files", "DELETE_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Files deleted successfully"})
}

// isBodyTooLarge reports whether err comes from a body cut off by http.MaxBytesReader.
func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
