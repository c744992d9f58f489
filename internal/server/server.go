package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/cors"

	"github.com/updrop-io/updrop/internal/cleanup"
	"github.com/updrop-io/updrop/internal/files"
	"github.com/updrop-io/updrop/internal/fs"
	"github.com/updrop-io/updrop/internal/preview"
	"github.com/updrop-io/updrop/internal/sqlite"
)

// maxMultipartOverhead is the slack granted on top of the file size cap
// for multipart boundaries and part headers before the transport-level
// body cap kicks in.
const maxMultipartOverhead = 1 << 20

type Config struct {
	Addr          string        `env:"UPDROP_ADDR" envDefault:":8000"`
	DataDir       string        `env:"UPDROP_DATA_DIR" envDefault:"/tmp/updrop_uploads"`
	DBPath        string        `env:"UPDROP_DB_PATH" envDefault:"/tmp/updrop.db"`
	MaxSize       int64         `env:"UPDROP_MAX_SIZE" envDefault:"209715200"`
	RateInterval  time.Duration `env:"UPDROP_RATE_INTERVAL" envDefault:"2s"`
	Retention     time.Duration `env:"UPDROP_RETENTION" envDefault:"24h"`
	CleanupPeriod time.Duration `env:"UPDROP_CLEANUP_PERIOD" envDefault:"1h"`
}

// Server is the upload-ingestion HTTP server with its background
// retention sweeper.
type Server struct {
	httpSrv *http.Server
	sweeper *cleanup.Sweeper
	repo    *sqlite.Repository
}

func New(cfg *Config) (*Server, error) {
	// Initialize structured logger with JSON handler
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	storage, err := fs.NewStorage(cfg.DataDir, cfg.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	repo, err := sqlite.NewRepository(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}

	limiter := files.NewRateLimiter(cfg.RateInterval)
	fileService := files.NewService(storage, repo, limiter, preview.NewGenerator(), cfg.Retention)
	sweeper := cleanup.NewSweeper(cfg.DataDir, repo, cfg.Retention, cfg.CleanupPeriod)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", root)
	mux.HandleFunc("GET /healthz", healthz)
	mux.HandleFunc("GET /upload", uploadPage)
	mux.HandleFunc("POST /v1/files", uploadFile(cfg, fileService))
	mux.HandleFunc("GET /v1/files", listFiles(fileService))

	// The companion frontend is served from a different origin.
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(mux)

	handler := loggingMiddleware(corsHandler)

	return &Server{
		httpSrv: &http.Server{
			Addr:    cfg.Addr,
			Handler: handler,
			// ReadHeaderTimeout only: streaming a large upload body may
			// legitimately take minutes.
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		sweeper: sweeper,
		repo:    repo,
	}, nil
}

// Handler returns the server's root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Run sweeps the storage directory, serves requests until ctx is
// canceled, then shuts down gracefully and runs a final sweep.
func (s *Server) Run(ctx context.Context) error {
	s.sweeper.Start(ctx)
	defer func() {
		s.sweeper.Stop()
		if err := s.repo.Close(); err != nil {
			slog.Error("Failed to close metadata repository", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.ListenAndServe()
	}()

	slog.Info("Server started", "addr", s.httpSrv.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "updrop upload server is running"})
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// uploadResponse is the success payload of POST /v1/files.
type uploadResponse struct {
	StorageName  string         `json:"storage_name"`
	Name         string         `json:"name"`
	Extension    string         `json:"extension"`
	Size         int64          `json:"size"`
	SizeHuman    string         `json:"size_human"`
	CreatedAt    time.Time      `json:"created_at"`
	Preview      *files.Preview `json:"preview,omitempty"`
	PreviewError string         `json:"preview_error,omitempty"`
}

func uploadFile(cfg *Config, fileService *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Transport-level cap; the storage layer enforces the exact
		// per-file limit mid-stream.
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxSize+maxMultipartOverhead)

		// MultipartReader streams parts off the wire instead of
		// buffering the form, so the body is consumed one chunk at a
		// time by the storage layer.
		mr, err := r.MultipartReader()
		if err != nil {
			http.Error(w, "Expected a multipart file upload", http.StatusBadRequest)
			return
		}

		part, err := filePart(mr)
		if err != nil {
			http.Error(w, "No file provided", http.StatusBadRequest)
			return
		}
		defer part.Close()

		result, err := fileService.Upload(&files.UploadRequest{
			Identity: clientIdentity(r),
			Name:     part.FileName(),
			Content:  part,
		})
		if err != nil {
			writeUploadError(w, part.FileName(), err)
			return
		}

		file := result.File
		slog.Info("File uploaded",
			"storage_name", file.StorageName,
			"size", humanize.Bytes(uint64(file.Size)),
			"client", clientIdentity(r),
		)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(uploadResponse{
			StorageName:  file.StorageName,
			Name:         file.Name,
			Extension:    file.Extension,
			Size:         file.Size,
			SizeHuman:    humanize.Bytes(uint64(file.Size)),
			CreatedAt:    file.CreatedAt,
			Preview:      result.Preview,
			PreviewError: result.PreviewError,
		}); err != nil {
			slog.Error("Failed to encode response", "error", err)
		}
	}
}

// filePart returns the first "file" form part, draining any fields
// that precede it.
func filePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

// writeUploadError maps the domain error taxonomy to HTTP statuses.
func writeUploadError(w http.ResponseWriter, filename string, err error) {
	var rateErr *files.RateLimitError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rateErr.RetryAfter.Seconds()))))
		http.Error(w, fmt.Sprintf("Too many uploads, retry in %s", rateErr.RetryAfter.Round(time.Millisecond)), http.StatusTooManyRequests)
	case errors.Is(err, files.ErrUnsupportedFileType):
		http.Error(w, "Unsupported file type, allowed: csv, xlsx, gz, json", http.StatusUnsupportedMediaType)
	case errors.Is(err, files.ErrSizeLimitExceeded), errors.As(err, &tooLarge):
		http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
	case errors.Is(err, files.ErrClientDisconnected):
		// The peer is usually gone; the status is best-effort.
		slog.Warn("Client disconnected mid-upload", "filename", filename, "error", err)
		http.Error(w, "Upload interrupted", http.StatusBadRequest)
	default:
		slog.Error("Upload failed", "filename", filename, "error", err)
		http.Error(w, "Upload failed", http.StatusInternalServerError)
	}
}

func listFiles(fileService *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fileList, err := fileService.List()
		if err != nil {
			slog.Error("List files failed", "error", err)
			http.Error(w, "Failed to list files", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(fileList); err != nil {
			slog.Error("Failed to encode files list", "error", err)
		}
	}
}

// clientIdentity derives the rate-limit key from the requester's
// network origin.
func clientIdentity(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// loggingMiddleware logs HTTP requests with structured logging
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
