/*
Package devstore is a tiny S3-compatible object server backed by a folder on
disk, for developing against the remote media backend without a real bucket.

It understands path-style PUT, GET, HEAD and DELETE on objects and PUT on
buckets. It also answers the CDN delivery form

	GET /<bucket>/upload/[<transformation>/]<key>

by serving the original object, so URLs produced by the remote store resolve
locally. Transformations are not applied.
*/
package devstore

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PatchWorkCreations/iriseup-foundation/src/jobs"
	"github.com/PatchWorkCreations/iriseup-foundation/src/logging"
	"github.com/PatchWorkCreations/iriseup-foundation/src/oops"
	"github.com/rs/zerolog"
)

type Server struct {
	Root   string
	Logger *zerolog.Logger
}

func New(root string) (*Server, error) {
	if err := os.MkdirAll(root, fs.ModePerm); err != nil {
		return nil, oops.New(err, "failed to create devstore folder")
	}
	return &Server{Root: root, Logger: logging.GlobalLogger()}, nil
}

var (
	reBucket         = regexp.MustCompile(`^[a-z0-9][a-z0-9.\-]{1,62}$`)
	reTransformation = regexp.MustCompile(`^[a-z]{1,3}_[a-z0-9]+(,[a-z]{1,3}_[a-z0-9]+)*$`)
)

func bucketKey(r *http.Request) (string, string) {
	p := strings.TrimPrefix(r.URL.Path, "/")
	slashIdx := strings.IndexByte(p, '/')
	if slashIdx == -1 {
		return p, ""
	}
	return p[:slashIdx], p[slashIdx+1:]
}

// Strips the CDN prefix from a delivery path, if present.
func deliveryKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, "upload/")
	if !ok {
		return key, false
	}
	if first, after, found := strings.Cut(rest, "/"); found && reTransformation.MatchString(first) {
		rest = after
	}
	return rest, true
}

// Object keys are flattened into a single file name per object.
func (s *Server) objectPath(bucket, key string) (string, bool) {
	name := strings.ReplaceAll(key, "/", "~")
	if name == "" || name == "." || name == ".." {
		return "", false
	}
	return filepath.Join(s.Root, bucket, name), true
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bucket, key := bucketKey(r)
	logger := s.Logger.With().Str("method", r.Method).Str("bucket", bucket).Str("key", key).Logger()

	if !reBucket.MatchString(bucket) {
		writeError(w, r, http.StatusBadRequest, "InvalidBucketName", "invalid bucket name")
		return
	}
	bucketDir := filepath.Join(s.Root, bucket)

	if key == "" {
		switch r.Method {
		case http.MethodPut:
			if err := os.MkdirAll(bucketDir, fs.ModePerm); err != nil {
				logger.Error().Err(err).Msg("failed to create bucket")
				writeError(w, r, http.StatusInternalServerError, "InternalError", err.Error())
				return
			}
			logger.Info().Msg("created bucket")
			w.Header().Set("Location", "/"+bucket)
			w.WriteHeader(http.StatusOK)
		case http.MethodHead:
			if !dirExists(bucketDir) {
				writeError(w, r, http.StatusNotFound, "NoSuchBucket", "the bucket does not exist")
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			writeError(w, r, http.StatusMethodNotAllowed, "MethodNotAllowed", "unsupported bucket operation")
		}
		return
	}

	if !dirExists(bucketDir) {
		writeError(w, r, http.StatusNotFound, "NoSuchBucket", "the bucket does not exist")
		return
	}

	switch r.Method {
	case http.MethodPut:
		objPath, ok := s.objectPath(bucket, key)
		if !ok {
			writeError(w, r, http.StatusBadRequest, "InvalidArgument", "invalid object key")
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "IncompleteBody", err.Error())
			return
		}
		if err := os.WriteFile(objPath, body, 0644); err != nil {
			logger.Error().Err(err).Msg("failed to write object")
			writeError(w, r, http.StatusInternalServerError, "InternalError", err.Error())
			return
		}
		logger.Info().Int("bytes", len(body)).Msg("stored object")
		w.WriteHeader(http.StatusOK)

	case http.MethodGet, http.MethodHead:
		objPath, ok := s.objectPath(bucket, key)
		if !ok {
			writeError(w, r, http.StatusBadRequest, "InvalidArgument", "invalid object key")
			return
		}
		// A stored key wins over reading the path as a CDN delivery URL, so
		// objects under an "upload" folder stay reachable.
		if r.Method == http.MethodGet && !fileExists(objPath) {
			if dk, isDelivery := deliveryKey(key); isDelivery {
				if p, ok := s.objectPath(bucket, dk); ok {
					key, objPath = dk, p
				}
			}
		}
		f, err := os.Open(objPath)
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, r, http.StatusNotFound, "NoSuchKey", "the object does not exist")
			return
		} else if err != nil {
			writeError(w, r, http.StatusInternalServerError, "InternalError", err.Error())
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "InternalError", err.Error())
			return
		}
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
			w.Header().Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
			w.WriteHeader(http.StatusOK)
			return
		}
		http.ServeContent(w, r, key, info.ModTime(), f)

	case http.MethodDelete:
		objPath, ok := s.objectPath(bucket, key)
		if !ok {
			writeError(w, r, http.StatusBadRequest, "InvalidArgument", "invalid object key")
			return
		}
		// Deleting a missing object succeeds, as in S3.
		if err := os.Remove(objPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			writeError(w, r, http.StatusInternalServerError, "InternalError", err.Error())
			return
		}
		logger.Info().Msg("deleted object")
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, r, http.StatusMethodNotAllowed, "MethodNotAllowed", "unsupported object operation")
	}
}

type s3Error struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

// HEAD responses carry no body; clients go by the status code alone.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	if r.Method == http.MethodHead {
		w.WriteHeader(status)
		return
	}
	body, _ := xml.Marshal(s3Error{Code: code, Message: msg})
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	w.Write([]byte(xml.Header))
	w.Write(body)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Runs the server on addr until the job is canceled.
func (s *Server) Start(addr string) *jobs.Job {
	return jobs.Start("devstore", func(ctx context.Context) error {
		server := &http.Server{
			Addr:              addr,
			Handler:           s,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()

		s.Logger.Info().Str("addr", addr).Str("root", s.Root).Msg("Serving the dev object store")
		err := server.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return oops.New(err, "dev object store shut down unexpectedly")
		}
		return nil
	})
}
