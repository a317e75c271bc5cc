// Package ingest resolves where a request's audio comes from.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"ai-dialog-analysis-service/internal/analysiserr"
)

// Source kinds.
const (
	KindFile = "file"
	KindURL  = "url"
)

// UnsupportedMessage is reported when a request carries neither a file nor a URL.
const UnsupportedMessage = "Supported only file or url"

// ErrUnsupported is returned when a request body is neither a file nor a URL.
var ErrUnsupported = fmt.Errorf("%w: %s", analysiserr.ErrInputSource, UnsupportedMessage)

// Source yields the WAV bytes of one request.
type Source interface {
	// Kind is KindFile or KindURL.
	Kind() string
	// Open returns a seekable reader over the audio. The caller closes it.
	Open(ctx context.Context) (io.ReadSeekCloser, error)
}

// FileUpload is audio supplied directly by the client.
type FileUpload struct {
	Name   string
	Reader io.ReadSeeker
}

// Kind implements Source.
func (f FileUpload) Kind() string {
	return KindFile
}

// Open implements Source. Closing the returned reader closes the upload when
// it is an io.Closer.
func (f FileUpload) Open(context.Context) (io.ReadSeekCloser, error) {
	if f.Reader == nil {
		return nil, fmt.Errorf("%w: empty upload", analysiserr.ErrInputSource)
	}
	if rsc, ok := f.Reader.(io.ReadSeekCloser); ok {
		return rsc, nil
	}
	return nopCloser{f.Reader}, nil
}

// NewFileBytes wraps an in-memory upload.
func NewFileBytes(name string, data []byte) FileUpload {
	return FileUpload{Name: name, Reader: bytes.NewReader(data)}
}

// RemoteURL is audio downloaded over HTTP(S).
type RemoteURL struct {
	URL      string
	Client   *http.Client
	MaxBytes int64
}

// ParseURL accepts a request body whose trimmed text starts with "http".
func ParseURL(body string) (RemoteURL, error) {
	u := strings.TrimSpace(body)
	if !strings.HasPrefix(u, "http") {
		return RemoteURL{}, ErrUnsupported
	}
	return RemoteURL{URL: u}, nil
}

// Kind implements Source.
func (r RemoteURL) Kind() string {
	return KindURL
}

// Open implements Source. The body is buffered in memory, bounded by MaxBytes.
func (r RemoteURL) Open(ctx context.Context) (io.ReadSeekCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", analysiserr.ErrInputSource, err)
	}

	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", analysiserr.ErrInputSource, r.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: fetch %s: status %d", analysiserr.ErrInputSource, r.URL, resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if r.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, r.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", analysiserr.ErrInputSource, r.URL, err)
	}
	if r.MaxBytes > 0 && int64(len(data)) > r.MaxBytes {
		return nil, fmt.Errorf("%w: download exceeds %d bytes", analysiserr.ErrLimitExceeded, r.MaxBytes)
	}

	log.Debug().
		Str("url", r.URL).
		Int("bytes", len(data)).
		Dur("elapsed", time.Since(start)).
		Msg("Downloaded remote audio")

	return nopCloser{bytes.NewReader(data)}, nil
}

type nopCloser struct {
	io.ReadSeeker
}

func (nopCloser) Close() error { return nil }
