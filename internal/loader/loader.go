package loader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/example/aura-ai-core/internal/vision"
)

// ErrImageNotFound signals that a request resolved to no decodable image.
// Corrupt bytes and missing files are indistinguishable to callers.
var ErrImageNotFound = errors.New("image not found")

// ImageRequest identifies the image to analyze. Immutable once constructed.
type ImageRequest struct {
	FileName string `json:"file_name"`
	ImageURL string `json:"image_url,omitempty"`
	CaseID   string `json:"case_id,omitempty"`
}

// Loader resolves image references to decoded pixel data. Remote fetches
// fall through to the local upload area instead of failing the request.
type Loader struct {
	uploadDir string
	client    *http.Client
	logger    *zap.Logger
}

// New constructs a loader over the given upload directory. fetchTimeout
// bounds remote fetches.
func New(uploadDir string, fetchTimeout time.Duration, logger *zap.Logger) *Loader {
	return &Loader{
		uploadDir: uploadDir,
		client:    &http.Client{Timeout: fetchTimeout},
		logger:    logger.Named("loader"),
	}
}

// Load returns the decoded image for the request or ErrImageNotFound.
func (l *Loader) Load(ctx context.Context, req ImageRequest) (*vision.Matrix, error) {
	if isFetchable(req.ImageURL) {
		if img, err := l.fetch(ctx, req.ImageURL); err == nil {
			return img, nil
		} else {
			l.logger.Warn("remote fetch failed, falling back to local lookup",
				zap.String("image_url", req.ImageURL), zap.Error(err))
		}
	}

	if req.FileName == "" {
		return nil, fmt.Errorf("%w: empty file name", ErrImageNotFound)
	}

	path := filepath.Join(l.uploadDir, filepath.Base(req.FileName))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrImageNotFound, req.FileName)
	}
	defer f.Close()

	img, err := vision.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable file %s", ErrImageNotFound, req.FileName)
	}
	return img, nil
}

func (l *Loader) fetch(ctx context.Context, rawURL string) (*vision.Matrix, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return vision.Decode(resp.Body)
}

func isFetchable(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
