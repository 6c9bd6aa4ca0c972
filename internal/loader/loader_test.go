package loader

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/aura-ai-core/internal/vision"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	m := vision.NewMatrix(w, h)
	for i := range m.Pix {
		m.Pix[i] = uint8(i % 251)
	}
	var buf bytes.Buffer
	if err := m.EncodePNG(&buf); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	return buf.Bytes()
}

func writeUpload(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatalf("write upload: %v", err)
	}
}

func TestLoadFetchesRemoteImage(t *testing.T) {
	payload := pngBytes(t, 12, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload) //nolint:errcheck
	}))
	defer srv.Close()

	l := New(t.TempDir(), 5*time.Second, zap.NewNop())
	img, err := l.Load(context.Background(), ImageRequest{ImageURL: srv.URL + "/scan.png"})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if img.W != 12 || img.H != 8 {
		t.Fatalf("unexpected size %dx%d", img.W, img.H)
	}
}

func TestLoadFallsBackToLocalOnRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	writeUpload(t, dir, "scan.png", pngBytes(t, 6, 6))

	l := New(dir, 5*time.Second, zap.NewNop())
	img, err := l.Load(context.Background(), ImageRequest{
		FileName: "scan.png",
		ImageURL: srv.URL + "/scan.png",
	})
	if err != nil {
		t.Fatalf("expected local fallback, got %v", err)
	}
	if img.W != 6 {
		t.Fatalf("unexpected width %d", img.W)
	}
}

func TestLoadFallsBackWhenRemoteUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	unreachable := srv.URL
	srv.Close()

	dir := t.TempDir()
	writeUpload(t, dir, "scan.png", pngBytes(t, 6, 6))

	l := New(dir, time.Second, zap.NewNop())
	if _, err := l.Load(context.Background(), ImageRequest{
		FileName: "scan.png",
		ImageURL: unreachable + "/scan.png",
	}); err != nil {
		t.Fatalf("expected local fallback, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	l := New(t.TempDir(), time.Second, zap.NewNop())
	_, err := l.Load(context.Background(), ImageRequest{FileName: "absent.png"})
	if !errors.Is(err, ErrImageNotFound) {
		t.Fatalf("expected ErrImageNotFound, got %v", err)
	}
}

func TestLoadUndecodableFile(t *testing.T) {
	dir := t.TempDir()
	writeUpload(t, dir, "junk.png", []byte("definitely not a png"))

	l := New(dir, time.Second, zap.NewNop())
	_, err := l.Load(context.Background(), ImageRequest{FileName: "junk.png"})
	if !errors.Is(err, ErrImageNotFound) {
		t.Fatalf("expected ErrImageNotFound, got %v", err)
	}
}

func TestLoadStripsDirectoryComponents(t *testing.T) {
	dir := t.TempDir()
	writeUpload(t, dir, "scan.png", pngBytes(t, 4, 4))

	l := New(dir, time.Second, zap.NewNop())
	if _, err := l.Load(context.Background(), ImageRequest{FileName: "../../scan.png"}); err != nil {
		t.Fatalf("expected base-name lookup to succeed, got %v", err)
	}
}

func TestLoadEmptyRequest(t *testing.T) {
	l := New(t.TempDir(), time.Second, zap.NewNop())
	if _, err := l.Load(context.Background(), ImageRequest{}); !errors.Is(err, ErrImageNotFound) {
		t.Fatalf("expected ErrImageNotFound, got %v", err)
	}
}
