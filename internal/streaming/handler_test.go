package streaming

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalPath(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"/media/movie.mp4", "/media/movie.mp4", true},
		{"file:///media/movie.mp4", "/media/movie.mp4", true},
		{"https://cdn.example/master.m3u8", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := LocalPath(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("LocalPath(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

// newLibrary creates a library root holding clip.mp4 and a secret file
// next to it, outside the root.
func newLibrary(t *testing.T) (root, clip, secret string) {
	t.Helper()
	dir := t.TempDir()
	root = filepath.Join(dir, "library")
	if err := os.Mkdir(root, 0755); err != nil {
		t.Fatal(err)
	}
	clip = filepath.Join(root, "clip.mp4")
	if err := os.WriteFile(clip, []byte("0123456789"), 0644); err != nil {
		t.Fatal(err)
	}
	secret = filepath.Join(dir, "secret.mp4")
	if err := os.WriteFile(secret, []byte("PRIVATE"), 0600); err != nil {
		t.Fatal(err)
	}
	return root, clip, secret
}

func TestResolve(t *testing.T) {
	root, clip, secret := newLibrary(t)
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(secret, filepath.Join(root, "escape.mp4")); err != nil {
		t.Fatal(err)
	}
	resolvedClip, err := filepath.EvalSymlinks(clip)
	if err != nil {
		t.Fatal(err)
	}

	h := NewHandler(root)
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{"absolute", clip, resolvedClip, nil},
		{"file url", "file://" + clip, resolvedClip, nil},
		{"relative", "clip.mp4", resolvedClip, nil},
		{"remote", "https://cdn.example/master.m3u8", "", ErrNotLocal},
		{"other scheme", "concat:" + secret, "", ErrUnsupportedScheme},
		{"outside root", secret, "", ErrOutsideLibrary},
		{"dot dot", filepath.Join(root, "..", "secret.mp4"), "", ErrOutsideLibrary},
		{"symlink escape", filepath.Join(root, "escape.mp4"), "", ErrOutsideLibrary},
		{"unsupported", filepath.Join(root, "notes.txt"), "", ErrUnsupportedFormat},
		{"missing", filepath.Join(root, "gone.mp4"), "", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.Resolve(tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Resolve(%q) error = %v, want %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolveWithoutLibrary(t *testing.T) {
	_, clip, _ := newLibrary(t)
	if _, err := NewHandler("").Resolve(clip); !errors.Is(err, ErrOutsideLibrary) {
		t.Fatalf("Resolve() error = %v, want ErrOutsideLibrary", err)
	}
}

func TestServeFileRange(t *testing.T) {
	root, clip, _ := newLibrary(t)

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.Header.Set("Range", "bytes=2-5")
	rec := httptest.NewRecorder()

	NewHandler(root).ServeFile(rec, req, clip)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if got := rec.Body.String(); got != "2345" {
		t.Errorf("body = %q, want 2345", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "video/mp4" {
		t.Errorf("content type = %q", ct)
	}
}

func TestServeFileOutsideLibrary(t *testing.T) {
	root, _, secret := newLibrary(t)

	rec := httptest.NewRecorder()
	NewHandler(root).ServeFile(rec, httptest.NewRequest(http.MethodGet, "/stream", nil), secret)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if rec.Body.String() == "PRIVATE" {
		t.Fatal("served a file outside the library")
	}
}

func TestServeFileMissing(t *testing.T) {
	root, _, _ := newLibrary(t)

	rec := httptest.NewRecorder()
	NewHandler(root).ServeFile(rec, httptest.NewRequest(http.MethodGet, "/stream", nil), filepath.Join(root, "gone.mp4"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
