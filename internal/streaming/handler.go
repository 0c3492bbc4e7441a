package streaming

import (
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"scrubview/internal/media"
)

var (
	ErrNotLocal          = errors.New("source is not a local file")
	ErrOutsideLibrary    = errors.New("source is outside the media library")
	ErrUnsupportedFormat = errors.New("unsupported video format")
	ErrUnsupportedScheme = errors.New("unsupported source scheme")
	ErrNotFound          = errors.New("source file not found")
)

// Handler serves local sources, confined to the media library root. With
// an empty root no local file is ever served.
type Handler struct {
	root string
}

func NewHandler(libraryPath string) *Handler {
	return &Handler{root: libraryPath}
}

// LocalPath returns the filesystem path of a source that refers to a local
// file: a plain path or a file:// URL. Remote sources report false.
func LocalPath(sourceURL string) (string, bool) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", false
	}
	switch u.Scheme {
	case "":
		return sourceURL, sourceURL != ""
	case "file":
		return u.Path, u.Path != ""
	default:
		return "", false
	}
}

// Resolve checks a source before it reaches the engine. Remote http(s)
// sources report ErrNotLocal; any other scheme is rejected. Local sources
// resolve, symlinks included, to a supported video file inside the library
// root. Relative paths are taken relative to the root.
func (h *Handler) Resolve(sourceURL string) (string, error) {
	path, ok := LocalPath(sourceURL)
	if !ok {
		u, err := url.Parse(sourceURL)
		if err != nil {
			return "", ErrUnsupportedScheme
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return "", ErrNotLocal
		default:
			return "", ErrUnsupportedScheme
		}
	}

	if h.root == "" {
		return "", ErrOutsideLibrary
	}
	if !media.IsSupportedVideo(path) {
		return "", ErrUnsupportedFormat
	}

	root, err := filepath.Abs(h.root)
	if err != nil {
		return "", err
	}
	if root, err = filepath.EvalSymlinks(root); err != nil {
		return "", ErrNotFound
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	resolved, err := filepath.EvalSymlinks(filepath.Clean(path))
	if err != nil {
		return "", ErrNotFound
	}
	if !within(root, resolved) {
		return "", ErrOutsideLibrary
	}
	// The link target may carry a different extension.
	if !media.IsSupportedVideo(resolved) {
		return "", ErrUnsupportedFormat
	}
	return resolved, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// ServeFile streams a source with range support. The source is resolved
// again here so nothing outside the library is served whatever was loaded.
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request, sourceURL string) {
	filePath, err := h.Resolve(sourceURL)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNotLocal):
		http.Error(w, "File not found", http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	file, err := os.Open(filePath)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		http.Error(w, "Cannot read file", http.StatusInternalServerError)
		return
	}
	if stat.IsDir() {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	contentType := media.GetContentType(filePath)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	http.ServeContent(w, r, filepath.Base(filePath), stat.ModTime(), file)
}
