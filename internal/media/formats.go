package media

import (
	"net/url"
	"path/filepath"
	"strings"
)

var supportedExtensions = map[string]bool{
	".mp4":  true,
	".m4v":  true,
	".mkv":  true,
	".avi":  true,
	".webm": true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".ts":   true,
	".m3u8": true,
	".mpd":  true,
}

func IsSupportedVideo(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return supportedExtensions[ext]
}

func GetContentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mkv":
		return "video/x-matroska"
	case ".avi":
		return "video/x-msvideo"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".wmv":
		return "video/x-ms-wmv"
	case ".flv":
		return "video/x-flv"
	case ".ts":
		return "video/mp2t"
	case ".m3u8":
		return "application/x-mpegURL"
	case ".mpd":
		return "application/dash+xml"
	default:
		return "application/octet-stream"
	}
}

// SourceType infers the type hint for a source URL or path from its
// extension, ignoring any query string or fragment.
func SourceType(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		return GetContentType(u.Path)
	}
	return GetContentType(rawURL)
}
