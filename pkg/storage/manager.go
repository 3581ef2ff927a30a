// Package storage computes deterministic file names for downloaded media
// and performs the actual byte writes.
package storage

import (
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/flytam/filenamify"

	"igdownloader/pkg/logger"
	"igdownloader/pkg/media"
)

// Well-known content types mapped to their conventional extension.
// mime.ExtensionsByType is consulted for anything else.
var extByContentType = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"image/webp":      "webp",
	"image/gif":       "gif",
	"video/mp4":       "mp4",
	"video/quicktime": "mov",
	"video/webm":      "webm",
}

// Manager owns one destination directory for a run. There is exactly one
// writer at a time; the pipeline is sequential.
type Manager struct {
	dir    string
	logger logger.Logger
}

// NewManager creates the destination directory destRoot/username and
// returns a manager scoped to it. The username is made filesystem-safe.
func NewManager(destRoot, username string, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	safe, err := filenamify.Filenamify(username, filenamify.Options{Replacement: "_"})
	if err != nil || safe == "" {
		safe = "user"
	}

	dir := filepath.Join(destRoot, safe)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Manager{dir: dir, logger: log}, nil
}

// Dir returns the destination directory path.
func (m *Manager) Dir() string {
	return m.dir
}

// FileName computes the deterministic name for one media item. Pure: the
// same inputs always produce the same name.
//
//	single image     post_{ordinal:03}_img.{ext}
//	single video     post_{ordinal:03}_video.{ext}
//	carousel image N post_{ordinal:03}_img_{N:02}.{ext}
//	carousel video N post_{ordinal:03}_video_{N:02}.{ext}
func FileName(ordinal int, kind media.Kind, index int, carousel bool, ext string) string {
	tag := "img"
	if kind == media.KindVideo {
		tag = "video"
	}

	if carousel {
		return fmt.Sprintf("post_%03d_%s_%02d.%s", ordinal, tag, index, ext)
	}
	return fmt.Sprintf("post_%03d_%s.%s", ordinal, tag, ext)
}

// PathFor returns the target path for an item of the given post.
func (m *Manager) PathFor(post media.Post, item media.MediaItem, ext string) string {
	return filepath.Join(m.dir, FileName(post.Ordinal, item.Kind, item.Index, post.IsCarousel(), ext))
}

// Extension derives a file extension from the resolved source URL, falling
// back to the Content-Type, then to the kind's default (jpg or mp4).
func Extension(sourceURL, contentType string, kind media.Kind) string {
	if u, err := url.Parse(sourceURL); err == nil {
		ext := strings.TrimPrefix(path.Ext(u.Path), ".")
		if isPlausibleExt(ext) {
			return strings.ToLower(ext)
		}
	}

	if contentType != "" {
		ct := contentType
		if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
			ct = parsed
		}
		if ext, ok := extByContentType[ct]; ok {
			return ext
		}
		if exts, err := mime.ExtensionsByType(ct); err == nil && len(exts) > 0 {
			return strings.TrimPrefix(exts[len(exts)-1], ".")
		}
	}

	if kind == media.KindVideo {
		return "mp4"
	}
	return "jpg"
}

// isPlausibleExt accepts short alphanumeric extensions only; CDN URLs
// sometimes end in opaque path segments that are not extensions.
func isPlausibleExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 4 {
		return false
	}
	for _, r := range ext {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

// IsDownloaded reports whether the target path already holds a completed
// download (exists and non-empty). Re-runs skip such items.
func (m *Manager) IsDownloaded(targetPath string) bool {
	info, err := os.Stat(targetPath)
	return err == nil && info.Size() > 0
}

// ExistingPath returns the path of a completed download for the item under
// any extension, or "" when none exists. The extension is refined from the
// Content-Type after the fetch, so a prior run may have stored the item
// under a different extension than the URL suggests.
func (m *Manager) ExistingPath(post media.Post, item media.MediaItem) string {
	prefix := FileName(post.Ordinal, item.Kind, item.Index, post.IsCarousel(), "")

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.TrimPrefix(entry.Name(), prefix)
		// A dot in the remainder means a different item's name or a
		// leftover temporary file.
		if ext == entry.Name() || ext == "" || strings.Contains(ext, ".") {
			continue
		}
		path := filepath.Join(m.dir, entry.Name())
		if m.IsDownloaded(path) {
			return path
		}
	}
	return ""
}

// Save streams r to targetPath through a temporary file, renaming into
// place only on full success. A failed copy never leaves a truncated file
// at the target path.
func (m *Manager) Save(r io.Reader, targetPath string) (int64, error) {
	tempPath := targetPath + ".tmp"

	out, err := os.Create(tempPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}

	n, err := io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempPath)
		return 0, fmt.Errorf("failed to write media data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return 0, fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		os.Remove(tempPath)
		return 0, fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return n, nil
}

// FileCount counts files in the destination directory with any of the
// given extensions (without the dot).
func (m *Manager) FileCount(exts ...string) int {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return 0
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		got := strings.TrimPrefix(filepath.Ext(entry.Name()), ".")
		for _, want := range exts {
			if strings.EqualFold(got, want) {
				count++
				break
			}
		}
	}
	return count
}
