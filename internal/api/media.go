package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"sourcectl/internal/storage"
)

const (
	iconDir         = "source-icons"
	maxIconBytes    = 5 << 20
	mediaURLPrefix  = "/media/"
	iconPermissions = 0o644
)

var iconExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".svg": true, ".webp": true, ".ico": true,
}

// MediaStore keeps uploaded source icons on local disk and serves them
// under /media/.
type MediaStore struct {
	root string
}

// NewMediaStore creates dir if needed.
func NewMediaStore(dir string) (*MediaStore, error) {
	if dir == "" {
		return nil, errors.New("media directory required")
	}
	if err := os.MkdirAll(filepath.Join(dir, iconDir), 0o755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	return &MediaStore{root: dir}, nil
}

// Check verifies the icon directory is still writable.
func (m *MediaStore) Check() error {
	f, err := os.CreateTemp(filepath.Join(m.root, iconDir), ".writecheck-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// Handler serves stored media.
func (m *MediaStore) Handler() http.Handler {
	return http.FileServer(http.Dir(m.root))
}

// SaveIcon stores the icon for slug, replacing any earlier one, and
// returns the URL the icon is served from.
func (m *MediaStore) SaveIcon(slug, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !iconExtensions[ext] {
		return "", fmt.Errorf("unsupported icon type %q: %w", ext, storage.ErrValidation)
	}
	if err := m.RemoveIcon(slug); err != nil {
		return "", err
	}
	name := slug + ext
	dst := filepath.Join(m.root, iconDir, name)
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, iconPermissions)
	if err != nil {
		return "", fmt.Errorf("create icon: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(r, maxIconBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > maxIconBytes {
		err = fmt.Errorf("icon exceeds %d bytes: %w", maxIconBytes, storage.ErrValidation)
	}
	if err != nil {
		_ = os.Remove(dst)
		return "", err
	}
	return path.Join(mediaURLPrefix, iconDir, name), nil
}

// RemoveIcon deletes every stored icon for slug. Missing files are not an error.
func (m *MediaStore) RemoveIcon(slug string) error {
	for ext := range iconExtensions {
		err := os.Remove(filepath.Join(m.root, iconDir, slug+ext))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove icon: %w", err)
		}
	}
	return nil
}

// RemoveURL deletes the file behind an icon URL returned by SaveIcon.
// URLs this store does not own are ignored.
func (m *MediaStore) RemoveURL(iconURL string) error {
	if !m.Owns(iconURL) {
		return nil
	}
	name := path.Base(iconURL)
	if name == "." || name == "/" || strings.HasPrefix(name, "..") {
		return nil
	}
	err := os.Remove(filepath.Join(m.root, iconDir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove icon: %w", err)
	}
	return nil
}

// Owns reports whether iconURL points at a file in this store.
func (m *MediaStore) Owns(iconURL string) bool {
	return strings.HasPrefix(iconURL, mediaURLPrefix+iconDir+"/")
}
