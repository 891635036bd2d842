package brandfetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/couchcryptid/fuel-price-etl/internal/adapter/lookup"
)

const maxLogoBytes = 5 << 20

// FileStore saves logos as <dir>/<brand-slug><ext>. A logo saved by an
// earlier run is reused.
type FileStore struct {
	dir        string
	httpClient *http.Client
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string, timeout time.Duration) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create logo dir: %w", err)
	}
	return &FileStore{dir: dir, httpClient: &http.Client{Timeout: timeout}}, nil
}

// Stored returns the first file named after the brand's slug.
func (s *FileStore) Stored(brand string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(s.dir, slug(brand)+".*"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	return matches[0], true
}

// Save downloads imageURL. The extension comes from the response content
// type, then the URL path, then defaults to .jpg.
func (s *FileStore) Save(ctx context.Context, brand, imageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("logo download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", lookup.StatusError("logo download", resp)
	}

	dst := filepath.Join(s.dir, slug(brand)+extension(resp.Header.Get("Content-Type"), imageURL))
	tmp, err := os.CreateTemp(s.dir, ".logo-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, maxLogoBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("write logo: %w", err)
	}
	if n > maxLogoBytes {
		return "", fmt.Errorf("logo for %q exceeds %d bytes", brand, maxLogoBytes)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("write logo: %w", err)
	}
	return dst, nil
}

func extension(contentType, imageURL string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mt {
		case "image/jpeg":
			return ".jpg"
		case "image/png":
			return ".png"
		case "image/svg+xml":
			return ".svg"
		case "image/webp":
			return ".webp"
		}
	}
	if u, err := url.Parse(imageURL); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	return ".jpg"
}

// slug lowercases brand and replaces every run of other characters with
// one hyphen. Names with no letters or digits map to "brand".
func slug(brand string) string {
	var b strings.Builder
	hyphen := false
	for _, r := range strings.ToLower(brand) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			hyphen = false
			continue
		}
		if !hyphen && b.Len() > 0 {
			b.WriteByte('-')
			hyphen = true
		}
	}
	if out := strings.TrimSuffix(b.String(), "-"); out != "" {
		return out
	}
	return "brand"
}
