// SPDX-License-Identifier: MIT

package petscan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// SiteMatrixBootstrap fetches a fresh site matrix from the wiki farm's API.
// The HTTP call itself is out of scope (§1); implementations typically wrap
// an action=sitematrix request.
type SiteMatrixBootstrap interface {
	FetchSiteMatrix(ctx context.Context) (*SiteMatrix, error)
}

// SiteMatrixSite is one entry of the matrix: a wiki database name mapped to
// its canonical server URL, language code, and text direction.
type SiteMatrixSite struct {
	Wiki      string `json:"wiki"`
	ServerURL string `json:"server_url"`
	Language  string `json:"language"`
	RTL       bool   `json:"rtl"`
}

// SiteMatrix is the cacheable snapshot of the wiki farm's site list (§4.5a).
type SiteMatrix struct {
	Sites []SiteMatrixSite `json:"sites"`

	byWiki      map[string]SiteMatrixSite
	byServerURL map[string]string
	rtlLanguage map[string]bool
}

func (m *SiteMatrix) index() {
	m.byWiki = make(map[string]SiteMatrixSite, len(m.Sites))
	m.byServerURL = make(map[string]string, len(m.Sites))
	m.rtlLanguage = make(map[string]bool, len(m.Sites))
	for _, s := range m.Sites {
		m.byWiki[s.Wiki] = s
		m.byServerURL[s.ServerURL] = s.Wiki
		if s.RTL {
			m.rtlLanguage[s.Language] = true
		}
	}
}

// siteMatrixState lazily loads the cached snapshot (or bootstraps a fresh one if
// missing or stale) and returns it, loading it at most once per process.
func (s *AppState) siteMatrixState(ctx context.Context) (*SiteMatrix, error) {
	var err error
	s.siteMatrixOnce.Do(func() {
		s.siteMatrix, err = s.loadOrBootstrapSiteMatrix(ctx)
	})
	if err != nil {
		return nil, err
	}
	if s.siteMatrix == nil {
		return nil, newRemoteAPIError("petscan: site matrix unavailable")
	}
	return s.siteMatrix, nil
}

func (s *AppState) loadOrBootstrapSiteMatrix(ctx context.Context) (*SiteMatrix, error) {
	if s.cachePath != "" {
		if m, ok := s.readSiteMatrixCache(); ok {
			return m, nil
		}
	}
	if s.bootstrap == nil {
		return nil, newRemoteAPIError("petscan: no site matrix cache and no bootstrap source configured")
	}
	m, err := s.bootstrap.FetchSiteMatrix(ctx)
	if err != nil {
		return nil, newRemoteAPIError("petscan: fetching site matrix: %w", err)
	}
	m.index()
	if s.cachePath != "" {
		if err := s.writeSiteMatrixCache(m); err != nil {
			s.logger.Printf("petscan: failed to cache site matrix: %v", err)
		}
	}
	return m, nil
}

// readSiteMatrixCache reads the zstd-compressed JSON snapshot written by
// writeSiteMatrixCache, rejecting it if older than cacheMaxAge.
func (s *AppState) readSiteMatrixCache() (*SiteMatrix, bool) {
	info, err := os.Stat(s.cachePath)
	if err != nil {
		return nil, false
	}
	if time.Since(info.ModTime()) > s.cacheMaxAge {
		return nil, false
	}

	compressed, err := os.ReadFile(s.cachePath)
	if err != nil {
		return nil, false
	}
	decoder, err := zstd.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, false
	}
	defer decoder.Close()

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, false
	}
	var m SiteMatrix
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	m.index()
	return &m, true
}

// writeSiteMatrixCache atomically replaces the cache file: write to a temp
// file in the same directory, then rename (§4.5a).
func (s *AppState) writeSiteMatrixCache(m *SiteMatrix) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	encoder, err := zstd.NewWriter(&buf)
	if err != nil {
		return err
	}
	if _, err := encoder.Write(raw); err != nil {
		encoder.Close()
		return err
	}
	if err := encoder.Close(); err != nil {
		return err
	}

	dir := filepath.Dir(s.cachePath)
	tmp, err := os.CreateTemp(dir, ".sitematrix-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, s.cachePath)
}

// GetWikiForServerURL resolves a canonical server URL (e.g.
// "https://en.wikipedia.org") to its wiki database name.
func (s *AppState) GetWikiForServerURL(url string) (string, bool) {
	m, err := s.siteMatrixState(context.Background())
	if err != nil {
		return "", false
	}
	wiki, ok := m.byServerURL[url]
	return wiki, ok
}

// GetServerURLForWiki is the inverse of GetWikiForServerURL.
func (s *AppState) GetServerURLForWiki(wiki string) (string, bool) {
	m, err := s.siteMatrixState(context.Background())
	if err != nil {
		return "", false
	}
	site, ok := m.byWiki[wiki]
	if !ok {
		return "", false
	}
	return site.ServerURL, true
}

// IsLanguageRTL reports whether language (a language code, e.g. "ar", not a
// wiki database name) is scripted right-to-left, by scanning the site
// matrix for an entry whose code matches language and whose direction is
// rtl.
func (s *AppState) IsLanguageRTL(language string) bool {
	m, err := s.siteMatrixState(context.Background())
	if err != nil {
		return false
	}
	return m.rtlLanguage[language]
}

// staticSiteMatrixBootstrap serves a fixed, in-memory SiteMatrix. It exists
// so tests and small deployments can avoid a live HTTP dependency.
type staticSiteMatrixBootstrap struct {
	mu sync.Mutex
	m  *SiteMatrix
}

// NewStaticSiteMatrixBootstrap returns a SiteMatrixBootstrap that always
// serves sites, useful for tests and offline tool configuration.
func NewStaticSiteMatrixBootstrap(sites []SiteMatrixSite) SiteMatrixBootstrap {
	m := &SiteMatrix{Sites: sites}
	m.index()
	return &staticSiteMatrixBootstrap{m: m}
}

func (b *staticSiteMatrixBootstrap) FetchSiteMatrix(ctx context.Context) (*SiteMatrix, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &SiteMatrix{Sites: append([]SiteMatrixSite(nil), b.m.Sites...)}, nil
}

var _ fmt.Stringer = (*SiteMatrix)(nil)

// String renders the matrix's size, useful in log lines.
func (m *SiteMatrix) String() string {
	return fmt.Sprintf("SiteMatrix(%d sites)", len(m.Sites))
}
