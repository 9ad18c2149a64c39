// Package cache persists scrape snapshots keyed by normalized URL so
// repeated requests for the same page skip a full re-scrape. The store is
// best effort by contract: a miss, a bad file or a write failure never
// surfaces as an error to the caller, who just scrapes fresh.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/webvoice/access-assistant/internal/scrape"
)

const memEntries = 64

type entry struct {
	URL       string          `json:"url"`
	ScrapedAt time.Time       `json:"scraped_at"`
	Data      scrape.Snapshot `json:"data"`
}

type Store struct {
	dir    string
	mem    *lru.Cache[string, scrape.Snapshot]
	logger zerolog.Logger
}

func NewStore(dir string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	mem, err := lru.New[string, scrape.Snapshot](memEntries)
	if err != nil {
		return nil, err
	}
	return &Store{dir: dir, mem: mem, logger: logger}, nil
}

// Get returns the cached snapshot for url, or nil when there is none.
func (s *Store) Get(rawURL string) *scrape.Snapshot {
	key := Key(rawURL)
	if key == "" {
		return nil
	}
	if snap, ok := s.mem.Get(key); ok {
		return &snap
	}
	data, err := os.ReadFile(filepath.Join(s.dir, key))
	if err != nil {
		return nil
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		s.logger.Debug().Str("key", key).Err(err).Msg("discarding unreadable cache entry")
		return nil
	}
	s.mem.Add(key, e.Data)
	return &e.Data
}

// Put stores a snapshot under the url's normalized key. The file write is
// best effort; failures are logged and swallowed.
func (s *Store) Put(rawURL string, snap scrape.Snapshot) {
	key := Key(rawURL)
	if key == "" {
		return
	}
	s.mem.Add(key, snap)

	e := entry{URL: NormalizeURL(rawURL), ScrapedAt: time.Now().UTC(), Data: snap}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(filepath.Join(s.dir, key), data, 0o644); err != nil {
		s.logger.Warn().Str("key", key).Err(err).Msg("cache write failed")
	}
}

// NormalizeURL canonicalizes a URL for cache keying: lowercase scheme and
// host, strip the fragment, default the scheme to https and the path to "/".
func NormalizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "https"
	}
	host := strings.ToLower(u.Host)
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	normalized := scheme + "://" + host + path
	if u.RawQuery != "" {
		normalized += "?" + u.RawQuery
	}
	return normalized
}

// Key derives a safe filename from the normalized URL.
func Key(rawURL string) string {
	normalized := NormalizeURL(rawURL)
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:32] + ".json"
}
