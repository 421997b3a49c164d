package attack

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/freeeve/secgame/api/internal/logger"
)

// maxBundleSize caps a downloaded bundle; enterprise-attack is ~50MB.
const maxBundleSize = 512 << 20

// Origin says where a catalog was loaded from.
type Origin string

const (
	OriginCache Origin = "cache"
	OriginHTTP  Origin = "http"
	OriginFile  Origin = "file"
)

// Cache stores raw bundles by domain.
type Cache interface {
	Get(ctx context.Context, domain string) ([]byte, bool, error)
	Set(ctx context.Context, domain string, data []byte, ttl time.Duration) error
}

// Source loads catalogs by domain: cache first, then the configured
// location. location is a URL or file path where "{domain}" is replaced
// with the bundle name.
type Source struct {
	location string
	ttl      time.Duration
	cache    Cache
	client   *http.Client
}

// NewSource creates a Source. cache may be nil.
func NewSource(location string, ttl time.Duration, cache Cache) *Source {
	return &Source{
		location: location,
		ttl:      ttl,
		cache:    cache,
		client:   &http.Client{Timeout: 2 * time.Minute},
	}
}

// Location returns the resolved location for a domain.
func (s *Source) Location(domain Domain) string {
	return strings.ReplaceAll(s.location, "{domain}", string(domain))
}

// Load returns the catalog for domain and where it came from. Cache failures
// are logged and fall through to the location; bundles fetched over HTTP are
// written back to the cache.
func (s *Source) Load(ctx context.Context, domain Domain) (*Catalog, Origin, error) {
	log := logger.ForRequest(ctx)

	if s.cache != nil {
		data, ok, err := s.cache.Get(ctx, string(domain))
		switch {
		case err != nil:
			log.Warn().Err(err).Str("domain", string(domain)).Msg("Catalog cache read failed")
		case ok:
			c, perr := ParseBundle(domain, data)
			if perr == nil {
				return c, OriginCache, nil
			}
			log.Warn().Err(perr).Str("domain", string(domain)).Msg("Discarding unparseable cached catalog")
		}
	}

	loc := s.Location(domain)
	var (
		data   []byte
		origin Origin
		err    error
	)
	if strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://") {
		data, err = s.fetch(ctx, loc)
		origin = OriginHTTP
	} else {
		data, err = os.ReadFile(strings.TrimPrefix(loc, "file://"))
		origin = OriginFile
	}
	if err != nil {
		return nil, "", fmt.Errorf("load %s catalog from %s: %w", domain, loc, err)
	}

	c, err := ParseBundle(domain, data)
	if err != nil {
		return nil, "", err
	}

	if s.cache != nil && origin == OriginHTTP {
		if err := s.cache.Set(ctx, string(domain), data, s.ttl); err != nil {
			log.Warn().Err(err).Str("domain", string(domain)).Msg("Catalog cache write failed")
		}
	}
	log.Info().
		Str("domain", string(domain)).
		Str("origin", string(origin)).
		Int("techniques", len(c.techniques)).
		Int("mitigations", len(c.mitigations)).
		Int("edges", len(c.edges)).
		Msg("Catalog loaded")
	return c, origin, nil
}

func (s *Source) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBundleSize))
}
