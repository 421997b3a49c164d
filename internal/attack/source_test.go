package attack

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCache struct {
	data   map[string][]byte
	ttl    time.Duration
	getErr error
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (m *memCache) Get(_ context.Context, domain string) ([]byte, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	d, ok := m.data[domain]
	return d, ok, nil
}

func (m *memCache) Set(_ context.Context, domain string, data []byte, ttl time.Duration) error {
	m.data[domain] = data
	m.ttl = ttl
	return nil
}

func bundleServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	body := mustRead(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/enterprise-attack/enterprise-attack.json" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestSourceHTTPThenCache(t *testing.T) {
	srv, hits := bundleServer(t)
	cache := newMemCache()
	src := NewSource(srv.URL+"/{domain}/{domain}.json", time.Hour, cache)

	c, origin, err := src.Load(context.Background(), Enterprise)
	require.NoError(t, err)
	assert.Equal(t, OriginHTTP, origin)
	assert.Len(t, c.Mitigations(), 4)
	assert.Equal(t, time.Hour, cache.ttl)
	assert.Contains(t, cache.data, "enterprise-attack")

	_, origin, err = src.Load(context.Background(), Enterprise)
	require.NoError(t, err)
	assert.Equal(t, OriginCache, origin)
	assert.Equal(t, int32(1), hits.Load())
}

func TestSourceBadCacheFallsThrough(t *testing.T) {
	srv, hits := bundleServer(t)
	cache := newMemCache()
	cache.data["enterprise-attack"] = []byte("corrupt")
	src := NewSource(srv.URL+"/{domain}/{domain}.json", time.Hour, cache)

	_, origin, err := src.Load(context.Background(), Enterprise)
	require.NoError(t, err)
	assert.Equal(t, OriginHTTP, origin)
	assert.Equal(t, int32(1), hits.Load())

	cache.getErr = errors.New("connection refused")
	_, origin, err = src.Load(context.Background(), Enterprise)
	require.NoError(t, err)
	assert.Equal(t, OriginHTTP, origin)
}

func TestSourceHTTPError(t *testing.T) {
	srv, _ := bundleServer(t)
	src := NewSource(srv.URL+"/{domain}/{domain}.json", time.Hour, nil)
	_, _, err := src.Load(context.Background(), Mobile)
	assert.Error(t, err)
}

func TestSourceFile(t *testing.T) {
	abs, err := filepath.Abs("testdata")
	require.NoError(t, err)
	cache := newMemCache()
	src := NewSource("file://"+abs+"/{domain}.json", time.Hour, cache)

	c, origin, err := src.Load(context.Background(), Enterprise)
	require.NoError(t, err)
	assert.Equal(t, OriginFile, origin)
	assert.Equal(t, Enterprise, c.Domain())
	assert.Empty(t, cache.data, "local files are not cached")

	assert.Equal(t, abs+"/ics-attack.json", src.Location(ICS)[len("file://"):])
	_, _, err = src.Load(context.Background(), ICS)
	assert.Error(t, err)
}
