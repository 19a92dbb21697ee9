package origin

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzenonn/snowstore/internal/errors"
)

func newTestFetcher() *Fetcher {
	f := NewFetcher("user", "pass", true)
	f.backoff = time.Millisecond
	return f
}

func TestFetcher_FollowsRedirectChain(t *testing.T) {
	var sawAuth bool
	mux := http.NewServeMux()
	mux.HandleFunc("/granule.hdf", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/data/granule.hdf", http.StatusFound)
	})
	mux.HandleFunc("/data/granule.hdf", func(w http.ResponseWriter, r *http.Request) {
		_, _, sawAuth = r.BasicAuth()
		w.Write([]byte("granule bytes"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	var sink bytes.Buffer
	err := newTestFetcher().Fetch(context.Background(), server.URL+"/granule.hdf", &sink)
	require.NoError(t, err)
	assert.Equal(t, "granule bytes", sink.String())
	assert.True(t, sawAuth, "credentials must be re-sent on every hop")
}

// A redirect back to a URL already visited means the login service is
// rejecting the credentials; this must fail immediately, not retry.
func TestFetcher_RedirectLoopIsFatal(t *testing.T) {
	attempts := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/granule.hdf", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Redirect(w, r, "/login", http.StatusFound)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/granule.hdf", http.StatusFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	var sink bytes.Buffer
	err := newTestFetcher().Fetch(context.Background(), server.URL+"/granule.hdf", &sink)
	assert.ErrorIs(t, err, errors.ErrRedirectLoop)
	assert.Equal(t, 1, attempts, "auth failures must not be retried")
	assert.Zero(t, sink.Len())
}

func TestFetcher_BadStatusIsFatal(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	var sink bytes.Buffer
	err := newTestFetcher().Fetch(context.Background(), server.URL+"/granule.hdf", &sink)
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestFetcher_ConnectionFailureRetriesThenExhausts(t *testing.T) {
	// grab a port nothing is listening on
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadURL := "http://" + listener.Addr().String() + "/granule.hdf"
	listener.Close()

	fetcher := newTestFetcher()
	fetcher.maxRetries = 2

	var sink bytes.Buffer
	err = fetcher.Fetch(context.Background(), deadURL, &sink)
	assert.ErrorIs(t, err, errors.ErrRetriesExhausted)
}

// killMidBodyServer sends headers plus half the payload, then drops the
// connection; every later attempt serves the payload fully.
func killMidBodyServer(t *testing.T, payload []byte, attempts *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*attempts++
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		if *attempts == 1 {
			w.Write(payload[:len(payload)/2])
			w.(http.Flusher).Flush()
			conn, _, err := w.(http.Hijacker).Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		w.Write(payload)
	}))
}

// A reset halfway through the body is retried like any other connection
// failure, and the partial bytes of the failed attempt must not survive
// in the sink.
func TestFetcher_MidBodyResetIsRetried(t *testing.T) {
	payload := bytes.Repeat([]byte("granule "), 8192)
	attempts := 0
	server := killMidBodyServer(t, payload, &attempts)
	defer server.Close()

	sink, err := os.Create(filepath.Join(t.TempDir(), "granule.hdf"))
	require.NoError(t, err)

	err = newTestFetcher().Fetch(context.Background(), server.URL+"/granule.hdf", sink)
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	assert.Equal(t, 2, attempts)

	data, err := os.ReadFile(sink.Name())
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

// A sink that cannot be rewound must not be retried once partial bytes
// reached it; retrying would append a second copy of the prefix.
func TestFetcher_PartialWriteToPlainSinkNotRetried(t *testing.T) {
	payload := bytes.Repeat([]byte("granule "), 8192)
	attempts := 0
	server := killMidBodyServer(t, payload, &attempts)
	defer server.Close()

	var sink bytes.Buffer
	err := newTestFetcher().Fetch(context.Background(), server.URL+"/granule.hdf", &sink)
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestFetcher_RecoversAfterTransientFailure(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			// kill the connection without a response
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		w.Write([]byte("granule bytes"))
	}))
	defer server.Close()

	var sink bytes.Buffer
	err := newTestFetcher().Fetch(context.Background(), server.URL+"/granule.hdf", &sink)
	require.NoError(t, err)
	assert.Equal(t, "granule bytes", sink.String())
	assert.Equal(t, 2, attempts)
}
