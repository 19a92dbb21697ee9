// Package origin retrieves granule assets from the origin download service
// with authenticated redirect resolution and bounded reconnect retries.
package origin

import (
	"context"
	goerrors "errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/snowstore/internal/errors"
)

const (
	maxRetries     = 5
	initialBackoff = time.Second
)

// Fetcher performs authenticated HTTP retrieval. The origin replies to an
// authenticated request with a chain of redirects through its login
// service; the chain is followed manually so that credentials are re-sent
// on every hop and loops can be detected.
type Fetcher struct {
	client     *http.Client
	username   string
	password   string
	quiet      bool
	maxRetries int
	backoff    time.Duration
}

// NewFetcher creates a fetcher holding the given credential pair.
func NewFetcher(username, password string, quiet bool) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			// redirects are followed manually in fetchOnce
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		username:   username,
		password:   password,
		quiet:      quiet,
		maxRetries: maxRetries,
		backoff:    initialBackoff,
	}
}

// Fetch streams the body at fetchURL to sink. Transport-level connection
// failures, including a reset in the middle of the body, are retried up to
// maxRetries with a doubling backoff; redirect loops and bad statuses are
// terminal because retrying cannot fix bad credentials. Before a retry the
// sink is rewound to empty so the failed attempt's partial bytes are
// overwritten; a sink that cannot be rewound fails permanently once bytes
// have reached it.
func (f *Fetcher) Fetch(ctx context.Context, fetchURL string, sink io.Writer) error {
	backoff := f.backoff
	counting := &countingWriter{w: sink}
	for attempt := 0; ; attempt++ {
		counting.n = 0
		err := f.fetchOnce(ctx, fetchURL, counting)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		if attempt >= f.maxRetries {
			log.Errorf("giving up on %s after %d attempts: %v", fetchURL, attempt+1, err)
			return errors.ErrRetriesExhausted
		}
		if counting.n > 0 && !rewind(sink) {
			log.Errorf("cannot rewind sink after partial write of %s: %v", fetchURL, err)
			return err
		}

		log.Warnf("connection failure fetching %s (attempt %d): %v", fetchURL, attempt+1, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// fetchOnce resolves the redirect chain and streams one response body.
func (f *Fetcher) fetchOnce(ctx context.Context, fetchURL string, sink io.Writer) error {
	seen := map[string]bool{}
	current := fetchURL

	for {
		// the same URL appearing twice means the login service is
		// bouncing us back rather than redirecting forward
		if seen[current] {
			return errors.ErrRedirectLoop
		}
		seen[current] = true

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return err
		}
		req.SetBasicAuth(f.username, f.password)

		resp, err := f.client.Do(req)
		if err != nil {
			return &transientError{err}
		}

		switch {
		case resp.StatusCode >= 300 && resp.StatusCode < 400:
			location := resp.Header.Get("Location")
			resp.Body.Close()
			if location == "" {
				return errors.BadStatusError(current, resp.StatusCode)
			}
			next, err := resolveLocation(current, location)
			if err != nil {
				return err
			}
			log.Debugf("redirected %s -> %s", current, next)
			current = next

		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			err := f.stream(resp, sink)
			resp.Body.Close()
			return err

		default:
			resp.Body.Close()
			return errors.BadStatusError(current, resp.StatusCode)
		}
	}
}

func (f *Fetcher) stream(resp *http.Response, sink io.Writer) error {
	var body io.Reader = resp.Body
	if !f.quiet && resp.ContentLength > 0 {
		bar := progressbar.DefaultBytes(resp.ContentLength, "downloading")
		pbReader := progressbar.NewReader(resp.Body, bar)
		body = &pbReader
	}
	// a reset while the body streams is the same connection failure as a
	// reset before it
	if _, err := io.Copy(sink, body); err != nil {
		return &transientError{err}
	}
	return nil
}

// rewind truncates the sink back to empty so a retried attempt does not
// append to partial bytes. Reports whether the rewind happened.
func rewind(sink io.Writer) bool {
	seeker, ok := sink.(io.Seeker)
	if !ok {
		return false
	}
	truncater, ok := sink.(interface{ Truncate(size int64) error })
	if !ok {
		return false
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return false
	}
	return truncater.Truncate(0) == nil
}

// countingWriter tracks whether any bytes reached the underlying sink.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func resolveLocation(current, location string) (string, error) {
	base, err := url.Parse(current)
	if err != nil {
		return "", err
	}
	next, err := base.Parse(location)
	if err != nil {
		return "", err
	}
	return next.String(), nil
}

// transientError marks connection-level failures that are worth retrying.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var te *transientError
	return goerrors.As(err, &te)
}
