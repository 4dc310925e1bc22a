// Package feed retrieves publisher feeds over HTTP or FTP and decodes them
// into raw mission records.
package feed

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rotisserie/eris"
)

// FetchError reports an unreachable feed or a non-2xx response.
// StatusCode is 0 when no response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("feed: fetch %s: status %d: %v", redact(e.URL), e.StatusCode, e.Err)
	}
	return fmt.Sprintf("feed: fetch %s: %v", redact(e.URL), e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a feed that is not well-formed XML.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "feed: parse: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// redact hides credentials embedded in a feed URL.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Redacted()
}

// Fetcher dispatches on the URL scheme.
type Fetcher struct {
	HTTP *HTTPFetcher
	FTP  *FTPFetcher
}

// NewFetcher builds a Fetcher with both transports.
func NewFetcher(httpOpts HTTPOptions, ftpOpts FTPOptions) *Fetcher {
	return &Fetcher{HTTP: NewHTTPFetcher(httpOpts), FTP: NewFTPFetcher(ftpOpts)}
}

// Fetch downloads the feed at rawURL. headers apply to HTTP only.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: eris.Wrap(err, "parse url")}
	}
	switch u.Scheme {
	case "http", "https":
		return f.HTTP.Fetch(ctx, rawURL, headers)
	case "ftp":
		return f.FTP.Fetch(ctx, rawURL)
	}
	return nil, &FetchError{URL: rawURL, Err: eris.Errorf("unsupported scheme %q", u.Scheme)}
}
