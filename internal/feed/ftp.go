package feed

import (
	"context"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures the FTP fetcher.
type FTPOptions struct {
	Timeout  time.Duration
	MaxBytes int64
}

// FTPFetcher downloads feeds published on FTP servers.
type FTPFetcher struct {
	opts FTPOptions
}

// NewFTPFetcher creates an FTPFetcher; zero options take defaults.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 512 << 20
	}
	return &FTPFetcher{opts: opts}
}

type ftpTarget struct {
	host     string
	path     string
	user     string
	password string
}

// parseFTPURL extracts host:port, path and credentials. Missing credentials
// mean an anonymous login.
func parseFTPURL(rawURL string) (ftpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ftpTarget{}, eris.Wrap(err, "parse ftp url")
	}
	if u.Scheme != "ftp" {
		return ftpTarget{}, eris.Errorf("expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return ftpTarget{}, eris.New("empty path in ftp url")
	}

	t := ftpTarget{host: u.Host, path: u.Path, user: "anonymous", password: "anonymous@"}
	if _, _, splitErr := net.SplitHostPort(t.host); splitErr != nil {
		t.host = net.JoinHostPort(t.host, "21")
	}
	if u.User != nil {
		t.user = u.User.Username()
		t.password, _ = u.User.Password()
	}
	return t, nil
}

// Fetch retrieves the file at an ftp:// URL.
func (f *FTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	t, err := parseFTPURL(rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	zap.L().Debug("feed: ftp connecting", zap.String("host", t.host), zap.String("path", t.path))

	conn, err := ftp.Dial(t.host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: eris.Wrap(err, "ftp dial")}
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(t.user, t.password); err != nil {
		return nil, &FetchError{URL: rawURL, Err: eris.Wrap(err, "ftp login")}
	}

	resp, err := conn.Retr(t.path)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: eris.Wrap(err, "ftp retrieve")}
	}
	defer resp.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp, f.opts.MaxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: eris.Wrap(err, "ftp read")}
	}
	if int64(len(data)) > f.opts.MaxBytes {
		return nil, &FetchError{URL: rawURL, Err: eris.Errorf("file exceeds %d bytes", f.opts.MaxBytes)}
	}
	return data, nil
}
