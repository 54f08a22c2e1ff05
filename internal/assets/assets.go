// Package assets loads static JSON, GeoJSON and CSV inputs from a local
// path, an http(s) URL or an ftp URL.
package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/lox/ecocast/internal/httputil"
)

const ftpTimeout = 30 * time.Second

type Loader struct {
	client *http.Client
}

func NewLoader() *Loader {
	return &Loader{client: httputil.NewClient()}
}

// Open returns a reader for the asset at location. The caller closes it.
func (l *Loader) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return l.openHTTP(ctx, location)
	case strings.HasPrefix(location, "ftp://"):
		return openFTP(ctx, location)
	default:
		f, err := os.Open(strings.TrimPrefix(location, "file://"))
		if err != nil {
			return nil, fmt.Errorf("open asset: %w", err)
		}
		return f, nil
	}
}

// ReadAll reads the whole asset at location.
func (l *Loader) ReadAll(ctx context.Context, location string) ([]byte, error) {
	rc, err := l.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read asset %s: %w", location, err)
	}
	return data, nil
}

func (l *Loader) openHTTP(ctx context.Context, location string) (io.ReadCloser, error) {
	req, err := httputil.NewGetRequest(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch asset: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch asset %s: status %d", location, resp.StatusCode)
	}
	return resp.Body, nil
}

type ftpReader struct {
	*ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpReader) Close() error {
	err := r.Response.Close()
	if qerr := r.conn.Quit(); err == nil {
		err = qerr
	}
	return err
}

func openFTP(ctx context.Context, location string) (io.ReadCloser, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse ftp url: %w", err)
	}
	host := u.Host
	if u.Port() == "" {
		host += ":21"
	}

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(ftpTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		conn.Quit()
		return nil, fmt.Errorf("ftp retr %s: %w", u.Path, err)
	}
	return &ftpReader{Response: resp, conn: conn}, nil
}
