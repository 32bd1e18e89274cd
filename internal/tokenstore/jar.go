package tokenstore

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
)

// DocumentJar is the client's cookie jar. Besides storing cookies for
// outgoing requests it answers what document.cookie would show on the
// configured origin, which never includes HttpOnly cookies.
type DocumentJar struct {
	jar    *cookiejar.Jar
	origin *url.URL

	mu sync.Mutex
	// httpOnly is keyed by cookie name; the last Set-Cookie wins.
	httpOnly map[string]bool
}

var (
	_ http.CookieJar = (*DocumentJar)(nil)
	_ CookieSource   = (*DocumentJar)(nil)
)

// NewDocumentJar returns an empty jar scoped to origin.
func NewDocumentJar(origin string) (*DocumentJar, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parsing origin: %w", err)
	}

	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("origin %q must be an absolute URL", origin)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	return &DocumentJar{
		jar:      jar,
		origin:   u,
		httpOnly: make(map[string]bool),
	}, nil
}

// SetCookies implements http.CookieJar.
func (d *DocumentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	d.mu.Lock()
	for _, c := range cookies {
		if c.HttpOnly {
			d.httpOnly[c.Name] = true
		} else {
			delete(d.httpOnly, c.Name)
		}
	}
	d.mu.Unlock()

	d.jar.SetCookies(u, cookies)
}

// Cookies implements http.CookieJar.
func (d *DocumentJar) Cookies(u *url.URL) []*http.Cookie {
	return d.jar.Cookies(u)
}

// CookieValue returns the value of a script-visible cookie on the origin.
func (d *DocumentJar) CookieValue(name string) (string, bool) {
	d.mu.Lock()
	hidden := d.httpOnly[name]
	d.mu.Unlock()

	if hidden {
		return "", false
	}

	for _, c := range d.jar.Cookies(d.origin) {
		if c.Name == name {
			return c.Value, true
		}
	}

	return "", false
}
