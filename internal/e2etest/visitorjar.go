package e2etest

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"slices"

	"github.com/myrjola/mavis/internal/errors"
)

// sessionCookieName is the default cookie name of the scs session manager that holds the visitor id.
const sessionCookieName = "session"

// visitorJar keeps the cookies of one visitor. The web server marks its cookies Secure, which the standard jar
// would never send back over the plain http of a test server, so the flag is dropped on the way in.
type visitorJar struct {
	jar *cookiejar.Jar
}

func newVisitorJar() (*visitorJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "new cookie jar")
	}
	return &visitorJar{jar: jar}, nil
}

func (v *visitorJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	for _, cookie := range cookies {
		cookie.Secure = false
	}
	v.jar.SetCookies(u, cookies)
}

func (v *visitorJar) Cookies(u *url.URL) []*http.Cookie {
	return v.jar.Cookies(u)
}

// hasSession reports whether the server has handed out a session cookie for u.
func (v *visitorJar) hasSession(u *url.URL) bool {
	return slices.ContainsFunc(v.jar.Cookies(u), func(c *http.Cookie) bool {
		return c.Name == sessionCookieName
	})
}
