package auth

import (
	"errors"
	"net/http"
)

// Redirect is returned as an error when the request must stop with a redirect.
// Header carries the Set-Cookie produced by a session commit, if any.
type Redirect struct {
	Location string
	Status   int
	Header   http.Header
}

func newRedirect(location, setCookie string) *Redirect {
	r := &Redirect{Location: location, Status: http.StatusFound, Header: http.Header{}}
	if setCookie != "" {
		r.Header.Add("Set-Cookie", setCookie)
	}
	return r
}

func (r *Redirect) Error() string { return "redirect to " + r.Location }

// Write copies the redirect headers onto w and sends the redirect.
func (r *Redirect) Write(w http.ResponseWriter, req *http.Request) {
	for k, vs := range r.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	status := r.Status
	if status == 0 {
		status = http.StatusFound
	}
	http.Redirect(w, req, r.Location, status)
}

// AsRedirect reports whether err is, or wraps, a *Redirect.
func AsRedirect(err error) (*Redirect, bool) {
	var r *Redirect
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
