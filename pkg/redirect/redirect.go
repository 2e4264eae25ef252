// Package redirect implements the redirect-chasing state machine: resolving
// a Location header against the current URL, deciding how the method/body
// must change for the status code, detecting loops, and deciding whether
// Authorization must be stripped. Built on top of net/url.ResolveReference
// for RFC 3986 reference resolution.
package redirect

import (
	"strings"

	"github.com/whileendless/go-rawhttp-core/pkg/errors"
	"github.com/whileendless/go-rawhttp-core/pkg/urlmodel"
)

// Decision is the outcome of following one redirect hop.
type Decision struct {
	NextURL    *urlmodel.URL
	NextMethod string
	DropBody   bool // true when the method rewrite means the body must not be resent
	StripAuth  bool // true when Authorization must be removed before resending
}

// Controller tracks the hop count and visited-URL set across one request's
// redirect chain.
type Controller struct {
	maxRedirects int
	visited      []*urlmodel.URL
	hops         int
}

// NewController returns a Controller allowing up to maxRedirects hops.
func NewController(maxRedirects int) *Controller {
	return &Controller{maxRedirects: maxRedirects}
}

// IsRedirectStatus reports whether statusCode is a redirect this controller
// should act on.
func IsRedirectStatus(statusCode int) bool {
	switch statusCode {
	case 301, 302, 303, 307, 308:
		return true
	default:
		return false
	}
}

// Next resolves location against current and decides the next request shape.
// current is recorded as visited before the hop-count/loop checks, so the
// first call after the original request already counts as hop 1.
func (c *Controller) Next(current *urlmodel.URL, statusCode int, location, method string) (*Decision, error) {
	c.visited = append(c.visited, current)
	c.hops++

	if c.hops > c.maxRedirects {
		return nil, errors.NewRedirectError(errors.CodeTooManyRedirects,
			"exceeded maximum redirect count")
	}

	if location == "" {
		return nil, errors.NewRedirectError(errors.CodeMalformedRedirect, "redirect response has no Location header")
	}

	next, err := current.ResolveReference(location)
	if err != nil {
		return nil, err
	}

	for _, v := range c.visited {
		if v.Equal(next) {
			return nil, errors.NewRedirectError(errors.CodeRedirectLoop,
				"redirect chain revisits a previously seen URL: "+next.String())
		}
	}

	d := &Decision{NextURL: next, NextMethod: method}

	switch statusCode {
	case 301, 302:
		// Legacy browser behavior: POST/PUT/PATCH redirected by 301/302 is
		// replayed as GET with no body; other methods are replayed unchanged.
		if method == "POST" || method == "PUT" || method == "PATCH" {
			d.NextMethod = "GET"
			d.DropBody = true
		}
	case 303:
		// "See Other" always becomes GET, except HEAD stays HEAD.
		if method != "HEAD" {
			d.NextMethod = "GET"
			d.DropBody = true
		}
	case 307, 308:
		// Method and body are replayed exactly.
	}

	d.StripAuth = crossesOrigin(current, next)

	return d, nil
}

// crossesOrigin reports whether Authorization must be stripped because the
// redirect changed host, port, or scheme.
func crossesOrigin(from, to *urlmodel.URL) bool {
	if from == nil || to == nil {
		return true
	}
	return !strings.EqualFold(from.Host, to.Host) || from.Port != to.Port || from.HTTPScheme() != to.HTTPScheme()
}
