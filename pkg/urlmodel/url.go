// Package urlmodel provides the normalized URL view consumed by the rest of
// go-rawhttp-core. Lexical parsing is delegated to net/url; this package
// only adds the scheme/port defaulting and rendering rules a raw
// HTTP/WebSocket client needs.
package urlmodel

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/whileendless/go-rawhttp-core/pkg/errors"
)

// defaultPorts maps a supported scheme to its default port.
var defaultPorts = map[string]int{
	"http":  80,
	"https": 443,
	"ws":    80,
	"wss":   443,
}

// URL is the normalized view: scheme/host/port/path/query/userinfo.
// Invariant: Scheme and Port are always populated after Parse succeeds.
type URL struct {
	Scheme   string
	Host     string // DNS name, IPv4 literal, or bracketed IPv6 literal (without brackets stored here)
	Port     int
	Path     string
	Query    string
	Userinfo string // "user:pass", empty if absent

	isIPv6 bool
}

// Parse normalizes raw into a URL, defaulting path to "/" and port to the
// scheme's default when omitted.
func Parse(raw string) (*URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.NewInvalidURLError(raw, err)
	}
	if u.Scheme == "" {
		return nil, errors.NewInvalidURLError(raw, fmt.Errorf("missing scheme"))
	}
	scheme := strings.ToLower(u.Scheme)
	if _, ok := defaultPorts[scheme]; !ok {
		return nil, errors.NewUnsupportedSchemeError(scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.NewInvalidURLError(raw, fmt.Errorf("missing host"))
	}

	out := &URL{
		Scheme: scheme,
		Host:   u.Hostname(),
		Path:   u.EscapedPath(),
		Query:  u.RawQuery,
	}
	out.isIPv6 = strings.Contains(out.Host, ":")

	if out.Path == "" {
		out.Path = "/"
	}

	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil || p <= 0 || p > 65535 {
			return nil, errors.NewInvalidURLError(raw, fmt.Errorf("invalid port %q", portStr))
		}
		out.Port = p
	} else {
		out.Port = defaultPorts[scheme]
	}

	if u.User != nil {
		if pass, ok := u.User.Password(); ok {
			out.Userinfo = u.User.Username() + ":" + pass
		} else {
			out.Userinfo = u.User.Username()
		}
	}

	return out, nil
}

// IsSecure reports whether the scheme requires a TLS-wrapped connection.
func (u *URL) IsSecure() bool {
	return u.Scheme == "https" || u.Scheme == "wss"
}

// IsWebSocket reports whether the scheme is ws/wss.
func (u *URL) IsWebSocket() bool {
	return u.Scheme == "ws" || u.Scheme == "wss"
}

// hostLiteral renders Host, bracketing it if it is an IPv6 literal.
func (u *URL) hostLiteral() string {
	if u.isIPv6 && !strings.HasPrefix(u.Host, "[") {
		return "[" + u.Host + "]"
	}
	return u.Host
}

// HostPort renders "host[:port]", omitting the port when it matches the
// scheme default — this is what the managed Host header consumes. The TLS
// SNI name is the bare Host, without a port.
func (u *URL) HostPort() string {
	if u.Port == defaultPorts[u.Scheme] {
		return u.hostLiteral()
	}
	return net.JoinHostPort(u.hostLiteral(), strconv.Itoa(u.Port))
}

// RequestTarget renders the origin-form request-target ("/path?query").
func (u *URL) RequestTarget() string {
	if u.Query != "" {
		return u.Path + "?" + u.Query
	}
	return u.Path
}

// AbsoluteForm renders the absolute-form request-target used when proxying
// plain-http/ws traffic through an HTTP proxy.
func (u *URL) AbsoluteForm() string {
	return fmt.Sprintf("%s://%s%s", u.httpScheme(), u.HostPort(), u.RequestTarget())
}

// HTTPScheme maps ws/wss to their http/https equivalents for wire purposes.
func (u *URL) HTTPScheme() string {
	return u.httpScheme()
}

// httpScheme maps ws/wss to their http/https equivalents for wire purposes.
func (u *URL) httpScheme() string {
	switch u.Scheme {
	case "ws":
		return "http"
	case "wss":
		return "https"
	default:
		return u.Scheme
	}
}

// String renders the full URL.
func (u *URL) String() string {
	s := fmt.Sprintf("%s://%s%s", u.Scheme, u.HostPort(), u.RequestTarget())
	return s
}

// ResolveReference resolves a Location header value against u per RFC 3986
// reference resolution.
func (u *URL) ResolveReference(location string) (*URL, error) {
	base, err := url.Parse(u.String())
	if err != nil {
		return nil, errors.NewRedirectError(errors.CodeMalformedRedirect, "current URL failed to reparse")
	}
	ref, err := url.Parse(location)
	if err != nil {
		return nil, errors.NewRedirectError(errors.CodeMalformedRedirect, fmt.Sprintf("invalid Location header: %v", err))
	}
	resolved := base.ResolveReference(ref)
	return Parse(resolved.String())
}

// Equal reports whether two URLs are the same normalized resource — used by
// the redirect controller's visited-set loop detection.
func (u *URL) Equal(other *URL) bool {
	if u == nil || other == nil {
		return u == other
	}
	return u.Scheme == other.Scheme &&
		strings.EqualFold(u.Host, other.Host) &&
		u.Port == other.Port &&
		u.Path == other.Path &&
		u.Query == other.Query
}
