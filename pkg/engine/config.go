// Package engine composes the URL model, header set, connection substrate,
// HTTP codec, body decoder, and redirect controller into the send
// operation, exposed through a Builder → frozen Config → handle pipeline.
package engine

import (
	"crypto/tls"
	"encoding/json"
	"strconv"
	"time"

	"github.com/whileendless/go-rawhttp-core/pkg/constants"
	"github.com/whileendless/go-rawhttp-core/pkg/errors"
	"github.com/whileendless/go-rawhttp-core/pkg/headers"
	"github.com/whileendless/go-rawhttp-core/pkg/transport"
	"github.com/whileendless/go-rawhttp-core/pkg/urlmodel"
)

// managedHeaders are removed from the caller's set and recomputed on every
// send. The one exception is Accept-Encoding: with decoding disabled, a
// caller-set value is kept as is.
var managedHeaders = []string{
	"Host", "Content-Length", "Transfer-Encoding", "Connection", "Accept-Encoding",
	"Upgrade", "Sec-WebSocket-Key", "Sec-WebSocket-Version", "Sec-WebSocket-Protocol",
}

// Builder accumulates request configuration; it is exclusively owned by the
// caller until BuildSync/BuildAsync, which snapshot it into an immutable
// Config.
type Builder struct {
	method   string
	url      string
	isWS     bool
	protocols []string

	headers *headers.Set
	body    []byte

	timeoutMS      int64
	readBufferSize int

	redirectEnabled bool
	maxRedirects    int

	http11Only   bool
	decodeEnabled bool
	charsetHint   string

	proxy *transport.ProxyConfig

	// Passthrough TLS/connection knobs, set via WithX helpers, for callers
	// that need mTLS/SNI/cipher control beyond the base request options.
	insecureTLS      bool
	sni              string
	disableSNI       bool
	connectIP        string
	customCACerts    [][]byte
	clientCertPEM    []byte
	clientKeyPEM     []byte
	clientCertFile   string
	clientKeyFile    string
	tlsConfig        *tls.Config
	minTLSVersion    uint16
	maxTLSVersion    uint16
	tlsRenegotiation tls.RenegotiationSupport
	cipherSuites     []uint16

	err error
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{headers: headers.New(), maxRedirects: constants.DefaultMaxRedirects}
}

func (b *Builder) setMethod(method, url string) *Builder {
	b.method = method
	b.url = url
	return b
}

func (b *Builder) Get(url string) *Builder    { return b.setMethod("GET", url) }
func (b *Builder) Post(url string) *Builder   { return b.setMethod("POST", url) }
func (b *Builder) Put(url string) *Builder    { return b.setMethod("PUT", url) }
func (b *Builder) Delete(url string) *Builder { return b.setMethod("DELETE", url) }
func (b *Builder) Head(url string) *Builder   { return b.setMethod("HEAD", url) }
func (b *Builder) Patch(url string) *Builder  { return b.setMethod("PATCH", url) }

// Connect sets the WebSocket target (ws:// or wss://).
func (b *Builder) Connect(wsURL string) *Builder {
	b.isWS = true
	return b.setMethod("GET", wsURL)
}

// Headers replaces the header set. Managed names are still overwritten on send.
func (b *Builder) Headers(set *headers.Set) *Builder {
	b.headers = set
	return b
}

// JSON sets body to the UTF-8 JSON serialization of v and sets Content-Type
// unless the caller already set one.
func (b *Builder) JSON(v interface{}) *Builder {
	data, err := json.Marshal(v)
	if err != nil {
		b.err = errors.NewValidationError("json: " + err.Error())
		return b
	}
	b.body = data
	if !b.headers.Has("Content-Type") {
		b.headers.Set("Content-Type", "application/json")
	}
	return b
}

// Text sets body to the UTF-8 bytes of s and sets Content-Type unless the
// caller already set one.
func (b *Builder) Text(s string) *Builder {
	b.body = []byte(s)
	if !b.headers.Has("Content-Type") {
		b.headers.Set("Content-Type", "text/plain; charset=utf-8")
	}
	return b
}

// Body sets body to raw bytes with no Content-Type assumption.
func (b *Builder) Body(data []byte) *Builder {
	b.body = data
	return b
}

// Timeout sets the per-send wall deadline in milliseconds.
func (b *Builder) Timeout(ms int64) *Builder {
	b.timeoutMS = ms
	return b
}

// Redirect enables redirect following.
func (b *Builder) Redirect() *Builder {
	b.redirectEnabled = true
	return b
}

// MaxRedirectTimes caps the number of redirect hops (default 8).
func (b *Builder) MaxRedirectTimes(n int) *Builder {
	b.maxRedirects = n
	return b
}

// HTTP11Only forces HTTP/1.1 advertisement — the only version this library
// speaks, so this is purely a documentation-level switch.
func (b *Builder) HTTP11Only() *Builder {
	b.http11Only = true
	return b
}

// Buffer sets the read buffer byte capacity.
func (b *Builder) Buffer(n int) *Builder {
	b.readBufferSize = n
	return b
}

// Decode enables automatic content-encoding decompression on response.
func (b *Builder) Decode() *Builder {
	b.decodeEnabled = true
	return b
}

// CharsetHint overrides the charset used to decode body text.
func (b *Builder) CharsetHint(name string) *Builder {
	b.charsetHint = name
	return b
}

// Protocols sets the offered WebSocket subprotocols.
func (b *Builder) Protocols(list []string) *Builder {
	b.protocols = list
	return b
}

// HTTPProxy routes the request through an unauthenticated HTTP proxy.
func (b *Builder) HTTPProxy(host string, port int) *Builder {
	b.proxy = &transport.ProxyConfig{Type: transport.ProxyHTTP, Host: host, Port: port}
	return b
}

// HTTPProxyAuth routes the request through a Basic-authenticated HTTP proxy.
func (b *Builder) HTTPProxyAuth(host string, port int, user, pass string) *Builder {
	b.proxy = &transport.ProxyConfig{Type: transport.ProxyHTTP, Host: host, Port: port, Username: user, Password: pass}
	return b
}

// SOCKS5Proxy routes the request through an unauthenticated SOCKS5 proxy.
func (b *Builder) SOCKS5Proxy(host string, port int) *Builder {
	b.proxy = &transport.ProxyConfig{Type: transport.ProxySOCKS5, Host: host, Port: port}
	return b
}

// SOCKS5ProxyAuth routes the request through a user/pass-authenticated SOCKS5 proxy.
func (b *Builder) SOCKS5ProxyAuth(host string, port int, user, pass string) *Builder {
	b.proxy = &transport.ProxyConfig{Type: transport.ProxySOCKS5, Host: host, Port: port, Username: user, Password: pass}
	return b
}

// WithInsecureTLS skips certificate verification.
func (b *Builder) WithInsecureTLS() *Builder { b.insecureTLS = true; return b }

// WithSNI overrides the SNI server name.
func (b *Builder) WithSNI(name string) *Builder { b.sni = name; return b }

// WithoutSNI disables the SNI extension entirely.
func (b *Builder) WithoutSNI() *Builder { b.disableSNI = true; return b }

// WithConnectIP bypasses DNS and dials ip directly.
func (b *Builder) WithConnectIP(ip string) *Builder { b.connectIP = ip; return b }

// WithCustomCA adds a PEM-encoded root CA certificate.
func (b *Builder) WithCustomCA(pem []byte) *Builder {
	b.customCACerts = append(b.customCACerts, pem)
	return b
}

// WithClientCertificate configures a PEM-encoded client certificate for mTLS.
func (b *Builder) WithClientCertificate(certPEM, keyPEM []byte) *Builder {
	b.clientCertPEM, b.clientKeyPEM = certPEM, keyPEM
	return b
}

// WithClientCertificateFiles configures a file-backed client certificate for mTLS.
func (b *Builder) WithClientCertificateFiles(certFile, keyFile string) *Builder {
	b.clientCertFile, b.clientKeyFile = certFile, keyFile
	return b
}

// WithTLSConfig passes through a full crypto/tls.Config.
func (b *Builder) WithTLSConfig(cfg *tls.Config) *Builder { b.tlsConfig = cfg; return b }

// WithTLSVersionRange bounds the negotiated TLS version.
func (b *Builder) WithTLSVersionRange(min, max uint16) *Builder {
	b.minTLSVersion, b.maxTLSVersion = min, max
	return b
}

// WithCipherSuites restricts the negotiated cipher suites.
func (b *Builder) WithCipherSuites(suites []uint16) *Builder { b.cipherSuites = suites; return b }

// Config is the immutable, frozen request description produced by build.
type Config struct {
	Method string
	URL    *urlmodel.URL
	IsWS   bool

	Headers *headers.Set
	Body    []byte

	Timeout        time.Duration
	ReadBufferSize int

	RedirectEnabled bool
	MaxRedirects    int

	DecodeEnabled bool
	CharsetHint   string

	Protocols []string

	Transport transport.Config
}

func (b *Builder) freeze() (*Config, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.method == "" || b.url == "" {
		return nil, errors.NewValidationError("no method/URL set on builder")
	}

	u, err := urlmodel.Parse(b.url)
	if err != nil {
		return nil, err
	}
	if b.isWS && !u.IsWebSocket() {
		return nil, errors.NewUnsupportedSchemeError(u.Scheme)
	}

	readBuf := b.readBufferSize
	if readBuf <= 0 {
		readBuf = constants.DefaultReadBufferSize
	}

	timeout := time.Duration(b.timeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = constants.DefaultConnTimeout
	}

	maxRedirects := b.maxRedirects
	if maxRedirects <= 0 {
		maxRedirects = constants.DefaultMaxRedirects
	}

	cfg := &Config{
		Method:          b.method,
		URL:             u,
		IsWS:            b.isWS,
		Headers:         b.headers.Clone(),
		Body:            b.body,
		Timeout:         timeout,
		ReadBufferSize:  readBuf,
		RedirectEnabled: b.redirectEnabled,
		MaxRedirects:    maxRedirects,
		DecodeEnabled:   b.decodeEnabled,
		CharsetHint:     b.charsetHint,
		Protocols:       b.protocols,
		Transport: transport.Config{
			Scheme:           u.Scheme,
			Host:             u.Host,
			Port:             u.Port,
			ConnectIP:        b.connectIP,
			SNI:              b.sni,
			DisableSNI:       b.disableSNI,
			InsecureTLS:      b.insecureTLS,
			ConnTimeout:      timeout,
			Proxy:            b.proxy,
			CustomCACerts:    b.customCACerts,
			ClientCertPEM:    b.clientCertPEM,
			ClientKeyPEM:     b.clientKeyPEM,
			ClientCertFile:   b.clientCertFile,
			ClientKeyFile:    b.clientKeyFile,
			TLSConfig:        b.tlsConfig,
			MinTLSVersion:    b.minTLSVersion,
			MaxTLSVersion:    b.maxTLSVersion,
			TLSRenegotiation: b.tlsRenegotiation,
			CipherSuites:     b.cipherSuites,
		},
	}

	return cfg, nil
}

// BuildSync freezes the builder and returns a synchronous handle.
func (b *Builder) BuildSync() (*Handle, error) {
	cfg, err := b.freeze()
	if err != nil {
		return nil, err
	}
	return &Handle{cfg: cfg}, nil
}

// BuildAsync freezes the builder and returns a cooperative-async handle.
func (b *Builder) BuildAsync() (*AsyncHandle, error) {
	cfg, err := b.freeze()
	if err != nil {
		return nil, err
	}
	return &AsyncHandle{cfg: cfg}, nil
}

// overlayManagedHeaders clones base, overwrites the reserved names with
// values computed for this send, and returns the result. It never mutates
// base, so the caller's original header set survives across redirect hops.
func overlayManagedHeaders(base *headers.Set, method string, u *urlmodel.URL, body []byte, chunked bool, decodeEnabled bool) *headers.Set {
	origAcceptEncoding, hadAcceptEncoding := base.Get("Accept-Encoding")

	h := base.Clone()
	for _, name := range managedHeaders {
		h.Del(name)
	}

	h.Set("Host", u.HostPort())

	if chunked {
		h.Set("Transfer-Encoding", "chunked")
	} else if len(body) > 0 || (method != "GET" && method != "HEAD") {
		h.Set("Content-Length", strconv.Itoa(len(body)))
	}

	if decodeEnabled {
		h.Set("Accept-Encoding", "gzip, deflate, br, zstd")
	} else if hadAcceptEncoding {
		h.Set("Accept-Encoding", origAcceptEncoding)
	}

	return h
}
