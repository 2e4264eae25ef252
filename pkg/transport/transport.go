// Package transport implements the connection substrate: dialing a raw or
// TLS-wrapped byte stream to a target, optionally through an HTTP CONNECT
// or SOCKS5 proxy. Each dial is independent — there is no connection pool
// or keep-alive reuse across Connect calls.
package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/whileendless/go-rawhttp-core/pkg/errors"
	"github.com/whileendless/go-rawhttp-core/pkg/timing"
	"github.com/whileendless/go-rawhttp-core/pkg/tlsconfig"
	netproxy "golang.org/x/net/proxy"
)

// ProxyType enumerates the supported upstream proxy protocols. "https"
// (CONNECT-over-TLS-to-proxy) shares the same dial path as "http".
type ProxyType string

const (
	ProxyNone   ProxyType = ""
	ProxyHTTP   ProxyType = "http"
	ProxyHTTPS  ProxyType = "https"
	ProxySOCKS5 ProxyType = "socks5"
)

// ProxyConfig configures an upstream proxy dial.
type ProxyConfig struct {
	Type     ProxyType
	Host     string
	Port     int
	Username string
	Password string

	// ProxyHeaders are extra headers sent in the HTTP CONNECT request
	// (Type=http/https only).
	ProxyHeaders map[string]string

	// TLSConfig configures the TLS session to the proxy itself (Type=https
	// only) — distinct from Config.TLSConfig, which is for the target.
	TLSConfig *tls.Config
}

func (p *ProxyConfig) addr() string {
	port := p.Port
	if port == 0 {
		switch p.Type {
		case ProxyHTTP:
			port = 8080
		case ProxyHTTPS:
			port = 443
		case ProxySOCKS5:
			port = 1080
		}
	}
	return net.JoinHostPort(p.Host, strconv.Itoa(port))
}

// Config holds transport configuration for a single dial.
type Config struct {
	Scheme    string // "http", "https", "ws", or "wss"
	Host      string
	Port      int
	ConnectIP string // bypasses DNS when set

	SNI        string
	DisableSNI bool

	InsecureTLS bool

	ConnTimeout time.Duration
	DNSTimeout  time.Duration

	Proxy *ProxyConfig

	CustomCACerts [][]byte

	ClientCertPEM  []byte
	ClientKeyPEM   []byte
	ClientCertFile string
	ClientKeyFile  string

	TLSConfig *tls.Config

	MinTLSVersion    uint16
	MaxTLSVersion    uint16
	TLSRenegotiation tls.RenegotiationSupport
	CipherSuites     []uint16
}

// isSecure reports whether Scheme requires TLS.
func (c Config) isSecure() bool {
	return c.Scheme == "https" || c.Scheme == "wss"
}

// Metadata describes an established connection: socket, TLS, and proxy
// diagnostics surfaced on the response.
type Metadata struct {
	ConnectedIP   string
	ConnectedPort int

	LocalAddr  string
	RemoteAddr string

	TLSVersion     string
	TLSCipherSuite string
	TLSServerName  string
	TLSSessionID   string
	TLSResumed     bool

	ProxyUsed bool
	ProxyType string
	ProxyAddr string

	// UseAbsoluteForm tells the HTTP codec to emit an absolute-form
	// request-target: true exactly when proxying plain http/ws traffic
	// through an HTTP proxy.
	UseAbsoluteForm bool
}

// Transport dials connections per Config. It holds no state across dials —
// each Connect is independent.
type Transport struct {
	resolver *net.Resolver
}

// New returns a Transport using the default resolver.
func New() *Transport {
	return &Transport{resolver: net.DefaultResolver}
}

// NewWithResolver returns a Transport using a custom resolver (useful for
// tests that stub DNS).
func NewWithResolver(resolver *net.Resolver) *Transport {
	return &Transport{resolver: resolver}
}

// Connect establishes a connection per Config, applying a single wall-clock
// deadline to the address resolution, proxy dialog, and TLS handshake.
func (t *Transport) Connect(ctx context.Context, config Config, timer *timing.Timer) (net.Conn, *Metadata, error) {
	if err := t.validateConfig(config); err != nil {
		return nil, nil, err
	}

	connTimeout := config.ConnTimeout
	if connTimeout <= 0 {
		connTimeout = 10 * time.Second
	}
	deadline := time.Now().Add(connTimeout)
	if dl, ok := ctx.Deadline(); !ok || dl.After(deadline) {
		ctx, _ = context.WithDeadline(ctx, deadline)
	}

	meta := &Metadata{}

	var dialAddr string
	var err error
	if config.Proxy != nil && config.Proxy.Type != ProxyNone && config.ConnectIP == "" {
		// The proxy resolves the target name itself.
		dialAddr = net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	} else {
		dialAddr, err = t.resolveAddress(ctx, config, timer)
		if err != nil {
			return nil, nil, err
		}
	}
	host, portStr, _ := net.SplitHostPort(dialAddr)
	meta.ConnectedIP = host
	if p, err := strconv.Atoi(portStr); err == nil {
		meta.ConnectedPort = p
	}

	var conn net.Conn

	if config.Proxy != nil && config.Proxy.Type != ProxyNone {
		conn, err = t.connectViaProxy(ctx, config, dialAddr, deadline, timer, meta)
		if err != nil {
			return nil, nil, err
		}
	} else {
		conn, err = t.connectTCP(ctx, dialAddr, timer)
		if err != nil {
			return nil, nil, errors.NewConnectionError(config.Host, config.Port, err)
		}
	}

	if conn.LocalAddr() != nil {
		meta.LocalAddr = conn.LocalAddr().String()
	}
	if conn.RemoteAddr() != nil {
		meta.RemoteAddr = conn.RemoteAddr().String()
	}

	if config.isSecure() {
		conn, err = t.upgradeTLS(ctx, conn, config, timer, meta)
		if err != nil {
			if conn != nil {
				conn.Close()
			}
			return nil, nil, errors.NewTLSError(config.Host, config.Port, err)
		}
	}

	return conn, meta, nil
}

func (t *Transport) validateConfig(config Config) error {
	if config.Host == "" {
		return errors.NewValidationError("host cannot be empty")
	}
	if config.Port <= 0 || config.Port > 65535 {
		return errors.NewValidationError("port must be between 1 and 65535")
	}
	switch config.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return errors.NewUnsupportedSchemeError(config.Scheme)
	}
	if config.DisableSNI && config.SNI != "" {
		return errors.NewValidationError("cannot set both DisableSNI=true and SNI (conflicting options)")
	}
	return nil
}

func (t *Transport) resolveAddress(ctx context.Context, config Config, timer *timing.Timer) (string, error) {
	if config.ConnectIP != "" {
		return net.JoinHostPort(config.ConnectIP, strconv.Itoa(config.Port)), nil
	}

	timer.StartDNS()
	defer timer.EndDNS()

	dnsTimeout := config.DNSTimeout
	if dnsTimeout <= 0 {
		dnsTimeout = config.ConnTimeout
	}
	if dnsTimeout <= 0 {
		dnsTimeout = 5 * time.Second
	}

	lookupCtx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	addrs, err := t.resolver.LookupIPAddr(lookupCtx, config.Host)
	if err != nil {
		return "", errors.NewDNSError(config.Host, err)
	}
	if len(addrs) == 0 {
		return "", errors.NewDNSError(config.Host, fmt.Errorf("no IP addresses found"))
	}

	ip := addrs[0].IP.String()
	return net.JoinHostPort(ip, strconv.Itoa(config.Port)), nil
}

func (t *Transport) connectTCP(ctx context.Context, dialAddr string, timer *timing.Timer) (net.Conn, error) {
	timer.StartTCP()
	defer timer.EndTCP()

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", dialAddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (t *Transport) upgradeTLS(ctx context.Context, conn net.Conn, config Config, timer *timing.Timer, meta *Metadata) (net.Conn, error) {
	timer.StartTLS()
	defer timer.EndTLS()

	var tlsConfig *tls.Config
	if config.TLSConfig != nil {
		tlsConfig = config.TLSConfig.Clone()
		if config.InsecureTLS {
			tlsConfig.InsecureSkipVerify = true
		}
	} else {
		minVersion := uint16(tls.VersionTLS12)
		if config.MinTLSVersion > 0 {
			minVersion = config.MinTLSVersion
		}
		tlsConfig = &tls.Config{
			MinVersion:         minVersion,
			InsecureSkipVerify: config.InsecureTLS,
		}
		if len(config.CustomCACerts) > 0 {
			pool := x509.NewCertPool()
			for i, ca := range config.CustomCACerts {
				if ok := pool.AppendCertsFromPEM(ca); !ok {
					return nil, fmt.Errorf("failed to parse CA certificate at index %d", i)
				}
			}
			tlsConfig.RootCAs = pool
		}
		ConfigureSNI(tlsConfig, config.SNI, config.DisableSNI, config.Host)
	}

	if config.MinTLSVersion > 0 && tlsConfig.MinVersion == 0 {
		tlsConfig.MinVersion = config.MinTLSVersion
	}
	if config.MaxTLSVersion > 0 && tlsConfig.MaxVersion == 0 {
		tlsConfig.MaxVersion = config.MaxTLSVersion
	}
	if len(config.CipherSuites) > 0 && len(tlsConfig.CipherSuites) == 0 {
		tlsConfig.CipherSuites = config.CipherSuites
	} else if config.MinTLSVersion > 0 && len(tlsConfig.CipherSuites) == 0 {
		// No explicit suite list: derive one from the minimum version floor,
		// same recommended tables the builder's TLS knobs are named after.
		tlsconfig.ApplyCipherSuites(tlsConfig, config.MinTLSVersion)
	}
	if config.TLSRenegotiation != 0 {
		tlsConfig.Renegotiation = config.TLSRenegotiation
	}

	cert, err := loadClientCertificate(config)
	if err != nil {
		return nil, err
	}
	if cert != nil {
		tlsConfig.Certificates = append(tlsConfig.Certificates, *cert)
	}

	if tlsConfig.ServerName != "" {
		meta.TLSServerName = tlsConfig.ServerName
	} else if !config.DisableSNI {
		meta.TLSServerName = config.Host
	}

	handshakeTimeout := config.ConnTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	tlsCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	tlsConn := tls.Client(conn, tlsConfig)
	if err := tlsConn.HandshakeContext(tlsCtx); err != nil {
		conn.Close()
		return nil, err
	}

	state := tlsConn.ConnectionState()
	meta.TLSVersion = tlsconfig.GetVersionName(state.Version)
	meta.TLSCipherSuite = tlsconfig.GetCipherSuiteName(state.CipherSuite)
	meta.TLSResumed = state.DidResume
	if len(state.TLSUnique) > 0 {
		meta.TLSSessionID = hex.EncodeToString(state.TLSUnique)
	}

	return tlsConn, nil
}

func loadClientCertificate(config Config) (*tls.Certificate, error) {
	hasPEM := len(config.ClientCertPEM) > 0 && len(config.ClientKeyPEM) > 0
	hasFile := config.ClientCertFile != "" && config.ClientKeyFile != ""
	if !hasPEM && !hasFile {
		return nil, nil
	}

	certPEM, keyPEM := config.ClientCertPEM, config.ClientKeyPEM
	if hasFile {
		var err error
		certPEM, err = os.ReadFile(config.ClientCertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read client certificate file %s: %w", config.ClientCertFile, err)
		}
		keyPEM, err = os.ReadFile(config.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read client key file %s: %w", config.ClientKeyFile, err)
		}
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client certificate/key: %w", err)
	}
	return &cert, nil
}

// ConfigureSNI applies SNI configuration to tlsConfig in this priority
// order: a ServerName already on tlsConfig is kept; disableSNI leaves it
// empty; otherwise customSNI is used, falling back to fallbackHost.
func ConfigureSNI(tlsConfig *tls.Config, customSNI string, disableSNI bool, fallbackHost string) {
	if tlsConfig == nil || tlsConfig.ServerName != "" || disableSNI {
		return
	}
	if customSNI != "" {
		tlsConfig.ServerName = customSNI
	} else {
		tlsConfig.ServerName = fallbackHost
	}
}

// connectViaProxy dials targetAddr through config.Proxy: plain HTTP/WS
// traffic is sent through the proxy unwrapped (using absolute-form
// requests), everything else tunnels via HTTP CONNECT or SOCKS5.
func (t *Transport) connectViaProxy(ctx context.Context, config Config, targetAddr string, deadline time.Time, timer *timing.Timer, meta *Metadata) (net.Conn, error) {
	proxy := config.Proxy
	meta.ProxyUsed = true
	meta.ProxyType = string(proxy.Type)
	meta.ProxyAddr = proxy.addr()

	timer.StartTCP()
	defer timer.EndTCP()

	plainScheme := config.Scheme == "http" || config.Scheme == "ws"

	switch proxy.Type {
	case ProxyHTTP, ProxyHTTPS:
		if plainScheme {
			// No CONNECT tunnel for plain traffic: just dial the proxy; the
			// codec must use absolute-form for the real request.
			conn, err := t.dialProxyTCP(ctx, proxy, deadline)
			if err != nil {
				return nil, errors.NewProxyError(errors.CodeProxyProtocol, string(proxy.Type), meta.ProxyAddr, "connect", err)
			}
			meta.UseAbsoluteForm = true
			return conn, nil
		}
		conn, err := t.connectViaHTTPConnect(ctx, config, proxy, targetAddr, deadline)
		if err != nil {
			return nil, err
		}
		return conn, nil
	case ProxySOCKS5:
		conn, err := t.connectViaSOCKS5(ctx, proxy, targetAddr, deadline)
		if err != nil {
			return nil, errors.NewProxyError(errors.CodeProxyProtocol, string(proxy.Type), meta.ProxyAddr, "connect", err)
		}
		return conn, nil
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("unsupported proxy type: %s", proxy.Type))
	}
}

func (t *Transport) dialProxyTCP(ctx context.Context, proxy *ProxyConfig, deadline time.Time) (net.Conn, error) {
	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(dialCtx, "tcp", proxy.addr())
	if err != nil {
		return nil, err
	}
	if proxy.Type == ProxyHTTPS {
		return t.tlsWrapProxyConn(conn, proxy)
	}
	return conn, nil
}

func (t *Transport) tlsWrapProxyConn(conn net.Conn, proxy *ProxyConfig) (net.Conn, error) {
	tlsConfig := proxy.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: proxy.Host}
	} else {
		tlsConfig = tlsConfig.Clone()
		if tlsConfig.ServerName == "" {
			tlsConfig.ServerName = proxy.Host
		}
	}
	tlsConn := tls.Client(conn, tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("TLS handshake to proxy failed: %w", err)
	}
	return tlsConn, nil
}

// connectViaHTTPConnect implements the HTTP CONNECT tunnel for https/wss
// traffic through an http/https proxy.
func (t *Transport) connectViaHTTPConnect(ctx context.Context, config Config, proxy *ProxyConfig, targetAddr string, deadline time.Time) (net.Conn, error) {
	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(dialCtx, "tcp", proxy.addr())
	if err != nil {
		return nil, errors.NewProxyError(errors.CodeProxyProtocol, string(proxy.Type), proxy.addr(), "connect", err)
	}

	if proxy.Type == ProxyHTTPS {
		conn, err = t.tlsWrapProxyConn(conn, proxy)
		if err != nil {
			return nil, errors.NewProxyError(errors.CodeProxyProtocol, string(proxy.Type), proxy.addr(), "handshake", err)
		}
	}

	conn.SetDeadline(deadline)
	defer conn.SetDeadline(time.Time{})

	var req strings.Builder
	fmt.Fprintf(&req, "CONNECT %s HTTP/1.1\r\n", targetAddr)
	fmt.Fprintf(&req, "Host: %s\r\n", targetAddr)
	for k, v := range proxy.ProxyHeaders {
		fmt.Fprintf(&req, "%s: %s\r\n", k, v)
	}
	if proxy.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(proxy.Username + ":" + proxy.Password))
		fmt.Fprintf(&req, "Proxy-Authorization: Basic %s\r\n", auth)
	}
	req.WriteString("\r\n")

	if _, err := conn.Write([]byte(req.String())); err != nil {
		conn.Close()
		return nil, errors.NewProxyError(errors.CodeProxyProtocol, string(proxy.Type), proxy.addr(), "write", err)
	}

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, errors.NewProxyError(errors.CodeProxyProtocol, string(proxy.Type), proxy.addr(), "read", err)
	}

	fields := strings.Fields(statusLine)
	if len(fields) < 2 || len(fields[1]) != 3 || fields[1][0] != '2' {
		conn.Close()
		code := errors.CodeProxyRejected
		if len(fields) >= 2 && fields[1] == "407" {
			code = errors.CodeProxyAuthRequired
		}
		return nil, errors.NewProxyError(code, string(proxy.Type), proxy.addr(), "connect",
			fmt.Errorf("proxy CONNECT failed: %s", strings.TrimSpace(statusLine)))
	}

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			conn.Close()
			return nil, errors.NewProxyError(errors.CodeProxyProtocol, string(proxy.Type), proxy.addr(), "read", err)
		}
		if line == "\r\n" || line == "\n" {
			break
		}
	}

	// Any bytes already buffered past the CONNECT response belong to the
	// tunneled stream (e.g. the start of the TLS ServerHello); surface them
	// via a wrapper that drains the bufio.Reader before touching conn.
	if reader.Buffered() > 0 {
		return &bufferedConn{Conn: conn, r: reader}, nil
	}
	return conn, nil
}

// connectViaSOCKS5 dials through a SOCKS5 proxy using golang.org/x/net/proxy
// (RFC 1928/1929).
func (t *Transport) connectViaSOCKS5(ctx context.Context, proxy *ProxyConfig, targetAddr string, deadline time.Time) (net.Conn, error) {
	var auth *netproxy.Auth
	if proxy.Username != "" {
		auth = &netproxy.Auth{User: proxy.Username, Password: proxy.Password}
	}

	timeout := time.Until(deadline)
	dialer, err := netproxy.SOCKS5("tcp", proxy.addr(), auth, &net.Dialer{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	if d, ok := dialer.(netproxy.ContextDialer); ok {
		return d.DialContext(ctx, "tcp", targetAddr)
	}
	return dialer.Dial("tcp", targetAddr)
}

// bufferedConn wraps a net.Conn whose first bytes have already been
// consumed into a bufio.Reader (post-CONNECT tunnel drain).
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) {
	return b.r.Read(p)
}
