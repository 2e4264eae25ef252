package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/whileendless/go-rawhttp-core/pkg/errors"
	"github.com/whileendless/go-rawhttp-core/pkg/timing"
)

func TestValidateConfigRejectsEmptyHost(t *testing.T) {
	tr := New()
	_, _, err := tr.Connect(context.Background(), Config{Scheme: "http", Port: 80}, timing.NewTimer())
	if err == nil {
		t.Fatalf("expected validation error for empty host")
	}
}

func TestValidateConfigRejectsBadPort(t *testing.T) {
	tr := New()
	_, _, err := tr.Connect(context.Background(), Config{Scheme: "http", Host: "example.test", Port: 99999}, timing.NewTimer())
	if err == nil {
		t.Fatalf("expected validation error for out-of-range port")
	}
}

func TestValidateConfigRejectsUnsupportedScheme(t *testing.T) {
	tr := New()
	_, _, err := tr.Connect(context.Background(), Config{Scheme: "ftp", Host: "example.test", Port: 21}, timing.NewTimer())
	if err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
	if errors.GetErrorCode(err) != errors.CodeUnsupportedScheme {
		t.Fatalf("expected CodeUnsupportedScheme, got %v", err)
	}
}

func TestValidateConfigRejectsConflictingSNIOptions(t *testing.T) {
	tr := New()
	_, _, err := tr.Connect(context.Background(), Config{
		Scheme: "https", Host: "example.test", Port: 443,
		SNI: "other.test", DisableSNI: true,
	}, timing.NewTimer())
	if err == nil {
		t.Fatalf("expected validation error for conflicting SNI options")
	}
}

func TestConfigureSNIPriority(t *testing.T) {
	cfg := &tls.Config{}
	ConfigureSNI(cfg, "custom.test", false, "fallback.test")
	if cfg.ServerName != "custom.test" {
		t.Fatalf("ServerName = %q, want custom.test", cfg.ServerName)
	}

	cfg2 := &tls.Config{}
	ConfigureSNI(cfg2, "", false, "fallback.test")
	if cfg2.ServerName != "fallback.test" {
		t.Fatalf("ServerName = %q, want fallback.test", cfg2.ServerName)
	}

	cfg3 := &tls.Config{}
	ConfigureSNI(cfg3, "custom.test", true, "fallback.test")
	if cfg3.ServerName != "" {
		t.Fatalf("expected ServerName left empty when DisableSNI=true, got %q", cfg3.ServerName)
	}
}

func TestConnectDirectTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("hello"))
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port := 0
	for _, c := range portStr {
		port = port*10 + int(c-'0')
	}

	tr := New()
	conn, meta, err := tr.Connect(context.Background(), Config{
		Scheme:    "http",
		Host:      host,
		Port:      port,
		ConnectIP: host,
	}, timing.NewTimer())
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	defer conn.Close()

	if meta.ConnectedIP != host {
		t.Fatalf("ConnectedIP = %q, want %q", meta.ConnectedIP, host)
	}

	buf := make([]byte, 5)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("got %q, want hello", buf)
	}
}

func TestConnectViaHTTPProxyPlainSchemeUsesAbsoluteForm(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}()

	proxyHost, proxyPortStr, _ := net.SplitHostPort(ln.Addr().String())
	proxyPort := 0
	for _, c := range proxyPortStr {
		proxyPort = proxyPort*10 + int(c-'0')
	}

	tr := New()
	conn, meta, err := tr.Connect(context.Background(), Config{
		Scheme: "http",
		Host:   "target.test",
		Port:   80,
		Proxy: &ProxyConfig{
			Type: ProxyHTTP,
			Host: proxyHost,
			Port: proxyPort,
		},
	}, timing.NewTimer())
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	defer conn.Close()

	if !meta.UseAbsoluteForm {
		t.Fatalf("expected UseAbsoluteForm=true for plain-scheme HTTP proxy dial")
	}
	if !meta.ProxyUsed {
		t.Fatalf("expected ProxyUsed=true")
	}
}

func TestConnectViaHTTPConnectTunnel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		line, _ := r.ReadString('\n')
		if !strings.HasPrefix(line, "CONNECT target.test:443 HTTP/1.1") {
			conn.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
			return
		}
		for {
			l, err := r.ReadString('\n')
			if err != nil || l == "\r\n" {
				break
			}
		}
		conn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n"))
	}()

	proxyHost, proxyPortStr, _ := net.SplitHostPort(ln.Addr().String())
	proxyPort := 0
	for _, c := range proxyPortStr {
		proxyPort = proxyPort*10 + int(c-'0')
	}

	tr := New()
	conn, err := tr.connectViaHTTPConnect(context.Background(), Config{}, &ProxyConfig{
		Type: ProxyHTTP,
		Host: proxyHost,
		Port: proxyPort,
	}, "target.test:443", time.Now().Add(2*time.Second))
	if err != nil {
		t.Fatalf("connectViaHTTPConnect error: %v", err)
	}
	conn.Close()
}

func TestConnectViaHTTPConnectRejectsNon2xx(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		bufio.NewReader(conn).ReadString('\n')
		conn.Write([]byte("HTTP/1.1 407 Proxy Authentication Required\r\n\r\n"))
	}()

	proxyHost, proxyPortStr, _ := net.SplitHostPort(ln.Addr().String())
	proxyPort := 0
	for _, c := range proxyPortStr {
		proxyPort = proxyPort*10 + int(c-'0')
	}

	tr := New()
	_, err = tr.connectViaHTTPConnect(context.Background(), Config{}, &ProxyConfig{
		Type: ProxyHTTP,
		Host: proxyHost,
		Port: proxyPort,
	}, "target.test:443", time.Now().Add(2*time.Second))
	if err == nil {
		t.Fatalf("expected error for non-2xx CONNECT response")
	}
	if errors.GetErrorCode(err) != errors.CodeProxyAuthRequired {
		t.Fatalf("expected CodeProxyAuthRequired, got %v", err)
	}
}
