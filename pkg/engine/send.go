package engine

import (
	"bufio"
	"bytes"
	"context"
	"net"

	"github.com/whileendless/go-rawhttp-core/pkg/constants"
	"github.com/whileendless/go-rawhttp-core/pkg/headers"
	"github.com/whileendless/go-rawhttp-core/pkg/httpcodec"
	"github.com/whileendless/go-rawhttp-core/pkg/redirect"
	"github.com/whileendless/go-rawhttp-core/pkg/timing"
	"github.com/whileendless/go-rawhttp-core/pkg/transport"
	"github.com/whileendless/go-rawhttp-core/pkg/urlmodel"
)

// doSend runs one request to completion: dial, write, read the head and
// body, close the connection, and — if a redirect controller is active and
// the status calls for it — update the request and loop for the next hop.
func doSend(ctx context.Context, tr *transport.Transport, cfg *Config) (*Response, error) {
	method := cfg.Method
	url := cfg.URL
	body := cfg.Body
	userHeaders := cfg.Headers

	var ctrl *redirect.Controller
	if cfg.RedirectEnabled {
		ctrl = redirect.NewController(cfg.MaxRedirects)
	}

	for {
		timer := timing.NewTimer()

		tcfg := cfg.Transport
		tcfg.Scheme = url.Scheme
		tcfg.Host = url.Host
		tcfg.Port = url.Port

		conn, meta, err := tr.Connect(ctx, tcfg, timer)
		if err != nil {
			return nil, err
		}
		// The send's deadline also bounds the request write and response
		// read, and canceling ctx closes the socket mid-I/O.
		if dl, ok := ctx.Deadline(); ok {
			conn.SetDeadline(dl)
		}
		stopCloseOnCancel := context.AfterFunc(ctx, func() { conn.Close() })

		wire := overlayManagedHeaders(userHeaders, method, url, body, false, cfg.DecodeEnabled)

		var bodyReader *bytes.Reader
		if len(body) > 0 {
			bodyReader = bytes.NewReader(body)
		}

		req := &httpcodec.Request{
			Method:          method,
			URL:             url,
			Headers:         wire,
			UseAbsoluteForm: meta.UseAbsoluteForm,
		}
		if bodyReader != nil {
			req.Body = bodyReader
		}

		writeErr := httpcodec.WriteRequest(conn, req)
		if writeErr != nil {
			stopCloseOnCancel()
			conn.Close()
			return nil, writeErr
		}

		limits := httpcodec.Limits{
			MaxHeaderBytes: cfg.ReadBufferSize * constants.HeaderSizeMultiplier,
		}
		resp, readErr := httpcodec.ReadResponse(bufio.NewReaderSize(conn, cfg.ReadBufferSize), method, limits, timer)
		stopCloseOnCancel()
		conn.Close()
		if readErr != nil {
			return nil, readErr
		}

		response := &Response{
			statusCode:     resp.StatusCode,
			reasonPhrase:   reasonFromStatusLine(resp.StatusLine),
			headers:        resp.Headers,
			bodyRaw:        resp.Body,
			finalURL:       url,
			decodeEnabled:  cfg.DecodeEnabled,
			charsetHint:    cfg.CharsetHint,
			decodedPartial: resp.DecodedPartial,
			Timings:        timer.GetMetrics(),
			Conn:           *meta,
		}

		if ctrl == nil || !redirect.IsRedirectStatus(resp.StatusCode) {
			return response, nil
		}

		location, _ := resp.Headers.Get("Location")
		decision, err := ctrl.Next(url, resp.StatusCode, location, method)
		if err != nil {
			return nil, err
		}

		url = decision.NextURL
		method = decision.NextMethod
		if decision.DropBody {
			body = nil
		}
		if decision.StripAuth {
			h := userHeaders.Clone()
			h.Del("Authorization")
			userHeaders = h
		}
	}
}

// buildAbsoluteURL returns the URL model's absolute-form rendering of u
// without going through a live dial.
func buildAbsoluteURL(u *urlmodel.URL) string { return u.AbsoluteForm() }

// Handle is a synchronous engine handle.
type Handle struct {
	cfg *Config
	tr  *transport.Transport
}

// Send blocks the calling goroutine until the response is fully read or an
// error occurs.
func (h *Handle) Send(ctx context.Context) (*Response, error) {
	if h.tr == nil {
		h.tr = transport.New()
	}
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()
	return doSend(ctx, h.tr, h.cfg)
}

// dialForWebSocket establishes the underlying connection for an
// Upgrade (shared by sync/async WebSocket handshakes).
func dialForWebSocket(ctx context.Context, tr *transport.Transport, cfg *Config) (net.Conn, *transport.Metadata, error) {
	timer := timing.NewTimer()
	tcfg := cfg.Transport
	tcfg.Scheme = cfg.URL.Scheme
	tcfg.Host = cfg.URL.Host
	tcfg.Port = cfg.URL.Port
	return tr.Connect(ctx, tcfg, timer)
}

// wsHandshakeHeaders builds the managed headers for a WebSocket upgrade
// request (Host/Connection/Upgrade/Sec-WebSocket-* are all managed).
func wsHandshakeHeaders(cfg *Config, key string) *headers.Set {
	h := cfg.Headers.Clone()
	for _, name := range managedHeaders {
		h.Del(name)
	}
	h.Set("Host", cfg.URL.HostPort())
	h.Set("Upgrade", "websocket")
	h.Set("Connection", "Upgrade")
	h.Set("Sec-WebSocket-Key", key)
	h.Set("Sec-WebSocket-Version", "13")
	if len(cfg.Protocols) > 0 {
		joined := ""
		for i, p := range cfg.Protocols {
			if i > 0 {
				joined += ", "
			}
			joined += p
		}
		h.Set("Sec-WebSocket-Protocol", joined)
	}
	return h
}
