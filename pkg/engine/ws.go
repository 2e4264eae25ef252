package engine

import (
	"context"

	"github.com/whileendless/go-rawhttp-core/pkg/errors"
	"github.com/whileendless/go-rawhttp-core/pkg/transport"
	"github.com/whileendless/go-rawhttp-core/pkg/wsock"
)

// OpenWebSocket dials the builder's connect() target and performs the
// RFC 6455 upgrade handshake, returning a ready wsock.Conn. Valid only when
// the builder was configured via Connect().
func (h *Handle) OpenWebSocket(ctx context.Context) (*wsock.Conn, error) {
	if !h.cfg.IsWS {
		return nil, errors.NewValidationError("OpenWebSocket requires a builder configured via Connect()")
	}
	if h.tr == nil {
		h.tr = transport.New()
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	conn, _, err := dialForWebSocket(ctx, h.tr, h.cfg)
	if err != nil {
		return nil, err
	}

	key, err := wsock.GenerateKey()
	if err != nil {
		conn.Close()
		return nil, err
	}

	wsConn, err := wsock.Handshake(conn, h.cfg.URL, wsHandshakeHeaders(h.cfg, key), key)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return wsConn, nil
}
