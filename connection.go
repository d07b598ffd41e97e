// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

package rpcproxy

import (
	"encoding/json"
	"errors"
	"io"
	"net"

	log "github.com/sirupsen/logrus"

	"github.com/kekxv/rpc-proxy-framework/internal/thread"
	"github.com/kekxv/rpc-proxy-framework/types"
)

// Connection is one client worker. Requests are handled serially; native
// calls run on the connection's dedicated locked OS thread so that callee
// thread-local state stays coherent across requests.
type Connection struct {
	server  *Server
	mc      *MessageConn
	invoker *thread.Thread
	log     *log.Entry
}

// serve runs the read loop until the peer disconnects or a frame is
// unrecoverably corrupt, then releases everything the worker owns:
// its callback handles and its invocation thread. The process-wide
// registries stay.
func (c *Connection) serve() {
	activeConnections.Inc()
	defer activeConnections.Dec()

	defer func() {
		c.server.callbacks.ReleaseConnection(c.mc)
		c.invoker.Stop()
		_ = c.mc.Close()
		c.log.Info("connection closed")
	}()

	for {
		frame, err := c.mc.ReadFrame(c.server.cfg.MaxFrameBytes)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			case errors.Is(err, ErrFrameTooLarge):
				c.log.WithError(err).Warn("dropping connection: oversized frame")
			default:
				c.log.WithError(err).Warn("dropping connection: read failed")
			}
			return
		}

		var req types.Request
		if err := json.Unmarshal(frame, &req); err != nil {
			// Framing-level corruption; there is no request_id to
			// answer to.
			c.log.WithError(err).Warn("dropping connection: " + types.KindBadJSON)
			return
		}
		if req.Command == "" || req.RequestID == "" {
			c.log.Warn("dropping connection: " + types.KindMissingField + " in request envelope")
			return
		}

		resp := c.route(&req)
		if err := c.mc.WriteJSON(resp); err != nil {
			c.log.WithError(err).Warn("dropping connection: write failed")
			return
		}
	}
}
