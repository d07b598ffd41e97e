// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

package rpcproxy

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/kekxv/rpc-proxy-framework/types"
)

// ErrFrameTooLarge is returned when a frame header declares more bytes
// than the configured ceiling. It is fatal for the connection.
var ErrFrameTooLarge = errors.New("frame exceeds size ceiling")

// MessageConn frames UTF-8 JSON messages as BE32 length | payload over a
// stream connection. Reads belong to the connection worker; writes are
// shared with the callback pool and serialise on the write mutex so that
// responses and events never interleave on the wire.
type MessageConn struct {
	conn net.Conn
	wmu  sync.Mutex
}

// NewMessageConn wraps a stream connection.
func NewMessageConn(conn net.Conn) *MessageConn {
	return &MessageConn{conn: conn}
}

// ReadFrame reads one complete frame, tolerating short reads. A declared
// length above ceiling fails with ErrFrameTooLarge.
func (c *MessageConn) ReadFrame(ceiling uint32) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > ceiling {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, ceiling)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(c.conn, body); err != nil {
		return nil, err
	}
	return body, nil
}

// WriteJSON marshals v and writes it as one atomic frame.
func (c *MessageConn) WriteJSON(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err = c.conn.Write(frame)
	return err
}

// SendEvent writes an unsolicited event frame. Implements the callback
// pool's EventSink.
func (c *MessageConn) SendEvent(event string, payload any) error {
	callbackEventsTotal.Inc()
	return c.WriteJSON(types.Event{Event: event, Payload: payload})
}

// Close closes the underlying connection. Safe to call more than once.
func (c *MessageConn) Close() error {
	return c.conn.Close()
}

// RemoteAddr names the peer for logging.
func (c *MessageConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}
