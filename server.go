// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

package rpcproxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/kekxv/rpc-proxy-framework/callback"
	"github.com/kekxv/rpc-proxy-framework/internal/thread"
	"github.com/kekxv/rpc-proxy-framework/registry"
)

// Server is the connection supervisor. It owns the process-wide
// registries and the listening endpoint.
type Server struct {
	cfg Config

	types     *registry.TypeRegistry
	libraries *registry.LibraryRegistry
	callbacks *callback.Pool

	mu       sync.Mutex
	listener net.Listener
	conns    map[*MessageConn]struct{}
	workers  sync.WaitGroup
}

// NewServer builds a server with fresh registries.
func NewServer(cfg Config) *Server {
	return &Server{
		cfg:       cfg,
		types:     registry.NewTypeRegistry(),
		libraries: registry.NewLibraryRegistry(),
		callbacks: callback.NewPool(),
		conns:     make(map[*MessageConn]struct{}),
	}
}

// ListenAndServe binds the unix socket and accepts clients until ctx is
// cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	path := s.cfg.SocketPath()
	if err := removeStaleSocket(path); err != nil {
		return err
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("bind %s: %w", path, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	log.WithField("socket", path).Info("executor listening")

	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.drain(path)
				return nil
			}
			s.drain(path)
			return fmt.Errorf("accept: %w", err)
		}
		s.startWorker(conn)
	}
}

func (s *Server) startWorker(netConn net.Conn) {
	mc := NewMessageConn(netConn)
	c := &Connection{
		server:  s,
		mc:      mc,
		invoker: thread.New(),
		log:     log.WithField("peer", mc.RemoteAddr()),
	}

	s.mu.Lock()
	s.conns[mc] = struct{}{}
	s.mu.Unlock()

	c.log.Info("connection accepted")
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		defer func() {
			s.mu.Lock()
			delete(s.conns, mc)
			s.mu.Unlock()
		}()
		c.serve()
	}()
}

// drain closes every live connection, waits for workers, and removes the
// socket file.
func (s *Server) drain(path string) {
	s.mu.Lock()
	for mc := range s.conns {
		_ = mc.Close()
	}
	s.mu.Unlock()

	s.workers.Wait()
	s.libraries.CloseAll()
	_ = os.Remove(path)
	log.Info("executor stopped")
}

// removeStaleSocket unlinks a leftover socket file from a previous run.
// Anything else at the path is left alone and reported as an error.
func removeStaleSocket(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", path)
	}
	return os.Remove(path)
}
