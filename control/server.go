// {{{ Copyright (c) Paul R. Tagliamonte <paul@k3xec.com>, 2022
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

// Package control exposes a running receiver over HTTP: a websocket that
// streams the spectrum and waterfall and takes commands, a JSON status
// endpoint, and Prometheus metrics.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hz.tools/rx/pipeline"
)

// Config configures a Server.
type Config struct {
	// Addr to listen on, as for http.Server.
	Addr string

	// FPS is how many spectrum frames are sent to each client per second.
	// Zero means 30.
	FPS int

	// Folder recordings are written to.
	Folder string

	Logger  *log.Logger
	Metrics *pipeline.Metrics
}

// Server is the control surface over a Radio and its State.
type Server struct {
	cfg    Config
	logger *log.Logger
	radio  *pipeline.Radio
	state  *pipeline.State

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]bool
}

// New creates a Server. Nothing is listening until Run.
func New(radio *pipeline.Radio, state *pipeline.State, cfg Config) *Server {
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	if cfg.Folder == "" {
		cfg.Folder = "."
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Server{
		cfg:    cfg,
		logger: cfg.Logger,
		radio:  radio,
		state:  state,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 65536,
		},
		clients: map[*client]bool{},
	}
}

// Handler routes /ws, /api/status and, if the Server has Metrics,
// /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/status", s.handleStatus)
	if s.cfg.Metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.cfg.Metrics.Registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// Run serves on cfg.Addr and broadcasts to websocket clients until ctx is
// done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.Handler()}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.Broadcast(ctx)

	errc := make(chan error, 1)
	go func() {
		s.logger.Printf("[control] listening on %s", s.cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdown, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	err := srv.Shutdown(shutdown)
	s.disconnectAll()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.frame("status")); err != nil {
		s.logger.Printf("[control] writing status: %v", err)
	}
}

// vim: foldmethod=marker
