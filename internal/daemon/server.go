// Copyright (c) 2026 dotandev
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dotandev/rpcmerge/internal/demangle"
	"github.com/dotandev/rpcmerge/internal/logger"
	"github.com/dotandev/rpcmerge/internal/telemetry"
)

// Config holds daemon configuration
type Config struct {
	Addr      string
	AuthToken string
}

// Demangler is the JSON-RPC service exposed as "Demangler".
type Demangler struct {
	backend   demangle.Demangler
	authToken string
}

// Server represents the demangling bridge daemon
type Server struct {
	service *Demangler
}

// NewServer wraps backend in a JSON-RPC service. A nil backend uses the
// in-process demangler.
func NewServer(config Config, backend demangle.Demangler) *Server {
	if backend == nil {
		backend = demangle.Local{}
	}
	return &Server{
		service: &Demangler{backend: backend, authToken: config.AuthToken},
	}
}

func (d *Demangler) authenticate(r *http.Request) bool {
	if d.authToken == "" {
		return true
	}

	auth := r.Header.Get("Authorization")
	if auth == "" {
		return false
	}

	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ") == d.authToken
	}

	return auth == d.authToken
}

// Demangle handles Demangler.Demangle calls
func (d *Demangler) Demangle(r *http.Request, args *demangle.Args, reply *demangle.Reply) error {
	if !d.authenticate(r) {
		return fmt.Errorf("unauthorized")
	}

	ctx, span := telemetry.GetTracer().Start(r.Context(), "rpc_demangle")
	span.SetAttributes(attribute.String("symbol", args.Symbol))
	defer span.End()

	name, err := d.backend.Demangle(ctx, args.Symbol)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to demangle %q: %w", args.Symbol, err)
	}

	logger.Logger.Debug("Demangled symbol", "symbol", args.Symbol, "name", name)
	reply.Name = name
	return nil
}

// Handler returns the daemon's routes: /rpc and /health.
func (s *Server) Handler() (http.Handler, error) {
	server := rpc.NewServer()
	server.RegisterCodec(json2.NewCodec(), "application/json")
	server.RegisterCodec(json2.NewCodec(), "application/json;charset=UTF-8")

	if err := server.RegisterService(s.service, "Demangler"); err != nil {
		return nil, fmt.Errorf("failed to register service: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/rpc", server)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	return mux, nil
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	logger.Logger.Info("Starting demangling bridge", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("bridge server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Logger.Info("Shutting down demangling bridge")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
