package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"voucherchain/core"
	"voucherchain/indexer"
	"voucherchain/observability"
	"voucherchain/observability/logging"
)

const (
	jsonRPCVersion    = "2.0"
	maxRequestBytes   = 1 << 20 // 1 MiB
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
	requestIDHeader   = "X-Request-ID"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

// Options wires the server to its collaborators. Runtime is required.
type Options struct {
	Runtime     *core.Runtime
	Events      *indexer.Indexer
	Broadcaster *Broadcaster
	Auth        AuthConfig
	RateLimit   RateLimit
	Logger      *slog.Logger
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

type handlerFunc func(s *Server, r *http.Request, req *RPCRequest) (interface{}, *RPCError)

type method struct {
	handler handlerFunc
	// authenticated methods act on behalf of the bearer token subject.
	authenticated bool
}

type Server struct {
	runtime     *core.Runtime
	events      *indexer.Indexer
	broadcaster *Broadcaster
	auth        *Authenticator
	limiter     *RateLimiter
	logger      *slog.Logger
	tracing     []otelhttp.Option
	methods     map[string]method
}

func NewServer(opts Options) (*Server, error) {
	if opts.Runtime == nil {
		return nil, errors.New("rpc: runtime must be provided")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		runtime:     opts.Runtime,
		events:      opts.Events,
		broadcaster: opts.Broadcaster,
		auth:        NewAuthenticator(opts.Auth),
		limiter:     NewRateLimiter(opts.RateLimit),
		logger:      logger.With("component", "rpc"),
		methods:     make(map[string]method),
		tracing: []otelhttp.Option{
			otelhttp.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/healthz" && r.URL.Path != "/metrics"
			}),
		},
	}
	if opts.TracerProvider != nil {
		s.tracing = append(s.tracing, otelhttp.WithTracerProvider(opts.TracerProvider))
	}
	s.registerChain()
	s.registerLedger()
	s.registerProduct()
	s.registerReferral()
	s.registerCashPool()
	return s, nil
}

func (s *Server) register(name string, authenticated bool, h handlerFunc) {
	s.methods[name] = method{handler: h, authenticated: authenticated}
}

// Handler returns the HTTP routes served by the node.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	if s.broadcaster != nil {
		r.Get("/ws/events", s.handleEventsWS)
	}
	r.With(s.limiter.Middleware).Post("/", s.handle)
	return otelhttp.NewHandler(r, "voucherd.rpc", s.tracing...)
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen %s: %w", addr, err)
	}
	return s.ServeListener(ctx, listener)
}

func (s *Server) ServeListener(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting JSON-RPC server", "addr", listener.Addr().String())
		errCh <- srv.Serve(listener)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
		}
		<-errCh
		return nil
	}
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func statusFor(code int) int {
	switch code {
	case codeUnauthorized:
		return http.StatusUnauthorized
	case codeRateLimited:
		return http.StatusTooManyRequests
	case codeMethodNotFound:
		return http.StatusNotFound
	case codeServerError:
		return http.StatusOK
	default:
		return http.StatusBadRequest
	}
}

func moduleOf(methodName string) string {
	if idx := strings.IndexByte(methodName, '_'); idx > 0 {
		return methodName[:idx]
	}
	return methodName
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("rpc.method", req.Method))

	start := time.Now()
	module := moduleOf(req.Method)
	m, ok := s.methods[req.Method]
	if !ok {
		observability.ModuleMetrics().Observe(module, req.Method, codeMethodNotFound, time.Since(start))
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}
	if m.authenticated {
		caller, authErr := s.auth.Authenticate(r)
		if authErr != nil {
			observability.ModuleMetrics().Observe(module, req.Method, authErr.Code, time.Since(start))
			s.logger.Warn("rpc authentication failed",
				"method", req.Method,
				"error", authErr.Message,
				logging.MaskField("authorization", r.Header.Get("Authorization")),
				"request_id", w.Header().Get(requestIDHeader))
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		r = r.WithContext(withCaller(r.Context(), caller))
		if !s.runtime.Bootstrapped() {
			rpcErr := executionError(core.ErrNotBootstrapped)
			observability.ModuleMetrics().Observe(module, req.Method, rpcErr.Code, time.Since(start))
			writeError(w, http.StatusServiceUnavailable, req.ID, rpcErr.Code, rpcErr.Message, nil)
			return
		}
	}

	result, rpcErr := m.handler(s, r, req)
	if rpcErr != nil {
		observability.ModuleMetrics().Observe(module, req.Method, rpcErr.Code, time.Since(start))
		s.logger.Debug("rpc call failed",
			"method", req.Method,
			"code", rpcErr.Code,
			"error", rpcErr.Message,
			"request_id", w.Header().Get(requestIDHeader))
		writeError(w, statusFor(rpcErr.Code), req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	observability.ModuleMetrics().Observe(module, req.Method, 0, time.Since(start))
	writeResult(w, req.ID, result)
}

// executionError maps a failed runtime execution onto a JSON-RPC error.
func executionError(err error) *RPCError {
	if err == nil {
		return nil
	}
	if errors.Is(err, core.ErrUnauthorized) {
		return &RPCError{Code: codeUnauthorized, Message: err.Error()}
	}
	if errors.Is(err, core.ErrNotBootstrapped) {
		return &RPCError{Code: codeServerError, Message: "chain not bootstrapped"}
	}
	return &RPCError{Code: codeServerError, Message: err.Error()}
}
