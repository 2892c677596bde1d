package mealquery

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"calorieTracker/internal/logging"
)

const (
	maxLineBytes   = 1 << 20
	requestTimeout = 5 * time.Second
	writeTimeout   = 10 * time.Second
)

// Options tunes a Server. Zero values pick the defaults.
type Options struct {
	RateLimit   float64       // requests per second per connection
	RateBurst   int           // burst per connection
	IdleTimeout time.Duration // close connections idle this long
	Name        string        // reported in initialize
	Version     string
}

// Server answers meal queries on accepted connections. Each connection is
// served by its own goroutine; requests on one connection run in order.
type Server struct {
	meals  MealReader
	tokens TokenVerifier
	log    logging.Logger
	opts   Options

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closing  bool
	wg       sync.WaitGroup
}

// NewServer builds a server over meals, authenticating calls with tokens.
func NewServer(meals MealReader, tokens TokenVerifier, log logging.Logger, opts Options) *Server {
	if log == nil {
		log = logging.Discard()
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 20
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 5 * time.Minute
	}
	if opts.Name == "" {
		opts.Name = "calorie-tracker-query"
	}
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}
	return &Server{
		meals:  meals,
		tokens: tokens,
		log:    log,
		opts:   opts,
		conns:  map[net.Conn]struct{}{},
	}
}

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("mealquery: server closed")

// Listen binds addr and serves in the background, returning the bound address.
func (s *Server) Listen(addr string) (net.Addr, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := s.Serve(lis); err != nil && !errors.Is(err, ErrServerClosed) {
			s.log.Error(context.Background(), "query server stopped", "error", err)
		}
	}()
	return lis.Addr(), nil
}

// Serve accepts connections on lis until Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = lis.Close()
		return ErrServerClosed
	}
	s.listener = lis
	s.mu.Unlock()

	s.log.Info(context.Background(), "query server listening", "addr", lis.Addr().String())
	for {
		conn, err := lis.Accept()
		if err != nil {
			if s.isClosing() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return err
		}
		if !s.track(conn) {
			_ = conn.Close()
			return ErrServerClosed
		}
		go func() {
			defer s.untrack(conn)
			s.handleConn(conn)
		}()
	}
}

// Shutdown stops accepting, closes open connections and waits for their
// handlers until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	_ = c.Close()
	s.wg.Done()
}

func (s *Server) handleConn(conn net.Conn) {
	ctx := context.Background()
	log := s.log.With("remote", conn.RemoteAddr().String())
	log.Debug(ctx, "connection opened")
	defer log.Debug(ctx, "connection closed")

	limiter := rate.NewLimiter(rate.Limit(s.opts.RateLimit), s.opts.RateBurst)
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	w := bufio.NewWriter(conn)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && !s.isClosing() {
				log.Warn(ctx, "read failed", "error", err)
			}
			return
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var resp *Response
		if !limiter.Allow() {
			resp = errorResponse(requestID(line), rpcError(CodeRateLimited, "Rate limit exceeded"))
		} else {
			resp = s.dispatch(ctx, log, line)
		}
		if resp == nil {
			continue
		}
		if err := writeResponse(conn, w, resp); err != nil {
			log.Warn(ctx, "write failed", "error", err)
			return
		}
	}
}

// dispatch handles one request line. It returns nil for notifications.
func (s *Server) dispatch(ctx context.Context, log logging.Logger, line []byte) *Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		log.Warn(ctx, "parse error", "error", err)
		return errorResponse(nil, rpcError(CodeParseError, "Parse error"))
	}
	notification := len(req.ID) == 0

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var (
		result any
		rpcErr *Error
	)
	switch req.Method {
	case "initialize":
		result = InitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    map[string]any{"tools": map[string]any{}},
			ServerInfo:      ServerInfo{Name: s.opts.Name, Version: s.opts.Version},
		}
	case "notifications/initialized":
		return nil
	case "tools/list":
		result = map[string]any{"tools": tools}
	case "tools/call":
		result, rpcErr = s.callTool(ctx, req.Params)
	default:
		rpcErr = rpcError(CodeMethodNotFound, "Method not found: %s", req.Method)
	}
	log.Debug(ctx, "request handled", "method", req.Method, "ok", rpcErr == nil)

	if notification {
		return nil
	}
	if rpcErr != nil {
		return errorResponse(req.ID, rpcErr)
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return errorResponse(req.ID, rpcError(CodeInternal, "encode result: %v", err))
	}
	return &Response{JSONRPC: jsonRPCVersion, ID: req.ID, Result: raw}
}

func errorResponse(id json.RawMessage, e *Error) *Response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &Response{JSONRPC: jsonRPCVersion, ID: id, Error: e}
}

// requestID extracts the id of a line for rate-limit replies, or nil.
func requestID(line []byte) json.RawMessage {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if json.Unmarshal(line, &probe) != nil {
		return nil
	}
	return probe.ID
}

func writeResponse(conn net.Conn, w *bufio.Writer, resp *Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := w.Write(append(raw, '\n')); err != nil {
		return err
	}
	return w.Flush()
}
