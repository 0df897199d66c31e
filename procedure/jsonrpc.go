package procedure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"

	"github.com/leggettc18/chirp/kit"
	"github.com/leggettc18/chirp/wire"
)

const (
	// ServiceName is the JSON-RPC service; procedures are reached through
	// its single method, MethodCall.
	ServiceName = "Procedures"
	MethodCall  = ServiceName + ".Call"

	// CodeNotFound is the JSON-RPC error code carrying a NotFound result.
	CodeNotFound json2.ErrorCode = -32004

	maxResponseBody int64 = 10 << 20
)

// CallArgs are the params of Procedures.Call. Input is a wire envelope.
type CallArgs struct {
	Procedure string          `json:"procedure"`
	Input     json.RawMessage `json:"input"`
}

// CallReply carries the wire-encoded result.
type CallReply struct {
	Result json.RawMessage `json:"result"`
}

type rpcService struct {
	caller Caller
	logger *slog.Logger
}

func (s *rpcService) Call(r *http.Request, args *CallArgs, reply *CallReply) error {
	ctx := kit.WithTransport(r.Context(), "jsonrpc")
	s.logger.DebugContext(ctx, "jsonrpc call", "procedure", args.Procedure, "input_bytes", len(args.Input))
	out, err := s.caller.Call(ctx, args.Procedure, args.Input)
	if err != nil {
		return toRPCError(args.Procedure, err)
	}
	reply.Result = out
	return nil
}

func toRPCError(procedure string, err error) *json2.Error {
	var (
		nf         *NotFoundError
		unroutable *ErrProcedureNotFound
		serr       *wire.SerializationError
	)
	switch {
	case errors.As(err, &nf):
		return &json2.Error{Code: CodeNotFound, Message: nf.Message, Data: procedure}
	case errors.As(err, &unroutable):
		return &json2.Error{Code: json2.E_NO_METHOD, Message: err.Error(), Data: procedure}
	case errors.As(err, &serr):
		return &json2.Error{Code: json2.E_BAD_PARAMS, Message: err.Error(), Data: procedure}
	default:
		return &json2.Error{Code: json2.E_SERVER, Message: err.Error(), Data: procedure}
	}
}

func fromRPCError(procedure string, e *json2.Error) error {
	switch e.Code {
	case CodeNotFound:
		return &NotFoundError{Procedure: procedure, Message: e.Message}
	case json2.E_NO_METHOD:
		return &ErrProcedureNotFound{Procedure: procedure}
	default:
		return &RemoteError{Procedure: procedure, Code: int(e.Code), Message: e.Message}
	}
}

// NewJSONRPCHandler serves every procedure reachable through caller as the
// JSON-RPC 2.0 method Procedures.Call.
func NewJSONRPCHandler(caller Caller, logger *slog.Logger) (http.Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := rpc.NewServer()
	s.RegisterCodec(json2.NewCodec(), "application/json")
	if err := s.RegisterService(&rpcService{caller: caller, logger: logger}, ServiceName); err != nil {
		return nil, fmt.Errorf("procedure: register json-rpc service: %w", err)
	}
	return s, nil
}

// JSONRPCCaller calls procedures on a remote NewJSONRPCHandler endpoint.
type JSONRPCCaller struct {
	endpoint string
	client   *http.Client
}

// NewJSONRPCCaller returns a caller for endpoint. A nil client uses a
// 30s-timeout default.
func NewJSONRPCCaller(endpoint string, client *http.Client) *JSONRPCCaller {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &JSONRPCCaller{endpoint: endpoint, client: client}
}

func (c *JSONRPCCaller) Call(ctx context.Context, procedure string, input []byte) ([]byte, error) {
	body, err := json2.EncodeClientRequest(MethodCall, &CallArgs{Procedure: procedure, Input: input})
	if err != nil {
		return nil, fmt.Errorf("procedure/jsonrpc: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("procedure/jsonrpc: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if id := kit.GetTraceID(ctx); id != "" {
		req.Header.Set("X-Trace-ID", id)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("procedure/jsonrpc: do request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("procedure/jsonrpc: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var reply CallReply
	if err := json2.DecodeClientResponse(io.LimitReader(resp.Body, maxResponseBody), &reply); err != nil {
		var rpcErr *json2.Error
		if errors.As(err, &rpcErr) {
			return nil, fromRPCError(procedure, rpcErr)
		}
		return nil, fmt.Errorf("procedure/jsonrpc: decode response: %w", err)
	}
	return reply.Result, nil
}

// Close releases idle connections.
func (c *JSONRPCCaller) Close() {
	c.client.CloseIdleConnections()
}

type jsonrpcConfig struct {
	TimeoutMs        int64 `json:"timeout_ms"`
	MaxRetries       int   `json:"max_retries"`
	BackoffMs        int64 `json:"backoff_ms"`
	BreakerThreshold int   `json:"breaker_threshold"`
}

// JSONRPCFactory builds routes that forward a procedure to another chirp
// instance. Route config keys: timeout_ms (default 30000), max_retries,
// backoff_ms (default 100) and breaker_threshold (0 disables the breaker).
//
//	router.RegisterTransport(procedure.StrategyJSONRPC, procedure.JSONRPCFactory(logger))
func JSONRPCFactory(logger *slog.Logger) TransportFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return func(procedure, endpoint string, config json.RawMessage) (Handler, func(), error) {
		u, err := url.Parse(endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, nil, fmt.Errorf("procedure/jsonrpc: invalid endpoint %q", endpoint)
		}

		var cfg jsonrpcConfig
		if len(config) > 0 {
			if err := json.Unmarshal(config, &cfg); err != nil {
				return nil, nil, fmt.Errorf("procedure/jsonrpc: route config: %w", err)
			}
		}
		timeout := 30 * time.Second
		if cfg.TimeoutMs > 0 {
			timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
		}
		backoff := 100 * time.Millisecond
		if cfg.BackoffMs > 0 {
			backoff = time.Duration(cfg.BackoffMs) * time.Millisecond
		}

		caller := NewJSONRPCCaller(endpoint, &http.Client{Timeout: timeout})
		h := func(ctx context.Context, input []byte) ([]byte, error) {
			return caller.Call(ctx, procedure, input)
		}

		mws := []HandlerMiddleware{Logging(logger, procedure)}
		if cfg.MaxRetries > 0 {
			mws = append(mws, WithRetry(cfg.MaxRetries, backoff, logger))
		}
		if cfg.BreakerThreshold > 0 {
			mws = append(mws, WithCircuitBreaker(NewCircuitBreaker(WithBreakerThreshold(cfg.BreakerThreshold)), procedure))
		}
		return Chain(mws...)(h), caller.Close, nil
	}
}
