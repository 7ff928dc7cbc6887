// Package mcp serves the Node Service over a line-framed JSON-RPC 2.0
// stdio transport: one JSON object per line in, one per line out, with a
// name->handler dispatch table over the node/query surface.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/kittclouds/nodespace/internal/eventbus"
	"github.com/kittclouds/nodespace/internal/node"
	"github.com/kittclouds/nodespace/internal/nodeerr"
)

// Request is the JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is the JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// RPCError is the JSON-RPC 2.0 error shape.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// Application error codes (-32000…-32099), one per nodeerr.Kind the
// dispatch layer can surface to a caller.
const (
	codeNotFound            = -32001
	codeUniqueViolation      = -32002
	codeForeignKeyViolation  = -32003
	codeVersionConflict      = -32004
	codeSchemaViolation      = -32005
	codeCycleWouldOccur      = -32006
	codeBusy                 = -32007
)

// Server dispatches JSON-RPC requests against a Node Service. Every
// mutating method here already writes immediately and publishes its event
// at the service layer (the read methods publish nothing), so
// the dispatcher calls the service directly rather than routing through
// the persistence coordinator's debounce/batch path; that path exists
// for the interactive editor, not a request/response API.
type Server struct {
	svc *node.Service
	bus *eventbus.Bus
	log *zap.Logger
}

// New builds a Server bound to svc. bus backs debug_recent_events; it may be
// nil, in which case that method reports an empty history.
func New(svc *node.Service, bus *eventbus.Bus, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{svc: svc, bus: bus, log: log}
}

type methodHandler func(ctx context.Context, s *Server, params json.RawMessage) (any, *RPCError)

var dispatchTable = map[string]methodHandler{
	"create_node":                 handleCreateNode,
	"get_node":                    handleGetNode,
	"update_node":                 handleUpdateNode,
	"delete_node":                 handleDeleteNode,
	"query_nodes":                 handleQueryNodes,
	"create_nodes_from_markdown":  handleCreateFromMarkdown,
	"render_markdown":             handleRenderMarkdown,
	"debug_recent_events":         handleRecentEvents,
}

// Serve runs the read-eval-respond loop: one JSON object per input line,
// one JSON object per output line. Invalid JSON and unknown methods get an
// error response rather than terminating the loop.
func (s *Server) Serve(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, Response{
				JSONRPC: "2.0",
				Error:   &RPCError{Code: codeParseError, Message: "parse error", Data: err.Error()},
			})
			continue
		}
		if req.JSONRPC != "2.0" || req.Method == "" {
			s.writeResponse(w, Response{
				JSONRPC: "2.0", ID: req.ID,
				Error: &RPCError{Code: codeInvalidRequest, Message: "invalid request"},
			})
			continue
		}

		resp := s.handle(context.Background(), req)
		s.writeResponse(w, resp)
	}
	return scanner.Err()
}

func (s *Server) writeResponse(w io.Writer, resp Response) {
	b, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("encode mcp response", zap.Error(err))
		return
	}
	fmt.Fprintf(w, "%s\n", b)
}

func (s *Server) handle(ctx context.Context, req Request) Response {
	handler, ok := dispatchTable[req.Method]
	if !ok {
		return Response{
			JSONRPC: "2.0", ID: req.ID,
			Error: &RPCError{Code: codeMethodNotFound, Message: "method not found", Data: req.Method},
		}
	}

	result, rerr := handler(ctx, s, req.Params)
	if rerr != nil {
		return Response{JSONRPC: "2.0", ID: req.ID, Error: rerr}
	}
	return Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

// errorToRPC classifies a typed nodeerr into the application error range,
// falling back to -32603 with a sanitized message for anything this
// dispatcher doesn't recognize. RPCError.Data is deliberately never set
// from err.Error(): the underlying error may wrap a raw SQLite driver
// message ("FOREIGN KEY constraint failed", "UNIQUE constraint failed:
// nodes.id") naming internal table/column identifiers, which must not
// reach the caller. The full error is logged server-side instead, where
// that detail is actually useful.
func (s *Server) errorToRPC(err error) *RPCError {
	if err == nil {
		return nil
	}
	code, msg := codeInternalError, "internal error"
	switch nodeerr.AsKind(err) {
	case nodeerr.KindNotFound:
		code, msg = codeNotFound, "not found"
	case nodeerr.KindUniqueViolation:
		code, msg = codeUniqueViolation, "unique violation"
	case nodeerr.KindForeignKeyViolation:
		code, msg = codeForeignKeyViolation, "foreign key violation"
	case nodeerr.KindVersionConflict:
		code, msg = codeVersionConflict, "version conflict"
	case nodeerr.KindSchemaViolation:
		code, msg = codeSchemaViolation, "schema violation"
	case nodeerr.KindCycleWouldOccur:
		code, msg = codeCycleWouldOccur, "cycle would occur"
	case nodeerr.KindBusy:
		code, msg = codeBusy, "busy"
	}
	s.log.Warn("mcp request failed", zap.Int("rpc_code", code), zap.Error(err))
	return &RPCError{Code: code, Message: msg}
}

func invalidParams(err error) *RPCError {
	return &RPCError{Code: codeInvalidParams, Message: "invalid params", Data: err.Error()}
}
