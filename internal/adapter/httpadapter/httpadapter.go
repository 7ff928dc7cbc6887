// Package httpadapter implements the HTTP half of the backend adapter
// seam: a chi-routed server wrapping any adapter.Backend, and a Client
// implementing adapter.Backend by speaking to that server. Point Client at
// Server and it must produce byte-identical results to calling the wrapped
// adapter.Backend directly, which is what lets web-mode tests exercise the
// core without the desktop host runtime.
package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kittclouds/nodespace/internal/adapter"
	"github.com/kittclouds/nodespace/internal/nodeerr"
)

// errorBody is the structured status+body error shape the dev-server
// transport returns.
type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func statusFor(kind nodeerr.Kind) int {
	switch kind {
	case nodeerr.KindNotFound:
		return http.StatusNotFound
	case nodeerr.KindUniqueViolation, nodeerr.KindVersionConflict, nodeerr.KindCycleWouldOccur:
		return http.StatusConflict
	case nodeerr.KindForeignKeyViolation, nodeerr.KindSchemaViolation:
		return http.StatusUnprocessableEntity
	case nodeerr.KindBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := nodeerr.AsKind(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(kind))
	_ = json.NewEncoder(w).Encode(errorBody{Kind: kind.String(), Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// NewServer routes the seam's eight operations (the seven node operations
// plus the /events diagnostics window) over backend.
func NewServer(backend adapter.Backend, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Post("/init", func(w http.ResponseWriter, req *http.Request) {
		var body adapter.InitRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := backend.InitializeDatabase(req.Context(), body); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/nodes", func(w http.ResponseWriter, req *http.Request) {
		var body adapter.CreateNodeRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		n, err := backend.CreateNode(req.Context(), body)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, n)
	})

	r.Get("/nodes/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		n, err := backend.GetNode(req.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if n == nil {
			writeError(w, nodeerr.NotFoundf(id))
			return
		}
		writeJSON(w, n)
	})

	r.Patch("/nodes/{id}", func(w http.ResponseWriter, req *http.Request) {
		var body adapter.UpdateNodeRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		n, err := backend.UpdateNode(req.Context(), chi.URLParam(req, "id"), body)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, n)
	})

	r.Delete("/nodes/{id}", func(w http.ResponseWriter, req *http.Request) {
		if err := backend.DeleteNode(req.Context(), chi.URLParam(req, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/nodes/{id}/children", func(w http.ResponseWriter, req *http.Request) {
		children, err := backend.GetChildren(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, children)
	})

	r.Get("/events", func(w http.ResponseWriter, req *http.Request) {
		k, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		events, err := backend.GetRecentEvents(req.Context(), k)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, events)
	})

	r.Post("/query", func(w http.ResponseWriter, req *http.Request) {
		var body adapter.QueryRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		results, err := backend.QueryNodes(req.Context(), body)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, results)
	})

	return r
}

// Client implements adapter.Backend against a running Server, the "used by
// tests in web mode" half of the seam.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client pointed at baseURL (e.g. "http://127.0.0.1:8080").
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: hc}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		return nodeerr.New(kindFromString(eb.Kind), eb.Message, nil)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func kindFromString(s string) nodeerr.Kind {
	for k := nodeerr.KindNotFound; k <= nodeerr.KindCorrupt; k++ {
		if k.String() == s {
			return k
		}
	}
	return nodeerr.KindUnknown
}

func (c *Client) InitializeDatabase(ctx context.Context, req adapter.InitRequest) error {
	return c.do(ctx, http.MethodPost, "/init", req, nil)
}

func (c *Client) CreateNode(ctx context.Context, req adapter.CreateNodeRequest) (*adapter.NodeView, error) {
	var out adapter.NodeView
	if err := c.do(ctx, http.MethodPost, "/nodes", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetNode(ctx context.Context, id string) (*adapter.NodeView, error) {
	var out adapter.NodeView
	if err := c.do(ctx, http.MethodGet, "/nodes/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateNode(ctx context.Context, id string, req adapter.UpdateNodeRequest) (*adapter.NodeView, error) {
	var out adapter.NodeView
	if err := c.do(ctx, http.MethodPatch, "/nodes/"+id, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteNode(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/nodes/"+id, nil, nil)
}

func (c *Client) GetChildren(ctx context.Context, parentID string) ([]*adapter.NodeView, error) {
	var out []*adapter.NodeView
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/nodes/%s/children", parentID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) QueryNodes(ctx context.Context, q adapter.QueryRequest) ([]*adapter.NodeView, error) {
	var out []*adapter.NodeView
	if err := c.do(ctx, http.MethodPost, "/query", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetRecentEvents(ctx context.Context, k int) ([]adapter.EventView, error) {
	var out []adapter.EventView
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/events?limit=%d", k), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
