package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/khiwniti/beta-bitebase/internal/logging"
	"github.com/khiwniti/beta-bitebase/internal/metrics"
)

// Router resolves capability names against the table and calls the backend
// of the owning server.
type Router struct {
	table    *Table
	backends map[string]Backend
	logger   *slog.Logger
	now      func() time.Time
}

// NewRouter requires a backend for every server in the table.
func NewRouter(table *Table, backends map[string]Backend) (*Router, error) {
	if table == nil {
		return nil, errors.New("dispatch: table must not be nil")
	}
	own := make(map[string]Backend, len(backends))
	for _, s := range table.Servers() {
		b, ok := backends[s.Name]
		if !ok || b == nil {
			return nil, fmt.Errorf("dispatch: no backend for server %q", s.Name)
		}
		own[s.Name] = b
	}
	return &Router{
		table:    table,
		backends: own,
		logger:   logging.WithComponent("dispatch"),
		now:      time.Now,
	}, nil
}

// DefaultBackends builds an HTTP backend per server and a chat backend on gen
// for the model server.
func DefaultBackends(table *Table, client *http.Client, gen Generator) map[string]Backend {
	backends := make(map[string]Backend)
	for _, s := range table.Servers() {
		if s.Name == ServerOllama {
			backends[s.Name] = NewChatBackend(gen)
			continue
		}
		backends[s.Name] = NewHTTPBackend(s.BaseURL, client)
	}
	return backends
}

// Table returns the dispatch table.
func (r *Router) Table() *Table {
	return r.table
}

// Dispatch runs the named capability. Unknown names fail without a fallback;
// any downstream failure yields the category fallback payload.
func (r *Router) Dispatch(ctx context.Context, name string, params map[string]interface{}, userID string, callCtx map[string]interface{}) Result {
	start := r.now()
	desc, ok := r.table.Lookup(name)
	if !ok {
		r.logger.Warn("Unknown tool requested", "tool", name, "user_id", userID)
		return Result{
			Tool:          name,
			Success:       false,
			ErrorKind:     ErrorKindUnknownTool,
			Error:         ErrUnknownTool.Error(),
			ExecutionTime: r.now().Sub(start).Seconds(),
		}
	}
	return r.call(ctx, desc, Call{Parameters: params, UserID: userID, Context: callCtx}, start)
}

// CallServer posts body to an endpoint of a tool server as-is, with the same
// timeout and fallback rules as Dispatch.
func (r *Router) CallServer(ctx context.Context, server, endpoint string, body map[string]interface{}) (Result, error) {
	start := r.now()
	spec, ok := r.table.Server(server)
	if !ok || spec.PathName == "" {
		return Result{}, fmt.Errorf("%w: server %q", ErrUnknownTool, server)
	}
	desc := ToolDescriptor{
		Name:     endpoint,
		Server:   spec.Name,
		Category: spec.Category,
		Endpoint: endpoint,
		Path:     "/" + spec.PathName + "/" + endpoint,
		Method:   http.MethodPost,
		Protocol: ProtocolRaw,
		Timeout:  r.table.toolTimeout,
	}
	return r.call(ctx, desc, Call{Parameters: body}, start), nil
}

func (r *Router) call(ctx context.Context, desc ToolDescriptor, call Call, start time.Time) Result {
	if desc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, desc.Timeout)
		defer cancel()
	}

	payload, err := r.backends[desc.Server].Call(ctx, desc, call)
	elapsed := r.now().Sub(start)
	metrics.DispatchLatency.WithLabelValues(desc.Server).Observe(elapsed.Seconds())

	if err != nil {
		metrics.DispatchCount.WithLabelValues(desc.Server, string(SourceFallback)).Inc()
		r.logger.Warn("Downstream unavailable, serving fallback",
			"tool", desc.Name,
			"server", desc.Server,
			"user_id", call.UserID,
			"elapsed", elapsed,
			"error", err)
		return Result{
			Tool:          desc.Name,
			Server:        desc.Server,
			Success:       true,
			Payload:       FallbackPayload(desc, call),
			ErrorKind:     ErrorKindDownstreamUnavailable,
			ExecutionTime: elapsed.Seconds(),
			Source:        SourceFallback,
		}
	}

	metrics.DispatchCount.WithLabelValues(desc.Server, string(SourceLive)).Inc()
	r.logger.Debug("Dispatch completed", "tool", desc.Name, "server", desc.Server, "elapsed", elapsed)
	return Result{
		Tool:          desc.Name,
		Server:        desc.Server,
		Success:       true,
		Payload:       payload,
		ExecutionTime: elapsed.Seconds(),
		Source:        SourceLive,
	}
}
