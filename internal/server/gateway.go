package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/khiwniti/beta-bitebase/internal/dispatch"
)

// passthroughRoutes are the server endpoints the gateway forwards as-is,
// keyed by the server's URL path segment.
var passthroughRoutes = map[string][]string{
	"geospatial": {"analyze", "search"},
	"restaurant": {"search", "analyze"},
	"marketing":  {"campaign", "analytics"},
	"seo":        {"analyze", "optimize"},
	"accounting": {"transactions", "reports"},
}

// ToolRouter runs tools for the gateway
type ToolRouter interface {
	Dispatch(ctx context.Context, name string, params map[string]interface{}, userID string, callCtx map[string]interface{}) dispatch.Result
	CallServer(ctx context.Context, server, endpoint string, body map[string]interface{}) (dispatch.Result, error)
	Table() *dispatch.Table
}

// HealthBoard reports the last known state of each server
type HealthBoard interface {
	Statuses() []dispatch.ServerStatus
	ToolStatus(server string) string
}

// ToolInfo describes one tool in the gateway listing
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Server      string `json:"server"`
	Category    string `json:"category"`
	Status      string `json:"status"`
}

// ToolsResponse is the gateway tool listing
type ToolsResponse struct {
	Tools      []ToolInfo `json:"tools"`
	TotalCount int        `json:"total_count"`
	Categories []string   `json:"categories"`
}

// ToolCallRequest is a tool invocation through the gateway
type ToolCallRequest struct {
	ToolName   string                 `json:"tool_name"`
	Parameters map[string]interface{} `json:"parameters"`
	UserID     string                 `json:"user_id"`
	Context    map[string]interface{} `json:"context"`
}

// ServersHealthResponse is the health board as JSON
type ServersHealthResponse struct {
	Servers      []dispatch.ServerStatus `json:"servers"`
	TotalCount   int                     `json:"total_count"`
	HealthyCount int                     `json:"healthy_count"`
	Timestamp    string                  `json:"timestamp"`
}

type gatewayHandlers struct {
	router ToolRouter
	board  HealthBoard
	srv    *Server
}

// RegisterGateway mounts the tool gateway API
func RegisterGateway(s *Server, router ToolRouter, board HealthBoard) {
	h := &gatewayHandlers{router: router, board: board, srv: s}

	s.HandleFunc("GET /tools", h.listTools)
	s.HandleFunc("POST /tools/call", h.callTool)
	s.HandleFunc("GET /servers/health", h.serversHealth)

	for path, endpoints := range passthroughRoutes {
		sv, ok := router.Table().ServerByPath(path)
		if !ok {
			s.logger.Warn("Skipping passthrough for unknown server", "path", path)
			continue
		}
		for _, endpoint := range endpoints {
			s.HandleFunc("POST /"+path+"/"+endpoint, h.passthrough(sv.Name, endpoint))
		}
	}
}

func (h *gatewayHandlers) listTools(w http.ResponseWriter, r *http.Request) {
	table := h.router.Table()
	tools := []ToolInfo{}
	for _, sv := range table.Servers() {
		if sv.PathName == "" {
			continue
		}
		status := h.board.ToolStatus(sv.Name)
		for _, name := range sv.Tools {
			tools = append(tools, ToolInfo{
				Name:        name,
				Description: sv.Description,
				Server:      sv.Name,
				Category:    sv.Category,
				Status:      status,
			})
		}
	}

	writeJSON(w, http.StatusOK, ToolsResponse{
		Tools:      tools,
		TotalCount: len(tools),
		Categories: table.Categories(),
	})
}

func (h *gatewayHandlers) callTool(w http.ResponseWriter, r *http.Request) {
	var req ToolCallRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ToolName == "" {
		http.Error(w, "tool_name required", http.StatusBadRequest)
		return
	}

	res := h.router.Dispatch(r.Context(), req.ToolName, req.Parameters, req.UserID, req.Context)
	if errors.Is(res.Err(), dispatch.ErrUnknownTool) {
		res.Error = "Tool '" + req.ToolName + "' not found"
		writeJSON(w, http.StatusNotFound, res)
		return
	}

	if res.IsFallback() {
		h.srv.logger.Warn("Tool served from fallback",
			"tool", req.ToolName,
			"user_id", req.UserID,
			"error_kind", res.ErrorKind)
	} else {
		h.srv.logger.Info("Tool executed",
			"tool", req.ToolName,
			"user_id", req.UserID,
			"source", res.Source,
			"execution_time", res.ExecutionTime)
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *gatewayHandlers) serversHealth(w http.ResponseWriter, r *http.Request) {
	statuses := h.board.Statuses()
	healthy := 0
	for _, st := range statuses {
		if st.Status == dispatch.StatusHealthy {
			healthy++
		}
	}
	writeJSON(w, http.StatusOK, ServersHealthResponse{
		Servers:      statuses,
		TotalCount:   len(statuses),
		HealthyCount: healthy,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *gatewayHandlers) passthrough(server, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{}
		if err := decodeJSON(w, r, &body); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		res, err := h.router.CallServer(r.Context(), server, endpoint, body)
		if err != nil {
			h.srv.logger.Error("Passthrough failed", "server", server, "endpoint", endpoint, "error", err)
			http.Error(w, "Unknown server", http.StatusNotFound)
			return
		}

		if res.IsFallback() {
			h.srv.logger.Warn("Passthrough served from fallback", "server", server, "endpoint", endpoint)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Bitebase-Source", string(res.Source))
		w.WriteHeader(http.StatusOK)
		w.Write(res.Payload)
	}
}
