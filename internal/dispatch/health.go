package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/khiwniti/beta-bitebase/internal/logging"
	"github.com/khiwniti/beta-bitebase/internal/metrics"
)

// Server status values
const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Tool status values derived from the owning server
const (
	ToolAvailable   = "available"
	ToolUnavailable = "unavailable"
	ToolUnknown     = "unknown"
)

const maxConcurrentChecks = 4

// ServerStatus is the last health check outcome of one server.
type ServerStatus struct {
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Category   string    `json:"category"`
	ToolsCount int       `json:"tools_count"`
	Status     string    `json:"status"`
	LastCheck  time.Time `json:"last_check,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Board holds the latest status of every server.
type Board struct {
	mu       sync.RWMutex
	order    []string
	statuses map[string]ServerStatus
}

// NewBoard creates a board with every server of the table in unknown state.
func NewBoard(table *Table) *Board {
	b := &Board{statuses: make(map[string]ServerStatus)}
	for _, s := range table.Servers() {
		b.order = append(b.order, s.Name)
		b.statuses[s.Name] = ServerStatus{
			Name:       s.Name,
			URL:        s.BaseURL + s.HealthPath,
			Category:   s.Category,
			ToolsCount: len(s.Tools),
			Status:     StatusUnknown,
		}
	}
	return b
}

// Statuses returns a snapshot in table order.
func (b *Board) Statuses() []ServerStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]ServerStatus, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, b.statuses[name])
	}
	return out
}

// Status returns the status of one server.
func (b *Board) Status(server string) (ServerStatus, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.statuses[server]
	return s, ok
}

// ToolStatus maps the owning server's status onto a tool availability value.
func (b *Board) ToolStatus(server string) string {
	s, ok := b.Status(server)
	if !ok {
		return ToolUnknown
	}
	switch s.Status {
	case StatusHealthy:
		return ToolAvailable
	case StatusUnhealthy:
		return ToolUnavailable
	default:
		return ToolUnknown
	}
}

func (b *Board) record(name string, checked time.Time, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.statuses[name]
	if !ok {
		return
	}
	s.LastCheck = checked
	if err != nil {
		s.Status = StatusUnhealthy
		s.Error = err.Error()
		metrics.ServerUp.WithLabelValues(name).Set(0)
	} else {
		s.Status = StatusHealthy
		s.Error = ""
		metrics.ServerUp.WithLabelValues(name).Set(1)
	}
	b.statuses[name] = s
}

// HealthChecker checks every server's health endpoint and records the outcome.
type HealthChecker struct {
	table   *Table
	board   *Board
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewHealthChecker creates a health checker. A nil client uses a default one.
func NewHealthChecker(table *Table, board *Board, client *http.Client, timeout time.Duration) *HealthChecker {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{
		table:   table,
		board:   board,
		client:  client,
		timeout: timeout,
		logger:  logging.WithComponent("health"),
	}
}

// CheckAll checks all servers concurrently. Individual failures are recorded
// on the board, not returned.
func (c *HealthChecker) CheckAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentChecks)

	for _, s := range c.table.Servers() {
		s := s
		g.Go(func() error {
			err := c.check(gctx, s)
			c.board.record(s.Name, time.Now().UTC(), err)
			if err != nil {
				c.logger.Debug("Server unhealthy", "server", s.Name, "error", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (c *HealthChecker) check(ctx context.Context, s ServerSpec) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+s.HealthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}
