package history

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

var errInjected = errors.New("injected store failure")

// faultHook fails the next n script calls made through a client.
type faultHook struct {
	fails atomic.Int64
}

func (h *faultHook) failNext(n int64) { h.fails.Store(n) }

func (h *faultHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *faultHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if strings.HasPrefix(cmd.Name(), "eval") && h.take() {
			cmd.SetErr(errInjected)
			return errInjected
		}
		return next(ctx, cmd)
	}
}

func (h *faultHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func (h *faultHook) take() bool {
	for {
		n := h.fails.Load()
		if n <= 0 {
			return false
		}
		if h.fails.CompareAndSwap(n, n-1) {
			return true
		}
	}
}
