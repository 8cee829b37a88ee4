package scheduler

import (
	"sync"
	"time"

	logx "bonfire/pkg/logx"

	"golang.org/x/time/rate"
)

const warnEvery = 5 * time.Second

// warner throttles repeated warnings per operation. Store outages make
// every fire fail the same way; one line every few seconds is enough.
type warner struct {
	log logx.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	dropped  map[string]int
}

func newWarner(log logx.Logger) *warner {
	return &warner{
		log:      log,
		limiters: map[string]*rate.Limiter{},
		dropped:  map[string]int{},
	}
}

func (w *warner) warn(op, key string, err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	lim := w.limiters[op]
	if lim == nil {
		lim = rate.NewLimiter(rate.Every(warnEvery), 1)
		w.limiters[op] = lim
	}
	if !lim.Allow() {
		w.dropped[op]++
		w.mu.Unlock()
		w.log.Debug("task operation failed", logx.String("op", op), logx.String("key", key), logx.Err(err))
		return
	}
	suppressed := w.dropped[op]
	w.dropped[op] = 0
	w.mu.Unlock()

	fields := []logx.Field{logx.String("op", op), logx.String("key", key), logx.Err(err)}
	if suppressed > 0 {
		fields = append(fields, logx.Int("suppressed", suppressed))
	}
	w.log.Warn("task operation failed", fields...)
}
