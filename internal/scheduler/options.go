package scheduler

import (
	"bonfire/internal/eventbus"
	"bonfire/internal/metrics"
	"bonfire/internal/timer"
	logx "bonfire/pkg/logx"
)

type Option func(*Scheduler)

func WithLogger(log logx.Logger) Option {
	return func(s *Scheduler) {
		if !log.IsZero() {
			s.log = log
		}
	}
}

// WithClock replaces the wall clock (tests use timer.Fake).
func WithClock(c timer.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithBus publishes task lifecycle events to bus.
func WithBus(bus eventbus.Bus) Option {
	return func(s *Scheduler) {
		if bus != nil {
			s.bus = bus
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}
