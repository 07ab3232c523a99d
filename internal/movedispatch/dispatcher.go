// Package movedispatch turns locally proposed moves into outbound frames.
package movedispatch

import (
	"context"

	"go.uber.org/zap"
)

// Sender writes one frame on the live session.
type Sender interface {
	Send(ctx context.Context, frame string) error
}

// Optimist receives the local update after a move has been sent. Version is
// read before the send; ApplyOptimistic must skip the move when an
// authoritative update landed in between, and reports whether it applied.
type Optimist interface {
	Version() uint64
	ApplyOptimistic(m MoveIntent, version uint64) bool
}

// Advisor gives a non-binding opinion on a move; a non-nil error means it looks illegal.
type Advisor interface {
	Advise(m MoveIntent) error
}

type Dispatcher struct {
	sender   Sender
	optimist Optimist
	advisor  Advisor
	logger   *zap.Logger
}

type Option func(*Dispatcher)

// WithOptimist enables the optimistic local update.
func WithOptimist(o Optimist) Option { return func(d *Dispatcher) { d.optimist = o } }

func WithAdvisor(a Advisor) Option { return func(d *Dispatcher) { d.advisor = a } }

func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

func New(sender Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{sender: sender, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit sends the move and reports whether a frame went out. A drop onto the
// source square sends nothing. The server answers with a full snapshot that
// replaces any optimistic state, so there is no local rollback.
func (d *Dispatcher) Submit(ctx context.Context, m MoveIntent) (bool, error) {
	if err := m.Validate(); err != nil {
		return false, err
	}
	if m.Noop() {
		d.logger.Debug("move_dropped_noop", zap.String("square", string(m.Source)))
		return false, nil
	}
	if d.advisor != nil {
		if err := d.advisor.Advise(m); err != nil {
			d.logger.Warn("move_advisory_illegal", zap.String("move", m.Frame()), zap.Error(err))
		}
	}
	var version uint64
	if d.optimist != nil {
		version = d.optimist.Version()
	}
	if err := d.sender.Send(ctx, m.Frame()); err != nil {
		d.logger.Warn("move_send_failed", zap.String("move", m.Frame()), zap.Error(err))
		return false, err
	}
	d.logger.Debug("move_sent", zap.String("move", m.Frame()))
	if d.optimist != nil && !d.optimist.ApplyOptimistic(m, version) {
		d.logger.Debug("move_optimistic_superseded", zap.String("move", m.Frame()))
	}
	return true, nil
}
