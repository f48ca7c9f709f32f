// Package eval implements the deterministic CEK-style machine reducing
// store expressions one frame at a time.
//
// Each step is a pure function of the (expression, environment,
// continuation) pointer triple; the produced frame carries the auxiliary
// witnesses the circuit package needs to re-derive the transition.
package eval

import (
	"context"
	"errors"
	"fmt"

	"github.com/hnfgns/lurk-go/logger"
	"github.com/hnfgns/lurk-go/store"
	"github.com/hnfgns/lurk-go/tag"
)

// DefaultMaxEnvHops bounds the environment bindings a single step may
// examine. It is a tuning constant: deeper lookups become the DepthExceeded
// terminal, and the circuit allocates one hash slot per hop.
const DefaultMaxEnvHops = 8

// Option configures an Evaluator.
type Option func(*Evaluator) error

// WithMaxEnvHops overrides the per-step environment traversal bound. The
// circuit proving the trace must be built with the same bound.
func WithMaxEnvHops(n int) Option {
	return func(ev *Evaluator) error {
		if n <= 0 {
			return fmt.Errorf("eval: max env hops must be positive, got %d", n)
		}
		ev.maxHops = n
		return nil
	}
}

// Evaluator drives the machine over one store. Evaluation of a single trace
// is strictly sequential; independent evaluators over independent (or
// shared, see store.NewShared) stores may run in parallel.
type Evaluator struct {
	s       *store.Store
	maxHops int
}

// New returns an evaluator over s.
func New(s *store.Store, opts ...Option) (*Evaluator, error) {
	ev := &Evaluator{s: s, maxHops: DefaultMaxEnvHops}
	for _, opt := range opts {
		if err := opt(ev); err != nil {
			return nil, err
		}
	}
	return ev, nil
}

// Store returns the arena the evaluator reduces over.
func (ev *Evaluator) Store() *store.Store { return ev.s }

// MaxEnvHops returns the configured per-step traversal bound.
func (ev *Evaluator) MaxEnvHops() int { return ev.maxHops }

// ErrNoBudget reports a non-positive step budget.
var ErrNoBudget = errors.New("eval: max steps must be positive")

// InitialState returns the machine state an evaluation of expr starts from.
func InitialState(expr store.Ptr) State {
	return State{Expr: expr, Env: store.NilPtr(), Cont: store.OutermostK()}
}

// Evaluate reduces expr from an empty environment for at most maxSteps
// frames. The returned trace is always contiguous and provable, whatever
// the reason it stopped; cancellation is observed between frames only, so
// every recorded frame is complete.
func (ev *Evaluator) Evaluate(ctx context.Context, expr store.Ptr, maxSteps int) (*Trace, error) {
	if maxSteps <= 0 {
		return nil, ErrNoBudget
	}
	log := logger.Logger().With().Str("component", "eval").Logger()

	tr := &Trace{Frames: make([]Frame, 0, 16)}
	st := InitialState(expr)
	for i := 0; i < maxSteps; i++ {
		select {
		case <-ctx.Done():
			tr.Reason = Interrupted
			return tr, ctx.Err()
		default:
		}
		f := ev.Step(st)
		tr.Frames = append(tr.Frames, f)
		st = f.Out
		if st.IsTerminal() {
			tr.Reason = Completed
			if st.Expr.Tag == tag.Err {
				tr.Reason = ErrorHalted
			}
			log.Debug().Int("frames", len(tr.Frames)).Stringer("reason", tr.Reason).Msg("evaluation halted")
			return tr, nil
		}
	}
	tr.Reason = MaxStepsReached
	log.Debug().Int("frames", len(tr.Frames)).Msg("step budget exhausted")
	return tr, nil
}
