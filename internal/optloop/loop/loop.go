// Package loop orchestrates the sequential optimization cycle: state
// update, model refit, acquisition optimization, candidate emission. It
// supports both a single-step "suggest next points" mode driven by an
// external evaluator and a fully automatic run-to-completion mode.
package loop

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/harmonlabs/optloop/internal/optloop"
	"github.com/harmonlabs/optloop/internal/optloop/acquisition"
	"github.com/harmonlabs/optloop/internal/optloop/space"
	"github.com/harmonlabs/optloop/internal/optloop/state"
)

// Phase is the loop's state-machine phase.
type Phase int

const (
	// PhaseReady: space, model and acquisition are configured; the history
	// may still be empty. A proposal can be requested.
	PhaseReady Phase = iota
	// PhaseAwaitingResult: a candidate batch has been proposed; the loop
	// is paused pending externally supplied results.
	PhaseAwaitingResult
	// PhaseFinished: a stopping condition has been met.
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseReady:
		return "ready"
	case PhaseAwaitingResult:
		return "awaiting_result"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Objective is a callable the loop may evaluate internally in Run. External
// callers evaluating out-of-band never hand the loop one.
type Objective func(point []float64) (float64, error)

// Proposer solves the acquisition-maximization sub-problem. Satisfied by
// optimizer.Optimizer.
type Proposer interface {
	Propose(m optloop.SurrogateModel, acq acquisition.Acquisition, sp *space.Space, hist state.Snapshot, k int) ([][]float64, error)
}

// Config assembles a loop. Space, Model, Acquisition and Proposer are
// required; the seed history is optional.
type Config struct {
	Space       *space.Space
	Model       optloop.SurrogateModel
	Acquisition acquisition.Acquisition
	Proposer    Proposer

	// BatchSize is the number of points proposed per round. Zero means 1.
	BatchSize int

	// SeedInputs/SeedOutputs pre-populate the history. Shapes must match.
	SeedInputs  [][]float64
	SeedOutputs []float64

	// Logger routes round diagnostics. Nil disables logging.
	Logger *zap.Logger
}

// Loop is a single optimization run. Not safe for concurrent use: callers
// must serialize externally (single-writer discipline on the history).
type Loop struct {
	space    *space.Space
	model    optloop.SurrogateModel
	acq      acquisition.Acquisition
	proposer Proposer
	batch    int
	logger   *zap.Logger

	st           *state.State
	phase        Phase
	lastProposed [][]float64
}

// New creates a loop in PhaseReady, optionally pre-seeded with an initial
// design.
func New(cfg Config) (*Loop, error) {
	const op = "Loop.New"
	if cfg.Space == nil || cfg.Model == nil || cfg.Acquisition == nil || cfg.Proposer == nil {
		return nil, optloop.ProtocolViolation(op, "space, model, acquisition and proposer are required")
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if len(cfg.SeedInputs) != len(cfg.SeedOutputs) {
		return nil, optloop.ShapeMismatch(op, "seed has %d inputs but %d outputs", len(cfg.SeedInputs), len(cfg.SeedOutputs))
	}

	st, err := state.New(cfg.Space.Dim())
	if err != nil {
		return nil, err
	}
	l := &Loop{
		space:    cfg.Space,
		model:    cfg.Model,
		acq:      cfg.Acquisition,
		proposer: cfg.Proposer,
		batch:    cfg.BatchSize,
		logger:   cfg.Logger.Named("loop"),
		st:       st,
		phase:    PhaseReady,
	}
	if len(cfg.SeedInputs) > 0 {
		seed := make([]state.Observation, len(cfg.SeedInputs))
		for i, in := range cfg.SeedInputs {
			if err := cfg.Space.Validate(in); err != nil {
				return nil, err
			}
			seed[i] = state.Observation{Input: in, Output: cfg.SeedOutputs[i]}
		}
		if err := st.Update(seed); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// FromSnapshot reconstructs a loop from a previously exported history. The
// new loop is equivalent to the one that exported the snapshot: resuming
// optimization from it loses nothing. Config seed fields are ignored.
func FromSnapshot(cfg Config, snap state.Snapshot) (*Loop, error) {
	cfg.SeedInputs = snap.Inputs
	cfg.SeedOutputs = snap.Outputs
	return New(cfg)
}

// Phase returns the loop's current state-machine phase.
func (l *Loop) Phase() Phase { return l.phase }

// Snapshot exports the full observed history in evaluation order,
// sufficient to reconstruct an equivalent loop via FromSnapshot.
func (l *Loop) Snapshot() state.Snapshot { return l.st.Snapshot() }

// Len returns the number of observations recorded so far.
func (l *Loop) Len() int { return l.st.Len() }

// Best returns the observation with the lowest output so far.
func (l *Loop) Best() (state.Observation, bool) { return l.st.Best() }

// LastProposed returns the batch most recently emitted, or nil.
func (l *Loop) LastProposed() [][]float64 {
	if l.lastProposed == nil {
		return nil
	}
	out := make([][]float64, len(l.lastProposed))
	for i, pt := range l.lastProposed {
		out[i] = append([]float64(nil), pt...)
	}
	return out
}

// Observe submits externally computed results. In PhaseAwaitingResult this
// answers the last proposal and returns the loop to PhaseReady; in
// PhaseReady it augments the seed history. The whole batch is validated
// before anything is appended.
func (l *Loop) Observe(results []state.Observation) error {
	const op = "Loop.Observe"
	if l.phase == PhaseFinished {
		return optloop.ProtocolViolation(op, "loop is finished")
	}
	if len(results) == 0 {
		return optloop.ProtocolViolation(op, "no results submitted")
	}
	for i, obs := range results {
		if err := l.space.Validate(obs.Input); err != nil {
			return optloop.Wrap(err, op+": result "+itoa(i))
		}
	}
	if err := l.st.Update(results); err != nil {
		return err
	}
	l.phase = PhaseReady
	l.lastProposed = nil
	l.logger.Debug("observations recorded",
		zap.Int("count", len(results)),
		zap.Int("history", l.st.Len()),
	)
	return nil
}

// SuggestNext proposes the next candidate batch. If results is non-empty
// it is applied first, answering the previous proposal. Calling twice in a
// row without intervening results is a protocol violation: the model for
// the next round is only correct once the previous proposal's results are
// in the history.
//
// On any error the history is exactly as it was before the call.
func (l *Loop) SuggestNext(results []state.Observation) ([][]float64, error) {
	const op = "Loop.SuggestNext"
	if l.phase == PhaseFinished {
		return nil, optloop.ProtocolViolation(op, "loop is finished")
	}
	if len(results) > 0 {
		if err := l.Observe(results); err != nil {
			return nil, err
		}
	} else if l.phase == PhaseAwaitingResult {
		return nil, optloop.ProtocolViolation(op, "previous proposal is still awaiting results")
	}

	batch, err := l.propose(op)
	if err != nil {
		return nil, err
	}
	l.lastProposed = batch
	l.phase = PhaseAwaitingResult
	return batch, nil
}

// propose refits the model on the full history and maximizes the
// acquisition. The loop stays in PhaseReady on failure.
func (l *Loop) propose(op string) ([][]float64, error) {
	if l.st.Len() == 0 {
		return nil, optloop.ModelFitf(op, "history is empty; seed the loop before requesting a proposal")
	}

	X, y := l.st.Matrices()
	if err := l.model.Fit(X, y); err != nil {
		return nil, err
	}
	if best, ok := l.st.Best(); ok {
		if ba, isAware := l.acq.(acquisition.BestAware); isAware {
			ba.UpdateBest(best.Output)
		}
	}

	batch, err := l.proposer.Propose(l.model, l.acq, l.space, l.st.Snapshot(), l.batch)
	if err != nil {
		return nil, err
	}
	for i, pt := range batch {
		if err := l.space.Validate(pt); err != nil {
			return nil, optloop.Wrap(err, op+": proposer returned an out-of-space point at index "+itoa(i))
		}
	}
	l.logger.Debug("batch proposed",
		zap.Int("size", len(batch)),
		zap.Int("history", l.st.Len()),
	)
	return batch, nil
}

// Result summarizes a completed Run.
type Result struct {
	Best       state.Observation
	Iterations int
	Reason     StopReason
}

// Run drives the loop to completion: propose, evaluate objective
// internally, update, check the stopping condition. Driving the loop one
// round at a time via SuggestNext plus external evaluation produces the
// same final history as Run with an iteration-count condition, given a
// deterministic model and proposer.
func (l *Loop) Run(ctx context.Context, objective Objective, stop StopCondition) (*Result, error) {
	const op = "Loop.Run"
	if objective == nil || stop == nil {
		return nil, optloop.ProtocolViolation(op, "objective and stopping condition are required")
	}
	if l.phase != PhaseReady {
		return nil, optloop.ProtocolViolation(op, "loop is %s, not ready", l.phase)
	}

	iteration := 0
	for {
		if reason, done := stop.Done(l.st, iteration); done {
			l.phase = PhaseFinished
			best, _ := l.st.Best()
			l.logger.Info("run finished",
				zap.String("reason", string(reason)),
				zap.Int("iterations", iteration),
				zap.Int("history", l.st.Len()),
			)
			return &Result{Best: best, Iterations: iteration, Reason: reason}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		batch, err := l.SuggestNext(nil)
		if err != nil {
			return nil, err
		}
		results := make([]state.Observation, 0, len(batch))
		for _, pt := range batch {
			value, err := objective(pt)
			if err != nil {
				return nil, optloop.Wrap(err, op+": objective evaluation failed")
			}
			results = append(results, state.Observation{Input: pt, Output: value})
		}
		if err := l.Observe(results); err != nil {
			return nil, err
		}
		iteration++
	}
}

func itoa(i int) string { return strconv.Itoa(i) }
