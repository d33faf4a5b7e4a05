// Package server exposes optimization loop sessions over HTTP. It is
// strictly a consumer of the engine's interfaces: loops are created from a
// parameter-space definition, candidates are served from SuggestNext, and
// external evaluators submit results through Observe.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/harmonlabs/optloop/internal/config"
	"github.com/harmonlabs/optloop/internal/logging"
	"github.com/harmonlabs/optloop/internal/metrics"
	"github.com/harmonlabs/optloop/internal/optloop"
	"github.com/harmonlabs/optloop/internal/optloop/acquisition"
	"github.com/harmonlabs/optloop/internal/optloop/gp"
	"github.com/harmonlabs/optloop/internal/optloop/kernels"
	"github.com/harmonlabs/optloop/internal/optloop/loop"
	"github.com/harmonlabs/optloop/internal/optloop/optimizer"
	"github.com/harmonlabs/optloop/internal/optloop/space"
	"github.com/harmonlabs/optloop/internal/optloop/state"
)

// Logger defines the logging interface used by the server.
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// session is one live loop plus the mutex enforcing its single-writer
// discipline: a loop instance is not safe for concurrent callers.
type session struct {
	mu        sync.Mutex
	id        string
	loop      *loop.Loop
	space     *space.Space
	createdAt time.Time
}

// Server manages loop sessions.
type Server struct {
	cfg     *config.Config
	logger  Logger
	zlog    *zap.Logger
	metrics *metrics.Metrics

	sessionsMu sync.RWMutex
	sessions   map[string]*session
	nextID     atomic.Uint64
}

// NewServer creates a server. zlog is handed to the surrogate models and
// loops it constructs; m may be nil to disable instrumentation.
func NewServer(cfg *config.Config, logger Logger, zlog *zap.Logger, m *metrics.Metrics) *Server {
	if zlog == nil {
		zlog = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		logger:   logger,
		zlog:     zlog,
		metrics:  m,
		sessions: make(map[string]*session),
	}
}

// RegisterRoutes mounts the API on r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/loops", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Post("/{id}/suggest", s.handleSuggest)
		r.Post("/{id}/observe", s.handleObserve)
		r.Get("/{id}/history", s.handleHistory)
		r.Get("/{id}", s.handleStatus)
		r.Delete("/{id}", s.handleDelete)
	})
}

type parameterSpec struct {
	Name       string    `json:"name"`
	Kind       string    `json:"kind"` // continuous, discrete, categorical
	Min        float64   `json:"min,omitempty"`
	Max        float64   `json:"max,omitempty"`
	Values     []float64 `json:"values,omitempty"`
	Categories []string  `json:"categories,omitempty"`
}

type createRequest struct {
	Parameters  []parameterSpec `json:"parameters"`
	BatchSize   int             `json:"batch_size,omitempty"`
	SeedInputs  [][]float64     `json:"seed_inputs,omitempty"`
	SeedOutputs []float64       `json:"seed_outputs,omitempty"`
}

type observeRequest struct {
	Inputs  [][]float64 `json:"inputs"`
	Outputs []float64   `json:"outputs"`
}

// buildSpace converts the wire definition into a space.Space. Constructors
// panic on malformed ranges, so recover them into a caller error.
func buildSpace(specs []parameterSpec) (sp *space.Space, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			sp, err = nil, fmt.Errorf("%v", rec)
		}
	}()

	if len(specs) == 0 {
		return nil, fmt.Errorf("at least one parameter is required")
	}
	params := make([]space.Parameter, len(specs))
	for i, p := range specs {
		switch p.Kind {
		case "continuous":
			params[i] = space.NewContinuous(p.Name, p.Min, p.Max)
		case "discrete":
			params[i] = space.NewDiscrete(p.Name, p.Values)
		case "categorical":
			params[i] = space.NewCategorical(p.Name, p.Categories)
		default:
			return nil, fmt.Errorf("parameter %q: unknown kind %q", p.Name, p.Kind)
		}
	}
	return space.New(params...)
}

// newLoop assembles the default engine stack for a session: Matérn 5/2 GP,
// Expected Improvement, multi-start Nelder-Mead with fantasized batches.
func (s *Server) newLoop(sp *space.Space, req createRequest) (*loop.Loop, error) {
	batch := req.BatchSize
	if batch < 1 {
		batch = s.cfg.Loop.BatchSize
	}

	model := gp.New(kernels.NewMatern52(1.0, 1.0), s.cfg.Loop.NoiseVariance, gp.WithLogger(s.zlog))
	prop := optimizer.New(optimizer.Config{
		Starts:           s.cfg.Loop.OptimizerStarts,
		RandomCandidates: s.cfg.Loop.RandomCandidates,
		Seed:             s.cfg.Loop.Seed,
	})

	return loop.New(loop.Config{
		Space:       sp,
		Model:       model,
		Acquisition: acquisition.NewExpectedImprovement(s.cfg.Loop.AcquisitionXi),
		Proposer:    prop,
		BatchSize:   batch,
		SeedInputs:  req.SeedInputs,
		SeedOutputs: req.SeedOutputs,
		Logger:      s.zlog,
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	sp, err := buildSpace(req.Parameters)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	l, err := s.newLoop(sp, req)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	id := fmt.Sprintf("loop_%d_%d", time.Now().UnixNano(), s.nextID.Add(1))
	sess := &session{id: id, loop: l, space: sp, createdAt: time.Now()}

	s.sessionsMu.Lock()
	s.sessions[id] = sess
	s.sessionsMu.Unlock()

	if s.metrics != nil {
		s.metrics.LoopsActive.Inc()
	}
	s.logger.Info("loop created", map[string]interface{}{
		"loop_id":    id,
		"dimensions": len(req.Parameters),
		"seed_size":  len(req.SeedInputs),
	})

	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"loop_id": id,
		"phase":   l.Phase().String(),
	})
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	// Results may ride along with the suggestion request, answering the
	// previous proposal in one round trip. An empty body is fine; the
	// length may be unknown (chunked), so always attempt the decode.
	var req observeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	results, err := toObservations(req)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}

	sess.mu.Lock()
	start := time.Now()
	batch, err := sess.loop.SuggestNext(results)
	elapsed := time.Since(start)
	sess.mu.Unlock()

	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.SuggestionsTotal.Inc()
		s.metrics.SuggestDuration.Observe(elapsed.Seconds())
		if len(results) > 0 {
			s.metrics.ObservationsTotal.Add(float64(len(results)))
		}
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"points": batch,
		"phase":  loop.PhaseAwaitingResult.String(),
	})
}

func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req observeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	results, err := toObservations(req)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}

	sess.mu.Lock()
	err = sess.loop.Observe(results)
	count := sess.loop.Len()
	sess.mu.Unlock()

	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.ObservationsTotal.Add(float64(len(results)))
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"recorded": len(results),
		"history":  count,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	sess.mu.Lock()
	snap := sess.loop.Snapshot()
	sess.mu.Unlock()

	s.respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	sess.mu.Lock()
	phase := sess.loop.Phase()
	count := sess.loop.Len()
	best, hasBest := sess.loop.Best()
	last := sess.loop.LastProposed()
	sess.mu.Unlock()

	resp := map[string]interface{}{
		"loop_id":    sess.id,
		"phase":      phase.String(),
		"history":    count,
		"parameters": describeSpace(sess.space),
		"created_at": sess.createdAt.Format(time.RFC3339),
	}
	if hasBest {
		resp["best"] = describeBest(sess.space, best)
	}
	if last != nil {
		resp["last_proposed"] = last
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.sessionsMu.Lock()
	_, exists := s.sessions[id]
	delete(s.sessions, id)
	s.sessionsMu.Unlock()

	if !exists {
		s.respondError(w, http.StatusNotFound, fmt.Errorf("loop not found"))
		return
	}
	if s.metrics != nil {
		s.metrics.LoopsActive.Dec()
	}
	s.logger.Info("loop deleted", map[string]interface{}{"loop_id": id})
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// session resolves the {id} route parameter, responding 404 on a miss.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session, bool) {
	id := chi.URLParam(r, "id")
	s.sessionsMu.RLock()
	sess, exists := s.sessions[id]
	s.sessionsMu.RUnlock()
	if !exists {
		s.respondError(w, http.StatusNotFound, fmt.Errorf("loop not found"))
		return nil, false
	}
	return sess, true
}

// describeSpace echoes the space definition in the same shape the create
// request declared it, so a caller can recover categorical labels and
// discrete value sets from the index-encoded points.
func describeSpace(sp *space.Space) []parameterSpec {
	params := sp.Parameters()
	out := make([]parameterSpec, len(params))
	for i, p := range params {
		spec := parameterSpec{Name: p.Name()}
		switch q := p.(type) {
		case *space.Continuous:
			spec.Kind = "continuous"
			spec.Min, spec.Max = q.Bounds()
		case *space.Discrete:
			spec.Kind = "discrete"
			spec.Values = q.Values()
		case *space.Categorical:
			spec.Kind = "categorical"
			spec.Categories = q.Labels()
		}
		out[i] = spec
	}
	return out
}

// describeBest renders the incumbent best, resolving categorical indices to
// their labels.
func describeBest(sp *space.Space, best state.Observation) map[string]interface{} {
	out := map[string]interface{}{
		"input":  best.Input,
		"output": best.Output,
	}
	labels := make(map[string]string)
	for i, p := range sp.Parameters() {
		c, ok := p.(*space.Categorical)
		if !ok || i >= len(best.Input) {
			continue
		}
		if label, err := c.Label(best.Input[i]); err == nil {
			labels[p.Name()] = label
		}
	}
	if len(labels) > 0 {
		out["labels"] = labels
	}
	return out
}

func toObservations(req observeRequest) ([]state.Observation, error) {
	if len(req.Inputs) != len(req.Outputs) {
		return nil, fmt.Errorf("request has %d inputs but %d outputs", len(req.Inputs), len(req.Outputs))
	}
	if len(req.Inputs) == 0 {
		return nil, nil
	}
	obs := make([]state.Observation, len(req.Inputs))
	for i, in := range req.Inputs {
		obs[i] = state.Observation{Input: in, Output: req.Outputs[i]}
	}
	return obs, nil
}

// respondDomainError maps engine errors onto HTTP status codes: caller
// shape bugs are 400, out-of-order protocol use is 409, a surrogate that
// cannot fit the current history is 422.
func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case optloop.IsProtocolViolation(err):
		status = http.StatusConflict
		if s.metrics != nil {
			s.metrics.ProtocolViolationsTotal.Inc()
		}
	case optloop.IsModelFit(err):
		status = http.StatusUnprocessableEntity
	case optloop.IsShapeMismatch(err):
		status = http.StatusBadRequest
	}
	s.respondError(w, status, err)
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	s.logger.Error("request error", map[string]interface{}{
		"status": status,
		"error":  err.Error(),
	})
	s.respondJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Close drops all sessions.
func (s *Server) Close() error {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	if s.metrics != nil {
		s.metrics.LoopsActive.Sub(float64(len(s.sessions)))
	}
	s.sessions = make(map[string]*session)
	return nil
}
