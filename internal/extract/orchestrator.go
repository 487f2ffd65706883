// Package extract drives schema-constrained field extraction against a text
// generation backend.
//
// An extraction is a small state machine:
//
//	Idle → Calling → Parsing → Validating → Done
//	                    ↓
//	              RetryCalling → Parsing → Validating → Done
//	                                 ↓
//	                               Failed
//
// A reply that cannot be parsed as a JSON object on the first attempt is
// retried once with the strict prompt. Transport failures are terminal and
// never retried here. Every run makes at most two backend calls.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	prompt "github.com/jackzampolin/ocrion/internal/prompts/extract"
	"github.com/jackzampolin/ocrion/internal/region"
)

// MaxAttempts bounds the backend calls made for one extraction.
const MaxAttempts = 2

// DefaultTimeout is the per-call backend timeout when none is configured.
const DefaultTimeout = 60 * time.Second

// Recorder receives every finished backend attempt. Errors are logged and
// never fail the extraction.
type Recorder interface {
	RecordAttempt(ctx context.Context, requestID string, attempt region.ExtractionAttempt) error
}

// Config configures an Orchestrator.
type Config struct {
	Backend  Backend
	Timeout  time.Duration
	Logger   *slog.Logger
	Recorder Recorder
	// Clock returns the current time (default: time.Now).
	Clock func() time.Time
}

// Request is one extraction.
type Request struct {
	// ID identifies the request in logs and recorded attempts (default: new UUID).
	ID     string
	Schema region.Schema
	// OrderedText is the reading-order page text.
	OrderedText string
	// FallbackText is used when OrderedText is blank.
	FallbackText string
}

// Orchestrator runs extractions. It holds no per-request state and is safe
// for concurrent use.
type Orchestrator struct {
	backend  Backend
	timeout  time.Duration
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Backend == nil {
		return nil, ErrNoBackend
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Orchestrator{
		backend:  cfg.Backend,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
		recorder: cfg.Recorder,
		now:      cfg.Clock,
	}, nil
}

// Timeout returns the per-call backend timeout.
func (o *Orchestrator) Timeout() time.Duration {
	return o.timeout
}

// state is a step of the extraction state machine.
type state int

const (
	stateIdle state = iota
	stateCalling
	stateParsing
	stateRetryCalling
	stateValidating
	stateDone
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateCalling:
		return "calling"
	case stateParsing:
		return "parsing"
	case stateRetryCalling:
		return "retry_calling"
	case stateValidating:
		return "validating"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s state) terminal() bool {
	return s == stateDone || s == stateFailed
}

// Run executes one extraction. It returns either a fully schema-shaped
// result or an *Error; never both.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*region.ExtractionResult, error) {
	if req.Schema.Len() == 0 {
		return nil, ErrEmptySchema
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	r := &run{
		o:      o,
		req:    req,
		logger: o.logger.With("request_id", req.ID),
		start:  o.now(),
	}

	for st := stateIdle; !st.terminal(); {
		next := r.step(ctx, st)
		r.logger.Debug("extraction transition", "from", st, "to", next, "attempt", r.attempt)
		st = next
	}

	if r.err != nil {
		r.logger.Error("extraction failed", "kind", r.err.Kind, "attempts", r.err.Attempts, "error", r.err.Err)
		return nil, r.err
	}

	r.timings = append(r.timings, region.StageTiming{Stage: "total", Duration: o.now().Sub(r.start)})
	r.result.Attempts = r.attempt
	r.result.History = r.history
	r.result.LayoutFallback = r.fallback
	r.result.Timings = r.timings

	if len(r.result.Dropped) > 0 {
		r.logger.Warn("backend returned fields outside the schema", "dropped", r.result.Dropped)
	}
	r.logger.Info("extraction complete",
		"attempts", r.attempt,
		"fields", r.result.Data.Len(),
		"null_fields", len(r.result.NullFields),
		"layout_fallback", r.fallback,
	)
	return r.result, nil
}

// run carries the state of one extraction.
type run struct {
	o      *Orchestrator
	req    Request
	logger *slog.Logger
	start  time.Time

	text     string
	fallback bool
	prompt   string
	variant  region.PromptVariant
	attempt  int
	reply    string
	callTime time.Duration
	parsed   map[string]any

	history []region.ExtractionAttempt
	timings []region.StageTiming
	result  *region.ExtractionResult
	err     *Error
}

func (r *run) step(ctx context.Context, st state) state {
	if err := ctx.Err(); err != nil {
		return r.fail(KindCanceled, err)
	}

	switch st {
	case stateIdle:
		r.text = r.req.OrderedText
		if strings.TrimSpace(r.text) == "" && strings.TrimSpace(r.req.FallbackText) != "" {
			r.text = r.req.FallbackText
			r.fallback = true
			r.logger.Warn("ordered text empty, using fallback text", "chars", len(r.text))
		}
		r.buildPrompt(false)
		return stateCalling

	case stateCalling, stateRetryCalling:
		return r.call(ctx)

	case stateParsing:
		return r.parse(ctx)

	case stateValidating:
		t := r.o.now()
		r.result = Validate(r.req.Schema, r.parsed)
		r.timings = append(r.timings, region.StageTiming{Stage: "validate", Duration: r.o.now().Sub(t)})
		return stateDone

	default:
		return r.fail(KindTransport, fmt.Errorf("unexpected state %s", st))
	}
}

func (r *run) buildPrompt(strict bool) {
	t := r.o.now()
	r.prompt = prompt.Build(r.req.Schema, r.text, strict)
	stage := "prompt"
	r.variant = region.VariantNormal
	if strict {
		stage = "prompt_strict"
		r.variant = region.VariantStrict
	}
	r.timings = append(r.timings, region.StageTiming{Stage: stage, Duration: r.o.now().Sub(t)})
}

func (r *run) call(ctx context.Context) state {
	r.attempt++
	callCtx, cancel := context.WithTimeout(ctx, r.o.timeout)
	defer cancel()

	t := r.o.now()
	reply, err := r.o.backend.Send(callCtx, r.prompt, r.o.timeout)
	r.callTime = r.o.now().Sub(t)
	r.timings = append(r.timings, region.StageTiming{Stage: fmt.Sprintf("call_%d", r.attempt), Duration: r.callTime})

	if err != nil {
		kind, outcome := KindTransport, region.OutcomeTransport
		if ctx.Err() != nil {
			kind, outcome = KindCanceled, region.OutcomeCanceled
			err = errors.Join(ctx.Err(), err)
		} else if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("backend call timed out after %s: %w", r.o.timeout, err)
		}
		r.record(ctx, region.ExtractionAttempt{
			Number:   r.attempt,
			Variant:  r.variant,
			Prompt:   r.prompt,
			Outcome:  outcome,
			Error:    err.Error(),
			Duration: r.callTime,
		})
		return r.fail(kind, err)
	}

	r.reply = reply
	return stateParsing
}

func (r *run) parse(ctx context.Context) state {
	t := r.o.now()
	obj, outcome, err := parseReply(r.reply)
	r.timings = append(r.timings, region.StageTiming{Stage: fmt.Sprintf("parse_%d", r.attempt), Duration: r.o.now().Sub(t)})

	a := region.ExtractionAttempt{
		Number:   r.attempt,
		Variant:  r.variant,
		Prompt:   r.prompt,
		Output:   r.reply,
		Outcome:  outcome,
		Duration: r.callTime,
	}
	if err != nil {
		a.Error = err.Error()
	}
	r.record(ctx, a)

	if outcome == region.OutcomeParsed {
		r.parsed = obj
		return stateValidating
	}

	if r.attempt < MaxAttempts {
		r.logger.Warn("backend reply not a JSON object, retrying with strict prompt",
			"attempt", r.attempt, "outcome", outcome, "error", err)
		r.buildPrompt(true)
		return stateRetryCalling
	}

	if outcome == region.OutcomeNotObject {
		return r.fail(KindSchemaShape, err)
	}
	return r.fail(KindUnparseableOutput, err)
}

func (r *run) record(ctx context.Context, a region.ExtractionAttempt) {
	r.history = append(r.history, a)
	if r.o.recorder == nil {
		return
	}
	if err := r.o.recorder.RecordAttempt(context.WithoutCancel(ctx), r.req.ID, a); err != nil {
		r.logger.Warn("failed to record attempt", "attempt", a.Number, "error", err)
	}
}

func (r *run) fail(kind Kind, err error) state {
	r.err = &Error{Kind: kind, Attempts: r.attempt, Err: err}
	return stateFailed
}
