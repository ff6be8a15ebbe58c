// Package coordinator serializes concurrent callers into a single,
// rate-governed stream of requests toward one LLM provider.
//
// Information Hiding:
// - Queue discipline and the single dispatch goroutine hidden behind Ask/Enqueue
// - Retry classification and backoff timing hidden in RetryPolicy
// - Conversation context and token budgeting delegated to conversation.History
// - Metrics kept in a state store exposed only as Snapshot copies

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/richinex/textai/config"
	"github.com/richinex/textai/conversation"
	"github.com/richinex/textai/llm"
	"github.com/richinex/textai/storage"
)

// AuditRecorder receives every completed exchange.
type AuditRecorder interface {
	Record(entry storage.AuditEntry) error
	Close() error
}

// Coordinator owns one provider, its conversation history and its request
// queue. At most one provider call is in flight at a time.
type Coordinator struct {
	cfg      Config
	provider llm.Provider
	history  *conversation.History
	state    *stateStore
	queue    *requestQueue
	limiter  *rate.Limiter
	logger   *slog.Logger
	store    storage.TurnStore
	audit    AuditRecorder

	// wake is signaled by pushes and by Reset.
	wake chan struct{}

	// stopCtx is canceled when Shutdown begins; it aborts idle waits,
	// pacing and backoff. callCtx is canceled only when Shutdown gives up
	// on the in-flight attempt.
	stopCtx    context.Context
	stop       context.CancelFunc
	callCtx    context.Context
	cancelCall context.CancelFunc

	done         chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the structured logger. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStore mirrors history into store and restores it on start.
// The coordinator closes the store on Shutdown.
func WithStore(store storage.TurnStore) Option {
	return func(c *Coordinator) {
		c.store = store
	}
}

// WithAuditLog appends every completed exchange to audit.
// The coordinator closes it on Shutdown.
func WithAuditLog(audit AuditRecorder) Option {
	return func(c *Coordinator) {
		c.audit = audit
	}
}

// Open builds the provider, optional store and audit log described by
// settings and starts a coordinator. Options override the storage that
// settings describe.
func Open(settings config.Settings, opts ...Option) (*Coordinator, error) {
	pt, err := settings.ProviderType()
	if err != nil {
		return nil, err
	}
	if settings.LLM.APIKey == "" {
		return nil, fmt.Errorf("%s: %s not set", pt, pt.EnvVar())
	}

	provider, err := llm.NewProviderBuilder(pt).
		Model(settings.LLM.Model).
		Endpoint(settings.LLM.Endpoint).
		HTTPClient(llm.NewHTTPClient()).
		APIKey(settings.LLM.APIKey)
	if err != nil {
		return nil, err
	}

	var defaults []Option
	if settings.Storage.DatabasePath != "" {
		store, err := storage.OpenSqlite(settings.Storage.DatabasePath)
		if err != nil {
			provider.Close()
			return nil, err
		}
		defaults = append(defaults, WithStore(store))
	}
	if settings.Storage.AuditDir != "" {
		defaults = append(defaults, WithAuditLog(storage.NewAuditLog(settings.Storage.AuditDir, settings.Instance, 0)))
	}

	return New(provider, ConfigFromSettings(settings), append(defaults, opts...)...)
}

// New starts a coordinator for an already-built provider.
func New(provider llm.Provider, cfg Config, opts ...Option) (*Coordinator, error) {
	if provider == nil {
		return nil, errors.New("coordinator: provider is required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Coordinator{
		cfg:      cfg,
		provider: provider,
		history:  conversation.NewHistory(cfg.HistoryLimit),
		state:    newStateStore(cfg.SystemPrompt),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	c.queue = newRequestQueue(cfg.QueueCapacity, c.wake)
	if cfg.RequestInterval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(cfg.RequestInterval), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("instance", cfg.Instance, "provider", provider.Name())

	c.stopCtx, c.stop = context.WithCancel(context.Background())
	c.callCtx, c.cancelCall = context.WithCancel(context.Background())

	if c.store != nil {
		turns, err := c.store.Load(context.Background(), cfg.Instance, cfg.HistoryLimit)
		if err != nil {
			c.logger.Warn("history restore failed", "error", err)
		} else {
			c.history.Restore(turns)
			c.logger.Debug("history restored", "turns", len(turns))
		}
	}

	c.state.setStatus(StatusReady)
	go c.run()
	return c, nil
}

type askOptions struct {
	priority Priority
}

// AskOption modifies a single Ask call.
type AskOption func(*askOptions)

// WithPriority dispatches the request ahead of normal requests.
func WithPriority() AskOption {
	return func(o *askOptions) {
		o.priority = PriorityExpedited
	}
}

// Ask enqueues question and waits for its answer.
func (c *Coordinator) Ask(ctx context.Context, question string, params Params, opts ...AskOption) (llm.Response, error) {
	var o askOptions
	for _, opt := range opts {
		opt(&o)
	}

	pending, err := c.Enqueue(ctx, question, params, o.priority)
	if err != nil {
		return llm.Response{}, err
	}
	return pending.Wait(ctx)
}

// Enqueue validates and queues a question without waiting for it.
// Canceling ctx before dispatch abandons the request.
func (c *Coordinator) Enqueue(ctx context.Context, question string, params Params, priority Priority) (*Pending, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validateQuestion(question); err != nil {
		return nil, err
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	if err := c.state.disabledErr(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDisabled, err)
	}
	p := c.resolve(params)
	if err := checkPromptSize(question, p.systemPrompt, p.maxTokens); err != nil {
		return nil, err
	}

	req := newRequest(ctx, question, params, priority)
	if err := c.queue.push(req); err != nil {
		return nil, err
	}
	c.logger.Debug("request enqueued", "request_id", req.ID, "priority", priority.String(), "queue_depth", c.queue.len())
	return &Pending{ID: req.ID, result: req.result}, nil
}

func (c *Coordinator) resolve(p Params) resolved {
	r := resolved{
		model:         c.cfg.Model,
		temperature:   c.cfg.Temperature,
		maxTokens:     c.cfg.MaxTokens,
		systemPrompt:  c.state.getSystemPrompt(),
		contextWindow: c.cfg.ContextWindow,
	}
	if p.Model != "" {
		r.model = p.Model
	}
	if p.Temperature != nil {
		r.temperature = *p.Temperature
	}
	if p.MaxTokens != 0 {
		r.maxTokens = p.MaxTokens
	}
	if p.SystemPrompt != nil {
		r.systemPrompt = *p.SystemPrompt
	}
	if p.ContextWindow != nil {
		r.contextWindow = *p.ContextWindow
	}
	return r
}

// SetSystemPrompt replaces the default system prompt for later requests.
func (c *Coordinator) SetSystemPrompt(prompt string) {
	c.state.setSystemPrompt(prompt)
}

// ClearHistory forgets every turn, in memory and in the attached store.
// It fails with ErrShutdown once Shutdown has begun.
func (c *Coordinator) ClearHistory(ctx context.Context) error {
	if c.stopCtx.Err() != nil {
		return ErrShutdown
	}
	c.history.Clear()
	if c.store != nil {
		if err := c.store.Clear(ctx, c.cfg.Instance); err != nil {
			return fmt.Errorf("clear stored history: %w", err)
		}
	}
	return nil
}

// History returns turns selected by q.
func (c *Coordinator) History(q conversation.HistoryQuery) []conversation.Turn {
	return c.history.Query(q)
}

// Health returns a snapshot of state and metrics.
func (c *Coordinator) Health() Snapshot {
	snap := c.state.snapshot()
	snap.Instance = c.cfg.Instance
	snap.Provider = c.provider.Name()
	snap.Model = c.cfg.Model
	if snap.Model == "" {
		snap.Model = c.provider.Model()
	}
	snap.QueueDepth = c.queue.len()
	snap.HistorySize = c.history.Len()
	return snap
}

// Reset zeroes counters and resumes dispatch after an authentication
// failure or a maintenance pause. History is kept.
func (c *Coordinator) Reset() {
	if c.state.getStatus() == StatusDisconnected {
		return
	}
	c.state.reset()
	c.logger.Info("coordinator reset")
	notify(c.wake)
}

// Shutdown refuses new requests, fails queued ones with ErrShutdown, waits
// for the in-flight attempt, then closes the provider, store and audit log.
// If ctx ends first the in-flight attempt is canceled.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		drained := c.queue.close()
		for _, req := range drained {
			req.finish(llm.Response{}, ErrShutdown)
		}
		c.stop()
		c.logger.Info("shutting down", "drained", len(drained))

		select {
		case <-c.done:
		case <-ctx.Done():
			c.cancelCall()
			<-c.done
			c.shutdownErr = ctx.Err()
		}
		c.cancelCall()

		errs := []error{c.shutdownErr, c.provider.Close()}
		if c.store != nil {
			errs = append(errs, c.store.Close())
		}
		if c.audit != nil {
			errs = append(errs, c.audit.Close())
		}
		c.shutdownErr = errors.Join(errs...)
		c.state.setStatus(StatusDisconnected)
	})
	return c.shutdownErr
}

// run is the dispatch loop. It is the only goroutine that calls the
// provider and writes history or metrics.
func (c *Coordinator) run() {
	defer close(c.done)

	for {
		if c.stopCtx.Err() != nil {
			return
		}
		if paused, since := c.state.paused(); paused {
			if !c.waitPaused(since) {
				return
			}
			continue
		}

		req := c.queue.pop()
		if req == nil {
			select {
			case <-c.wake:
				continue
			case <-c.stopCtx.Done():
				return
			}
		}
		c.dispatch(req)
	}
}

// waitPaused blocks during a maintenance pause until Reset, the cooldown,
// or shutdown. It reports false on shutdown.
func (c *Coordinator) waitPaused(since time.Time) bool {
	var cooldown <-chan time.Time
	if c.cfg.MaintenanceCooldown > 0 {
		timer := time.NewTimer(time.Until(since.Add(c.cfg.MaintenanceCooldown)))
		defer timer.Stop()
		cooldown = timer.C
	}

	select {
	case <-c.wake:
		// Reset clears the pause; a push leaves it in place.
		return true
	case <-cooldown:
		c.state.resume()
		c.logger.Info("maintenance cooldown elapsed, resuming dispatch")
		return true
	case <-c.stopCtx.Done():
		return false
	}
}

// dispatch runs the whole pipeline for one request and publishes the result.
func (c *Coordinator) dispatch(req *Request) {
	defer func() {
		if r := recover(); r != nil {
			err := llm.NewError(c.provider.Name(), llm.KindProvider, 0, fmt.Sprintf("panic during dispatch: %v", r))
			c.logger.Error("dispatch panic recovered", "request_id", req.ID, "panic", r)
			c.state.recordAttemptError(ErrorRecord{
				Time:      time.Now(),
				Kind:      llm.KindProvider,
				Message:   err.Error(),
				RequestID: req.ID,
			})
			c.state.recordFailure(failure{err: err, status: StatusReady, counts: true}, c.cfg.ErrorThreshold)
			req.finish(llm.Response{}, err)
		}
	}()

	if err := c.state.disabledErr(); err != nil {
		req.finish(llm.Response{}, fmt.Errorf("%w: %w", ErrDisabled, err))
		return
	}
	if err := req.ctx.Err(); err != nil {
		req.finish(llm.Response{}, err)
		return
	}

	c.state.beginRequest()
	log := c.logger.With("request_id", req.ID)
	p := c.resolve(req.Params)

	messages, budget, err := c.history.Build(req.Question, p.systemPrompt, p.contextWindow, p.maxTokens)
	if err != nil {
		// No provider attempt was made, so ErrorCount is unchanged.
		verr := &ValidationError{Field: "question", Reason: err.Error(), Err: err}
		c.state.recordFailure(failure{err: verr, status: StatusReady}, c.cfg.ErrorThreshold)
		req.finish(llm.Response{}, verr)
		return
	}
	if budget.TurnsDropped > 0 {
		log.Debug("context trimmed to token budget", "dropped", budget.TurnsDropped, "kept", budget.TurnsIncluded)
	}

	start := time.Now()
	resp, err := c.attempt(req, llm.Request{
		Model:       p.model,
		Messages:    messages,
		Temperature: p.temperature,
		MaxTokens:   budget.CompletionLimit,
	}, log)
	if err != nil {
		c.fail(req, err, log)
		return
	}

	latency := resp.ResponseTime
	if latency <= 0 {
		latency = time.Since(start)
	}
	c.state.recordSuccess(resp, latency)
	c.remember(req, resp, latency, log)
	log.Info("request completed", "tokens", resp.Usage.TotalTokens, "latency", latency)
	req.finish(resp, nil)
}

// attempt calls the provider until success, a fatal error, exhaustion or
// shutdown.
func (c *Coordinator) attempt(req *Request, call llm.Request, log *slog.Logger) (llm.Response, error) {
	policy := c.cfg.Retry
	var lastErr error

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := c.pace(req); err != nil {
			return llm.Response{}, c.abandoned(err, lastErr)
		}

		resp, err := c.call(req, call)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		d := policy.Decide(err, attempt)
		c.state.recordAttemptError(ErrorRecord{
			Time:      time.Now(),
			Kind:      d.Kind,
			Message:   err.Error(),
			Attempt:   attempt + 1,
			RequestID: req.ID,
			Backoff:   d.Delay,
		})
		log.Warn("provider attempt failed", "attempt", attempt+1, "kind", d.Kind, "outcome", d.Outcome.String(), "backoff", d.Delay, "error", err)

		switch d.Outcome {
		case Fatal:
			return llm.Response{}, err
		case Exhausted:
			return llm.Response{}, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt+1, err)
		}

		c.state.setStatus(d.Status)
		if err := c.sleep(req, d.Delay); err != nil {
			return llm.Response{}, c.abandoned(err, lastErr)
		}
		c.state.setStatus(StatusProcessing)
	}
	return llm.Response{}, fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}

// call performs one provider attempt under the per-call timeout. Panics in
// the provider become provider errors.
func (c *Coordinator) call(req *Request, call llm.Request) (resp llm.Response, err error) {
	ctx, cancel := context.WithTimeout(c.callCtx, c.cfg.CallTimeout)
	defer cancel()
	stop := context.AfterFunc(req.ctx, cancel)
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			err = llm.NewError(c.provider.Name(), llm.KindProvider, 0, fmt.Sprintf("provider panic: %v", r))
		}
	}()

	resp, err = c.provider.Complete(ctx, call)
	if err != nil {
		err = llm.ClassifyError(c.provider.Name(), err)
	}
	return resp, err
}

// pace waits for the request interval. Errors mean shutdown or an
// abandoned caller.
func (c *Coordinator) pace(req *Request) error {
	if c.limiter == nil {
		return nil
	}
	ctx, cancel := c.waitContext(req)
	defer cancel()
	return c.limiter.Wait(ctx)
}

// sleep waits out a backoff delay.
func (c *Coordinator) sleep(req *Request, d time.Duration) error {
	ctx, cancel := c.waitContext(req)
	defer cancel()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitContext ends when Shutdown begins or the caller gives up.
func (c *Coordinator) waitContext(req *Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(c.stopCtx)
	stop := context.AfterFunc(req.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// abandoned explains why a wait between attempts ended early.
func (c *Coordinator) abandoned(waitErr, lastErr error) error {
	if c.stopCtx.Err() != nil {
		if lastErr != nil {
			return fmt.Errorf("%w: %w", ErrShutdown, lastErr)
		}
		return ErrShutdown
	}
	return waitErr
}

// fail records a terminal request failure and publishes it.
func (c *Coordinator) fail(req *Request, err error, log *slog.Logger) {
	f := failure{err: err, status: StatusReady, counts: true}
	switch {
	case errors.Is(err, llm.ErrAuth):
		f.disables = true
	case errors.Is(err, ErrShutdown), errors.Is(err, llm.ErrCanceled),
		errors.Is(err, context.Canceled):
		f.counts = false
	case errors.Is(err, ErrRetriesExhausted) && errors.Is(err, llm.ErrRateLimit):
		f.status = StatusRateLimited
		f.counts = false
	}

	if c.state.recordFailure(f, c.cfg.ErrorThreshold) {
		log.Error("consecutive failure threshold exceeded, dispatch paused", "threshold", c.cfg.ErrorThreshold)
	} else if f.disables {
		log.Error("authentication failed, dispatch disabled until reset", "error", err)
	} else {
		log.Warn("request failed", "error", err)
	}
	req.finish(llm.Response{}, err)
}

// remember records a successful exchange in history, the store and the
// audit log. Persistence failures are logged; the in-memory history is
// authoritative.
func (c *Coordinator) remember(req *Request, resp llm.Response, latency time.Duration, log *slog.Logger) {
	turn := conversation.Turn{
		Timestamp: time.Now(),
		Question:  req.Question,
		Response:  resp.Text,
		Model:     resp.Model,
		Usage:     resp.Usage,
		Latency:   latency,
	}
	c.history.Record(turn)

	if c.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.store.Append(ctx, c.cfg.Instance, turn); err != nil {
			log.Warn("store append failed", "error", err)
		}
		cancel()
	}
	if c.audit != nil {
		err := c.audit.Record(storage.AuditEntry{
			Timestamp: turn.Timestamp,
			Instance:  c.cfg.Instance,
			Question:  turn.Question,
			Response:  turn.Response,
			Model:     turn.Model,
		})
		if err != nil {
			log.Warn("audit log write failed", "error", err)
		}
	}
}
