// Package orchestrator turns a list of prompts into generation tasks and
// drives them through the generation client: one after another, chained
// into a single seamless film, or across a small number of parallel lanes.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/maauso/promptstudio/internal/events"
	"github.com/maauso/promptstudio/internal/generator"
	"github.com/maauso/promptstudio/internal/license"
	"github.com/maauso/promptstudio/internal/task"
)

// Orchestrator errors.
var (
	// ErrNoPrompts is returned when a plan has no non-blank prompt.
	ErrNoPrompts = errors.New("orchestrator: no prompts")
	// ErrRunInProgress is returned when a run is started while another is active.
	ErrRunInProgress = errors.New("orchestrator: a run is already in progress")
	// ErrInvalidPlan is returned for plans that cannot be executed.
	ErrInvalidPlan = errors.New("orchestrator: invalid plan")
)

// Kind selects how the prompts of a run relate to each other.
type Kind string

// Run kinds.
const (
	KindStandard Kind = "standard"
	KindSeamless Kind = "seamless"
)

// ChainBreak decides what a seamless run does after a clip fails.
type ChainBreak int

const (
	// ChainBreakRestart generates the next clip fresh from the mode images.
	ChainBreakRestart ChainBreak = iota
	// ChainBreakAbort stops dispatching the remaining prompts.
	ChainBreakAbort
)

// Lane label of chained runs.
const seamlessLane = "seamless"

// Widths accepted for parallel runs.
var parallelWidths = []int{3, 5}

// Plan describes one run.
type Plan struct {
	Kind Kind
	// Width is the number of concurrent lanes; 0 runs the prompts in order.
	Width       int
	Prompts     []string
	Mode        generator.Mode
	Images      []string
	Resolution  generator.Resolution
	AspectRatio generator.AspectRatio
	UserKey     string
	// JoinFilm concatenates the clips of a seamless run into one film.
	JoinFilm bool
}

// Run reports the state of the latest run.
type Run struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Width      int       `json:"width"`
	Total      int       `json:"total"`
	Dispatched int       `json:"dispatched"`
	Completed  int       `json:"completed"`
	Failed     int       `json:"failed"`
	Running    bool      `json:"running"`
	Stopped    bool      `json:"stopped"`
	FilmURL    string    `json:"film_url,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// archiver keeps finished clips reachable after the generation links expire.
type archiver interface {
	Archive(ctx context.Context, taskID string, result generator.Result, apiKey string) (string, error)
	JoinFilm(ctx context.Context, runID string, refs []generator.Ref) (string, error)
}

// CredentialHook is called when the credential in use was rejected or is missing.
type CredentialHook func(err error)

// Orchestrator runs one plan at a time.
type Orchestrator struct {
	client     generator.Client
	board      *task.Board
	policy     *license.Policy
	publisher  events.Publisher
	archiver   archiver
	onAuth     CredentialHook
	chainBreak ChainBreak
	logger     *slog.Logger

	mu     sync.Mutex
	run    *Run
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPublisher sets where lifecycle events are sent.
func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) {
		o.publisher = p
	}
}

// WithArchiver archives every finished clip and enables film joining.
func WithArchiver(a archiver) Option {
	return func(o *Orchestrator) {
		o.archiver = a
	}
}

// WithCredentialHook sets the function called on credential failures.
func WithCredentialHook(fn CredentialHook) Option {
	return func(o *Orchestrator) {
		o.onAuth = fn
	}
}

// WithChainBreak sets what a seamless run does after a failed clip.
func WithChainBreak(cb ChainBreak) Option {
	return func(o *Orchestrator) {
		o.chainBreak = cb
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an Orchestrator.
func New(client generator.Client, board *task.Board, policy *license.Policy, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:     client,
		board:      board,
		policy:     policy,
		publisher:  events.NewLogPublisher(nil),
		chainBreak: ChainBreakRestart,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CleanPrompts trims every prompt and drops the blank ones.
func CleanPrompts(prompts []string) []string {
	out := make([]string, 0, len(prompts))
	for _, p := range prompts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Start validates the plan and runs it in the background.
// The run is detached from ctx; use Stop to cancel it.
func (o *Orchestrator) Start(ctx context.Context, plan Plan) (Run, error) {
	plan.Prompts = CleanPrompts(plan.Prompts)
	if len(plan.Prompts) == 0 {
		return Run{}, ErrNoPrompts
	}
	if err := validatePlan(plan); err != nil {
		return Run{}, err
	}

	grant, err := o.policy.Grant(ctx, plan.UserKey)
	if err != nil {
		if generator.IsCredentialError(err) {
			o.credentialRequired(ctx, "", nil, err)
		}
		return Run{}, err
	}
	if err := grant.Check(plan.Width, plan.Resolution); err != nil {
		return Run{}, err
	}

	o.mu.Lock()
	if o.run != nil && o.run.Running {
		o.mu.Unlock()
		return Run{}, ErrRunInProgress
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.run = &Run{
		ID:        uuid.NewString(),
		Kind:      plan.Kind,
		Width:     plan.Width,
		Total:     len(plan.Prompts),
		Running:   true,
		StartedAt: time.Now(),
	}
	o.cancel = cancel
	o.done = make(chan struct{})
	r := *o.run
	done := o.done
	o.mu.Unlock()

	o.logger.Info("run started",
		slog.String("run_id", r.ID),
		slog.String("kind", string(plan.Kind)),
		slog.Int("width", plan.Width),
		slog.Int("prompts", len(plan.Prompts)),
		slog.String("package", string(grant.Package)),
	)
	o.publish(runCtx, events.NewRunEvent(events.KindRunStarted, r.ID, string(plan.Kind)))

	go func() {
		defer close(done)
		defer cancel()
		o.execute(runCtx, r.ID, plan, grant.Credential)
	}()
	return r, nil
}

// Run starts the plan and waits for it to finish.
func (o *Orchestrator) Run(ctx context.Context, plan Plan) (Run, error) {
	if _, err := o.Start(ctx, plan); err != nil {
		return Run{}, err
	}
	return o.Wait(ctx)
}

// Wait blocks until the current run finishes or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) (Run, error) {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return Run{}, ctx.Err()
		}
	}
	r, _ := o.Current()
	return r, nil
}

// Stop cancels the current run. It reports whether a run was active.
// Tasks still in flight keep their last observed status.
func (o *Orchestrator) Stop() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.run == nil || !o.run.Running {
		return false
	}
	o.run.Stopped = true
	o.cancel()
	o.logger.Info("run stop requested", slog.String("run_id", o.run.ID))
	return true
}

// Current returns the latest run, if any.
func (o *Orchestrator) Current() (Run, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.run == nil {
		return Run{}, false
	}
	return *o.run, true
}

func validatePlan(plan Plan) error {
	switch plan.Kind {
	case KindStandard:
		if plan.Width != 0 && !slices.Contains(parallelWidths, plan.Width) {
			return fmt.Errorf("%w: width %d", ErrInvalidPlan, plan.Width)
		}
	case KindSeamless:
		if plan.Width != 0 {
			return fmt.Errorf("%w: seamless runs are sequential", ErrInvalidPlan)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPlan, plan.Kind)
	}
	if !plan.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidPlan, plan.Mode)
	}
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, runID string, plan Plan, credential string) {
	switch {
	case plan.Kind == KindSeamless:
		o.chained(ctx, runID, plan, credential)
	case plan.Width > 0:
		o.parallel(ctx, runID, plan, credential)
	default:
		o.sequential(ctx, runID, plan, credential)
	}

	o.mu.Lock()
	o.run.Running = false
	o.run.FinishedAt = time.Now()
	r := *o.run
	o.mu.Unlock()

	o.logger.Info("run finished",
		slog.String("run_id", r.ID),
		slog.Int("completed", r.Completed),
		slog.Int("failed", r.Failed),
		slog.Bool("stopped", r.Stopped),
	)
	o.publish(context.WithoutCancel(ctx), events.NewRunEvent(events.KindRunFinished, r.ID,
		fmt.Sprintf("%d completed, %d failed", r.Completed, r.Failed)))
}

func (o *Orchestrator) sequential(ctx context.Context, runID string, plan Plan, credential string) {
	for i, prompt := range plan.Prompts {
		if ctx.Err() != nil {
			return
		}
		req := o.request(plan, prompt, credential)
		req.Images = generator.SelectImages(plan.Mode, plan.Images, i, false)
		o.dispatch(ctx, runID, plan.Mode, "", i, req)
	}
}

// parallel runs the prompts across plan.Width lanes. A failing lane never
// cancels the others.
func (o *Orchestrator) parallel(ctx context.Context, runID string, plan Plan, credential string) {
	var g errgroup.Group
	g.SetLimit(plan.Width)

	for i, prompt := range plan.Prompts {
		if ctx.Err() != nil {
			break
		}
		req := o.request(plan, prompt, credential)
		req.Images = generator.SelectImages(plan.Mode, plan.Images, i, false)
		lane := strconv.Itoa(i + 1)
		g.Go(func() error {
			o.dispatch(ctx, runID, plan.Mode, lane, i, req)
			return nil
		})
	}
	_ = g.Wait()
}

// chained feeds every clip into the next one. Local copies kept for chaining
// are released when the run ends, archived or not.
func (o *Orchestrator) chained(ctx context.Context, runID string, plan Plan, credential string) {
	var (
		prev   *generator.Ref
		refs   []generator.Ref
		seeded []generator.Ref
	)
	defer func() {
		if err := generator.ReleaseRefs(seeded); err != nil {
			o.logger.Warn("failed to release chained clips",
				slog.String("run_id", runID),
				slog.String("error", err.Error()),
			)
		}
	}()

	last := len(plan.Prompts) - 1
	for i, prompt := range plan.Prompts {
		if ctx.Err() != nil {
			return
		}
		req := o.request(plan, prompt, credential)
		req.PreviousResult = prev
		req.Images = generator.SelectImages(plan.Mode, plan.Images, i, prev != nil)
		req.SeedNext = i < last || plan.JoinFilm

		res, ok := o.dispatch(ctx, runID, plan.Mode, seamlessLane, i, req)
		if res.Ref.LocalPath != "" {
			seeded = append(seeded, res.Ref)
		}
		if ctx.Err() != nil {
			return
		}
		if !ok {
			if o.chainBreak == ChainBreakAbort {
				o.logger.Warn("seamless run aborted after failed clip",
					slog.String("run_id", runID),
					slog.Int("index", i),
				)
				return
			}
			prev = nil
			continue
		}
		ref := res.Ref
		prev = &ref
		refs = append(refs, ref)
	}

	if plan.JoinFilm && o.archiver != nil && len(refs) > 0 {
		url, err := o.archiver.JoinFilm(ctx, runID, refs)
		if err != nil {
			o.logger.Error("failed to join film",
				slog.String("run_id", runID),
				slog.String("error", err.Error()),
			)
			return
		}
		o.mu.Lock()
		o.run.FilmURL = url
		o.mu.Unlock()
	}
}

func (o *Orchestrator) request(plan Plan, prompt, credential string) generator.Request {
	return generator.Request{
		Mode:        plan.Mode,
		Prompt:      prompt,
		Resolution:  plan.Resolution,
		AspectRatio: plan.AspectRatio,
		Credential:  credential,
	}
}

// dispatch creates the task for one prompt and generates its clip.
// It reports false when the clip failed or the run was stopped. A result
// discarded after a stop is still returned so its local copy can be released.
func (o *Orchestrator) dispatch(ctx context.Context, runID string, mode generator.Mode, lane string, index int, req generator.Request) (generator.Result, bool) {
	if ctx.Err() != nil {
		return generator.Result{}, false
	}

	t := task.New(req.Prompt, mode, lane, index)
	o.board.Add(t)
	o.count(func(r *Run) { r.Dispatched++ })
	o.publish(ctx, events.NewTaskEvent(events.KindTaskCreated, runID, t))

	logger := o.logger.With(
		slog.String("run_id", runID),
		slog.String("task_id", t.ID),
		slog.String("lane", lane),
	)

	progress := func(msg string) {
		if ctx.Err() != nil {
			return
		}
		updated, err := o.board.Update(t.ID, func(t *task.Task) error {
			t.Advance(msg)
			return nil
		})
		if err != nil {
			return
		}
		o.publish(ctx, events.NewTaskEvent(events.KindTaskProgress, runID, updated))
	}

	res, err := o.client.Generate(ctx, req, progress)
	if ctx.Err() != nil {
		logger.Info("result discarded after stop")
		return res, false
	}
	if err != nil {
		o.fail(ctx, logger, runID, t.ID, err)
		return generator.Result{}, false
	}

	url := res.FinalURL
	if o.archiver != nil {
		archived, aerr := o.archiver.Archive(ctx, t.ID, res, req.Credential)
		if aerr != nil {
			logger.Warn("failed to archive clip, keeping generation URL",
				slog.String("error", aerr.Error()),
			)
		} else {
			url = archived
		}
	}
	if ctx.Err() != nil {
		logger.Info("result discarded after stop")
		return res, false
	}

	done, err := o.board.Update(t.ID, func(t *task.Task) error {
		return t.Complete(url)
	})
	if err != nil {
		logger.Warn("failed to complete task", slog.String("error", err.Error()))
		return res, true
	}
	o.count(func(r *Run) { r.Completed++ })
	o.publish(ctx, events.NewTaskEvent(events.KindTaskCompleted, runID, done))
	logger.Info("task completed", slog.String("url", url))
	return res, true
}

func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, runID, taskID string, cause error) {
	logger.Error("task failed", slog.String("error", cause.Error()))

	failed, err := o.board.Update(taskID, func(t *task.Task) error {
		return t.Fail(cause.Error())
	})
	if err != nil {
		logger.Warn("failed to mark task failed", slog.String("error", err.Error()))
		return
	}
	o.count(func(r *Run) { r.Failed++ })
	o.publish(ctx, events.NewTaskEvent(events.KindTaskFailed, runID, failed))

	if generator.IsCredentialError(cause) {
		o.credentialRequired(ctx, runID, &failed, cause)
	}
}

func (o *Orchestrator) credentialRequired(ctx context.Context, runID string, t *task.Task, cause error) {
	if o.onAuth != nil {
		o.onAuth(cause)
	}
	e := events.NewRunEvent(events.KindCredentialRequired, runID, cause.Error())
	e.Task = t
	o.publish(ctx, e)
}

func (o *Orchestrator) count(fn func(*Run)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(o.run)
}

func (o *Orchestrator) publish(ctx context.Context, e events.Event) {
	if err := o.publisher.Publish(ctx, e); err != nil {
		o.logger.Warn("failed to publish event",
			slog.String("kind", string(e.Kind)),
			slog.String("error", err.Error()),
		)
	}
}
