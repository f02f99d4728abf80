// Package clone orchestrates a replication run from verification to a terminal state.
package clone

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"guildcloner/clients"
	"guildcloner/core"
	"guildcloner/metrics"
	"guildcloner/models"
	"guildcloner/services/idmap"
	"guildcloner/services/messagecopy"
	"guildcloner/services/planner"
	"guildcloner/services/stats"
	"guildcloner/services/structure"
	"guildcloner/utils"
)

type EngineParams struct {
	ClientFactory clients.ClientFactory
	Logger        zerolog.Logger
	Metrics       *metrics.Metrics
	// MessagePostsPerSecond paces message reposts separately from structural calls.
	// Zero or less leaves reposts paced by the client only.
	MessagePostsPerSecond float64
	Observers             []OutcomeObserver
}

// Engine runs at most one clone at a time on a dedicated worker.
type Engine struct {
	clientFactory  clients.ClientFactory
	logger         zerolog.Logger
	metrics        *metrics.Metrics
	postsPerSecond float64
	observers      []OutcomeObserver
	pool           *workerpool.WorkerPool

	mu      sync.Mutex
	current *run
	busy    bool
}

type run struct {
	id      string
	request models.RunRequest
	sink    Sink
	token   *core.CancelToken
	tracker *stats.Tracker
	done    chan struct{}

	// guarded by Engine.mu
	state       models.RunState
	progress    float64
	source      models.GuildDescriptor
	destination models.GuildDescriptor
	outcome     models.RunOutcome
	err         error
}

func NewEngine(params EngineParams) *Engine {
	utils.AssertInvariant(params.ClientFactory != nil, "client factory cannot be nil")
	return &Engine{
		clientFactory:  params.ClientFactory,
		logger:         params.Logger.With().Str("component", "engine").Logger(),
		metrics:        params.Metrics,
		postsPerSecond: params.MessagePostsPerSecond,
		observers:      params.Observers,
		pool:           workerpool.New(1), // one run at a time
	}
}

// AddObserver registers an outcome observer. It must be called before the first run.
func (e *Engine) AddObserver(observer OutcomeObserver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, observer)
}

// Start validates the request and schedules the run. It returns the run id
// immediately; progress is delivered through sink.
func (e *Engine) Start(req models.RunRequest, sink Sink) (string, error) {
	r, err := e.begin(req, sink)
	if err != nil {
		return "", err
	}
	return r.id, nil
}

// Run executes a clone and blocks until it reaches a terminal state. Cancelling
// ctx requests cooperative cancellation; Run still waits for the in-flight call
// to finish. The error is non-nil only for failed runs.
func (e *Engine) Run(ctx context.Context, req models.RunRequest, sink Sink) (models.RunOutcome, error) {
	r, err := e.begin(req, sink)
	if err != nil {
		return models.RunOutcome{}, err
	}

	select {
	case <-r.done:
	case <-ctx.Done():
		r.token.Cancel()
		<-r.done
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return r.outcome, r.err
}

// Cancel requests cancellation of the active run. It reports whether a run was active.
func (e *Engine) Cancel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.busy || e.current == nil {
		return false
	}
	e.logger.Info().Str("run_id", e.current.id).Msg("Cancellation requested")
	e.current.token.Cancel()
	return true
}

// SnapshotStats returns the stats of the active or most recent run.
func (e *Engine) SnapshotStats() models.CloneStats {
	e.mu.Lock()
	r := e.current
	e.mu.Unlock()
	if r == nil {
		return models.CloneStats{}
	}
	return r.tracker.Snapshot()
}

// Status returns the state of the active or most recent run, if any.
func (e *Engine) Status() (models.RunStatus, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.current
	if r == nil {
		return models.RunStatus{State: models.RunStateIdle}, false
	}

	status := models.RunStatus{
		RunID:       r.id,
		State:       r.state,
		Progress:    r.progress,
		Source:      r.source,
		Destination: r.destination,
		Stats:       r.tracker.Snapshot(),
	}
	if r.err != nil {
		status.ErrorKind = core.ErrorKind(r.err)
		status.ErrorMessage = r.err.Error()
	}
	return status, true
}

// Wait blocks until the run with runID finishes. Unknown ids return immediately.
func (e *Engine) Wait(runID string) {
	e.mu.Lock()
	r := e.current
	e.mu.Unlock()
	if r != nil && r.id == runID {
		<-r.done
	}
}

// Shutdown cancels the active run and waits for the worker to drain.
func (e *Engine) Shutdown() {
	e.Cancel()
	e.pool.StopWait()
}

func (e *Engine) begin(req models.RunRequest, sink Sink) (*run, error) {
	if strings.TrimSpace(req.Credential) == "" {
		return nil, core.ErrEmptyCredential
	}
	if req.SourceID == "" || req.DestinationID == "" {
		return nil, fmt.Errorf("%w: source and destination ids are required", core.ErrInvalidOptions)
	}
	if req.SourceID == req.DestinationID {
		return nil, fmt.Errorf("%w: source and destination must differ", core.ErrInvalidOptions)
	}
	if err := req.Options.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidOptions, err)
	}
	if sink == nil {
		sink = SinkFuncs{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return nil, core.ErrRunInProgress
	}

	r := &run{
		id:          core.NewRunID(),
		request:     req,
		sink:        sink,
		token:       core.NewCancelToken(),
		tracker:     stats.NewTracker(),
		done:        make(chan struct{}),
		state:       models.RunStateIdle,
		source:      models.GuildDescriptor{ID: req.SourceID},
		destination: models.GuildDescriptor{ID: req.DestinationID},
	}
	e.current = r
	e.busy = true

	e.pool.Submit(func() {
		e.execute(r)
	})
	return r, nil
}

func (e *Engine) execute(r *run) {
	log := e.logger.With().Str("run_id", r.id).Logger()
	log.Info().
		Str("source_id", r.request.SourceID).
		Str("destination_id", r.request.DestinationID).
		Interface("options", r.request.Options).
		Msg("Starting to clone guild")
	e.metrics.RunStarted()

	startedAt := time.Now()
	r.tracker.Start()
	err := e.replicate(r, log)
	r.tracker.Stop()

	state := models.RunStateCompleted
	switch {
	case err == nil:
		e.setProgress(r, 1.0)
		log.Info().Msg("Completed successfully - guild cloned")
	case errors.Is(err, core.ErrCancelled):
		state = models.RunStateCancelled
		err = nil
		log.Info().Msg("Clone run cancelled")
	default:
		state = models.RunStateFailed
		log.Error().Err(err).Str("error_kind", core.ErrorKind(err)).Msg("Failed to clone guild")
	}

	finalStats := r.tracker.Snapshot()
	r.sink.OnStats(r.id, finalStats)

	e.mu.Lock()
	r.state = state
	r.err = err
	r.outcome = models.RunOutcome{
		RunID:       r.id,
		State:       state,
		Source:      r.source,
		Destination: r.destination,
		Stats:       finalStats,
		StartedAt:   startedAt,
		FinishedAt:  time.Now(),
	}
	if err != nil {
		r.outcome.ErrorKind = core.ErrorKind(err)
		r.outcome.ErrorMessage = err.Error()
	}
	outcome := r.outcome
	observers := append([]OutcomeObserver(nil), e.observers...)
	e.mu.Unlock()

	r.sink.OnState(r.id, state)
	e.metrics.RunFinished(string(state))

	for _, observer := range observers {
		observer.OnRunFinished(context.Background(), outcome)
	}

	e.mu.Lock()
	e.busy = false
	e.mu.Unlock()
	close(r.done)
}

// replicate drives Verifying and Running. It returns nil on completion,
// core.ErrCancelled on cancellation and the fatal error otherwise.
func (e *Engine) replicate(r *run, log zerolog.Logger) error {
	// calls run to completion once issued; cancellation is checked between units
	ctx := context.Background()

	client, err := e.clientFactory(r.request.Credential, r.tracker.RecordError)
	if err != nil {
		return fmt.Errorf("failed to create api client: %w", err)
	}
	defer client.Close()

	e.setState(r, models.RunStateVerifying)
	source, destination, err := verifyAccess(ctx, client, r.request.SourceID, r.request.DestinationID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	r.source, r.destination = *source, *destination
	e.mu.Unlock()
	if err := r.token.Check(); err != nil {
		return err
	}

	e.setState(r, models.RunStateRunning)

	opts := r.request.Options
	plan := planner.Plan(opts)
	snapshot, err := fetchSnapshot(ctx, client, *source, opts)
	if err != nil {
		return err
	}

	r.tracker.AddTotals(
		totalIf(planner.Contains(plan, models.PhaseRoles), len(structure.ClonableRoles(snapshot))),
		totalIf(planner.Contains(plan, models.PhaseCategories), len(snapshot.Categories)),
		totalIf(planner.Contains(plan, models.PhaseTextChannels), len(snapshot.TextChannels))+
			totalIf(planner.Contains(plan, models.PhaseVoiceChannels), len(snapshot.VoiceChannels)),
	)
	r.tracker.AddPlanned(structure.PlannedUnits(snapshot, plan))
	if planner.Contains(plan, models.PhaseMessages) {
		r.tracker.AddPlanned(messagecopy.PlannedUnits(snapshot, opts.MessagesLimit))
	}
	e.emit(r)

	ids := idmap.New()
	// overwrites on @everyone target the guild id itself
	if err := ids.Map(models.EntityRole, source.ID, destination.ID); err != nil {
		return fmt.Errorf("failed to map default role: %w", err)
	}

	onUnit := func() { e.emit(r) }
	structural := structure.NewReplicator(structure.Params{
		Client:  client,
		IDs:     ids,
		Tracker: r.tracker,
		Logger:  log,
		Metrics: e.metrics,
		OnUnit:  onUnit,
	})
	var postLimiter *rate.Limiter
	if e.postsPerSecond > 0 {
		postLimiter = rate.NewLimiter(rate.Limit(e.postsPerSecond), 1)
	}
	messages := messagecopy.NewReplicator(messagecopy.Params{
		Client:      client,
		IDs:         ids,
		Tracker:     r.tracker,
		PostLimiter: postLimiter,
		Logger:      log,
		Metrics:     e.metrics,
		OnUnit:      onUnit,
	})

	for _, phase := range plan {
		if err := r.token.Check(); err != nil {
			return err
		}
		log.Info().Str("phase", string(phase)).Msg("Starting phase")

		if phase == models.PhaseMessages {
			err = messages.CopyAll(ctx, r.token, snapshot.TextChannels, opts.MessagesLimit)
		} else {
			err = structural.RunPhase(ctx, r.token, phase, snapshot, plan, destination.ID)
		}
		if err != nil {
			return err
		}

		log.Info().Str("phase", string(phase)).Interface("stats", r.tracker.Snapshot()).Msg("Completed phase")
	}
	return nil
}

func (e *Engine) setState(r *run, state models.RunState) {
	e.mu.Lock()
	r.state = state
	e.mu.Unlock()
	r.sink.OnState(r.id, state)
}

func (e *Engine) setProgress(r *run, progress float64) {
	e.mu.Lock()
	r.progress = progress
	e.mu.Unlock()
	e.metrics.SetProgress(progress)
	r.sink.OnProgress(r.id, progress)
}

// emit publishes progress followed by a stats snapshot.
func (e *Engine) emit(r *run) {
	e.setProgress(r, r.tracker.Progress())
	r.sink.OnStats(r.id, r.tracker.Snapshot())
}

func verifyAccess(
	ctx context.Context,
	client clients.DiscordClient,
	sourceID, destinationID string,
) (*models.GuildDescriptor, *models.GuildDescriptor, error) {
	source, err := client.GetGuild(ctx, sourceID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to verify source guild: %w", err)
	}
	destination, err := client.GetGuild(ctx, destinationID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to verify destination guild: %w", err)
	}
	return source, destination, nil
}

// fetchSnapshot reads everything the enabled phases need from the source.
func fetchSnapshot(
	ctx context.Context,
	client clients.DiscordClient,
	source models.GuildDescriptor,
	opts models.CloneOptions,
) (*models.SourceSnapshot, error) {
	snapshot := &models.SourceSnapshot{Guild: source}

	if opts.Roles {
		roles, err := client.ListRoles(ctx, source.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read source roles: %w", err)
		}
		snapshot.Roles = roles
	}

	if opts.Categories || opts.TextChannels || opts.VoiceChannels || opts.Messages {
		listing, err := client.ListChannels(ctx, source.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read source channels: %w", err)
		}
		snapshot.Categories = listing.Categories
		snapshot.TextChannels = listing.TextChannels
		snapshot.VoiceChannels = listing.VoiceChannels
	}

	return snapshot, nil
}

func totalIf(enabled bool, n int) int {
	if enabled {
		return n
	}
	return 0
}
