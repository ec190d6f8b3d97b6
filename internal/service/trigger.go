package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/timmy/sissync/internal/config"
	"github.com/timmy/sissync/internal/domain"
	"github.com/timmy/sissync/internal/logger"
)

// ErrInvalidCron is returned for a cron expression that does not parse.
var ErrInvalidCron = errors.New("invalid cron expression")

// cronParser accepts standard five-field expressions, an optional leading
// seconds field, and descriptors such as @daily.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseCron validates expr and returns its schedule.
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidCron, expr, err)
	}
	return sched, nil
}

// ScheduleSource supplies the active schedules.
type ScheduleSource interface {
	Ping(ctx context.Context) error
	ListActive(ctx context.Context) ([]domain.ScheduleDefinition, error)
}

// RunStarter executes a run synchronously.
type RunStarter interface {
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
}

type registeredSchedule struct {
	entryID     cron.EntryID
	fingerprint string
}

// RecurringTrigger fires sync runs from stored cron schedules. It owns the
// map of registered timers: filled at Start, diffed on every reload, drained at Stop.
type RecurringTrigger struct {
	schedules ScheduleSource
	runner    RunStarter
	enabled   bool
	interval  time.Duration
	location  *time.Location
	cron      *cron.Cron

	// reloadMu serializes whole reloads so an older listing is never
	// applied after a newer one.
	reloadMu sync.Mutex

	mu      sync.Mutex
	entries map[uint]registeredSchedule

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewRecurringTrigger creates a new RecurringTrigger from scheduler config.
func NewRecurringTrigger(schedules ScheduleSource, runner RunStarter, cfg config.SchedulerConfig) (*RecurringTrigger, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler timezone %q: %w", tz, err)
	}
	interval := cfg.ReloadInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &RecurringTrigger{
		schedules: schedules,
		runner:    runner,
		enabled:   cfg.Enabled,
		interval:  interval,
		location:  loc,
		cron:      cron.New(cron.WithLocation(loc), cron.WithParser(cronParser)),
		entries:   make(map[uint]registeredSchedule),
	}, nil
}

// Start verifies storage, registers every active schedule and starts the
// reload poller. It is a no-op when the trigger is disabled.
func (t *RecurringTrigger) Start(ctx context.Context) error {
	ctx = logger.SetComponent(ctx, "recurring_trigger")
	if !t.enabled {
		logger.CtxInfo(ctx, "Recurring trigger disabled")
		return nil
	}
	if err := t.schedules.Ping(ctx); err != nil {
		return fmt.Errorf("schedule store unreachable: %w", err)
	}

	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return errors.New("recurring trigger already started")
	}
	t.ctx, t.cancel = context.WithCancel(context.WithoutCancel(ctx))
	t.done = make(chan struct{})
	t.started = true
	t.mu.Unlock()

	if err := t.Reload(ctx); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Initial schedule load failed")
	}
	t.cron.Start()
	go t.poll()

	logger.CtxInfo(ctx, "Recurring trigger started (timezone %s, reload every %s)", t.location, t.interval)
	return nil
}

func (t *RecurringTrigger) poll() {
	defer close(t.done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			if err := t.Reload(t.ctx); err != nil {
				logger.FromContext(t.ctx).WithError(err).Warn("Schedule reload failed")
			}
		}
	}
}

// Reload diffs the active schedules against the registered timers:
// vanished or inactive schedules are removed, new or changed ones are
// stopped and registered afresh. Invalid cron expressions are skipped with a
// warning. Reload does nothing until the trigger has started.
func (t *RecurringTrigger) Reload(ctx context.Context) error {
	if t == nil {
		return nil
	}
	t.reloadMu.Lock()
	defer t.reloadMu.Unlock()

	t.mu.Lock()
	started := t.started
	t.mu.Unlock()
	if !started {
		return nil
	}

	active, err := t.schedules.ListActive(ctx)
	if err != nil {
		return err
	}
	desired := make(map[uint]domain.ScheduleDefinition, len(active))
	for _, s := range active {
		if s.IsActive {
			desired[s.ID] = s
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return nil
	}

	for id, reg := range t.entries {
		def, ok := desired[id]
		if ok && def.Fingerprint() == reg.fingerprint {
			continue
		}
		t.cron.Remove(reg.entryID)
		delete(t.entries, id)
		logger.FromContext(ctx).WithField(logger.FieldScheduleID, id).Info("Schedule timer removed")
	}

	for id, def := range desired {
		if _, ok := t.entries[id]; ok {
			continue
		}
		sched, err := ParseCron(def.CronExpression)
		if err != nil {
			logger.FromContext(ctx).WithField(logger.FieldScheduleID, id).WithError(err).Warn("Skipping schedule")
			continue
		}
		entryID := t.cron.Schedule(sched, cron.FuncJob(func() { t.fire(def) }))
		t.entries[id] = registeredSchedule{entryID: entryID, fingerprint: def.Fingerprint()}
		logger.FromContext(ctx).WithFields(logger.Fields{
			logger.FieldScheduleID: id,
			"cron":                 def.CronExpression,
		}).Info("Schedule timer registered")
	}
	return nil
}

// fire runs one schedule. Errors are logged; the timer stays registered.
func (t *RecurringTrigger) fire(def domain.ScheduleDefinition) {
	ctx := logger.WithField(t.ctx, logger.FieldScheduleID, def.ID)
	if ctx.Err() != nil {
		return
	}
	logger.CtxInfo(ctx, "Schedule fired")

	id := def.ID
	result, err := t.runner.Run(ctx, RunRequest{
		Scope:        ScheduleScope(def),
		AcademicYear: def.AcademicYear,
		Endpoints:    def.EndpointOverrides(),
		ScheduleID:   &id,
		TriggeredBy:  domain.TriggeredByScheduler,
	})
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Scheduled run failed")
		return
	}
	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldRunID:  result.RunID,
		logger.FieldStatus: result.Status,
	}).Info("Scheduled run finished")
}

// ScheduleScope builds the scope request of a schedule. No nodes means all.
func ScheduleScope(def domain.ScheduleDefinition) domain.ScopeRequest {
	if len(def.NodeIDs) == 0 {
		return domain.ScopeRequest{All: true}
	}
	return domain.ScopeRequest{
		NodeIDs:            append([]uint(nil), def.NodeIDs...),
		IncludeDescendants: def.IncludeDescendants,
	}
}

// Registered returns the ids of schedules with a live timer, ascending.
func (t *RecurringTrigger) Registered() []uint {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]uint, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// NextRun returns the next firing time of a registered schedule.
func (t *RecurringTrigger) NextRun(scheduleID uint) (time.Time, bool) {
	t.mu.Lock()
	reg, ok := t.entries[scheduleID]
	t.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return t.cron.Entry(reg.entryID).Next, true
}

// Stop halts the poller and every timer, then waits for in-flight firings
// (which see their context cancelled) or for ctx to expire.
func (t *RecurringTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return nil
	}
	t.started = false
	t.cancel()
	t.mu.Unlock()

	<-t.done
	stopped := t.cron.Stop()

	t.mu.Lock()
	for id, reg := range t.entries {
		t.cron.Remove(reg.entryID)
		delete(t.entries, id)
	}
	t.mu.Unlock()

	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
