// Package refresh keeps an up-to-date view of schedule occurrences and the
// currently running set.
package refresh

import (
	"context"
	"sort"
	"sync"
	"time"

	"cronlens/internal/config"
	"cronlens/internal/engine"
	"cronlens/internal/eventbus"
	"cronlens/internal/storage"
	logx "cronlens/pkg/logx"
)

// Service periodically re-evaluates which schedules are running and serves
// month/day views to the API layer. Schedule data is cached from the store
// and refreshed when a schedules.changed event arrives.
type Service struct {
	store storage.Store
	bus   eventbus.Bus
	log   logx.Logger

	mu        sync.Mutex
	set       config.CalendarSettings
	eng       *engine.Engine
	schedules []engine.Schedule
	dirty     bool
	running   []string

	stopCh   chan struct{}
	stopDone chan struct{}
	unsub    func()
}

func New(set config.CalendarSettings, store storage.Store, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store: store,
		bus:   bus,
		log:   log,
		set:   set,
		eng:   engine.New(set.MaxCacheEntries),
		dirty: true,
	}
}

// Apply swaps calendar settings at runtime. A changed cache size gets a fresh
// engine so stale month results can't be served.
func (s *Service) Apply(set config.CalendarSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set.MaxCacheEntries != s.set.MaxCacheEntries {
		s.eng = engine.New(set.MaxCacheEntries)
	}
	if set != s.set {
		s.dirty = true
	}
	s.set = set
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.stopDone = make(chan struct{})
	stopCh := s.stopCh
	stopDone := s.stopDone

	var events <-chan eventbus.Event
	if s.bus != nil {
		events, s.unsub = s.bus.Subscribe(16)
	}
	interval := s.set.RefreshInterval
	s.mu.Unlock()

	go func() {
		defer close(stopDone)
		s.loop(ctx, stopCh, events, interval)
	}()
	s.log.Info("refresh service started", logx.Duration("interval", interval))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	stopCh := s.stopCh
	stopDone := s.stopDone
	unsub := s.unsub
	s.stopCh = nil
	s.stopDone = nil
	s.unsub = nil
	s.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	if unsub != nil {
		unsub()
	}
	select {
	case <-stopDone:
	case <-ctx.Done():
	}
}

func (s *Service) loop(ctx context.Context, stopCh <-chan struct{}, events <-chan eventbus.Event, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Evaluate once up front so /running is correct before the first tick.
	s.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Type == eventbus.TypeSchedulesChanged {
				s.Invalidate()
			}
		case <-ticker.C:
			// Latest-wins: drain queued ticks after a stall so we evaluate
			// the present, not the backlog.
			for drained := false; !drained; {
				select {
				case <-ticker.C:
				default:
					drained = true
				}
			}
			s.refresh(ctx)
		}
	}
}

// Invalidate forces a schedule reload from the store on the next refresh.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// refresh reloads schedules when dirty, re-evaluates the current month and
// publishes running.changed when the running set moved.
func (s *Service) refresh(ctx context.Context) {
	s.mu.Lock()
	set := s.set
	eng := s.eng
	if s.dirty && s.store != nil {
		s.mu.Unlock()
		list, err := s.store.ListSchedules(ctx)
		s.mu.Lock()
		if err != nil {
			s.mu.Unlock()
			s.log.Warn("schedule reload failed", logx.Err(err))
			return
		}
		s.schedules = list
		s.dirty = false
	}
	schedules := s.schedules
	prev := s.running
	s.mu.Unlock()

	now := time.Now()
	slots, evalErrs, err := eng.EvaluateMonth(schedules, now, set.RunnerTimezone)
	if err != nil {
		s.log.Warn("month evaluation failed", logx.Err(err))
		return
	}
	for _, se := range evalErrs {
		s.log.Debug("schedule skipped", logx.String("schedule_id", se.ScheduleID), logx.Err(se.Err))
	}

	ids := engine.RunningScheduleIDs(slots, now)
	cur := make([]string, 0, len(ids))
	for id := range ids {
		cur = append(cur, id)
	}
	sort.Strings(cur)

	if equalStrings(prev, cur) {
		return
	}
	s.mu.Lock()
	s.running = cur
	s.mu.Unlock()

	s.log.Info("running set changed", logx.Int("count", len(cur)))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeRunningChanged, Data: cur})
	}
}

// Running returns the last observed running schedule IDs, sorted.
func (s *Service) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.running))
	copy(out, s.running)
	return out
}

// Settings returns the current calendar settings.
func (s *Service) Settings() config.CalendarSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// MonthView evaluates all stored schedules over ref's month in the runner
// timezone.
func (s *Service) MonthView(ctx context.Context, ref time.Time) ([]engine.Slot, []engine.ScheduleError, error) {
	schedules, err := s.currentSchedules(ctx)
	if err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	set := s.set
	eng := s.eng
	s.mu.Unlock()
	return eng.EvaluateMonth(schedules, ref, set.RunnerTimezone)
}

// DayView materializes one projected day: clipped slots plus hour segments
// with collision marks. An empty tz falls back to the configured projection
// timezone.
func (s *Service) DayView(ctx context.Context, day time.Time, tz string) ([]engine.Slot, []engine.Segment, []engine.ScheduleError, error) {
	if tz == "" {
		tz = s.Settings().ProjectionTimezone
	}
	slots, evalErrs, err := s.MonthView(ctx, day)
	if err != nil {
		return nil, nil, nil, err
	}
	daySlots, err := engine.ProjectDay(slots, day, tz)
	if err != nil {
		return nil, nil, nil, err
	}
	return daySlots, engine.SegmentDay(daySlots), evalErrs, nil
}

func (s *Service) currentSchedules(ctx context.Context) ([]engine.Schedule, error) {
	s.mu.Lock()
	dirty := s.dirty
	cached := s.schedules
	s.mu.Unlock()
	if !dirty || s.store == nil {
		return cached, nil
	}
	list, err := s.store.ListSchedules(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.schedules = list
	s.dirty = false
	s.mu.Unlock()
	return list, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
