package occupancy

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/ThxTiger/roomkiosk/internal/backend"
	"github.com/ThxTiger/roomkiosk/internal/metrics"
	"github.com/ThxTiger/roomkiosk/internal/models"
	"github.com/ThxTiger/roomkiosk/internal/repository"
	"github.com/ThxTiger/roomkiosk/internal/utils"
)

// Poller is the slice of the backend client the monitor needs
type Poller interface {
	ActiveMeeting(ctx context.Context, roomEmail string) (*models.MeetingSnapshot, error)
}

// Update is what the monitor publishes to the display layer after each
// evaluation that changed something visible
type Update struct {
	RoomEmail string                `json:"room_email"`
	State     models.OccupancyState `json:"-"`
	StateName string                `json:"state"`
	EventID   string                `json:"event_id,omitempty"`
	Subject   string                `json:"subject,omitempty"`
	Organizer string                `json:"organizer,omitempty"`
	Start     time.Time             `json:"start,omitempty"`
	End       time.Time             `json:"end,omitempty"`
	// StartsSoon is set for upcoming meetings inside the display window;
	// the banner stays quiet for meetings further out
	StartsSoon bool `json:"starts_soon,omitempty"`
	// GridRefresh tells the display to reload the busy/free timeline:
	// set on the first update after a room selection and whenever the
	// active event identity changes between polls
	GridRefresh bool `json:"grid_refresh,omitempty"`
}

// UpdateFunc receives published state updates
type UpdateFunc func(Update)

// Options configures a Monitor
type Options struct {
	Backend        Poller
	Repo           repository.Repository
	Metrics        *metrics.Metrics
	PollInterval   time.Duration
	CheckInGrace   time.Duration
	UpcomingWindow time.Duration
	// OnTick receives countdown renderings for the display
	OnTick TickFunc
}

// Monitor owns the occupancy state for the selected room: it polls the
// backend, runs the evaluator, drives the two countdowns and publishes
// updates. All session memory lives here, never in package-level state.
type Monitor struct {
	backend        Poller
	repo           repository.Repository
	metrics        *metrics.Metrics
	pollInterval   time.Duration
	grace          time.Duration
	upcomingWindow time.Duration
	clock          func() time.Time

	checkIn    *Countdown
	meetingEnd *Countdown

	pollNow chan struct{}

	// applyMu serializes an evaluation with the countdown directives,
	// persistence and publication that follow it, so concurrent polls and
	// kiosk actions cannot publish or arm countdowns out of order.
	applyMu sync.Mutex

	mu          sync.Mutex
	room        *models.Room
	mem         Memory
	lastSnap    *models.MeetingSnapshot
	lastEventID string
	firstPoll   bool
	last        Update
	hasLast     bool
	listeners   []UpdateFunc
}

// NewMonitor creates a monitor; call Run to start polling
func NewMonitor(opts Options) *Monitor {
	m := &Monitor{
		backend:        opts.Backend,
		repo:           opts.Repo,
		metrics:        opts.Metrics,
		pollInterval:   opts.PollInterval,
		grace:          opts.CheckInGrace,
		upcomingWindow: opts.UpcomingWindow,
		clock:          time.Now,
		pollNow:        make(chan struct{}, 1),
	}
	m.checkIn = NewCountdown(SlotCheckIn, opts.OnTick, nil)
	// The meeting-end timer pulls the next evaluation forward instead of
	// waiting out the poll cadence.
	m.meetingEnd = NewCountdown(SlotMeetingEnd, opts.OnTick, func(CountdownSlot) { m.PollNow() })
	return m
}

// SetClock overrides the wall clock, for tests
func (m *Monitor) SetClock(clock func() time.Time) {
	m.mu.Lock()
	m.clock = clock
	m.mu.Unlock()
	m.checkIn.SetClock(clock)
	m.meetingEnd.SetClock(clock)
}

// Subscribe registers a listener for published updates
func (m *Monitor) Subscribe(fn UpdateFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Run polls on the configured cadence until ctx is done. PollNow requests
// are folded into the same loop, so evaluations never overlap.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	defer m.disarmAll()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Poll(ctx)
		case <-m.pollNow:
			m.Poll(ctx)
		}
	}
}

// PollNow schedules an out-of-cadence poll, coalescing repeated requests
func (m *Monitor) PollNow() {
	select {
	case m.pollNow <- struct{}{}:
	default:
	}
}

// SelectRoom switches the monitored room. In-flight polls for the previous
// room are discarded when they land; persisted release and lock state for the
// new room is restored so a kiosk restart cannot resurrect a released lock or
// forget an active one.
func (m *Monitor) SelectRoom(ctx context.Context, room models.Room) {
	released := ""
	var locked *models.MeetingSnapshot
	if m.repo != nil {
		if id, err := m.repo.GetReleasedEvent(ctx, room.EmailAddress); err == nil {
			released = id
		}
		if snap, err := m.repo.GetLockedEvent(ctx, room.EmailAddress); err == nil && !snap.HasEnded(m.clockNow()) {
			locked = snap
		}
	}

	m.applyMu.Lock()
	m.mu.Lock()
	m.room = &room
	m.mem = Memory{ReleasedEventID: released, LockedEvent: locked}
	m.lastSnap = nil
	m.lastEventID = ""
	m.firstPoll = true
	m.hasLast = false
	m.mu.Unlock()

	m.disarmAll()
	m.applyMu.Unlock()
	m.PollNow()
}

// Room returns the currently selected room, if any
func (m *Monitor) Room() *models.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.room == nil {
		return nil
	}
	room := *m.room
	return &room
}

// ActiveSnapshot returns the snapshot from the most recent successful poll
func (m *Monitor) ActiveSnapshot() *models.MeetingSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastSnap == nil {
		return nil
	}
	snap := *m.lastSnap
	return &snap
}

// LockedEvent returns the snapshot captured at check-in, or nil
func (m *Monitor) LockedEvent() *models.MeetingSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mem.LockedEvent == nil {
		return nil
	}
	snap := *m.mem.LockedEvent
	return &snap
}

// Current returns the last published update and whether one exists
func (m *Monitor) Current() (Update, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.hasLast
}

// LockNow records a successful check-in without waiting for the backend's
// category update to propagate: the snapshot becomes the locked event and
// the meeting-end countdown starts immediately.
func (m *Monitor) LockNow(ctx context.Context, snapshot *models.MeetingSnapshot) {
	if snapshot == nil {
		return
	}
	locked := *snapshot
	locked.IsCheckedIn = true

	m.mu.Lock()
	room := m.room
	// The release suppression covers backend lag only; a fresh,
	// backend-confirmed check-in on the same event overrides it.
	wasReleased := m.mem.ReleasedEventID == locked.EventID
	if wasReleased {
		m.mem.ReleasedEventID = ""
	}
	m.mu.Unlock()
	if room == nil {
		return
	}

	if m.repo != nil {
		if wasReleased {
			if err := m.repo.ClearReleasedEvent(ctx, room.EmailAddress); err != nil {
				log.Printf("Error clearing released event: %v", err)
			}
		}
		if err := m.repo.SaveLockedEvent(ctx, room.EmailAddress, &locked); err != nil {
			log.Printf("Error persisting locked event: %v", err)
		}
	}
	if m.metrics != nil {
		m.metrics.CheckIns.Inc()
	}
	m.apply(room.EmailAddress, &locked)
}

// MarkReleased records a manual early end for the given event. The lock is
// dropped and re-locking on the same event id is suppressed until the backend
// reports a different event (or none), covering its propagation lag.
func (m *Monitor) MarkReleased(ctx context.Context, eventID string) {
	m.applyMu.Lock()
	m.mu.Lock()
	room := m.room
	m.mem.LockedEvent = nil
	m.mem.ReleasedEventID = eventID
	m.mu.Unlock()

	m.meetingEnd.Disarm()
	m.applyMu.Unlock()

	if room != nil && m.repo != nil {
		if err := m.repo.ClearLockedEvent(ctx, room.EmailAddress); err != nil {
			log.Printf("Error clearing locked event: %v", err)
		}
		if err := m.repo.SetReleasedEvent(ctx, room.EmailAddress, eventID); err != nil {
			log.Printf("Error persisting released event: %v", err)
		}
	}
	m.PollNow()
}

// Poll runs one synchronous poll-and-evaluate cycle for the selected room
func (m *Monitor) Poll(ctx context.Context) {
	m.mu.Lock()
	room := m.room
	m.mu.Unlock()
	if room == nil {
		return
	}

	if m.metrics != nil {
		m.metrics.Polls.Inc()
	}

	snapshot, err := m.backend.ActiveMeeting(ctx, room.EmailAddress)
	if err == nil && snapshot != nil {
		m.seedSubject(ctx, snapshot.EventID)
	}
	if err != nil {
		// A failed poll never clears state; the display keeps showing
		// what the last successful poll established.
		if m.metrics != nil {
			m.metrics.PollFailures.Inc()
		}
		if errors.Is(err, backend.ErrUnauthorized) {
			log.Printf("Poll skipped for %s: backend rejected credentials", utils.SanitizeLogString(room.EmailAddress))
		} else {
			log.Printf("Poll failed for %s: %v", utils.SanitizeLogString(room.EmailAddress), err)
		}
		return
	}

	m.apply(room.EmailAddress, snapshot)
}

// apply runs one evaluation pass and publishes the outcome. roomEmail is the
// room the snapshot was fetched for; results for a room that is no longer
// selected are discarded.
func (m *Monitor) apply(roomEmail string, snapshot *models.MeetingSnapshot) {
	m.applyMu.Lock()
	defer m.applyMu.Unlock()

	m.mu.Lock()

	if m.room == nil || m.room.EmailAddress != roomEmail {
		m.mu.Unlock()
		return
	}

	now := m.clock()
	res := Evaluate(snapshot, now, m.mem, m.grace)

	eventID := ""
	if snapshot != nil && !snapshot.HasEnded(now) {
		eventID = snapshot.EventID
	}
	eventChanged := !m.firstPoll && eventID != m.lastEventID
	// Room selection always reloads the timeline; after that only an
	// event-identity change does.
	gridRefresh := m.firstPoll || eventChanged
	m.firstPoll = false
	m.lastEventID = eventID
	m.lastSnap = snapshot

	prevState := m.last.State
	hadPrev := m.hasLast

	if res.ClearReleased {
		m.mem.ReleasedEventID = ""
	}
	lockCaptured := false
	if res.Lock {
		if m.mem.LockedEvent == nil || m.mem.LockedEvent.EventID != snapshot.EventID {
			lockCaptured = true
		}
		snap := *snapshot
		m.mem.LockedEvent = &snap
	} else {
		m.mem.LockedEvent = nil
	}
	subjectChanged := false
	if res.State != models.StateFree && snapshot != nil {
		if m.mem.ShownSubjectEventID != snapshot.EventID || m.mem.ShownSubject != res.Subject {
			subjectChanged = true
		}
		m.mem.ShownSubject = res.Subject
		m.mem.ShownSubjectEventID = snapshot.EventID
	}

	update := Update{
		RoomEmail:   roomEmail,
		State:       res.State,
		StateName:   res.State.String(),
		EventID:     eventID,
		Subject:     res.Subject,
		Organizer:   res.Organizer,
		Start:       res.Start,
		End:         res.End,
		GridRefresh: gridRefresh,
	}
	if res.State == models.StateUpcoming {
		update.StartsSoon = res.Start.Sub(now) <= m.upcomingWindow
	}

	changed := !m.hasLast || eventChanged || subjectChanged ||
		update.State != m.last.State || update.StartsSoon != m.last.StartsSoon
	m.last = update
	m.hasLast = true

	listeners := make([]UpdateFunc, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	// Countdown directives. Arm is idempotent for an unchanged target, so
	// a steady state does not restart the tickers.
	switch res.Slot {
	case SlotCheckIn:
		m.meetingEnd.Disarm()
		m.checkIn.Arm(res.Target, res.ExpiryLabel)
	case SlotMeetingEnd:
		m.checkIn.Disarm()
		m.meetingEnd.Arm(res.Target, res.ExpiryLabel)
	default:
		m.disarmAll()
	}

	if m.repo != nil {
		m.persist(roomEmail, res, snapshot, lockCaptured)
	}
	if m.metrics != nil {
		m.metrics.CurrentState.Set(float64(res.State))
		if !hadPrev || res.State != prevState {
			m.metrics.StateTransitions.WithLabelValues(res.State.String()).Inc()
		}
	}

	if changed {
		for _, fn := range listeners {
			fn(update)
		}
	}
}

func (m *Monitor) persist(roomEmail string, res Result, snapshot *models.MeetingSnapshot, lockCaptured bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if res.ClearReleased {
		if err := m.repo.ClearReleasedEvent(ctx, roomEmail); err != nil {
			log.Printf("Error clearing released event: %v", err)
		}
	}
	if lockCaptured {
		if err := m.repo.SaveLockedEvent(ctx, roomEmail, snapshot); err != nil {
			log.Printf("Error persisting locked event: %v", err)
		}
	}
	if res.State == models.StateFree {
		if err := m.repo.ClearLockedEvent(ctx, roomEmail); err != nil {
			log.Printf("Error clearing locked event: %v", err)
		}
	}
	if snapshot != nil && res.Subject != "" {
		if err := m.repo.SaveSubject(ctx, snapshot.EventID, res.Subject); err != nil {
			log.Printf("Error persisting subject: %v", err)
		}
	}
}

// seedSubject restores the persisted repaired subject for an event not yet
// seen this session, so a restart cannot regress a subject that was already
// repaired and shown.
func (m *Monitor) seedSubject(ctx context.Context, eventID string) {
	if m.repo == nil {
		return
	}
	m.mu.Lock()
	seen := m.mem.ShownSubjectEventID == eventID
	m.mu.Unlock()
	if seen {
		return
	}

	subject, err := m.repo.GetSubject(ctx, eventID)
	if err != nil {
		return
	}
	m.mu.Lock()
	if m.mem.ShownSubjectEventID != eventID {
		m.mem.ShownSubject = subject
		m.mem.ShownSubjectEventID = eventID
	}
	m.mu.Unlock()
}

func (m *Monitor) clockNow() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock()
}

func (m *Monitor) disarmAll() {
	m.checkIn.Disarm()
	m.meetingEnd.Disarm()
}
