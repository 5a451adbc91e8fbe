package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/kanban-service/internal/domain"
	"github.com/spec-kit/kanban-service/internal/events"
	"github.com/spec-kit/kanban-service/internal/messaging"
	"github.com/spec-kit/kanban-service/internal/observability"
	"github.com/spec-kit/kanban-service/internal/repository"
)

// fakeClock is a settable Clock for deterministic deadline tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeLaneRepo keeps lanes in a map, scoped by tenant the way the SQL queries are.
type fakeLaneRepo struct {
	mu    sync.Mutex
	lanes map[string]domain.Lane
}

func newFakeLaneRepo() *fakeLaneRepo {
	return &fakeLaneRepo{lanes: make(map[string]domain.Lane)}
}

func (r *fakeLaneRepo) put(lane domain.Lane) domain.Lane {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lane.ID == "" {
		lane.ID = uuid.NewString()
	}
	r.lanes[lane.ID] = lane
	return lane
}

func (r *fakeLaneRepo) Create(_ context.Context, lane *domain.Lane) error {
	*lane = r.put(*lane)
	return nil
}

func (r *fakeLaneRepo) Update(_ context.Context, lane *domain.Lane) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.lanes[lane.ID]
	if !ok || existing.TenantID != lane.TenantID {
		return pgx.ErrNoRows
	}
	r.lanes[lane.ID] = *lane
	return nil
}

func (r *fakeLaneRepo) Delete(_ context.Context, tenantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lane, ok := r.lanes[id]
	if !ok || lane.TenantID != tenantID {
		return pgx.ErrNoRows
	}
	delete(r.lanes, id)
	return nil
}

func (r *fakeLaneRepo) GetByID(_ context.Context, tenantID, id string) (*domain.Lane, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lane, ok := r.lanes[id]
	if !ok || lane.TenantID != tenantID {
		return nil, pgx.ErrNoRows
	}
	out := lane
	return &out, nil
}

func (r *fakeLaneRepo) ListByTenant(_ context.Context, tenantID string) ([]domain.Lane, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Lane
	for _, lane := range r.lanes {
		if lane.TenantID == tenantID {
			result = append(result, lane)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].KanbanIndex < result[j].KanbanIndex })
	return result, nil
}

func (r *fakeLaneRepo) CountReferences(_ context.Context, tenantID, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, lane := range r.lanes {
		if lane.TenantID != tenantID || lane.ID == id {
			continue
		}
		if lane.ForwardLaneID != nil && *lane.ForwardLaneID == id {
			count++
		}
		if lane.RollbackLaneID != nil && *lane.RollbackLaneID == id {
			count++
		}
	}
	return count, nil
}

// fakeTicketRepo stores tickets plus a ticket->lane membership, deriving LaneID
// on reads the way the production JOIN does.
type fakeTicketRepo struct {
	mu         sync.Mutex
	lanes      *fakeLaneRepo
	tickets    map[string]domain.Ticket
	membership map[string]string

	replaceErrFor map[string]error
	timerErrFor   map[string]error
}

func newFakeTicketRepo(lanes *fakeLaneRepo) *fakeTicketRepo {
	return &fakeTicketRepo{
		lanes:         lanes,
		tickets:       make(map[string]domain.Ticket),
		membership:    make(map[string]string),
		replaceErrFor: make(map[string]error),
		timerErrFor:   make(map[string]error),
	}
}

func (r *fakeTicketRepo) put(ticket domain.Ticket) domain.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	ticket.LaneID = nil
	r.tickets[ticket.ID] = ticket
	return ticket
}

func (r *fakeTicketRepo) place(ticketID, laneID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.membership[ticketID] = laneID
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	now := time.Now()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	*ticket = r.put(*ticket)
	return nil
}

func (r *fakeTicketRepo) workflowLaneOf(ticketID, tenantID string) *domain.Lane {
	laneID, ok := r.membership[ticketID]
	if !ok {
		return nil
	}
	r.lanes.mu.Lock()
	defer r.lanes.mu.Unlock()
	lane, ok := r.lanes.lanes[laneID]
	if !ok || !lane.Workflow || lane.TenantID != tenantID {
		return nil
	}
	out := lane
	return &out
}

func (r *fakeTicketRepo) GetByID(_ context.Context, tenantID, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok || ticket.TenantID != tenantID {
		return nil, pgx.ErrNoRows
	}
	if lane := r.workflowLaneOf(id, tenantID); lane != nil {
		ticket.LaneID = &lane.ID
	}
	return &ticket, nil
}

func (r *fakeTicketRepo) ListByLane(_ context.Context, tenantID, laneID string, _, _ int) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for id, ticket := range r.tickets {
		if ticket.TenantID != tenantID {
			continue
		}
		lane := r.workflowLaneOf(id, tenantID)
		if lane == nil || lane.ID != laneID {
			continue
		}
		ticket.LaneID = &lane.ID
		result = append(result, ticket)
	}
	return result, nil
}

func (r *fakeTicketRepo) CurrentLane(_ context.Context, tenantID, ticketID string) (*domain.Lane, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.workflowLaneOf(ticketID, tenantID), nil
}

func (r *fakeTicketRepo) ReplaceMembership(_ context.Context, tenantID, ticketID, laneID string, state domain.TimerState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.replaceErrFor[ticketID]; err != nil {
		return err
	}
	ticket, ok := r.tickets[ticketID]
	if !ok || ticket.TenantID != tenantID {
		return pgx.ErrNoRows
	}
	r.membership[ticketID] = laneID
	ticket.TimerState = state
	ticket.UpdatedAt = time.Now()
	r.tickets[ticketID] = ticket
	return nil
}

func (r *fakeTicketRepo) SetTimerState(_ context.Context, tenantID, ticketID string, state domain.TimerState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.timerErrFor[ticketID]; err != nil {
		return err
	}
	ticket, ok := r.tickets[ticketID]
	if !ok || ticket.TenantID != tenantID {
		return pgx.ErrNoRows
	}
	ticket.TimerState = state
	ticket.UpdatedAt = time.Now()
	r.tickets[ticketID] = ticket
	return nil
}

func (r *fakeTicketRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]repository.ExpiredTicketRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []repository.ExpiredTicketRef
	for id, ticket := range r.tickets {
		if !ticket.AutomationEnabled || !ticket.TimerActive() || ticket.NextDeadline.After(now) {
			continue
		}
		if r.workflowLaneOf(id, ticket.TenantID) == nil {
			continue
		}
		result = append(result, repository.ExpiredTicketRef{TicketID: id, TenantID: ticket.TenantID})
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

// fakeTransitionRepo records transitions in insertion order.
type fakeTransitionRepo struct {
	mu          sync.Mutex
	transitions []domain.LaneTransition
	createErr   error
}

func (r *fakeTransitionRepo) Create(_ context.Context, transition *domain.LaneTransition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if transition.ID == "" {
		transition.ID = uuid.NewString()
	}
	r.transitions = append(r.transitions, *transition)
	return nil
}

func (r *fakeTransitionRepo) ListByTicket(_ context.Context, tenantID, ticketID string, _, _ int) ([]domain.LaneTransition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.LaneTransition
	for _, t := range r.transitions {
		if t.TenantID == tenantID && t.TicketID == ticketID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (r *fakeTransitionRepo) all() []domain.LaneTransition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.LaneTransition{}, r.transitions...)
}

// fakeSettingsRepo serves one settings row per tenant, defaulting like the
// production repository does.
type fakeSettingsRepo struct {
	mu       sync.Mutex
	settings map[string]domain.TenantSettings
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{settings: make(map[string]domain.TenantSettings)}
}

func (r *fakeSettingsRepo) Get(_ context.Context, tenantID string) (*domain.TenantSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.settings[tenantID]; ok {
		out := s
		return &out, nil
	}
	return domain.DefaultTenantSettings(tenantID), nil
}

func (r *fakeSettingsRepo) Upsert(_ context.Context, settings *domain.TenantSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[settings.TenantID] = *settings
	return nil
}

// fakeMessenger captures outbound sends and signals each one on a channel so
// tests can wait for the greeting goroutine.
type fakeMessenger struct {
	mu    sync.Mutex
	sent  []messaging.Outbound
	errs  error
	wakes chan struct{}
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{wakes: make(chan struct{}, 16)}
}

func (m *fakeMessenger) Send(_ context.Context, msg messaging.Outbound) error {
	m.mu.Lock()
	err := m.errs
	if err == nil {
		m.sent = append(m.sent, msg)
	}
	m.mu.Unlock()
	m.wakes <- struct{}{}
	return err
}

func (m *fakeMessenger) waitForSend(t interface{ Fatalf(string, ...any) }) messaging.Outbound {
	select {
	case <-m.wakes:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for outbound message")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatalf("no outbound message captured")
	}
	return m.sent[len(m.sent)-1]
}

func (m *fakeMessenger) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// eventRecorder subscribes to every engine event type on a real dispatcher.
type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func newEventRecorder(dispatcher events.Dispatcher) *eventRecorder {
	rec := &eventRecorder{}
	handler := func(_ context.Context, event events.Event) error {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.events = append(rec.events, event)
		return nil
	}
	for _, eventType := range []events.EventType{
		events.EventTicketLaneMoved,
		events.EventLaneTimerStarted,
		events.EventLaneTimerCancelled,
		events.EventSweepCompleted,
	} {
		dispatcher.Subscribe(eventType, handler)
	}
	return rec
}

func (r *eventRecorder) ofType(eventType events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []events.Event
	for _, e := range r.events {
		if e.Type == eventType {
			result = append(result, e)
		}
	}
	return result
}

// engineFixture wires an AutomationService over the fakes.
type engineFixture struct {
	lanes       *fakeLaneRepo
	tickets     *fakeTicketRepo
	transitions *fakeTransitionRepo
	settings    *fakeSettingsRepo
	messenger   *fakeMessenger
	clock       *fakeClock
	dispatcher  events.Dispatcher
	recorder    *eventRecorder
	metrics     *observability.Metrics
	engine      *AutomationService
}

func newEngineFixture(start time.Time) *engineFixture {
	f := &engineFixture{
		lanes:       newFakeLaneRepo(),
		transitions: &fakeTransitionRepo{},
		settings:    newFakeSettingsRepo(),
		messenger:   newFakeMessenger(),
		clock:       newFakeClock(start),
		dispatcher:  events.NewInMemoryDispatcher(),
		metrics:     observability.NewMetrics(),
	}
	f.tickets = newFakeTicketRepo(f.lanes)
	f.recorder = newEventRecorder(f.dispatcher)
	f.engine = NewAutomationService(AutomationDependencies{
		LaneRepo:       f.lanes,
		TicketRepo:     f.tickets,
		TransitionRepo: f.transitions,
		SettingsRepo:   f.settings,
		Dispatcher:     f.dispatcher,
		Messenger:      f.messenger,
		Metrics:        f.metrics,
		Clock:          f.clock,
	})
	return f
}

func (f *engineFixture) addLane(lane domain.Lane) domain.Lane {
	return f.lanes.put(lane)
}

func (f *engineFixture) addTicket(ticket domain.Ticket) domain.Ticket {
	return f.tickets.put(ticket)
}

func (f *engineFixture) laneOf(t interface{ Fatalf(string, ...any) }, tenantID, ticketID string) string {
	lane, err := f.tickets.CurrentLane(context.Background(), tenantID, ticketID)
	if err != nil {
		t.Fatalf("current lane: %v", err)
	}
	if lane == nil {
		return ""
	}
	return lane.ID
}

func strPtr(s string) *string { return &s }
