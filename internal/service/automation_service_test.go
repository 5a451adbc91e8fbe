package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/kanban-service/internal/domain"
	"github.com/spec-kit/kanban-service/internal/events"
	apperrors "github.com/spec-kit/kanban-service/pkg/util"
)

const tenantA = "tenant-a"

var testStart = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// board builds the canonical three-lane pipeline used across these tests:
// New (30m, forwards to InProgress, rolls back to Triage) -> InProgress -> Done.
func board(f *engineFixture) (newLane, inProgress, done, triage domain.Lane) {
	done = f.addLane(domain.Lane{ID: "done", TenantID: tenantA, Name: "Done", Workflow: true})
	triage = f.addLane(domain.Lane{ID: "triage", TenantID: tenantA, Name: "Triage", Workflow: true})
	inProgress = f.addLane(domain.Lane{
		ID: "in-progress", TenantID: tenantA, Name: "In Progress", Workflow: true,
		TimeoutMinutes: 60, ForwardLaneID: strPtr("done"),
	})
	newLane = f.addLane(domain.Lane{
		ID: "new", TenantID: tenantA, Name: "New", Workflow: true,
		TimeoutMinutes: 30, ForwardLaneID: strPtr("in-progress"), RollbackLaneID: strPtr("triage"),
		EntryMessage: "We received your request.",
	})
	return
}

func TestMoveTicketLane_ReplacesMembershipAndClearsTimer(t *testing.T) {
	f := newEngineFixture(testStart)
	newLane, inProgress, _, _ := board(f)
	ticket := f.addTicket(domain.Ticket{TenantID: tenantA, ContactName: "Ana", ContactNumber: "551199",
		TimerState: domain.ArmedTimer(testStart, testStart.Add(30*time.Minute))})
	f.tickets.place(ticket.ID, newLane.ID)

	moved, err := f.engine.MoveTicketLane(context.Background(), tenantA, ticket.ID, inProgress.ID, false)
	require.NoError(t, err)

	assert.Equal(t, inProgress.ID, *moved.LaneID)
	assert.Nil(t, moved.TimerStartedAt)
	assert.Nil(t, moved.NextDeadline)
	assert.True(t, moved.AutomationEnabled)
	assert.Equal(t, inProgress.ID, f.laneOf(t, tenantA, ticket.ID))

	transitions := f.transitions.all()
	require.Len(t, transitions, 1)
	assert.Equal(t, domain.TriggerManual, transitions[0].Trigger)
	require.NotNil(t, transitions[0].FromLaneID)
	assert.Equal(t, newLane.ID, *transitions[0].FromLaneID)
	assert.Equal(t, inProgress.ID, transitions[0].ToLaneID)

	published := f.recorder.ofType(events.EventTicketLaneMoved)
	require.Len(t, published, 1)
	assert.Equal(t, tenantA, published[0].TenantID)
}

func TestMoveTicketLane_RejectsNonWorkflowLane(t *testing.T) {
	f := newEngineFixture(testStart)
	newLane, _, _, _ := board(f)
	archive := f.addLane(domain.Lane{ID: "archive", TenantID: tenantA, Name: "Archive", Workflow: false})
	ticket := f.addTicket(domain.Ticket{TenantID: tenantA, ContactName: "Ana", ContactNumber: "551199"})
	f.tickets.place(ticket.ID, newLane.ID)

	_, err := f.engine.MoveTicketLane(context.Background(), tenantA, ticket.ID, archive.ID, false)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "LANE_NOT_FOUND"))
	assert.Equal(t, newLane.ID, f.laneOf(t, tenantA, ticket.ID))
	assert.Empty(t, f.transitions.all())
}

func TestMoveTicketLane_RejectsCrossTenantLane(t *testing.T) {
	f := newEngineFixture(testStart)
	newLane, _, _, _ := board(f)
	foreign := f.addLane(domain.Lane{ID: "foreign", TenantID: "tenant-b", Name: "Other", Workflow: true})
	ticket := f.addTicket(domain.Ticket{TenantID: tenantA, ContactName: "Ana", ContactNumber: "551199"})
	f.tickets.place(ticket.ID, newLane.ID)

	_, err := f.engine.MoveTicketLane(context.Background(), tenantA, ticket.ID, foreign.ID, false)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "LANE_NOT_FOUND"))
	assert.Equal(t, newLane.ID, f.laneOf(t, tenantA, ticket.ID))
}

func TestMoveTicketLane_TicketNotFound(t *testing.T) {
	f := newEngineFixture(testStart)
	_, inProgress, _, _ := board(f)

	_, err := f.engine.MoveTicketLane(context.Background(), tenantA, "missing", inProgress.ID, false)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "TICKET_NOT_FOUND"))
}

func TestMoveTicketLane_SendsEntryMessage(t *testing.T) {
	f := newEngineFixture(testStart)
	newLane, _, _, _ := board(f)
	ticket := f.addTicket(domain.Ticket{TenantID: tenantA, ContactName: "Ana", ContactNumber: "551199"})

	_, err := f.engine.MoveTicketLane(context.Background(), tenantA, ticket.ID, newLane.ID, true)
	require.NoError(t, err)

	msg := f.messenger.waitForSend(t)
	assert.Equal(t, "551199", msg.ContactNumber)
	assert.Equal(t, "We received your request.", msg.Body)
}

func TestMoveTicketLane_SignsEntryMessageWhenConfigured(t *testing.T) {
	f := newEngineFixture(testStart)
	newLane, _, _, _ := board(f)
	require.NoError(t, f.settings.Upsert(context.Background(),
		&domain.TenantSettings{TenantID: tenantA, SendAgentSignature: true}))
	ticket := f.addTicket(domain.Ticket{TenantID: tenantA, ContactName: "Ana", ContactNumber: "551199",
		AssigneeName: strPtr("Carlos")})

	_, err := f.engine.MoveTicketLane(context.Background(), tenantA, ticket.ID, newLane.ID, true)
	require.NoError(t, err)

	msg := f.messenger.waitForSend(t)
	assert.Equal(t, "*Carlos:*\nWe received your request.", msg.Body)
}

func TestMoveTicketLane_NoGreetingWhenSuppressed(t *testing.T) {
	f := newEngineFixture(testStart)
	newLane, _, _, _ := board(f)
	ticket := f.addTicket(domain.Ticket{TenantID: tenantA, ContactName: "Ana", ContactNumber: "551199"})

	_, err := f.engine.MoveTicketLane(context.Background(), tenantA, ticket.ID, newLane.ID, false)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, f.messenger.sentCount())
}

func TestStartLaneTimer_ArmsDeadlineFromLaneTimeout(t *testing.T) {
	f := newEngineFixture(testStart)
	newLane, _, _, _ := board(f)
	ticket := f.addTicket(domain.Ticket{TenantID: tenantA, ContactName: "Ana", ContactNumber: "551199",
		TimerState: domain.ClearedTimer(true)})
	f.tickets.place(ticket.ID, newLane.ID)

	require.NoError(t, f.engine.StartLaneTimer(context.Background(), tenantA, ticket.ID))

	got, err := f.tickets.GetByID(context.Background(), tenantA, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TimerStartedAt)
	require.NotNil(t, got.NextDeadline)
	assert.Equal(t, testStart, *got.TimerStartedAt)
	assert.Equal(t, testStart.Add(30*time.Minute), *got.NextDeadline)
	assert.True(t, got.AutomationEnabled)

	started := f.recorder.ofType(events.EventLaneTimerStarted)
	require.Len(t, started, 1)
}

func TestStartLaneTimer_RearmRecomputesDeadline(t *testing.T) {
	f := newEngineFixture(testStart)
	newLane, _, _, _ := board(f)
	ticket := f.addTicket(domain.Ticket{TenantID: tenantA, ContactName: "Ana", ContactNumber: "551199",
		TimerState: domain.ClearedTimer(true)})
	f.tickets.place(ticket.ID, newLane.ID)

	require.NoError(t, f.engine.StartLaneTimer(context.Background(), tenantA, ticket.ID))
	f.clock.Advance(10 * time.Minute)
	require.NoError(t, f.engine.StartLaneTimer(context.Background(), tenantA, ticket.ID))

	got, err := f.tickets.GetByID(context.Background(), tenantA, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, testStart.Add(10*time.Minute), *got.TimerStartedAt)
	assert.Equal(t, testStart.Add(40*time.Minute), *got.NextDeadline)
}

func TestStartLaneTimer_NoopOffBoard(t *testing.T) {
	f := newEngineFixture(testStart)
	board(f)
	ticket := f.addTicket(domain.Ticket{TenantID: tenantA, ContactName: "Ana", ContactNumber: "551199",
		TimerState: domain.ClearedTimer(true)})

	require.NoError(t, f.engine.StartLaneTimer(context.Background(), tenantA, ticket.ID))

	got, err := f.tickets.GetByID(context.Background(), tenantA, ticket.ID)
	require.NoError(t, err)
	assert.False(t, got.TimerActive())
	assert.Empty(t, f.recorder.ofType(events.EventLaneTimerStarted))
}

func TestStartLaneTimer_NoopInTerminalLane(t *testing.T) {
	f := newEngineFixture(testStart)
	_, _, done, _ := board(f)
	ticket := f.addTicket(domain.Ticket{TenantID: tenantA, ContactName: "Ana", ContactNumber: "551199",
		TimerState: domain.ClearedTimer(true)})
	f.tickets.place(ticket.ID, done.ID)

	require.NoError(t, f.engine.StartLaneTimer(context.Background(), tenantA, ticket.ID))

	got, err := f.tickets.GetByID(context.Background(), tenantA, ticket.ID)
	require.NoError(t, err)
	assert.False(t, got.TimerActive())
}

func TestHandleCustomerResponse_NoopWithoutActiveTimer(t *testing.T) {
	f := newEngineFixture(testStart)
	newLane, _, _, _ := board(f)
	ticket := f.addTicket(domain.Ticket{TenantID: tenantA, ContactName: "Ana", ContactNumber: "551199",
		TimerState: domain.ClearedTimer(true)})
	f.tickets.place(ticket.ID, newLane.ID)

	require.NoError(t, f.engine.HandleCustomerResponse(context.Background(), tenantA, ticket.ID))

	assert.Equal(t, newLane.ID, f.laneOf(t, tenantA, ticket.ID))
	assert.Empty(t, f.transitions.all())
	assert.Empty(t, f.recorder.ofType(events.EventLaneTimerCancelled))
}

func TestHandleCustomerResponse_RollbackDisablesAutomation(t *testing.T) {
	f := newEngineFixture(testStart)
	newLane, _, _, triage := board(f)
	ticket := f.addTicket(domain.Ticket{TenantID: tenantA, ContactName: "Ana", ContactNumber: "551199",
		TimerState: domain.ArmedTimer(testStart, testStart.Add(30*time.Minute))})
	f.tickets.place(ticket.ID, newLane.ID)

	f.clock.Advance(10 * time.Minute)
	require.NoError(t, f.engine.HandleCustomerResponse(context.Background(), tenantA, ticket.ID))

	got, err := f.tickets.GetByID(context.Background(), tenantA, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, triage.ID, *got.LaneID)
	assert.False(t, got.TimerActive())
	assert.False(t, got.AutomationEnabled)

	transitions := f.transitions.all()
	require.Len(t, transitions, 1)
	assert.Equal(t, domain.TriggerCustomerResponse, transitions[0].Trigger)
	assert.Equal(t, triage.ID, transitions[0].ToLaneID)
}

// A sweep arriving after a rollback must find nothing to do: the rollback also
// disabled automation, so the stale deadline is inert.
func TestHandleCustomerResponse_SweepAfterRollbackIsInert(t *testing.T) {
	f := newEngineFixture(testStart)
	newLane, _, _, triage := board(f)
	ticket := f.addTicket(domain.Ticket{TenantID: tenantA, ContactName: "Ana", ContactNumber: "551199",
		TimerState: domain.ArmedTimer(testStart, testStart.Add(30*time.Minute))})
	f.tickets.place(ticket.ID, newLane.ID)

	require.NoError(t, f.engine.HandleCustomerResponse(context.Background(), tenantA, ticket.ID))
	f.clock.Advance(61 * time.Minute)

	moved, err := f.engine.AdvanceExpired(context.Background(), tenantA, ticket.ID)
	require.NoError(t, err)
	assert.False(t, moved)
	assert.Equal(t, triage.ID, f.laneOf(t, tenantA, ticket.ID))
	require.Len(t, f.transitions.all(), 1)
}

func TestHandleCustomerResponse_NoRollbackCancelsTimerOnly(t *testing.T) {
	f := newEngineFixture(testStart)
	_, inProgress, _, _ := board(f)
	ticket := f.addTicket(domain.Ticket{TenantID: tenantA, ContactName: "Ana", ContactNumber: "551199",
		TimerState: domain.ArmedTimer(testStart, testStart.Add(60*time.Minute))})
	f.tickets.place(ticket.ID, inProgress.ID)

	require.NoError(t, f.engine.HandleCustomerResponse(context.Background(), tenantA, ticket.ID))

	got, err := f.tickets.GetByID(context.Background(), tenantA, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, inProgress.ID, *got.LaneID)
	assert.False(t, got.TimerActive())
	assert.True(t, got.AutomationEnabled)
	assert.Empty(t, f.transitions.all())

	cancelled := f.recorder.ofType(events.EventLaneTimerCancelled)
	require.Len(t, cancelled, 1)
}

func TestHandleCustomerResponse_ClearsStaleTimerOffBoard(t *testing.T) {
	f := newEngineFixture(testStart)
	board(f)
	ticket := f.addTicket(domain.Ticket{TenantID: tenantA, ContactName: "Ana", ContactNumber: "551199",
		TimerState: domain.ArmedTimer(testStart, testStart.Add(30*time.Minute))})

	require.NoError(t, f.engine.HandleCustomerResponse(context.Background(), tenantA, ticket.ID))

	got, err := f.tickets.GetByID(context.Background(), tenantA, ticket.ID)
	require.NoError(t, err)
	assert.False(t, got.TimerActive())
}

func TestAdvanceExpired_MovesAndArmsForwardLane(t *testing.T) {
	f := newEngineFixture(testStart)
	newLane, inProgress, _, _ := board(f)
	ticket := f.addTicket(domain.Ticket{TenantID: tenantA, ContactName: "Ana", ContactNumber: "551199",
		TimerState: domain.ArmedTimer(testStart, testStart.Add(30*time.Minute))})
	f.tickets.place(ticket.ID, newLane.ID)

	f.clock.Advance(31 * time.Minute)
	moved, err := f.engine.AdvanceExpired(context.Background(), tenantA, ticket.ID)
	require.NoError(t, err)
	assert.True(t, moved)

	got, err := f.tickets.GetByID(context.Background(), tenantA, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, inProgress.ID, *got.LaneID)
	require.NotNil(t, got.NextDeadline)
	assert.Equal(t, f.clock.Now().Add(60*time.Minute), *got.NextDeadline)
	assert.True(t, got.AutomationEnabled)

	transitions := f.transitions.all()
	require.Len(t, transitions, 1)
	assert.Equal(t, domain.TriggerTimer, transitions[0].Trigger)
	assert.EqualValues(t, 1, f.metrics.TransitionCount(string(domain.TriggerTimer)))
}

func TestAdvanceExpired_TerminalForwardLaneDoesNotArm(t *testing.T) {
	f := newEngineFixture(testStart)
	_, inProgress, done, _ := board(f)
	ticket := f.addTicket(domain.Ticket{TenantID: tenantA, ContactName: "Ana", ContactNumber: "551199",
		TimerState: domain.ArmedTimer(testStart, testStart.Add(60*time.Minute))})
	f.tickets.place(ticket.ID, inProgress.ID)

	f.clock.Advance(61 * time.Minute)
	moved, err := f.engine.AdvanceExpired(context.Background(), tenantA, ticket.ID)
	require.NoError(t, err)
	assert.True(t, moved)

	got, err := f.tickets.GetByID(context.Background(), tenantA, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, done.ID, *got.LaneID)
	assert.False(t, got.TimerActive())
}

func TestAdvanceExpired_NoopBeforeDeadline(t *testing.T) {
	f := newEngineFixture(testStart)
	newLane, _, _, _ := board(f)
	ticket := f.addTicket(domain.Ticket{TenantID: tenantA, ContactName: "Ana", ContactNumber: "551199",
		TimerState: domain.ArmedTimer(testStart, testStart.Add(30*time.Minute))})
	f.tickets.place(ticket.ID, newLane.ID)

	f.clock.Advance(29 * time.Minute)
	moved, err := f.engine.AdvanceExpired(context.Background(), tenantA, ticket.ID)
	require.NoError(t, err)
	assert.False(t, moved)
	assert.Equal(t, newLane.ID, f.laneOf(t, tenantA, ticket.ID))
}

func TestAdvanceExpired_NoopWhenAutomationDisabled(t *testing.T) {
	f := newEngineFixture(testStart)
	newLane, _, _, _ := board(f)
	ticket := f.addTicket(domain.Ticket{TenantID: tenantA, ContactName: "Ana", ContactNumber: "551199",
		TimerState: domain.TimerState{
			TimerStartedAt:    &testStart,
			NextDeadline:      timePtr(testStart.Add(30 * time.Minute)),
			AutomationEnabled: false,
		}})
	f.tickets.place(ticket.ID, newLane.ID)

	f.clock.Advance(31 * time.Minute)
	moved, err := f.engine.AdvanceExpired(context.Background(), tenantA, ticket.ID)
	require.NoError(t, err)
	assert.False(t, moved)
	assert.Empty(t, f.transitions.all())
}

func TestAdvanceExpired_NoopWhenTicketGone(t *testing.T) {
	f := newEngineFixture(testStart)
	board(f)

	moved, err := f.engine.AdvanceExpired(context.Background(), tenantA, "deleted")
	require.NoError(t, err)
	assert.False(t, moved)
}

// A customer response and a sweep racing on the same ticket must serialize on
// the ticket lock: whichever runs second sees the other's committed state, so
// exactly one transition is ever recorded.
func TestConcurrentResponseAndSweep_ExactlyOneTransition(t *testing.T) {
	f := newEngineFixture(testStart)
	newLane, inProgress, _, triage := board(f)
	ticket := f.addTicket(domain.Ticket{TenantID: tenantA, ContactName: "Ana", ContactNumber: "551199",
		TimerState: domain.ArmedTimer(testStart, testStart.Add(30*time.Minute))})
	f.tickets.place(ticket.ID, newLane.ID)
	f.clock.Advance(31 * time.Minute)

	// Strip the forward lane of its own automation so a sweep win leaves the
	// ticket timerless and the late response becomes a no-op.
	f.lanes.put(domain.Lane{ID: inProgress.ID, TenantID: tenantA, Name: inProgress.Name, Workflow: true})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = f.engine.AdvanceExpired(context.Background(), tenantA, ticket.ID)
	}()
	go func() {
		defer wg.Done()
		_ = f.engine.HandleCustomerResponse(context.Background(), tenantA, ticket.ID)
	}()
	wg.Wait()

	transitions := f.transitions.all()
	require.Len(t, transitions, 1)
	finalLane := f.laneOf(t, tenantA, ticket.ID)
	assert.Contains(t, []string{inProgress.ID, triage.ID}, finalLane)

	got, err := f.tickets.GetByID(context.Background(), tenantA, ticket.ID)
	require.NoError(t, err)
	assert.False(t, got.TimerActive())
}

func timePtr(t time.Time) *time.Time { return &t }
