package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/realtime/realtimetest"
	"github.com/spec-kit/helpdesk-service/internal/repository/repotest"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

type reaperFixture struct {
	store   *repotest.Store
	reaper  *IdleTicketReaper
	now     time.Time
	base    time.Time
	ownerID string
	agentID string
}

func newReaperFixture(t *testing.T) *reaperFixture {
	t.Helper()
	f := &reaperFixture{
		store:   repotest.NewStore(),
		base:    time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC),
		ownerID: "u-client",
		agentID: "u-agent",
	}
	f.now = f.base
	clock := func() time.Time { return f.now }

	dept := "dept-1"
	f.store.AddDepartment(domain.Department{ID: dept, Name: "IT", IsActive: true})
	f.store.AddUser(domain.User{ID: f.ownerID, Username: "client", Role: domain.RoleClient, IsActive: true})
	f.store.AddUser(domain.User{ID: f.agentID, Username: "agent", Role: domain.RoleAgent, DepartmentID: &dept, IsActive: true})

	dispatcher := events.NewSyncDispatcher(nil, nil)
	dispatcher.Subscribe("notifications", service.NewNotificationRouter(service.NotificationRouterDependencies{
		NotificationRepo: f.store.Notifications(),
		UserRepo:         f.store.Users(),
		Transport:        realtimetest.NewRecorder(),
		Clock:            clock,
	}))
	dispatcher.Subscribe("activity", service.NewActivityAuditLog(service.ActivityLogDependencies{
		ActivityRepo: f.store.Activity(),
		TicketRepo:   f.store.Tickets(),
		Clock:        clock,
	}))
	machine := service.NewStateMachine(service.StateMachineDependencies{
		TicketRepo:  f.store.Tickets(),
		CommentRepo: f.store.Comments(),
		UserRepo:    f.store.Users(),
		Dispatcher:  dispatcher,
		Clock:       clock,
	})

	f.reaper = NewIdleTicketReaper(f.store.Tickets(), machine, ReaperConfig{GraceWindow: 48 * time.Hour})
	f.reaper.Now = clock
	return f
}

// resolved seeds a ticket resolved (and last touched) at f.base.
func (f *reaperFixture) resolved() domain.Ticket {
	resolvedAt := f.base
	agent := f.agentID
	return f.store.PutTicket(domain.Ticket{
		Title:           "Printer jam",
		Description:     "Tray 2",
		Priority:        domain.TicketPriorityLow,
		Status:          domain.TicketStatusResolved,
		DepartmentID:    "dept-1",
		OwnerUserID:     f.ownerID,
		AssignedAgentID: &agent,
		ResolvedAt:      &resolvedAt,
		CreatedAt:       f.base.Add(-time.Hour),
		UpdatedAt:       f.base,
	})
}

func TestReaperRespectsGraceWindow(t *testing.T) {
	ctx := context.Background()
	f := newReaperFixture(t)
	ticket := f.resolved()

	f.now = f.base.Add(47*time.Hour + 59*time.Minute)
	closed, err := f.reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, closed)
	stored, _ := f.store.Ticket(ticket.ID)
	assert.Equal(t, domain.TicketStatusResolved, stored.Status)

	f.now = f.base.Add(48*time.Hour + time.Minute)
	closed, err = f.reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	stored, _ = f.store.Ticket(ticket.ID)
	assert.Equal(t, domain.TicketStatusClosed, stored.Status)
	require.NotNil(t, stored.ClosureReason)
	assert.Equal(t, domain.ClosureAutoInactivity, *stored.ClosureReason)
	require.NotNil(t, stored.ClosedAt)
	assert.True(t, stored.ClosedAt.Equal(f.now))
	require.NotNil(t, stored.ResolvedAt)
	assert.True(t, stored.ResolvedAt.Equal(f.base), "resolution time is kept")

	comments := f.store.AllComments(ticket.ID)
	require.Len(t, comments, 1)
	assert.Nil(t, comments[0].AuthorID, "system authored")
	assert.Contains(t, comments[0].Text, "48 hours")

	var audited []domain.ActivityLogEntry
	for _, e := range f.store.AllActivity() {
		if e.ActionType == domain.ActionTicketAutoClosed {
			audited = append(audited, e)
		}
	}
	require.Len(t, audited, 1)
	assert.Nil(t, audited[0].ActorID)
	assert.Equal(t, "system", audited[0].ActorUsername)

	var closedNotices []string
	for _, n := range f.store.AllNotifications() {
		if n.Type == domain.NotificationTicketClosed {
			closedNotices = append(closedNotices, n.RecipientUserID)
		}
	}
	assert.ElementsMatch(t, []string{f.ownerID, f.agentID}, closedNotices)
}

func TestReaperIsIdempotentAcrossPasses(t *testing.T) {
	ctx := context.Background()
	f := newReaperFixture(t)
	f.resolved()
	f.resolved()

	f.now = f.base.Add(72 * time.Hour)
	closed, err := f.reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, closed)

	closed, err = f.reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, closed)

	var autoClosed int
	for _, n := range f.store.AllActivity() {
		if n.ActionType == domain.ActionTicketAutoClosed {
			autoClosed++
		}
	}
	assert.Equal(t, 2, autoClosed)
}

func TestReaperSkipsTicketsTouchedMidPass(t *testing.T) {
	ctx := context.Background()
	f := newReaperFixture(t)
	ticket := f.resolved()
	f.now = f.base.Add(49 * time.Hour)

	// A comment lands between listing and closing.
	f.store.BeforeTicketWrite = func(id string) {
		_ = f.store.Tickets().Touch(ctx, id, f.now)
	}

	closed, err := f.reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, closed)
	stored, _ := f.store.Ticket(ticket.ID)
	assert.Equal(t, domain.TicketStatusResolved, stored.Status)
	assert.Empty(t, f.store.AllComments(ticket.ID))
}

func TestReaperBatchSizeBoundsAPass(t *testing.T) {
	ctx := context.Background()
	f := newReaperFixture(t)
	for i := 0; i < 3; i++ {
		f.resolved()
	}
	f.reaper.Config.BatchSize = 2
	f.now = f.base.Add(50 * time.Hour)

	closed, err := f.reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, closed)

	closed, err = f.reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
}

type blockingSource struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSource) ListStaleResolved(context.Context, time.Time, int) ([]domain.Ticket, error) {
	close(b.entered)
	<-b.release
	return nil, nil
}

type noopCloser struct{}

func (noopCloser) AutoClose(context.Context, string, time.Time, string) (*domain.Ticket, bool, error) {
	return nil, false, nil
}

func TestReaperRejectsOverlappingPass(t *testing.T) {
	src := &blockingSource{entered: make(chan struct{}), release: make(chan struct{})}
	reaper := NewIdleTicketReaper(src, noopCloser{}, ReaperConfig{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := reaper.RunOnce(context.Background())
		assert.NoError(t, err)
	}()
	<-src.entered

	_, err := reaper.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrReaperBusy)

	close(src.release)
	wg.Wait()
}

type stubLocker struct {
	acquired bool
	err      error
	released int
	key      string
}

func (l *stubLocker) TryLock(_ context.Context, key string, _ time.Duration) (bool, func(context.Context), error) {
	l.key = key
	return l.acquired, func(context.Context) { l.released++ }, l.err
}

func TestReaperHonoursDistributedLock(t *testing.T) {
	ctx := context.Background()
	f := newReaperFixture(t)
	f.resolved()
	f.now = f.base.Add(49 * time.Hour)

	held := &stubLocker{acquired: false}
	f.reaper.Locker = held
	closed, err := f.reaper.RunOnce(ctx)
	assert.ErrorIs(t, err, ErrReaperBusy)
	assert.Zero(t, closed)
	assert.Equal(t, reaperLockKey, held.key)

	free := &stubLocker{acquired: true}
	f.reaper.Locker = free
	closed, err = f.reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
	assert.Equal(t, 1, free.released)
}

func TestReaperKeepsClosingWhenLockStoreFails(t *testing.T) {
	ctx := context.Background()
	f := newReaperFixture(t)
	ticket := f.resolved()
	f.now = f.base.Add(72 * time.Hour)

	broken := &stubLocker{err: errors.New("connection refused")}
	f.reaper.Locker = broken
	f.reaper.Metrics = observability.NewMetrics()
	closed, err := f.reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
	assert.Zero(t, broken.released, "no lease was granted")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.reaper.Metrics.ReaperLockErrors))

	stored, _ := f.store.Ticket(ticket.ID)
	assert.Equal(t, domain.TicketStatusClosed, stored.Status)
}

func TestStartStopsOnCancel(t *testing.T) {
	src := &countingSource{}
	reaper := NewIdleTicketReaper(src, noopCloser{}, ReaperConfig{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reaper.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return src.calls() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}

type countingSource struct {
	mu sync.Mutex
	n  int
}

func (c *countingSource) ListStaleResolved(context.Context, time.Time, int) ([]domain.Ticket, error) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return nil, nil
}

func (c *countingSource) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
