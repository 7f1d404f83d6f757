package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/observability"
)

const (
	defaultReaperInterval    = time.Minute
	defaultReaperGraceWindow = 48 * time.Hour
	defaultReaperBatchSize   = 100
	defaultReaperLockTTL     = 5 * time.Minute

	reaperLockKey = "idle-ticket-reaper"
)

// ErrReaperBusy is returned by RunOnce when another pass holds the reaper.
var ErrReaperBusy = errors.New("reaper pass already in flight")

// StaleTicketSource lists resolved tickets untouched since cutoff.
type StaleTicketSource interface {
	ListStaleResolved(ctx context.Context, cutoff time.Time, limit int) ([]domain.Ticket, error)
}

// AutoCloser closes one ticket as the system actor, reporting false when the
// ticket no longer qualifies.
type AutoCloser interface {
	AutoClose(ctx context.Context, ticketID string, idleSince time.Time, note string) (*domain.Ticket, bool, error)
}

// Locker grants a cross-instance lease. persistence.RedisLocker satisfies it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, func(context.Context), error)
}

// ReaperConfig tunes the idle ticket reaper.
type ReaperConfig struct {
	Interval    time.Duration
	GraceWindow time.Duration
	BatchSize   int
	LockTTL     time.Duration
}

// IdleTicketReaper closes resolved tickets nobody has touched within the
// grace window.
type IdleTicketReaper struct {
	Source  StaleTicketSource
	Closer  AutoCloser
	Locker  Locker
	Config  ReaperConfig
	Logger  *zap.Logger
	Metrics *observability.Metrics
	Now     func() time.Time

	running atomic.Bool
}

// NewIdleTicketReaper fills config defaults.
func NewIdleTicketReaper(source StaleTicketSource, closer AutoCloser, cfg ReaperConfig) *IdleTicketReaper {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultReaperInterval
	}
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = defaultReaperGraceWindow
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultReaperBatchSize
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultReaperLockTTL
	}
	return &IdleTicketReaper{
		Source: source,
		Closer: closer,
		Config: cfg,
		Logger: zap.NewNop(),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Start runs passes until ctx is cancelled.
func (r *IdleTicketReaper) Start(ctx context.Context) {
	r.logger().Info("idle ticket reaper started",
		zap.Duration("interval", r.Config.Interval),
		zap.Duration("grace_window", r.Config.GraceWindow))
	for {
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, ErrReaperBusy) && ctx.Err() == nil {
			r.logger().Error("idle ticket reaper pass failed", zap.Error(err))
		}
		if err := sleepWithContext(ctx, r.Config.Interval); err != nil {
			r.logger().Info("idle ticket reaper stopped")
			return
		}
	}
}

// RunOnce performs a single pass and returns how many tickets it closed.
// Overlapping passes, in process or across instances, return ErrReaperBusy.
// When the lock store itself fails the pass still runs under the in-process
// guard.
func (r *IdleTicketReaper) RunOnce(ctx context.Context) (int, error) {
	if r == nil || r.Source == nil || r.Closer == nil {
		return 0, fmt.Errorf("idle ticket reaper is not configured")
	}
	if !r.running.CompareAndSwap(false, true) {
		r.Metrics.RecordReaperRun("busy", 0, 0)
		return 0, ErrReaperBusy
	}
	defer r.running.Store(false)

	if r.Locker != nil {
		acquired, release, err := r.Locker.TryLock(ctx, reaperLockKey, r.Config.LockTTL)
		switch {
		case err != nil:
			// Lock store unavailable; the in-process guard still holds.
			r.Metrics.RecordReaperLockError()
			r.logger().Warn("acquire reaper lock, continuing without it", zap.Error(err))
		case !acquired:
			r.Metrics.RecordReaperRun("busy", 0, 0)
			return 0, ErrReaperBusy
		default:
			defer release(context.WithoutCancel(ctx))
		}
	}

	cutoff := r.now().Add(-r.Config.GraceWindow)
	candidates, err := r.Source.ListStaleResolved(ctx, cutoff, r.Config.BatchSize)
	if err != nil {
		r.Metrics.RecordReaperRun("error", 0, 0)
		return 0, fmt.Errorf("list stale tickets: %w", err)
	}

	note := closureNote(r.Config.GraceWindow)
	closed, skipped := 0, 0
	var errs []error
	for _, ticket := range candidates {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		_, ok, err := r.Closer.AutoClose(ctx, ticket.ID, cutoff, note)
		switch {
		case err != nil:
			r.logger().Warn("auto-close ticket", zap.String("ticket_id", ticket.ID), zap.Error(err))
			errs = append(errs, err)
		case ok:
			closed++
		default:
			// Touched or moved since the listing.
			skipped++
		}
	}

	outcome := "ok"
	if len(errs) > 0 {
		outcome = "error"
	}
	r.Metrics.RecordReaperRun(outcome, closed, skipped)
	if closed > 0 || skipped > 0 {
		r.logger().Info("idle ticket reaper pass",
			zap.Int("candidates", len(candidates)),
			zap.Int("closed", closed),
			zap.Int("skipped", skipped))
	}
	return closed, errors.Join(errs...)
}

func (r *IdleTicketReaper) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

func (r *IdleTicketReaper) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func closureNote(grace time.Duration) string {
	return fmt.Sprintf("Ticket closed automatically after %s without activity.", humanizeWindow(grace))
}

func humanizeWindow(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	}
	return d.String()
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
