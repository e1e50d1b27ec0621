package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/stockbook/internal/closing"
	"github.com/odyssey-erp/stockbook/internal/ledger"
	"github.com/odyssey-erp/stockbook/internal/reports"
	"github.com/odyssey-erp/stockbook/internal/shared"
	"github.com/odyssey-erp/stockbook/internal/stock"
	"github.com/odyssey-erp/stockbook/internal/vendors"
)

// UnitOfWork exposes the repositories bound to one transaction.
type UnitOfWork interface {
	Vendors() vendors.TxRepository
	Stock() stock.TxRepository
	Ledger() ledger.TxRepository
	Closings() closing.TxRepository
	Movements() reports.Source
}

// TxRunner runs fn inside one atomic transaction. The store must be left
// unchanged whenever fn or the commit fails.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(context.Context, UnitOfWork) error) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards operations submitted with a caller key.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// ReportInvalidator drops cached reports after a tenant's data changes.
type ReportInvalidator interface {
	Invalidate(ctx context.Context, tenantID int64) error
}

// Locker serialises long running operations of a tenant across processes.
type Locker interface {
	Acquire(ctx context.Context, scope string, tenantID int64) (func(), error)
}

// Config tunes the retry loop.
type Config struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Coordinator runs every business operation as one atomic unit.
type Coordinator struct {
	runner   TxRunner
	audit    AuditPort
	idem     IdempotencyPort
	reports  ReportInvalidator
	locker   Locker
	logger   *slog.Logger
	metrics  *Metrics
	validate *validator.Validate
	cfg      Config

	ranks *vendors.RankStore
	stock *stock.Ledger
	book  *ledger.Book
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// Option customises the Coordinator.
type Option func(*Coordinator)

// WithAudit sets the audit sink.
func WithAudit(a AuditPort) Option { return func(c *Coordinator) { c.audit = a } }

// WithIdempotency sets the idempotency store used by bulk imports.
func WithIdempotency(i IdempotencyPort) Option { return func(c *Coordinator) { c.idem = i } }

// WithReports sets the report cache invalidator.
func WithReports(r ReportInvalidator) Option { return func(c *Coordinator) { c.reports = r } }

// WithLocker sets the cross-process tenant locker.
func WithLocker(l Locker) Option { return func(c *Coordinator) { c.locker = l } }

// WithMetrics sets the outcome metrics.
func WithMetrics(m *Metrics) Option { return func(c *Coordinator) { c.metrics = m } }

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

// New builds a Coordinator on top of runner.
func New(runner TxRunner, logger *slog.Logger, cfg Config, opts ...Option) *Coordinator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		runner:   runner,
		logger:   logger,
		validate: validator.New(),
		cfg:      cfg,
		ranks:    vendors.NewRankStore(),
		stock:    stock.NewLedger(),
		book:     ledger.NewBook(),
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// begin resolves the caller and validates the payload.
func (c *Coordinator) begin(ctx context.Context, op string, input any) (shared.Principal, error) {
	p, ok := shared.PrincipalFromContext(ctx)
	if !ok || !p.Valid() {
		return shared.Principal{}, shared.E(shared.KindInvalid, op, "principal required")
	}
	if input != nil {
		if err := c.validate.Struct(input); err != nil {
			return shared.Principal{}, shared.E(shared.KindInvalid, op, "%s", describeValidation(err))
		}
	}
	return p, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// execute runs fn in a transaction, retrying transient conflicts up to the
// configured number of attempts. fn must assign its results afresh on every
// attempt.
func (c *Coordinator) execute(ctx context.Context, op string, fn func(context.Context, UnitOfWork) error) error {
	start := time.Now()
	var err error
	for attempt := 1; ; attempt++ {
		err = c.runner.WithTx(ctx, fn)
		if err == nil || !shared.IsRetryable(err) {
			break
		}
		if attempt >= c.cfg.MaxAttempts {
			err = shared.Wrap(shared.KindTransientConflict, op, fmt.Errorf("gave up after %d attempts: %w", attempt, err))
			break
		}
		c.logger.Warn("transient conflict, retrying",
			slog.String("op", op), slog.Int("attempt", attempt), slog.Any("error", err))
		c.metrics.retry(op)
		if serr := c.sleep(ctx, c.cfg.Backoff*time.Duration(attempt)); serr != nil {
			err = serr
			break
		}
	}
	c.metrics.observe(op, outcomeLabel(op, err), time.Since(start))
	return err
}

// committed records the audit trail and drops cached reports. Both are
// best effort: failures are logged and never returned.
func (c *Coordinator) committed(ctx context.Context, p shared.Principal, action, entityType string, entityID int64, meta map[string]any) {
	c.logger.Info("operation committed",
		slog.String("action", action),
		slog.Int64("tenant_id", p.TenantID),
		slog.String("entity_type", entityType),
		slog.Int64("entity_id", entityID))
	if c.reports != nil {
		if err := c.reports.Invalidate(ctx, p.TenantID); err != nil {
			c.logger.Warn("report cache invalidation failed", slog.Int64("tenant_id", p.TenantID), slog.Any("error", err))
		}
	}
	if c.audit == nil {
		return
	}
	err := c.audit.Record(ctx, shared.AuditLog{
		ActorID:    p.UserID,
		TenantID:   p.TenantID,
		Action:     action,
		EntityType: entityType,
		EntityID:   fmt.Sprintf("%d", entityID),
		Metadata:   meta,
		At:         c.now(),
	})
	if err != nil {
		c.logger.Warn("audit record failed", slog.String("action", action), slog.Int64("tenant_id", p.TenantID), slog.Any("error", err))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
