package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/noah-isme/campus-ops-api/internal/models"
	"github.com/noah-isme/campus-ops-api/internal/rbac"
	"github.com/noah-isme/campus-ops-api/internal/repository"
	appErrors "github.com/noah-isme/campus-ops-api/pkg/errors"
	"github.com/noah-isme/campus-ops-api/pkg/logger"
	"github.com/noah-isme/campus-ops-api/pkg/ratelimit"
)

var tracer = otel.Tracer("campus-ops.boundary")

// Rate-limit action classes.
const (
	RateTaskWrite   = "task:write"
	RateTaskComment = "task:comment"
	RateExamWrite   = "exam:write"
)

// Operation names one boundary entry point and what it requires.
type Operation struct {
	Name       string
	Permission models.Permission
	RateClass  string
}

type boundaryMetrics interface {
	ObserveOperation(op, outcome string, duration time.Duration)
	RecordAuditFailure(action string)
}

type auditRecorder interface {
	Record(ctx context.Context, draft models.AuditLogEntryDraft) (*models.AuditLogEntry, error)
}

// GateConfig tunes the boundary.
type GateConfig struct {
	Timeout      time.Duration
	AuditTimeout time.Duration
}

// Gate runs the checks every mutation shares: permission, rate limit, input
// shape and a deadline. It also records the best-effort audit entry.
type Gate struct {
	limiter   ratelimit.Limiter
	validator *validator.Validate
	audit     auditRecorder
	metrics   boundaryMetrics
	logger    *zap.Logger
	config    GateConfig

	// outageLog throttles the limiter outage warning.
	outageLog *rate.Sometimes
}

// NewGate constructs a Gate. A nil limiter admits everything.
func NewGate(limiter ratelimit.Limiter, validate *validator.Validate, audit auditRecorder, metrics boundaryMetrics, logger *zap.Logger, config GateConfig) *Gate {
	if validate == nil {
		validate = validator.New()
	}
	validate.RegisterTagNameFunc(jsonFieldName)
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.AuditTimeout <= 0 {
		config.AuditTimeout = 2 * time.Second
	}
	return &Gate{
		limiter:   limiter,
		validator: validate,
		audit:     audit,
		metrics:   metrics,
		logger:    logger,
		config:    config,
		outageLog: &rate.Sometimes{First: 1, Interval: 30 * time.Second},
	}
}

// run executes fn after admission. input may be nil. Failures from the
// checks are returned verbatim and fn is never called.
func run[T any](ctx context.Context, g *Gate, op Operation, actor models.Actor, input interface{}, fn func(context.Context) (T, error)) (result T, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "boundary."+op.Name, trace.WithAttributes(
		attribute.String("actor.id", actor.ID),
		attribute.String("actor.role", string(actor.Role)),
		attribute.String("permission", string(op.Permission)),
	))
	defer func() {
		outcome := "OK"
		if err != nil {
			outcome = appErrors.KindOf(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.SetAttributes(attribute.String("outcome", outcome))
		span.End()
		if g.metrics != nil {
			g.metrics.ObserveOperation(op.Name, outcome, time.Since(start))
		}
	}()

	if err = g.admit(ctx, op, actor, input); err != nil {
		return result, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	result, err = fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && appErrors.KindOf(err) != appErrors.CodeTimeout {
		return result, appErrors.Wrap(err, appErrors.CodeTimeout, appErrors.ErrTimeout.Status, "operation timed out; the write may or may not have been applied")
	}
	return result, err
}

func (g *Gate) admit(ctx context.Context, op Operation, actor models.Actor, input interface{}) error {
	if actor.ID == "" {
		return appErrors.Clone(appErrors.ErrUnauthorized, "an authenticated caller is required")
	}
	if op.Permission != "" && !rbac.Allows(actor.Role, op.Permission) {
		return appErrors.PermissionDenied(string(actor.Role), string(op.Permission))
	}
	if op.RateClass != "" && g.limiter != nil {
		decision, err := g.limiter.Allow(ctx, op.RateClass, actor.ID)
		if err != nil {
			g.outageLog.Do(func() {
				logger.WithContext(ctx, g.logger).Warn("rate limiter unavailable, admitting requests",
					zap.String("class", op.RateClass), zap.Error(err))
			})
		} else if !decision.Allowed {
			return appErrors.RateLimited(op.RateClass, decision.RetryAfter)
		}
	}
	if input != nil {
		if err := g.validate(input); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gate) validate(input interface{}) error {
	err := g.validator.Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.TrimPrefix(fe.Namespace(), structName(input)+".")
		return appErrors.InvalidArgument(field, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
	}
	return appErrors.InvalidArgument("", err.Error())
}

// recordAudit appends an audit entry. Failures are logged and counted but
// never returned; the mutation has already committed.
func (g *Gate) recordAudit(ctx context.Context, draft models.AuditLogEntryDraft) {
	if g.audit == nil {
		return
	}
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.config.AuditTimeout)
	defer cancel()
	if _, err := g.audit.Record(auditCtx, draft); err != nil {
		logger.WithContext(ctx, g.logger).Warn("failed to persist audit log",
			zap.String("action", string(draft.Action)),
			zap.String("entity_id", draft.EntityID),
			zap.Error(err))
		if g.metrics != nil {
			g.metrics.RecordAuditFailure(string(draft.Action))
		}
	}
}

// storageError classifies repository failures.
func storageError(err error, message string) error {
	if errors.Is(err, repository.ErrVersionConflict) {
		return appErrors.Wrap(err, appErrors.CodeConflict, appErrors.ErrConflict.Status, "the record was changed by someone else; reload and retry")
	}
	return appErrors.FromStorage(err, message)
}

func notFound(entity string) error {
	return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
}

func jsonFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	switch name {
	case "-":
		return ""
	case "":
		return field.Name
	}
	return name
}

func structName(input interface{}) string {
	t := reflect.TypeOf(input)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

func strPtr(s string) *string { return &s }
