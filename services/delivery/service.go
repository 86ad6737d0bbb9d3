package delivery

import (
	"context"
	"errors"
	"strings"
	"time"

	"fitcoach-controlplane/pkg/config"
	"fitcoach-controlplane/pkg/errutil"
	"fitcoach-controlplane/pkg/featureflags"
	"fitcoach-controlplane/pkg/logger"
	"fitcoach-controlplane/services/messaging"
	"fitcoach-controlplane/services/renderer"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	resultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_results_total",
		Help: "Plan delivery runs by outcome.",
	}, []string{"outcome"})
	stepFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_step_failures_total",
		Help: "Delivery step failures, including best effort steps.",
	}, []string{"step"})
)

const (
	stepFetch     = "fetch"
	stepRender    = "render"
	stepMessaging = "messaging"
	stepDeliver   = "mark_delivered"
	stepDismiss   = "dismiss_notifications"
	stepCheckIns  = "check_in_schedule"
)

// MaxBatchSize bounds the assignments accepted by one batch.
const MaxBatchSize = 100

// MaxDurationWeeks bounds the check-in rounds created for one assignment.
const MaxDurationWeeks = 104

const bookkeepingTimeout = 5 * time.Second

// MessageLedger keeps the record of messages handed to the gateway.
type MessageLedger interface {
	Record(ctx context.Context, tenantID, assignmentID, address string, kind messaging.MessageKind, ack *messaging.Ack) error
	Acknowledged(ctx context.Context, tenantID, assignmentID string, kind messaging.MessageKind) (bool, error)
}

type BrandingSource interface {
	Branding(ctx context.Context, tenantID string) (renderer.Branding, error)
}

type Flags interface {
	IsEnabled(ctx context.Context, identifier, feature string) bool
}

type Options struct {
	PortalBaseURL        string
	BatchDelay           time.Duration
	StepTimeout          time.Duration
	DefaultDurationWeeks int
	SendMaxAttempts      int
	// SendBackoff is the first wait between transient send failures. It
	// doubles on every retry.
	SendBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.PortalBaseURL == "" {
		o.PortalBaseURL = "http://localhost:3000"
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = 30 * time.Second
	}
	if o.DefaultDurationWeeks <= 0 {
		o.DefaultDurationWeeks = 12
	}
	if o.SendMaxAttempts <= 0 {
		o.SendMaxAttempts = 3
	}
	if o.SendBackoff <= 0 {
		o.SendBackoff = 500 * time.Millisecond
	}
	return o
}

// Orchestrator runs the plan delivery pipeline for one assignment at a time.
type Orchestrator struct {
	repo     Repository
	renderer renderer.Renderer
	gateway  messaging.Gateway
	ledger   MessageLedger
	branding BrandingSource
	flags    Flags
	node     *snowflake.Node
	opts     Options
	now      func() time.Time
	tracer   trace.Tracer
}

type OrchestratorParams struct {
	fx.In
	Repository Repository
	Renderer   renderer.Renderer
	Gateway    messaging.Gateway
	Ledger     MessageLedger
	Branding   BrandingSource
	Flags      Flags
	Node       *snowflake.Node
	Config     *config.Config
}

func NewOrchestrator(p OrchestratorParams) *Orchestrator {
	cfg := p.Config.Delivery
	return New(p.Repository, p.Renderer, p.Gateway, p.Ledger, p.Branding, p.Flags, p.Node, Options{
		PortalBaseURL:        p.Config.Portal.BaseURL,
		BatchDelay:           cfg.BatchDelay,
		StepTimeout:          cfg.StepTimeout,
		DefaultDurationWeeks: cfg.DefaultDurationWeeks,
		SendMaxAttempts:      cfg.SendMaxAttempts,
		SendBackoff:          cfg.SendBackoff,
	})
}

func New(repo Repository, r renderer.Renderer, gw messaging.Gateway, ledger MessageLedger, branding BrandingSource, flags Flags, node *snowflake.Node, opts Options) *Orchestrator {
	return &Orchestrator{
		repo:     repo,
		renderer: r,
		gateway:  gw,
		ledger:   ledger,
		branding: branding,
		flags:    flags,
		node:     node,
		opts:     opts.withDefaults(),
		now:      time.Now,
		tracer:   otel.Tracer("delivery"),
	}
}

// stepError is a failure of one of the first five steps.
type stepError struct {
	step string
	err  error
}

func (e *stepError) Error() string { return e.step + ": " + e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

func (e *stepError) code() errutil.CoreStatus {
	code := errutil.StatusOf(e.err)
	if code == errutil.StatusInternal && (e.step == stepRender || e.step == stepMessaging) {
		return errutil.StatusBadGateway
	}
	return code
}

// publicMessage is the error text returned to callers. Causes stay in the log.
func publicMessage(err error) string {
	var be errutil.BaseError
	if errors.As(err, &be) {
		return be.Message
	}
	var gerr *messaging.GatewayError
	if errors.As(err, &gerr) {
		if errors.Is(err, messaging.ErrInvalidAddress) {
			return "client phone number is invalid"
		}
		return "messaging gateway unavailable"
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "delivery step timed out"
	case errors.Is(err, context.Canceled):
		return "delivery cancelled"
	}
	return "delivery failed"
}

// DeliverPlan runs fetch, render, portal link, messaging and mark delivered in
// order, then the best effort notification and check-in steps. Ordinary
// failures are reported in the Result; only store faults are returned as
// errors.
func (o *Orchestrator) DeliverPlan(ctx context.Context, req Request) (*Result, error) {
	return o.deliver(ctx, req, false)
}

// RetryDelivery resets the assignment to pending and replays the whole
// pipeline. Messages are sent again unless the dedupe flag is on for the
// tenant.
func (o *Orchestrator) RetryDelivery(ctx context.Context, req Request) (*Result, error) {
	a, err := o.repo.LoadAssignment(ctx, req.TenantID, req.AssignmentID)
	if err != nil {
		return nil, errutil.Internal("failed to load assignment", err)
	}
	if a == nil {
		resultsTotal.WithLabelValues("not_found").Inc()
		return notFound(req.AssignmentID), nil
	}
	if err := o.repo.SetStatus(ctx, req.TenantID, req.AssignmentID, StatusPending, nil, map[string]any{"last_error": nil}); err != nil {
		return nil, errutil.Internal("failed to reset assignment", err)
	}
	logger.WithContext(ctx,
		zap.String("tenant_id", req.TenantID),
		zap.String("assignment_id", req.AssignmentID),
	).Info("delivery reset for retry", zap.String("previous_status", string(a.DeliveryStatus)))

	return o.deliver(ctx, req, true)
}

// DeliverBatch delivers the assignments one after the other, waiting the
// batch delay between items. Results follow the input order. Items left when
// ctx is done are reported as cancelled.
func (o *Orchestrator) DeliverBatch(ctx context.Context, req BatchRequest) ([]*Result, error) {
	if len(req.AssignmentIDs) == 0 {
		return nil, errutil.ValidationFailed("assignment_ids required", nil,
			errutil.WithDetails(errutil.Detail{Field: "assignment_ids", Message: "required"}))
	}
	if len(req.AssignmentIDs) > MaxBatchSize {
		return nil, errutil.ValidationFailed("too many assignments", nil,
			errutil.WithDetails(errutil.Detail{Field: "assignment_ids", Message: "at most 100 per batch"}))
	}

	zapLog := logger.WithContext(ctx, zap.String("tenant_id", req.TenantID), zap.Int("size", len(req.AssignmentIDs)))
	zapLog.Info("batch delivery started")

	results := make([]*Result, len(req.AssignmentIDs))
	for i, id := range req.AssignmentIDs {
		if i > 0 && o.opts.BatchDelay > 0 {
			if err := sleep(ctx, o.opts.BatchDelay); err != nil {
				cancelRemaining(results, req.AssignmentIDs, i)
				break
			}
		}
		if ctx.Err() != nil {
			cancelRemaining(results, req.AssignmentIDs, i)
			break
		}

		res, err := o.DeliverPlan(ctx, Request{TenantID: req.TenantID, AssignmentID: id})
		if err != nil {
			zapLog.Error("batch item failed", zap.String("assignment_id", id), zap.Error(err))
			res = &Result{AssignmentID: id, Error: "delivery failed", Code: errutil.StatusOf(err)}
		}
		results[i] = res
	}

	delivered := 0
	for _, r := range results {
		if r.Success {
			delivered++
		}
	}
	zapLog.Info("batch delivery finished", zap.Int("delivered", delivered))
	return results, nil
}

func cancelRemaining(results []*Result, ids []string, from int) {
	for j := from; j < len(ids); j++ {
		results[j] = &Result{
			AssignmentID: ids[j],
			Error:        "delivery cancelled",
			Code:         errutil.StatusClientClosedRequest,
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// bookkeepingContext keeps the values of ctx but not its cancellation, so
// status and attempt writes land after the caller gave up.
func bookkeepingContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
}

func notFound(assignmentID string) *Result {
	return &Result{
		AssignmentID: assignmentID,
		Error:        "assignment not found",
		Code:         errutil.StatusNotFound,
	}
}

func (o *Orchestrator) deliver(ctx context.Context, req Request, retry bool) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, "delivery.DeliverPlan")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", req.TenantID),
		attribute.String("assignment_id", req.AssignmentID),
		attribute.Bool("retry", retry),
	)

	zapLog := logger.WithContext(ctx,
		zap.String("tenant_id", req.TenantID),
		zap.String("assignment_id", req.AssignmentID),
	)

	// 1. fetch
	a, err := o.fetch(ctx, req)
	if err != nil {
		stepFailuresTotal.WithLabelValues(stepFetch).Inc()
		span.SetStatus(codes.Error, err.Error())
		zapLog.Error("failed to load assignment", zap.Error(err))
		return nil, errutil.Internal("failed to load assignment", err)
	}
	if a == nil {
		resultsTotal.WithLabelValues("not_found").Inc()
		return notFound(req.AssignmentID), nil
	}

	attempt := o.startAttempt(ctx, a, retry)
	res := &Result{AssignmentID: a.ID}

	pdfURL, portalLink, err := o.run(ctx, a, retry)
	if err != nil {
		var serr *stepError
		if !errors.As(err, &serr) {
			serr = &stepError{step: stepDeliver, err: err}
		}
		stepFailuresTotal.WithLabelValues(serr.step).Inc()
		resultsTotal.WithLabelValues("failed").Inc()
		span.SetStatus(codes.Error, err.Error())
		zapLog.Error("delivery failed", zap.String("step", serr.step), zap.Error(serr.err))

		res.Error = publicMessage(serr.err)
		res.Code = serr.code()

		// the caller's context may be the reason the step failed
		bctx, cancel := bookkeepingContext(ctx)
		defer cancel()
		if markErr := o.repo.SetStatus(bctx, a.TenantID, a.ID, StatusFailed, nil, map[string]any{"last_error": res.Error}); markErr != nil {
			zapLog.Error("failed to mark assignment failed", zap.Error(markErr))
			o.finishAttempt(bctx, attempt, serr.step, res.Error, pdfURL)
			return nil, errutil.Internal("failed to update assignment", markErr)
		}
		o.finishAttempt(bctx, attempt, serr.step, res.Error, pdfURL)
		return res, nil
	}

	res.Success = true
	res.PDFURL = pdfURL
	res.PortalLink = portalLink
	resultsTotal.WithLabelValues("delivered").Inc()

	bctx, cancel := bookkeepingContext(ctx)
	defer cancel()
	o.finishAttempt(bctx, attempt, "", "", pdfURL)

	// best effort from here on
	o.dismissNotifications(bctx, a)
	o.createCheckIns(bctx, a)

	zapLog.Info("plan delivered", zap.String("pdf_url", pdfURL))
	return res, nil
}

// run covers steps 2 to 5. Any error aborts the delivery.
func (o *Orchestrator) run(ctx context.Context, a *PlanAssignment, retry bool) (pdfURL, portalLink string, err error) {
	// 2. render
	artifact, err := o.render(ctx, a)
	if err != nil {
		return "", "", &stepError{step: stepRender, err: err}
	}
	pdfURL = artifact.URL

	// 3. portal link
	portalLink = PortalLink(o.opts.PortalBaseURL, a.PlanID, a.ClientID)

	// 4. messaging
	if messagingChannel(a.DeliveryChannel) {
		if err := o.sendMessages(ctx, a, pdfURL, portalLink, retry); err != nil {
			return pdfURL, "", &stepError{step: stepMessaging, err: err}
		}
	}

	// 5. mark delivered
	ctx, span := o.tracer.Start(ctx, "delivery."+stepDeliver)
	defer span.End()
	now := o.now().UTC()
	err = o.repo.SetStatus(ctx, a.TenantID, a.ID, StatusDelivered, &now, map[string]any{
		"pdf_url":     pdfURL,
		"portal_link": portalLink,
		"last_error":  nil,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return pdfURL, "", &stepError{step: stepDeliver, err: errutil.Internal("failed to update assignment", err)}
	}
	return pdfURL, portalLink, nil
}

func (o *Orchestrator) fetch(ctx context.Context, req Request) (*PlanAssignment, error) {
	ctx, span := o.tracer.Start(ctx, "delivery."+stepFetch)
	defer span.End()

	if strings.TrimSpace(req.TenantID) == "" || strings.TrimSpace(req.AssignmentID) == "" {
		return nil, nil
	}
	return o.repo.LoadAssignment(ctx, req.TenantID, req.AssignmentID)
}

func (o *Orchestrator) render(ctx context.Context, a *PlanAssignment) (*renderer.Artifact, error) {
	ctx, span := o.tracer.Start(ctx, "delivery."+stepRender)
	defer span.End()

	content, err := planContent(a)
	if err != nil {
		return nil, err
	}

	branding, err := o.branding.Branding(ctx, a.TenantID)
	if err != nil {
		// default branding is better than no plan
		logger.WithContext(ctx, zap.String("tenant_id", a.TenantID)).Warn("tenant branding unavailable", zap.Error(err))
		branding = renderer.Branding{}
	}

	stepCtx, cancel := context.WithTimeout(ctx, o.opts.StepTimeout)
	defer cancel()

	artifact, err := o.renderer.Render(stepCtx, buildDocument(a, content, branding))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if artifact == nil || artifact.URL == "" {
		return nil, errutil.BadGateway("renderer returned no document", nil)
	}
	return artifact, nil
}

func (o *Orchestrator) sendMessages(ctx context.Context, a *PlanAssignment, pdfURL, portalLink string, retry bool) error {
	ctx, span := o.tracer.Start(ctx, "delivery."+stepMessaging)
	defer span.End()

	if a.Client == nil || strings.TrimSpace(a.Client.Phone) == "" {
		return errutil.ValidationFailed("client phone number not found", nil,
			errutil.WithDetails(errutil.Detail{Field: "phone", Message: "required for messaging delivery"}))
	}

	phone := a.Client.Phone
	name := a.Client.FullName()
	dedupe := retry && o.flags != nil && o.flags.IsEnabled(ctx, a.TenantID, featureflags.DeliveryDedupeMessages)

	text := func(ctx context.Context) (*messaging.Ack, error) {
		return o.gateway.SendText(ctx, phone, messaging.WelcomeMessage(name, portalLink))
	}
	file := func(ctx context.Context) (*messaging.Ack, error) {
		return o.gateway.SendFile(ctx, phone, messaging.FileRef{URL: pdfURL}, messaging.PlanFileName(name), messaging.PlanCaption)
	}

	if err := o.sendOnce(ctx, a, messaging.KindText, dedupe, text); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := o.sendOnce(ctx, a, messaging.KindFile, dedupe, file); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (o *Orchestrator) sendOnce(ctx context.Context, a *PlanAssignment, kind messaging.MessageKind, dedupe bool, fn func(context.Context) (*messaging.Ack, error)) error {
	zapLog := logger.WithContext(ctx,
		zap.String("tenant_id", a.TenantID),
		zap.String("assignment_id", a.ID),
		zap.String("kind", string(kind)),
	)

	if dedupe && o.ledger != nil {
		sent, err := o.ledger.Acknowledged(ctx, a.TenantID, a.ID, kind)
		if err != nil {
			zapLog.Warn("failed to read message log, sending again", zap.Error(err))
		} else if sent {
			zapLog.Info("message already acknowledged, skipping")
			return nil
		}
	}

	ack, err := o.send(ctx, fn)
	if err != nil {
		return err
	}

	if o.ledger != nil {
		if err := o.ledger.Record(ctx, a.TenantID, a.ID, a.Client.Phone, kind, ack); err != nil {
			zapLog.Warn("failed to record message", zap.Error(err))
		}
	}
	return nil
}

// send calls fn with a step timeout per try. Transient gateway errors are
// retried with exponential backoff up to SendMaxAttempts tries.
func (o *Orchestrator) send(ctx context.Context, fn func(context.Context) (*messaging.Ack, error)) (*messaging.Ack, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.opts.SendBackoff
	b.MaxElapsedTime = 0

	var ack *messaging.Ack
	op := func() error {
		stepCtx, cancel := context.WithTimeout(ctx, o.opts.StepTimeout)
		defer cancel()

		a, err := fn(stepCtx)
		if err != nil {
			if !messaging.IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		ack = a
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.WithContext(ctx).Warn("transient messaging failure, retrying", zap.Duration("wait", wait), zap.Error(err))
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(o.opts.SendMaxAttempts-1)), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return ack, nil
}

func (o *Orchestrator) dismissNotifications(ctx context.Context, a *PlanAssignment) {
	ctx, span := o.tracer.Start(ctx, "delivery."+stepDismiss)
	defer span.End()

	n, err := o.repo.DismissNotifications(ctx, a.TenantID, a.ClientID, o.now().UTC())
	if err != nil {
		stepFailuresTotal.WithLabelValues(stepDismiss).Inc()
		span.SetStatus(codes.Error, err.Error())
		logger.WithContext(ctx, zap.String("assignment_id", a.ID)).Warn("failed to dismiss notifications", zap.Error(err))
		return
	}
	span.SetAttributes(attribute.Int64("dismissed", n))
}

func (o *Orchestrator) createCheckIns(ctx context.Context, a *PlanAssignment) {
	ctx, span := o.tracer.Start(ctx, "delivery."+stepCheckIns)
	defer span.End()

	weeks := o.opts.DefaultDurationWeeks
	if content, err := planContent(a); err == nil && content.DurationWeeks > 0 {
		weeks = content.DurationWeeks
	}
	if weeks > MaxDurationWeeks {
		logger.WithContext(ctx, zap.String("assignment_id", a.ID)).Warn("plan duration clamped",
			zap.Int("duration_weeks", weeks), zap.Int("max_weeks", MaxDurationWeeks))
		weeks = MaxDurationWeeks
	}
	start := o.now().UTC()
	if a.StartDate != nil {
		start = a.StartDate.UTC()
	}

	rows := checkInRounds(a, weeks, start, func() string { return o.node.Generate().String() })
	if err := o.repo.UpsertCheckIns(ctx, rows); err != nil {
		stepFailuresTotal.WithLabelValues(stepCheckIns).Inc()
		span.SetStatus(codes.Error, err.Error())
		logger.WithContext(ctx, zap.String("assignment_id", a.ID)).Warn("failed to create check-in schedule", zap.Error(err))
		return
	}
	span.SetAttributes(attribute.Int("rounds", len(rows)))
}

func (o *Orchestrator) startAttempt(ctx context.Context, a *PlanAssignment, retry bool) *DeliveryAttempt {
	attempt := &DeliveryAttempt{
		ID:           o.node.Generate().String(),
		TenantID:     a.TenantID,
		AssignmentID: a.ID,
		Retry:        retry,
		Status:       AttemptRunning,
		StartedAt:    o.now().UTC(),
	}
	if err := o.repo.StartAttempt(ctx, attempt); err != nil {
		logger.WithContext(ctx, zap.String("assignment_id", a.ID)).Warn("failed to record delivery attempt", zap.Error(err))
		return nil
	}
	return attempt
}

func (o *Orchestrator) finishAttempt(ctx context.Context, attempt *DeliveryAttempt, step, msg, pdfURL string) {
	if attempt == nil {
		return
	}
	finished := o.now().UTC()
	attempt.Status = AttemptSucceeded
	if msg != "" {
		attempt.Status = AttemptFailed
	}
	attempt.FailedStep = step
	attempt.Error = msg
	attempt.PDFURL = pdfURL
	attempt.FinishedAt = &finished
	if err := o.repo.FinishAttempt(ctx, attempt); err != nil {
		logger.WithContext(ctx, zap.String("assignment_id", attempt.AssignmentID)).Warn("failed to finish delivery attempt", zap.Error(err))
	}
}

// Attempts lists the recorded runs for an assignment, oldest first.
func (o *Orchestrator) Attempts(ctx context.Context, req Request) ([]*DeliveryAttempt, error) {
	a, err := o.repo.LoadAssignment(ctx, req.TenantID, req.AssignmentID)
	if err != nil {
		return nil, errutil.Internal("failed to load assignment", err)
	}
	if a == nil {
		return nil, errutil.NotFound("assignment not found", nil)
	}
	return o.repo.ListAttempts(ctx, req.TenantID, req.AssignmentID)
}
