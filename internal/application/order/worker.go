package order

import (
	"context"
	"time"

	domorder "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	workerService    = "order-worker"
	useCaseHandoff   = "order.worker.handoff"
	handoffEventName = "order.submitted"
)

// Notifier forwards a submitted order to whoever follows up on payment.
type Notifier interface {
	Notify(ctx context.Context, e domorder.OrderSubmittedEvent) error
}

// Worker reacts to order.submitted: it records the handoff and passes the
// event to the optional notifier.
type Worker struct {
	subscriber domoutbox.Subscriber
	notifier   Notifier
	tel        observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}

	middleware  []func(domoutbox.Handler) domoutbox.Handler
	unsubscribe func()
}

// NewWorker builds the handoff worker. Middleware wraps the handler in the
// given order, outermost first.
func NewWorker(
	subscriber domoutbox.Subscriber,
	notifier Notifier,
	tel observability.Observability,
	middleware ...func(domoutbox.Handler) domoutbox.Handler,
) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		subscriber:   subscriber,
		notifier:     notifier,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", workerService)),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
		middleware:   middleware,
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.unsubscribe != nil {
		return
	}
	var h domoutbox.Handler = w.handleOrderSubmitted
	for i := len(w.middleware) - 1; i >= 0; i-- {
		h = w.middleware[i](h)
	}
	w.unsubscribe = w.subscriber.Subscribe(handoffEventName, h)
}

func (w *Worker) Stop() {
	if w.unsubscribe != nil {
		w.unsubscribe()
		w.unsubscribe = nil
	}
}

func (w *Worker) handleOrderSubmitted(ctx context.Context, e domoutbox.Event) (err error) {
	evt, ok := e.(domorder.OrderSubmittedEvent)
	if !ok {
		w.count("ignored")
		return nil
	}

	ctx, span := w.tel.Tracer().Start(ctx, spanPrefix+"OrderHandoff",
		attribute.String("use_case", useCaseHandoff),
		attribute.String("event", e.EventName()),
		attribute.String("order.id", evt.OrderID),
	)
	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("use_case", useCaseHandoff),
		observability.F("order_id", evt.OrderID),
	)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		logger = logger.With(
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	ctx = logctx.With(ctx, logger)

	start := time.Now()
	outcome, status := "success", "OK"

	defer func() {
		lat := time.Since(start).Seconds()
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		span.End()

		w.count(outcome)
		w.durHistogram.Observe(lat, observability.L("use_case", useCaseHandoff))

		logger.Info("use_case_done",
			observability.F("outcome", outcome),
			observability.F("status", status),
			observability.F("latency_seconds", lat),
		)
	}()

	logger.Info("order_handoff_ready",
		observability.F("cart_id", evt.CartID),
		observability.F("customer", evt.CustomerName),
		observability.F("lines", len(evt.Lines)),
		observability.F("total", evt.Total),
		observability.F("confirmation_url", evt.ConfirmationURL),
	)

	if w.notifier == nil {
		return nil
	}
	if err := w.notifier.Notify(ctx, evt); err != nil {
		status = "NOTIFY_FAILED"
		return err
	}
	return nil
}

func (w *Worker) count(outcome string) {
	w.reqCounter.Add(1,
		observability.L("use_case", useCaseHandoff),
		observability.L("outcome", outcome),
	)
}
