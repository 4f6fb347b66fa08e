package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	domcart "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	orderService       = "order-service"
	useCaseOrderSubmit = "order.submit"
	spanPrefix         = "UC."
	storePeer          = "store"
	storeEndpoint      = "create_order"
	publishPeer        = "outbox"
	publishEndpoint    = "order.submitted"
	publishTimeout     = 300 * time.Millisecond

	// DefaultWhatsAppNumber is the shop's number used when none is configured.
	DefaultWhatsAppNumber = "60123456789"
)

var _ application.UseCase[SubmitOrderInput, *SubmitOrderResult] = (*SubmitOrderUseCase)(nil)

// SubmitOrderUseCase turns a cart into a stored order and the WhatsApp
// confirmation the customer sends to arrange payment.
type SubmitOrderUseCase struct {
	repo      domain.Repository
	carts     CartPort
	publisher domoutbox.Publisher
	waNumber  string
	tel       observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewSubmitOrderUseCase(
	repo domain.Repository,
	carts CartPort,
	publisher domoutbox.Publisher,
	waNumber string,
	tel observability.Observability,
) *SubmitOrderUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	if waNumber == "" {
		waNumber = DefaultWhatsAppNumber
	}
	m := tel.Metrics()
	return &SubmitOrderUseCase{
		repo:         repo,
		carts:        carts,
		publisher:    publisher,
		waNumber:     waNumber,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", orderService)),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

type SubmitOrderInput struct {
	CartID   string
	Customer domain.Customer
}

type SubmitOrderResult struct {
	Order        *domain.Order
	Confirmation domain.Confirmation
}

// Execute validates the customer and the cart, creates the order in the
// backing store and takes the ordered lines off the cart. Stock is not
// re-checked here; the store is the final arbiter. Once the store accepted the
// order the lines are removed even if ctx is already done, and anything added
// to the cart meanwhile stays.
func (uc *SubmitOrderUseCase) Execute(ctx context.Context, cmd SubmitOrderInput) (_ *SubmitOrderResult, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(observability.F("use_case", useCaseOrderSubmit))

	var orderID string
	var publishErr error

	ctx, span := uc.tel.Tracer().Start(ctx, spanPrefix+"SubmitOrder",
		attribute.String("use_case", useCaseOrderSubmit),
		attribute.String("cart.id", cmd.CartID),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		lat := time.Since(start).Seconds()

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		uc.reqCounter.Add(1,
			observability.L("use_case", useCaseOrderSubmit),
			observability.L("outcome", outcome),
		)
		uc.durHistogram.Observe(lat, observability.L("use_case", useCaseOrderSubmit))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
			observability.F("cart_id", cmd.CartID),
		}
		if orderID != "" {
			fields = append(fields, observability.F("order_id", orderID))
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				observability.F("trace_id", sc.TraceID().String()),
				observability.F("span_id", sc.SpanID().String()),
			)
		}
		if publishErr != nil {
			fields = append(fields, observability.F("event_publish_error", publishErr.Error()))
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}

		logger.Info("use_case_done", fields...)
	}()

	customer := cmd.Customer.Normalize()
	if verr := customer.Validate(); verr != nil {
		outcome, statusText = "error", "CUSTOMER_INVALID"
		return nil, newValidation(verr)
	}
	if cmd.CartID == "" {
		outcome, statusText = "error", "CART_ID_REQUIRED"
		return nil, newValidation(errors.New("cart id is required"))
	}

	c, cerr := uc.carts.Get(ctx, cmd.CartID)
	if cerr != nil {
		outcome, statusText = "error", "CART_LOOKUP_FAILED"
		return nil, fmt.Errorf("%w: %w", ErrCartLookup, cerr)
	}

	lines := orderLines(c)
	if len(lines) == 0 {
		outcome, statusText = "error", "EMPTY_CART"
		return nil, ErrEmptyCart
	}

	entity, derr := domain.New(customer, lines)
	if derr != nil {
		outcome, statusText = "error", "DOMAIN_CONSTRUCTION_FAILED"
		return nil, newValidation(derr)
	}
	if cerr := ctx.Err(); cerr != nil {
		outcome, statusText = "error", "CONTEXT_CANCELED"
		return nil, cerr
	}

	if serr := uc.createOrder(ctx, entity); serr != nil {
		outcome, statusText = "error", "STORE_CREATE_FAILED"
		return nil, newSubmissionError(serr)
	}
	orderID = entity.ID

	// From here on the order exists; the caller going away must not leave
	// the cart behind.
	tail := context.WithoutCancel(ctx)

	if _, clrErr := uc.carts.RemoveSubmitted(tail, cmd.CartID, submittedQuantities(c)); clrErr != nil && !errors.Is(clrErr, domcart.ErrNotFound) {
		logger.Warn("cart_clear_failed",
			observability.F("cart_id", cmd.CartID),
			observability.F("order_id", orderID),
			observability.F("error", clrErr.Error()),
		)
	}

	confirmation := domain.NewConfirmation(entity, uc.waNumber)

	if uc.publisher != nil {
		publishErr = uc.publish(tail, domain.NewOrderSubmittedEvent(entity, cmd.CartID, confirmation))
		if publishErr != nil {
			statusText = "EVENT_PUBLISH_FAILED"
		}
	}

	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.Int("order.lines", len(entity.Lines)),
	)
	span.AddEvent("order.submitted", trace.WithAttributes(attribute.String("order.id", orderID)))

	return &SubmitOrderResult{Order: entity.Clone(), Confirmation: confirmation}, nil
}

func (uc *SubmitOrderUseCase) createOrder(ctx context.Context, o *domain.Order) error {
	start := time.Now()
	err := uc.repo.Create(ctx, o)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	uc.extCounter.Add(1,
		observability.L("peer", storePeer),
		observability.L("endpoint", storeEndpoint),
		observability.L("outcome", outcome),
	)
	uc.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", storePeer),
		observability.L("endpoint", storeEndpoint),
	)
	return err
}

func (uc *SubmitOrderUseCase) publish(ctx context.Context, e domoutbox.Event) error {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	pubStart := time.Now()
	pubOutcome := "success"
	err := uc.publisher.Publish(pubCtx, e)
	if err != nil {
		pubOutcome = "error"
	} else if pubCtx.Err() != nil {
		pubOutcome = "canceled"
		err = pubCtx.Err()
	}

	uc.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", publishEndpoint),
		observability.L("outcome", pubOutcome),
	)
	uc.extHistogram.Observe(time.Since(pubStart).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", publishEndpoint),
	)
	return err
}

// submittedQuantities is what the order took from each line of c. Lines the
// order skipped at zero are listed too so they leave the cart with it.
func submittedQuantities(c *domcart.Cart) map[dominv.ProductKey]int {
	out := make(map[dominv.ProductKey]int, len(c.Lines))
	for _, l := range c.Lines {
		out[l.Key()] += l.Quantity
	}
	return out
}

// orderLines freezes the purchasable cart lines at their snapshot prices.
func orderLines(c *domcart.Cart) []domain.Line {
	src := c.PurchasableLines()
	out := make([]domain.Line, 0, len(src))
	for _, l := range src {
		out = append(out, domain.Line{
			Key:           l.Key(),
			RecipeName:    l.Listing.RecipeName,
			PackagingType: l.Listing.PackagingType,
			Quantity:      l.Quantity,
			UnitPrice:     l.Listing.SellingPrice,
		})
	}
	return out
}
