package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	appCart "github.com/Zhima-Mochi/minishop-storefront/internal/application/cart"
	appinv "github.com/Zhima-Mochi/minishop-storefront/internal/application/inventory"
	appOrder "github.com/Zhima-Mochi/minishop-storefront/internal/application/order"
	domcart "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Catalog is the read model the storefront serves products from.
type Catalog interface {
	Snapshot() appinv.Snapshot
	Status() appinv.Status
	Detail(key dominv.ProductKey) (appinv.ProductDetail, bool)
	Refresh(ctx context.Context) (appinv.Snapshot, error)
}

type CartService interface {
	Create(ctx context.Context) (*domcart.Cart, error)
	Get(ctx context.Context, id string) (*domcart.Cart, error)
	Add(ctx context.Context, id string, key dominv.ProductKey) (*domcart.Cart, error)
	Remove(ctx context.Context, id string, key dominv.ProductKey) (*domcart.Cart, error)
	Clear(ctx context.Context, id string) (*domcart.Cart, error)
}

type SubmitOrder = application.UseCase[appOrder.SubmitOrderInput, *appOrder.SubmitOrderResult]

type Handler struct {
	catalog Catalog
	carts   CartService
	submit  SubmitOrder
	log     observability.Logger
	tel     observability.Observability
}

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	tracerName           = "storefront.http"
	maxBodyBytes         = 1 << 20
)

func NewHandler(catalog Catalog, carts CartService, submit SubmitOrder, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Handler{
		catalog: catalog,
		carts:   carts,
		submit:  submit,
		log:     tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tel:     tel,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// Trace → ObservabilityMiddleware (request logger + HTTP metrics) → Access log → Handler
	h.muxHandle(mux, http.MethodGet, "/products", h.handleListProducts)
	h.muxHandle(mux, http.MethodGet, "/products/detail", h.handleProductDetail)
	h.muxHandle(mux, http.MethodPost, "/catalog/refresh", h.handleRefreshCatalog)
	h.muxHandle(mux, http.MethodPost, "/carts", h.handleCreateCart)
	h.muxHandle(mux, http.MethodGet, "/carts/{id}", h.handleGetCart)
	h.muxHandle(mux, http.MethodPost, "/carts/{id}/items", h.handleAddItem)
	h.muxHandle(mux, http.MethodDelete, "/carts/{id}/items", h.handleRemoveItem)
	h.muxHandle(mux, http.MethodDelete, "/carts/{id}", h.handleClearCart)
	h.muxHandle(mux, http.MethodPost, "/carts/{id}/checkout", h.handleCheckout)
	h.muxHandle(mux, http.MethodGet, "/health", h.handleHealth)

	return mux
}

func (h *Handler) muxHandle(mux *http.ServeMux, method, route string, handler http.HandlerFunc) {
	wrapped := h.withTrace(
		ObservabilityMiddleware(
			h.log,
			func(r *http.Request) string { return r.Header.Get(headerRequestID) },
			h.tel,
		)(
			h.withAccessLog(handler),
		),
	)
	mux.Handle(method+" "+route, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Stable route template for low-cardinality labels.
		r = r.WithContext(contextWithRoute(r.Context(), route))
		wrapped.ServeHTTP(w, r)
	}))
}

func (h *Handler) handleListProducts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toCatalogResponse(h.catalog.Snapshot(), h.catalog.Status()))
}

func (h *Handler) handleProductDetail(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromQuery(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	detail, ok := h.catalog.Detail(key)
	if !ok {
		writeDomainError(w, appCart.ErrProductNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toProductDetailResponse(detail))
}

func (h *Handler) handleRefreshCatalog(w http.ResponseWriter, r *http.Request) {
	snap, err := h.catalog.Refresh(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCatalogResponse(snap, h.catalog.Status()))
}

func (h *Handler) handleCreateCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Create(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCartResponse(c))
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req productKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	key, err := dominv.NewProductKey(req.RecipeName, req.PackagingType)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	c, err := h.carts.Add(r.Context(), r.PathValue("id"), key)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromQuery(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	c, err := h.carts.Remove(r.Context(), r.PathValue("id"), key)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Clear(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := h.submit.Execute(r.Context(), appOrder.SubmitOrderInput{
		CartID: r.PathValue("id"),
		Customer: domorder.Customer{
			Name:    req.Name,
			Phone:   req.Phone,
			Email:   req.Email,
			Address: req.Address,
		},
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCheckoutResponse(res))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := h.catalog.Status()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		CatalogVersion: st.Version,
		CatalogStale:   st.Stale,
		RefresherUp:    st.Running,
	})
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer(tracerName)
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		spanName := r.Method + " " + route
		if route == "unknown" {
			spanName = r.Method + " " + r.URL.Path
		}

		ctxWithSpan, span := tracer.Start(parentCtx,
			spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctxWithSpan))
	})
}

func keyFromQuery(r *http.Request) (dominv.ProductKey, error) {
	q := r.URL.Query()
	if k := q.Get("key"); k != "" {
		return dominv.ParseProductKey(k)
	}
	return dominv.NewProductKey(q.Get("recipe_name"), q.Get("packaging_type"))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	var submitErr *appOrder.SubmissionError
	var fetchErr *appinv.FetchError
	switch {
	case errors.As(err, &submitErr):
		// The store's message goes to the customer untouched.
		writeError(w, http.StatusBadGateway, submitErr)
	case errors.As(err, &fetchErr):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, domcart.ErrNotFound),
		errors.Is(err, domorder.ErrNotFound),
		errors.Is(err, appCart.ErrProductNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domcart.ErrSoldOut):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, appOrder.ErrEmptyCart):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, appOrder.ErrValidation),
		errors.Is(err, dominv.ErrInvalidKey),
		errors.Is(err, domcart.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
