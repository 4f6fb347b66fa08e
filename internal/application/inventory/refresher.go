package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

const (
	refresherService = "catalog-refresher"
	useCaseRefresh   = "catalog.refresh"
	spanPrefix       = "UC."
	flightKey        = "catalog"
	publishTimeout   = 300 * time.Millisecond

	// DefaultInterval matches the storefront's 30 second poll.
	DefaultInterval = 30 * time.Second
	// DefaultFetchTimeout bounds one shared fetch cycle.
	DefaultFetchTimeout = 15 * time.Second

	TriggerStart  = "start"
	TriggerTick   = "tick"
	TriggerManual = "manual"
	TriggerPush   = "push"
)

var ErrAlreadyRunning = errors.New("catalog: refresher already running")

// FetchError reports a failed read from the backing store. The previous
// snapshot stays published.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("catalog: fetch %s: %v", e.Op, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// Snapshot is one published catalog. Version grows by one per publish.
type Snapshot struct {
	Version     uint64
	Listings    []dominv.Listing
	Recipes     map[string]dominv.Recipe
	RefreshedAt time.Time
}

func (s Snapshot) Listing(key dominv.ProductKey) (dominv.Listing, bool) {
	for _, l := range s.Listings {
		if l.Key == key {
			return l, true
		}
	}
	return dominv.Listing{}, false
}

// Status describes the refresher's health for the read model.
type Status struct {
	Version     uint64
	RefreshedAt time.Time
	LastAttempt time.Time
	LastError   string
	Stale       bool
	Running     bool
}

// ProductDetail is a listing enriched with its recipe, when one matches by name.
type ProductDetail struct {
	Listing dominv.Listing
	Recipe  *dominv.Recipe
}

type Options struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	PublicOnly   bool
	// Publisher receives a CatalogRefreshedEvent after each publish. Optional.
	Publisher domoutbox.Publisher
}

type subscriber struct {
	mu     sync.Mutex
	active bool
	fn     func(Snapshot)
}

// Refresher polls the backing store, aggregates batches into listings and
// publishes the result to subscribers. Fetches never overlap: callers that
// arrive while a fetch is in flight wait for it and share its outcome.
type Refresher struct {
	repo         dominv.Repository
	interval     time.Duration
	fetchTimeout time.Duration
	publicOnly   bool
	publisher    domoutbox.Publisher

	flight  singleflight.Group
	cycleMu sync.Mutex

	mu          sync.RWMutex
	snapshot    Snapshot
	observedAt  time.Time // when the published batches were read
	lastErr     error
	lastAttempt time.Time

	subMu sync.Mutex
	subs  []*subscriber

	runMu       sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
	unsubscribe func()

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter   // catalog_refresh_total{trigger,outcome}
	durHistogram observability.Histogram // catalog_refresh_duration_seconds{trigger}
	extCounter   observability.Counter
	extHistogram observability.Histogram
}

func NewRefresher(repo dominv.Repository, opts Options, tel observability.Observability) *Refresher {
	if tel == nil {
		tel = observability.Nop()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	fetchTimeout := opts.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	m := tel.Metrics()
	return &Refresher{
		repo:         repo,
		interval:     interval,
		fetchTimeout: fetchTimeout,
		publicOnly:   opts.PublicOnly,
		publisher:    opts.Publisher,
		snapshot:     Snapshot{Listings: []dominv.Listing{}, Recipes: map[string]dominv.Recipe{}},
		log:          tel.Logger().With(observability.F("service", refresherService)),
		tracer:       tel.Tracer(),
		reqCounter:   m.Counter(observability.MCatalogRefreshes),
		durHistogram: m.Histogram(observability.MCatalogRefreshDuration),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

// Start launches the poll loop: one refresh right away, then one per
// interval. When the repository is a SnapshotSource its pushes are applied
// too. Stop undoes both; Start may be called again afterwards.
func (r *Refresher) Start(ctx context.Context) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.cancel != nil {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	if src, ok := r.repo.(dominv.SnapshotSource); ok {
		unsub, err := src.SubscribeBatches(r.applyPushed)
		if err != nil {
			r.log.Warn("catalog_push_subscribe_failed", observability.F("error", err))
		} else {
			r.unsubscribe = unsub
		}
	}

	go r.loop(loopCtx, r.done)
	r.log.Info("catalog_refresher_started",
		observability.F("interval", r.interval.String()),
		observability.F("public_only", r.publicOnly),
	)
	return nil
}

// Stop cancels the loop, releases the push subscription and waits for the
// loop goroutine to exit. It is a no-op when not running.
func (r *Refresher) Stop() {
	r.runMu.Lock()
	cancel, done, unsub := r.cancel, r.done, r.unsubscribe
	r.cancel, r.done, r.unsubscribe = nil, nil, nil
	r.runMu.Unlock()

	if cancel == nil {
		return
	}
	if unsub != nil {
		unsub()
	}
	cancel()
	<-done
	r.log.Info("catalog_refresher_stopped")
}

func (r *Refresher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	t := time.NewTicker(r.interval)
	defer t.Stop()

	_, _ = r.refresh(ctx, TriggerStart)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = r.refresh(ctx, TriggerTick)
		}
	}
}

// Refresh runs one fetch-aggregate-publish cycle now, or joins the one in
// flight. On failure the returned snapshot is the previous one and the error
// is a *FetchError. If ctx ends first Refresh returns the current snapshot
// and ctx.Err(); the cycle itself carries on for the other callers.
func (r *Refresher) Refresh(ctx context.Context) (Snapshot, error) {
	return r.refresh(ctx, TriggerManual)
}

func (r *Refresher) refresh(ctx context.Context, trigger string) (Snapshot, error) {
	ch := r.flight.DoChan(flightKey, func() (any, error) {
		// Detached from the first caller; only fetchTimeout ends it early.
		cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout)
		defer cancel()
		return r.cycle(cycleCtx, trigger)
	})
	select {
	case res := <-ch:
		snap, _ := res.Val.(Snapshot)
		return snap, res.Err
	case <-ctx.Done():
		return r.Snapshot(), ctx.Err()
	}
}

func (r *Refresher) cycle(ctx context.Context, trigger string) (_ Snapshot, err error) {
	logger := logctx.FromOr(ctx, r.log).With(
		observability.F("use_case", useCaseRefresh),
		observability.F("trigger", trigger),
	)
	ctx, span := r.tracer.Start(ctx, spanPrefix+"RefreshCatalog",
		attribute.String("use_case", useCaseRefresh),
		attribute.String("catalog.trigger", trigger),
	)
	start := time.Now()
	outcome := "success"
	var snap Snapshot

	defer func() {
		lat := time.Since(start).Seconds()
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, "FETCH_FAILED")
		} else {
			span.SetStatus(codes.Ok, "OK")
		}
		span.End()

		r.reqCounter.Add(1, observability.L("trigger", trigger), observability.L("outcome", outcome))
		r.durHistogram.Observe(lat, observability.L("trigger", trigger))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("latency_seconds", lat),
			observability.F("version", snap.Version),
			observability.F("listings", len(snap.Listings)),
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
			logger.Warn("catalog_refresh_failed", fields...)
			return
		}
		logger.Info("use_case_done", fields...)
	}()

	observedAt := time.Now()
	batches, ferr := r.fetchBatches(ctx)
	if ferr != nil {
		r.mu.Lock()
		r.lastErr = ferr
		r.lastAttempt = time.Now().UTC()
		snap = r.snapshot
		r.mu.Unlock()
		return snap, &FetchError{Op: "finished_goods", Err: ferr}
	}

	recipes, rerr := r.fetchRecipes(ctx)
	if rerr != nil {
		// Listings are still fresh; keep the recipes we already had.
		logger.Warn("catalog_recipes_refresh_failed", observability.F("error", rerr.Error()))
		recipes = nil
	}

	var published bool
	snap, published = r.publish(ctx, observedAt, batches, recipes)
	if !published {
		logger.Debug("catalog_refresh_superseded", observability.F("version", snap.Version))
	}
	return snap, nil
}

func (r *Refresher) fetchBatches(ctx context.Context) ([]dominv.Batch, error) {
	start := time.Now()
	batches, err := r.repo.ListFinishedGoods(ctx, r.publicOnly)
	r.observeExternal("list_finished_goods", start, err)
	return batches, err
}

func (r *Refresher) fetchRecipes(ctx context.Context) ([]dominv.Recipe, error) {
	start := time.Now()
	recipes, err := r.repo.ListRecipes(ctx)
	r.observeExternal("list_recipes", start, err)
	return recipes, err
}

func (r *Refresher) observeExternal(endpoint string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	r.extCounter.Add(1,
		observability.L("peer", "store"),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	r.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", "store"),
		observability.L("endpoint", endpoint),
	)
}

// applyPushed publishes a snapshot pushed by the store. No fetch is involved
// so it only needs to serialise with other publishes.
func (r *Refresher) applyPushed(batches []dominv.Batch) {
	start := time.Now()
	snap, _ := r.publish(context.Background(), time.Now(), batches, nil)
	r.reqCounter.Add(1, observability.L("trigger", TriggerPush), observability.L("outcome", "success"))
	r.durHistogram.Observe(time.Since(start).Seconds(), observability.L("trigger", TriggerPush))
	r.log.Debug("catalog_push_applied",
		observability.F("version", snap.Version),
		observability.F("listings", len(snap.Listings)),
	)
}

// publish aggregates batches, swaps the current snapshot and delivers it.
// A nil recipes slice keeps the previous recipes. Batches read before the
// ones already published are dropped and the current snapshot is returned
// with false.
func (r *Refresher) publish(ctx context.Context, observedAt time.Time, batches []dominv.Batch, recipes []dominv.Recipe) (Snapshot, bool) {
	r.cycleMu.Lock()
	defer r.cycleMu.Unlock()

	r.mu.Lock()
	if observedAt.Before(r.observedAt) {
		r.lastErr = nil
		r.lastAttempt = time.Now().UTC()
		snap := r.snapshot
		r.mu.Unlock()
		return snap, false
	}
	r.mu.Unlock()

	if r.publicOnly {
		batches = publicOnly(batches)
	}
	listings := dominv.Aggregate(batches)

	r.mu.Lock()
	recipeIndex := r.snapshot.Recipes
	if recipes != nil {
		recipeIndex = make(map[string]dominv.Recipe, len(recipes))
		for _, rec := range recipes {
			name := strings.TrimSpace(rec.Name)
			if _, seen := recipeIndex[name]; !seen {
				recipeIndex[name] = rec
			}
		}
	}
	snap := Snapshot{
		Version:     r.snapshot.Version + 1,
		Listings:    listings,
		Recipes:     recipeIndex,
		RefreshedAt: time.Now().UTC(),
	}
	r.snapshot = snap
	r.observedAt = observedAt
	r.lastErr = nil
	r.lastAttempt = snap.RefreshedAt
	r.mu.Unlock()

	r.deliver(snap)

	if r.publisher != nil {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		if err := r.publisher.Publish(pubCtx, dominv.NewCatalogRefreshedEvent(snap.Version, listings)); err != nil {
			r.log.Warn("catalog_event_publish_failed", observability.F("error", err.Error()))
		}
		cancel()
	}
	return snap, true
}

// Subscribe registers fn for every future snapshot. Deliveries happen in
// subscription order on the publishing goroutine. Once the returned function
// returns, fn is not called again; it must not be called from inside fn.
func (r *Refresher) Subscribe(fn func(Snapshot)) func() {
	s := &subscriber{active: true, fn: fn}

	r.subMu.Lock()
	r.subs = append(r.subs, s)
	r.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.subMu.Lock()
			for i, cur := range r.subs {
				if cur == s {
					r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
					break
				}
			}
			r.subMu.Unlock()

			s.mu.Lock()
			s.active = false
			s.mu.Unlock()
		})
	}
}

func (r *Refresher) deliver(snap Snapshot) {
	r.subMu.Lock()
	subs := append([]*subscriber(nil), r.subs...)
	r.subMu.Unlock()

	for _, s := range subs {
		s.mu.Lock()
		if s.active {
			s.fn(snap)
		}
		s.mu.Unlock()
	}
}

// Snapshot returns the last published catalog. Before the first successful
// refresh it is empty with Version 0.
func (r *Refresher) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// Listing reads the live ceiling for key.
func (r *Refresher) Listing(key dominv.ProductKey) (dominv.Listing, bool) {
	return r.Snapshot().Listing(key)
}

// Detail returns the listing for key with its recipe. A missing recipe is
// not an error.
func (r *Refresher) Detail(key dominv.ProductKey) (ProductDetail, bool) {
	snap := r.Snapshot()
	l, ok := snap.Listing(key)
	if !ok {
		return ProductDetail{}, false
	}
	d := ProductDetail{Listing: l}
	if rec, ok := snap.Recipes[l.RecipeName]; ok {
		d.Recipe = &rec
	}
	return d, true
}

func (r *Refresher) Status() Status {
	r.runMu.Lock()
	running := r.cancel != nil
	r.runMu.Unlock()

	r.mu.RLock()
	defer r.mu.RUnlock()
	st := Status{
		Version:     r.snapshot.Version,
		RefreshedAt: r.snapshot.RefreshedAt,
		LastAttempt: r.lastAttempt,
		Stale:       r.lastErr != nil,
		Running:     running,
	}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	return st
}

func publicOnly(batches []dominv.Batch) []dominv.Batch {
	out := make([]dominv.Batch, 0, len(batches))
	for _, b := range batches {
		if b.Public {
			out = append(out, b)
		}
	}
	return out
}
