package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"

	"github.com/lib/pq"
)

const (
	componentStore = "postgres_store"
	notifyChannel  = "finished_goods_changed"

	minReconnect = 10 * time.Second
	maxReconnect = time.Minute
	listenerPing = 90 * time.Second
	pushTimeout  = 10 * time.Second

	maxIDAttempts    = 3
	uniqueViolation  = "23505"
	ordersPrimaryKey = "orders_pkey"
)

type idGenerator interface {
	NewID() string
}

// Store is the Postgres backing store. It serves finished goods and recipes,
// creates orders, and pushes finished-goods snapshots on NOTIFY.
type Store struct {
	db  *sql.DB
	dsn string
	ids idGenerator
	log observability.Logger

	wg sync.WaitGroup
}

func NewStore(db *sql.DB, dsn string, ids idGenerator, logger observability.Logger) *Store {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Store{
		db:  db,
		dsn: dsn,
		ids: ids,
		log: logger.With(observability.F("component", componentStore)),
	}
}

const listFinishedGoodsSQL = `
SELECT id, recipe_name, packaging_type, quantity, selling_price, image_url, is_public
FROM finished_goods
WHERE quantity > 0 AND ($1 = FALSE OR is_public)
ORDER BY created_at, id`

func (s *Store) ListFinishedGoods(ctx context.Context, publicOnly bool) ([]dominv.Batch, error) {
	rows, err := s.db.QueryContext(ctx, listFinishedGoodsSQL, publicOnly)
	if err != nil {
		return nil, fmt.Errorf("postgres: list finished goods: %w", err)
	}
	defer rows.Close()

	out := make([]dominv.Batch, 0)
	for rows.Next() {
		var b dominv.Batch
		if err := rows.Scan(&b.ID, &b.RecipeName, &b.PackagingType, &b.Quantity, &b.SellingPrice, &b.ImageURL, &b.Public); err != nil {
			return nil, fmt.Errorf("postgres: scan finished good: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list finished goods: %w", err)
	}
	return out, nil
}

func (s *Store) ListRecipes(ctx context.Context) ([]dominv.Recipe, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, notes FROM recipes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recipes: %w", err)
	}
	defer rows.Close()

	out := make([]dominv.Recipe, 0)
	for rows.Next() {
		var r dominv.Recipe
		if err := rows.Scan(&r.Name, &r.Notes); err != nil {
			return nil, fmt.Errorf("postgres: scan recipe: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list recipes: %w", err)
	}
	return out, nil
}

// Create writes the order and its lines in one transaction and sets o.ID
// and o.CreatedAt on success.
// Create inserts o under a fresh short id, drawing a new one when the id is
// already taken.
func (s *Store) Create(ctx context.Context, o *domorder.Order) error {
	var err error
	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		id := s.ids.NewID()
		if err = s.insertOrder(ctx, id, o); !isOrderIDConflict(err) {
			return err
		}
		logctx.FromOr(ctx, s.log).Warn("order_id_conflict",
			observability.F("order_id", id),
			observability.F("attempt", attempt),
		)
	}
	return fmt.Errorf("postgres: no free order id after %d attempts: %w", maxIDAttempts, err)
}

func isOrderIDConflict(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == ordersPrimaryKey
}

func (s *Store) insertOrder(ctx context.Context, id string, o *domorder.Order) (err error) {
	logger := logctx.FromOr(ctx, s.log)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logger.Warn("db_rollback_failed", observability.F("error", rbErr.Error()))
			}
		}
	}()

	var createdAt time.Time
	err = tx.QueryRowContext(ctx, `
INSERT INTO orders (id, customer_name, customer_phone, customer_email, customer_address, total)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`,
		id, o.Customer.Name, o.Customer.Phone, o.Customer.Email, o.Customer.Address, o.Total,
	).Scan(&createdAt)
	if err != nil {
		return fmt.Errorf("postgres: insert order: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO order_items (order_id, line_no, recipe_name, packaging_type, quantity, unit_price)
VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return fmt.Errorf("postgres: prepare order items: %w", err)
	}
	defer stmt.Close()

	for i, l := range o.Lines {
		if _, err = stmt.ExecContext(ctx, id, i+1, l.RecipeName, l.PackagingType, l.Quantity, l.UnitPrice); err != nil {
			return fmt.Errorf("postgres: insert order item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}

	o.ID = id
	o.CreatedAt = createdAt.UTC()
	logger.Debug("order_inserted", observability.F("order_id", id), observability.F("lines", len(o.Lines)))
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*domorder.Order, error) {
	o := &domorder.Order{ID: id}
	err := s.db.QueryRowContext(ctx, `
SELECT customer_name, customer_phone, customer_email, customer_address, total, created_at
FROM orders WHERE id = $1`, id,
	).Scan(&o.Customer.Name, &o.Customer.Phone, &o.Customer.Email, &o.Customer.Address, &o.Total, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domorder.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find order: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT recipe_name, packaging_type, quantity, unit_price
FROM order_items WHERE order_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: find order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l domorder.Line
		if err := rows.Scan(&l.RecipeName, &l.PackagingType, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, fmt.Errorf("postgres: scan order item: %w", err)
		}
		l.Key = dominv.ProductKey{RecipeName: l.RecipeName, PackagingType: l.PackagingType}
		o.Lines = append(o.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: find order items: %w", err)
	}
	o.CreatedAt = o.CreatedAt.UTC()
	return o, nil
}

// SubscribeBatches opens a dedicated LISTEN connection on
// finished_goods_changed and calls fn with a full re-read of finished goods
// after every notification and after every reconnect.
func (s *Store) SubscribeBatches(fn func([]dominv.Batch)) (func(), error) {
	listener := pq.NewListener(s.dsn, minReconnect, maxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			s.log.Warn("db_listener_event", observability.F("event", int(ev)), observability.F("error", err.Error()))
		}
	})
	if err := listener.Listen(notifyChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("postgres: listen %s: %w", notifyChannel, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.listen(ctx, listener, fn)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			_ = listener.Close()
		})
	}, nil
}

func (s *Store) listen(ctx context.Context, l *pq.Listener, fn func([]dominv.Batch)) {
	ping := time.NewTicker(listenerPing)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-l.Notify:
			if !ok {
				return
			}
			// A nil notification means the connection was re-established
			// and events may have been missed; a full re-read covers both.
			s.push(ctx, fn)
		case <-ping.C:
			go func() { _ = l.Ping() }()
		}
	}
}

func (s *Store) push(ctx context.Context, fn func([]dominv.Batch)) {
	readCtx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()

	batches, err := s.ListFinishedGoods(readCtx, false)
	if err != nil {
		s.log.Warn("finished_goods_push_failed", observability.F("error", err.Error()))
		return
	}
	fn(batches)
}

// Wait blocks until every listener goroutine has exited.
func (s *Store) Wait() { s.wg.Wait() }
