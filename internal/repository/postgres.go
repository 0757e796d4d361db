// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/surprisebox-shop/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrBoxNotFound возвращается, если товар с указанным идентификатором не найден.
var (
	ErrBoxNotFound = errors.New("surprise box not found")
	// ErrInsufficientStock возвращается, если запрошенное количество превышает остаток.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrBoxReferenced возвращается при попытке удалить товар, на который ссылаются заказы.
	ErrBoxReferenced = errors.New("surprise box referenced by orders")
	// ErrEmailExists возвращается при попытке создать пользователя с уже занятым email.
	ErrEmailExists = errors.New("email already registered")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Денежные значения передаются между БД и decimal только текстом,
// чтобы цена никогда не проходила через двоичную плавающую точку.
const boxColumns = `id, name, tagline, description, price::text, image_url, ` +
	`category, contents_description, stock, is_active, created_at, updated_at`

func scanBox(row pgx.Row) (*model.SurpriseBox, error) {
	var (
		b        model.SurpriseBox
		price    string
		category string
	)
	err := row.Scan(&b.ID, &b.Name, &b.Tagline, &b.Description, &price, &b.ImageURL,
		&category, &b.ContentsDescription, &b.Stock, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	b.Price = p
	b.Category = model.Category(category)

	return &b, nil
}

// CreateBox сохраняет новый товар каталога.
func (r *PostgresRepository) CreateBox(ctx context.Context, box model.SurpriseBox) (*model.SurpriseBox, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO surprise_boxes
		 (name, tagline, description, price, image_url, category, contents_description, stock, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+boxColumns,
		box.Name, box.Tagline, box.Description, box.Price.StringFixed(2), box.ImageURL,
		string(box.Category), box.ContentsDescription, box.Stock, box.IsActive,
	)

	created, err := scanBox(row)
	if err != nil {
		return nil, fmt.Errorf("create box: %w", err)
	}
	return created, nil
}

// GetBoxes возвращает товары каталога, удовлетворяющие фильтру.
func (r *PostgresRepository) GetBoxes(ctx context.Context, filter model.BoxFilter) ([]model.SurpriseBox, error) {
	query := `SELECT ` + boxColumns + ` FROM surprise_boxes`

	var (
		conds []string
		args  []any
	)

	if filter.ActiveOnly {
		conds = append(conds, "is_active")
	}
	if filter.Category != nil {
		args = append(args, string(*filter.Category))
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR tagline ILIKE $%d OR description ILIKE $%d)", n, n, n))
	}

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select boxes: %w", err)
	}
	defer rows.Close()

	var boxes []model.SurpriseBox
	for rows.Next() {
		b, err := scanBox(rows)
		if err != nil {
			return nil, fmt.Errorf("scan box: %w", err)
		}
		boxes = append(boxes, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return boxes, nil
}

// GetBoxByID возвращает товар по идентификатору.
func (r *PostgresRepository) GetBoxByID(ctx context.Context, id uuid.UUID) (*model.SurpriseBox, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+boxColumns+` FROM surprise_boxes WHERE id = $1`,
		id,
	)

	b, err := scanBox(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrBoxNotFound, id)
		}
		return nil, fmt.Errorf("get box: %w", err)
	}

	return b, nil
}

// UpdateBox применяет частичное обновление товара: изменяются только не-nil поля.
func (r *PostgresRepository) UpdateBox(ctx context.Context, id uuid.UUID, upd model.BoxUpdate) (*model.SurpriseBox, error) {
	var (
		sets []string
		args = []any{id}
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.Tagline != nil {
		add("tagline", *upd.Tagline)
	}
	if upd.Description != nil {
		add("description", *upd.Description)
	}
	if upd.Price != nil {
		add("price", upd.Price.StringFixed(2))
	}
	if upd.ImageURL != nil {
		add("image_url", *upd.ImageURL)
	}
	if upd.Category != nil {
		add("category", string(*upd.Category))
	}
	if upd.ContentsDescription != nil {
		add("contents_description", *upd.ContentsDescription)
	}
	if upd.Stock != nil {
		add("stock", *upd.Stock)
	}
	if upd.IsActive != nil {
		add("is_active", *upd.IsActive)
	}

	sets = append(sets, "updated_at = now()")

	row := r.pool.QueryRow(ctx,
		`UPDATE surprise_boxes SET `+strings.Join(sets, ", ")+` WHERE id = $1 RETURNING `+boxColumns,
		args...,
	)

	b, err := scanBox(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrBoxNotFound, id)
		}
		return nil, fmt.Errorf("update box: %w", err)
	}

	return b, nil
}

// DeleteBox удаляет товар и сообщает, была ли удалена строка.
// Удаление несуществующего товара не является ошибкой.
func (r *PostgresRepository) DeleteBox(ctx context.Context, id uuid.UUID) (bool, error) {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM surprise_boxes WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return false, fmt.Errorf("%w: %s", ErrBoxReferenced, id)
		}
		return false, fmt.Errorf("delete box: %w", err)
	}

	return cmdTag.RowsAffected() > 0, nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, email string, passwordHash []byte, firstName, lastName string) (*model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, first_name, last_name)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, email, password_hash, first_name, last_name, created_at, updated_at`,
		email, passwordHash, firstName, lastName,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, fmt.Errorf("%w: %s", ErrEmailExists, email)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}

// GetUserByEmail возвращает пользователя по точному совпадению email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, first_name, last_name, created_at, updated_at
		 FROM users WHERE email = $1`,
		email,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// OrderLine описывает одну позицию размещаемого заказа с зафиксированной ценой.
type OrderLine struct {
	BoxID           uuid.UUID
	Quantity        int32
	PriceAtPurchase decimal.Decimal
}

// PlaceOrder атомарно сохраняет заказ с позициями и списывает остатки.
// Списание условное: строка товара меняется только при достаточном остатке,
// иначе вся транзакция откатывается и ни одна позиция не резервируется.
func (r *PostgresRepository) PlaceOrder(ctx context.Context, userID *uuid.UUID, shippingAddress string, total decimal.Decimal, lines []OrderLine) (*model.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		o           model.Order
		totalStr    string
		orderStatus string
	)
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (user_id, status, total_amount, shipping_address)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, user_id, status, total_amount::text, shipping_address, created_at, updated_at`,
		userID, string(model.OrderStatusPending), total.StringFixed(2), shippingAddress,
	).Scan(&o.ID, &o.UserID, &orderStatus, &totalStr, &o.ShippingAddress, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	o.Status = model.OrderStatus(orderStatus)
	if o.TotalAmount, err = decimal.NewFromString(totalStr); err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}

	for _, line := range lines {
		cmdTag, err := tx.Exec(ctx,
			`UPDATE surprise_boxes
			 SET stock = stock - $2, updated_at = now()
			 WHERE id = $1 AND stock >= $2`,
			line.BoxID, line.Quantity,
		)
		if err != nil {
			return nil, fmt.Errorf("decrement stock: %w", err)
		}

		if cmdTag.RowsAffected() == 0 {
			// Остаток мог измениться после проверки на уровне сервиса:
			// различаем исчезнувший товар и нехватку остатка уже внутри транзакции.
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM surprise_boxes WHERE id = $1)`,
				line.BoxID,
			).Scan(&exists); err != nil {
				return nil, fmt.Errorf("check box: %w", err)
			}
			if !exists {
				return nil, fmt.Errorf("%w: %s", ErrBoxNotFound, line.BoxID)
			}
			return nil, fmt.Errorf("%w: %s", ErrInsufficientStock, line.BoxID)
		}

		item := model.OrderItem{
			OrderID:         o.ID,
			BoxID:           line.BoxID,
			Quantity:        line.Quantity,
			PriceAtPurchase: line.PriceAtPurchase,
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO order_items (order_id, box_id, quantity, price_at_purchase)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id, created_at`,
			o.ID, line.BoxID, line.Quantity, line.PriceAtPurchase.StringFixed(2),
		).Scan(&item.ID, &item.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert order item: %w", err)
		}

		o.Items = append(o.Items, item)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &o, nil
}

const orderColumns = `id, user_id, status, total_amount::text, shipping_address, created_at, updated_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o      model.Order
		status string
		total  string
	)
	err := row.Scan(&o.ID, &o.UserID, &status, &total, &o.ShippingAddress, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}

	o.Status = model.OrderStatus(status)
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}

	return &o, nil
}

// GetOrders возвращает все заказы, независимо от статуса и владельца.
func (r *PostgresRepository) GetOrders(ctx context.Context) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// GetOrdersByUser возвращает заказы указанного пользователя.
// Гостевые заказы (без владельца) в выборку не попадают.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select user orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// UpdateOrderStatus устанавливает новый статус заказа.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1 RETURNING `+orderColumns,
		id, string(status),
	)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}

	return o, nil
}
