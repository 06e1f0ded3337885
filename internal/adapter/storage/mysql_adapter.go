package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rl1809/order-realtime/internal/core/domain"
)

//go:embed schema.sql
var schema string

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// ApplySchema creates the tables if they are missing. The driver runs one
// statement per Exec unless multiStatements is set, so they go one by one.
func (m *MySQLAdapter) ApplySchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, email, status, total, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.UserID, order.Email, order.Status, order.Total,
		order.CreatedAt, order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	if len(order.Items) > 0 {
		args := make([]any, 0, len(order.Items)*5)
		for i, it := range order.Items {
			args = append(args, order.ID, i, it.ProductID, it.Quantity, it.UnitPrice)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, product_id, quantity, unit_price)
			VALUES `+rows(len(order.Items), 5), args...)
		if err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
	}

	if err := adjustStock(ctx, tx, order.Items, -1); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var o domain.Order
	err := m.db.QueryRowContext(ctx, `
		SELECT id, user_id, email, status, total, created_at
		FROM orders WHERE id = ?`, orderID,
	).Scan(&o.ID, &o.UserID, &o.Email, &o.Status, &o.Total, &o.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	items, err := m.loadItems(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return &o, nil
}

func (m *MySQLAdapter) ListOrders(ctx context.Context, search string, offset, limit int) ([]domain.Order, error) {
	where, args := orderSearch(search)
	args = append(args, limit, offset)
	return m.queryOrders(ctx, `
		SELECT id, user_id, email, status, total, created_at
		FROM orders`+where+`
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?`, args...)
}

// ListUserOrders returns a page of one user's orders, newest first.
func (m *MySQLAdapter) ListUserOrders(ctx context.Context, userID string, offset, limit int) ([]domain.Order, error) {
	return m.queryOrders(ctx, `
		SELECT id, user_id, email, status, total, created_at
		FROM orders WHERE user_id = ?
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?`, userID, limit, offset)
}

func (m *MySQLAdapter) CountUserOrders(ctx context.Context, userID string) (int, error) {
	var n int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count user orders: %w", err)
	}
	return n, nil
}

// HasPurchased reports whether any order of userID contains productID,
// whatever its status.
func (m *MySQLAdapter) HasPurchased(ctx context.Context, userID, productID string) (bool, error) {
	var one int
	err := m.db.QueryRowContext(ctx, `
		SELECT 1 FROM orders o
		JOIN order_items i ON i.order_id = o.id
		WHERE o.user_id = ? AND i.product_id = ?
		LIMIT 1`, userID, productID,
	).Scan(&one)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query purchase: %w", err)
	}
	return true, nil
}

func (m *MySQLAdapter) CountOrders(ctx context.Context, search string) (int, error) {
	where, args := orderSearch(search)
	var n int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}

// UpdateOrderStatus returns the status the order had before, or "" when the
// order does not exist. Cancelling puts the ordered quantities back in stock.
func (m *MySQLAdapter) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.OrderStatus, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var prev domain.OrderStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ? FOR UPDATE`, orderID).Scan(&prev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lock order: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), orderID,
	)
	if err != nil {
		return "", fmt.Errorf("update order: %w", err)
	}

	if status == domain.OrderStatusCancelled && prev != domain.OrderStatusCancelled {
		items, err := queryItems(ctx, tx, []string{orderID})
		if err != nil {
			return "", err
		}
		if err := adjustStock(ctx, tx, items[orderID], 1); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return prev, nil
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var (
		p      domain.Product
		images sql.NullString
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT id, title, description, price, discount_percentage, stock, brand, category, thumbnail, images
		FROM products WHERE id = ?`, productID,
	).Scan(&p.ID, &p.Title, &p.Description, &p.Price, &p.DiscountPercentage, &p.Stock,
		&p.Brand, &p.Category, &p.Thumbnail, &images)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	if p.Images, err = decodeImages(images); err != nil {
		return nil, fmt.Errorf("product %s: %w", productID, err)
	}
	return &p, nil
}

func (m *MySQLAdapter) ListReviews(ctx context.Context, productID string) ([]domain.Review, error) {
	rs, err := m.db.QueryContext(ctx, `
		SELECT user_id, name, rating, comment
		FROM reviews WHERE product_id = ? ORDER BY id`, productID)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer rs.Close()

	var reviews []domain.Review
	for rs.Next() {
		var r domain.Review
		if err := rs.Scan(&r.UserID, &r.Name, &r.Rating, &r.Comment); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	return reviews, rs.Err()
}

// AddReview appends a review to a product. It returns false when the product
// does not exist.
func (m *MySQLAdapter) AddReview(ctx context.Context, productID string, r domain.Review) (bool, error) {
	res, err := m.db.ExecContext(ctx, `
		INSERT INTO reviews (product_id, user_id, name, rating, comment)
		SELECT id, ?, ?, ?, ? FROM products WHERE id = ?`,
		r.UserID, r.Name, r.Rating, r.Comment, productID)
	if err != nil {
		return false, fmt.Errorf("insert review: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert review: %w", err)
	}
	return n > 0, nil
}

func (m *MySQLAdapter) ListProducts(ctx context.Context, category string, offset, limit int) ([]domain.Product, error) {
	rs, err := m.db.QueryContext(ctx, `
		SELECT id, title, description, price, discount_percentage, stock, brand, category, thumbnail, images
		FROM products
		WHERE (? = '' OR category = ?)
		ORDER BY id
		LIMIT ? OFFSET ?`, category, category, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rs.Close()

	var products []domain.Product
	for rs.Next() {
		var (
			p      domain.Product
			images sql.NullString
		)
		if err := rs.Scan(&p.ID, &p.Title, &p.Description, &p.Price, &p.DiscountPercentage, &p.Stock,
			&p.Brand, &p.Category, &p.Thumbnail, &images); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if p.Images, err = decodeImages(images); err != nil {
			return nil, fmt.Errorf("product %s: %w", p.ID, err)
		}
		products = append(products, p)
	}
	return products, rs.Err()
}

func (m *MySQLAdapter) ListRatings(ctx context.Context, productIDs []string) (map[string][]int, error) {
	out := make(map[string][]int, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	rs, err := m.db.QueryContext(ctx, `
		SELECT product_id, rating FROM reviews
		WHERE product_id IN (`+placeholders(len(productIDs))+`)`, stringArgs(productIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query ratings: %w", err)
	}
	defer rs.Close()

	for rs.Next() {
		var (
			id     string
			rating int
		)
		if err := rs.Scan(&id, &rating); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		out[id] = append(out[id], rating)
	}
	return out, rs.Err()
}

func (m *MySQLAdapter) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var (
		u         domain.User
		lastLogin sql.NullTime
		expires   sql.NullTime
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT id, email, name, email_verified, is_admin, is_active, created_at, last_login_at, session_expires
		FROM users WHERE email = ?`, email,
	).Scan(&u.ID, &u.Email, &u.Name, &u.EmailVerified, &u.IsAdmin, &u.IsActive, &u.CreatedAt, &lastLogin, &expires)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	if expires.Valid {
		u.SessionExpires = &expires.Time
	}
	return &u, nil
}

func (m *MySQLAdapter) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var admin bool
	err := m.db.QueryRowContext(ctx, `SELECT is_admin FROM users WHERE id = ?`, userID).Scan(&admin)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query user role: %w", err)
	}
	return admin, nil
}

// queryOrders runs an order SELECT and attaches the line items of every row.
func (m *MySQLAdapter) queryOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rs, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rs.Close()

	var orders []domain.Order
	for rs.Next() {
		var o domain.Order
		if err := rs.Scan(&o.ID, &o.UserID, &o.Email, &o.Status, &o.Total, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	items, err := m.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func (m *MySQLAdapter) loadItems(ctx context.Context, orderIDs []string) (map[string][]domain.LineItem, error) {
	return queryItems(ctx, m.db, orderIDs)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryItems(ctx context.Context, q querier, orderIDs []string) (map[string][]domain.LineItem, error) {
	rs, err := q.QueryContext(ctx, `
		SELECT order_id, product_id, quantity, unit_price
		FROM order_items
		WHERE order_id IN (`+placeholders(len(orderIDs))+`)
		ORDER BY order_id, position`, stringArgs(orderIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rs.Close()

	out := make(map[string][]domain.LineItem, len(orderIDs))
	for rs.Next() {
		var (
			orderID string
			it      domain.LineItem
		)
		if err := rs.Scan(&orderID, &it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		out[orderID] = append(out[orderID], it)
	}
	return out, rs.Err()
}

// adjustStock moves stock by sign*quantity for every product in items with a
// single UPDATE. Products that do not exist are left alone.
func adjustStock(ctx context.Context, tx *sql.Tx, items []domain.LineItem, sign int) error {
	ids, qty := aggregateQuantities(items)
	if len(ids) == 0 {
		return nil
	}

	var (
		cases strings.Builder
		args  = make([]any, 0, len(ids)*3)
	)
	for _, id := range ids {
		cases.WriteString(" WHEN ? THEN ?")
		args = append(args, id, sign*qty[id])
	}
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + CASE id`+cases.String()+` ELSE 0 END
		WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}
	return nil
}

// aggregateQuantities sums quantities per product, keeping first-seen order.
func aggregateQuantities(items []domain.LineItem) ([]string, map[string]int) {
	qty := make(map[string]int, len(items))
	var ids []string
	for _, it := range items {
		if _, ok := qty[it.ProductID]; !ok {
			ids = append(ids, it.ProductID)
		}
		qty[it.ProductID] += it.Quantity
	}
	return ids, qty
}

func orderSearch(search string) (string, []any) {
	if search == "" {
		return "", nil
	}
	pattern := "%" + likeEscaper.Replace(strings.ToLower(search)) + "%"
	return ` WHERE (LOWER(id) LIKE ? OR LOWER(email) LIKE ?)`, []any{pattern, pattern}
}

func decodeImages(raw sql.NullString) ([]string, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var images []string
	if err := json.Unmarshal([]byte(raw.String), &images); err != nil {
		return nil, fmt.Errorf("decode images: %w", err)
	}
	return images, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func rows(n, cols int) string {
	row := "(" + placeholders(cols) + ")"
	return strings.TrimSuffix(strings.Repeat(row+", ", n), ", ")
}

func stringArgs(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}
