package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	"github.com/lib/pq"

	"storefront-backend/internal/domain"
	"storefront-backend/internal/usecase"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(dsn string) (*PostgresRepo, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	r := &PostgresRepo{db: db}
	if err := r.init(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *PostgresRepo) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			email TEXT,
			name TEXT,
			gateway_customer_id TEXT,
			created_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ
		);`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT,
			price_cents BIGINT,
			stock INT,
			active BOOLEAN
		);`,
		`CREATE TABLE IF NOT EXISTS product_variants (
			id TEXT PRIMARY KEY,
			product_id TEXT,
			name TEXT,
			price_cents BIGINT,
			stock INT
		);`,
		`CREATE TABLE IF NOT EXISTS cart_items (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			product_id TEXT,
			variant_id TEXT,
			quantity INT,
			created_at TIMESTAMPTZ
		);`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			order_number TEXT UNIQUE NOT NULL,
			user_id TEXT,
			subtotal_cents BIGINT,
			tax_cents BIGINT,
			shipping_cents BIGINT,
			discount_cents BIGINT,
			total_cents BIGINT,
			currency TEXT,
			status TEXT,
			payment_status TEXT,
			payment_method TEXT,
			shipping_address TEXT,
			billing_address TEXT,
			tracking_number TEXT,
			carrier TEXT,
			created_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ
		);`,
		`CREATE TABLE IF NOT EXISTS order_items (
			id TEXT PRIMARY KEY,
			order_id TEXT,
			product_id TEXT,
			variant_id TEXT,
			quantity INT,
			unit_price_cents BIGINT
		);`,
		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			order_id TEXT,
			user_id TEXT,
			amount_cents BIGINT,
			currency TEXT,
			status TEXT,
			intent_id TEXT UNIQUE NOT NULL,
			client_secret TEXT,
			provider_response TEXT,
			created_at TIMESTAMPTZ,
			processed_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ
		);`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			type TEXT,
			title TEXT,
			message TEXT,
			payload TEXT,
			read BOOLEAN,
			created_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ
		);`,
		`CREATE TABLE IF NOT EXISTS processed_events (
			event_id TEXT PRIMARY KEY,
			event_type TEXT,
			processed_at TIMESTAMPTZ
		);`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// CreateOrder writes the order row and its lines in one transaction so
// a partial order is never observable.
func (r *PostgresRepo) CreateOrder(ctx context.Context, o *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	ship, _ := json.Marshal(o.ShippingAddress)
	bill, _ := json.Marshal(o.BillingAddress)
	_, err = tx.ExecContext(ctx, `INSERT INTO orders (id,order_number,user_id,subtotal_cents,tax_cents,shipping_cents,discount_cents,total_cents,currency,status,payment_status,payment_method,shipping_address,billing_address,tracking_number,carrier,created_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		o.ID, o.OrderNumber, o.UserID, o.SubtotalCents, o.TaxCents, o.ShippingCents, o.DiscountCents, o.TotalCents,
		o.Currency, string(o.Status), string(o.PaymentStatus), o.PaymentMethod, string(ship), string(bill),
		o.TrackingNumber, o.Carrier, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO order_items (id,order_id,product_id,variant_id,quantity,unit_price_cents)
		VALUES ($1,$2,$3,$4,$5,$6)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, it := range o.Items {
		if _, err := stmt.ExecContext(ctx, it.ID, it.OrderID, it.ProductID, it.VariantID, it.Quantity, it.UnitPriceCents); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *PostgresRepo) GetOrder(ctx context.Context, id string) (*domain.Order, bool) {
	var o domain.Order
	var ship, bill string
	err := r.db.QueryRowContext(ctx, `SELECT id,order_number,user_id,subtotal_cents,tax_cents,shipping_cents,discount_cents,total_cents,currency,status,payment_status,payment_method,shipping_address,billing_address,tracking_number,carrier,created_at,updated_at FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.SubtotalCents, &o.TaxCents, &o.ShippingCents, &o.DiscountCents, &o.TotalCents,
			&o.Currency, (*string)(&o.Status), (*string)(&o.PaymentStatus), &o.PaymentMethod, &ship, &bill,
			&o.TrackingNumber, &o.Carrier, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, false
	}
	_ = json.Unmarshal([]byte(ship), &o.ShippingAddress)
	_ = json.Unmarshal([]byte(bill), &o.BillingAddress)
	o.Items = r.orderItems(ctx, o.ID)
	return &o, true
}

func (r *PostgresRepo) orderItems(ctx context.Context, orderID string) []domain.OrderItem {
	rows, err := r.db.QueryContext(ctx, `SELECT id,order_id,product_id,variant_id,quantity,unit_price_cents FROM order_items WHERE order_id=$1`, orderID)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var out []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		_ = rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.VariantID, &it.Quantity, &it.UnitPriceCents)
		out = append(out, it)
	}
	return out
}

func (r *PostgresRepo) ListOrdersByUser(ctx context.Context, userID string, page, pageSize int) ([]domain.Order, int) {
	rows, err := r.db.QueryContext(ctx, `SELECT id,order_number,user_id,subtotal_cents,tax_cents,shipping_cents,discount_cents,total_cents,currency,status,payment_status,payment_method,shipping_address,billing_address,tracking_number,carrier,created_at,updated_at FROM orders WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0
	}
	defer rows.Close()
	out := make([]domain.Order, 0, pageSize)
	for rows.Next() {
		var o domain.Order
		var ship, bill string
		_ = rows.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.SubtotalCents, &o.TaxCents, &o.ShippingCents, &o.DiscountCents, &o.TotalCents,
			&o.Currency, (*string)(&o.Status), (*string)(&o.PaymentStatus), &o.PaymentMethod, &ship, &bill,
			&o.TrackingNumber, &o.Carrier, &o.CreatedAt, &o.UpdatedAt)
		_ = json.Unmarshal([]byte(ship), &o.ShippingAddress)
		_ = json.Unmarshal([]byte(bill), &o.BillingAddress)
		o.Items = r.orderItems(ctx, o.ID)
		out = append(out, o)
	}
	var total int
	_ = r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM orders WHERE user_id=$1`, userID).Scan(&total)
	return out, total
}

func (r *PostgresRepo) UpdateOrderStatus(ctx context.Context, id string, st domain.OrderStatus) error {
	_, err := r.db.ExecContext(ctx, `UPDATE orders SET status=$2, updated_at=$3 WHERE id=$1`, id, string(st), time.Now().UTC())
	return err
}

func (r *PostgresRepo) UpdateOrderPaymentState(ctx context.Context, id string, ps domain.PaymentState) error {
	_, err := r.db.ExecContext(ctx, `UPDATE orders SET payment_status=$2, updated_at=$3 WHERE id=$1`, id, string(ps), time.Now().UTC())
	return err
}

func (r *PostgresRepo) CreatePayment(ctx context.Context, p *domain.Payment) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO payments (id,order_id,user_id,amount_cents,currency,status,intent_id,client_secret,provider_response,created_at,processed_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.OrderID, p.UserID, p.AmountCents, p.Currency, string(p.Status), p.IntentID, p.ClientSecret,
		p.ProviderResponse, p.CreatedAt, p.ProcessedAt, p.UpdatedAt)
	return err
}

func (r *PostgresRepo) GetPaymentByIntent(ctx context.Context, intentID string) (*domain.Payment, bool) {
	var p domain.Payment
	var processed sql.NullTime
	err := r.db.QueryRowContext(ctx, `SELECT id,order_id,user_id,amount_cents,currency,status,intent_id,client_secret,provider_response,created_at,processed_at,updated_at FROM payments WHERE intent_id=$1`, intentID).
		Scan(&p.ID, &p.OrderID, &p.UserID, &p.AmountCents, &p.Currency, (*string)(&p.Status), &p.IntentID,
			&p.ClientSecret, &p.ProviderResponse, &p.CreatedAt, &processed, &p.UpdatedAt)
	if err != nil {
		return nil, false
	}
	if processed.Valid {
		p.ProcessedAt = &processed.Time
	}
	return &p, true
}

// TransitionPayment is the single-row conditional update that makes
// webhook application at-most-once effective: only one delivery can
// move the row out of the from set.
func (r *PostgresRepo) TransitionPayment(ctx context.Context, intentID string, from []domain.PaymentStatus, to domain.PaymentStatus, providerResponse string) (bool, error) {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `UPDATE payments
		SET status=$2, provider_response=$3, updated_at=$4,
		    processed_at=CASE WHEN $2 IN ('completed','failed','cancelled') THEN $4 ELSE processed_at END
		WHERE intent_id=$1 AND status = ANY($5)`,
		intentID, string(to), providerResponse, now, pq.Array(states))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresRepo) RecordEvent(ctx context.Context, eventID, eventType string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO processed_events (event_id,event_type,processed_at)
		VALUES ($1,$2,$3) ON CONFLICT (event_id) DO NOTHING`, eventID, eventType, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresRepo) CreateNotification(ctx context.Context, n *domain.Notification) error {
	payload, _ := json.Marshal(n.Payload)
	_, err := r.db.ExecContext(ctx, `INSERT INTO notifications (id,user_id,type,title,message,payload,read,created_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		n.ID, n.UserID, string(n.Type), n.Title, n.Message, string(payload), n.Read, n.CreatedAt, n.UpdatedAt)
	return err
}

func (r *PostgresRepo) GetNotification(ctx context.Context, id string) (*domain.Notification, bool) {
	var n domain.Notification
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT id,user_id,type,title,message,payload,read,created_at,updated_at FROM notifications WHERE id=$1`, id).
		Scan(&n.ID, &n.UserID, (*string)(&n.Type), &n.Title, &n.Message, &payload, &n.Read, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, false
	}
	_ = json.Unmarshal([]byte(payload), &n.Payload)
	return &n, true
}

func (r *PostgresRepo) ListNotifications(ctx context.Context, userID string, f usecase.NotificationFilter) ([]domain.Notification, int) {
	where := `WHERE user_id=$1`
	args := []any{userID}
	if f.Type != "" {
		args = append(args, f.Type)
		where += ` AND type=$2`
	}
	if f.Unread != nil {
		args = append(args, !*f.Unread)
		where += ` AND read=$` + strconv.Itoa(len(args))
	}
	var total int
	_ = r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM notifications `+where, args...).Scan(&total)

	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)
	q := `SELECT id,user_id,type,title,message,payload,read,created_at,updated_at FROM notifications ` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, total
	}
	defer rows.Close()
	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var payload string
		_ = rows.Scan(&n.ID, &n.UserID, (*string)(&n.Type), &n.Title, &n.Message, &payload, &n.Read, &n.CreatedAt, &n.UpdatedAt)
		_ = json.Unmarshal([]byte(payload), &n.Payload)
		out = append(out, n)
	}
	return out, total
}

func (r *PostgresRepo) SetNotificationRead(ctx context.Context, id, userID string, read bool) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET read=$3, updated_at=$4 WHERE id=$1 AND user_id=$2`,
		id, userID, read, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *PostgresRepo) DeleteNotification(ctx context.Context, id, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *PostgresRepo) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET read=TRUE, updated_at=$2 WHERE user_id=$1 AND read=FALSE`,
		userID, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresRepo) DeleteNotifications(ctx context.Context, userID string, onlyRead bool) (int64, error) {
	q := `DELETE FROM notifications WHERE user_id=$1`
	if onlyRead {
		q += ` AND read=TRUE`
	}
	res, err := r.db.ExecContext(ctx, q, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresRepo) ListCartItems(ctx context.Context, userID string) ([]domain.CartItem, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id,user_id,product_id,variant_id,quantity,created_at FROM cart_items WHERE user_id=$1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.CartItem
	for rows.Next() {
		var it domain.CartItem
		if err := rows.Scan(&it.ID, &it.UserID, &it.ProductID, &it.VariantID, &it.Quantity, &it.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ClearCart(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id=$1`, userID)
	return err
}

func (r *PostgresRepo) GetProduct(ctx context.Context, id string) (*domain.Product, bool) {
	var p domain.Product
	err := r.db.QueryRowContext(ctx, `SELECT id,name,price_cents,stock,active FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.PriceCents, &p.Stock, &p.Active)
	if err != nil {
		return nil, false
	}
	return &p, true
}

func (r *PostgresRepo) GetVariant(ctx context.Context, id string) (*domain.Variant, bool) {
	var v domain.Variant
	err := r.db.QueryRowContext(ctx, `SELECT id,product_id,name,price_cents,stock FROM product_variants WHERE id=$1`, id).
		Scan(&v.ID, &v.ProductID, &v.Name, &v.PriceCents, &v.Stock)
	if err != nil {
		return nil, false
	}
	return &v, true
}

func (r *PostgresRepo) GetUser(ctx context.Context, id string) (*domain.User, bool) {
	var u domain.User
	err := r.db.QueryRowContext(ctx, `SELECT user_id,email,name,gateway_customer_id,created_at,updated_at FROM users WHERE user_id=$1`, id).
		Scan(&u.UserID, &u.Email, &u.Name, &u.GatewayCustomerID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, false
	}
	return &u, true
}

func (r *PostgresRepo) PutUser(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (user_id,email,name,gateway_customer_id,created_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (user_id) DO UPDATE SET email=$2,name=$3,gateway_customer_id=$4,updated_at=$6`,
		u.UserID, u.Email, u.Name, u.GatewayCustomerID, u.CreatedAt, u.UpdatedAt)
	return err
}
