package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/models"
)

// Store is the persistence collaborator consumed by the engine. Rows in
// the store are the source of truth for alert history; the alert
// engine's in-memory working set is reconciled against it on mutation.
type Store interface {
	ListHoldings(ctx context.Context, userID string) ([]models.Holding, error)
	CreateHolding(ctx context.Context, h models.Holding) (models.Holding, error)
	DeleteHolding(ctx context.Context, id int64) error
	CashBalance(ctx context.Context, userID string) (float64, error)
	SetCashBalance(ctx context.Context, userID string, balance float64) error
	ListAlerts(ctx context.Context, userID string) ([]models.PriceAlert, error)
	ListActiveAlerts(ctx context.Context, userID string) ([]models.PriceAlert, error)
	CreateAlert(ctx context.Context, alert models.PriceAlert) (models.PriceAlert, error)
	DeleteAlert(ctx context.Context, id int64) error
	DisableAlert(ctx context.Context, id int64) error
	MarkAlertTriggered(ctx context.Context, id int64, triggeredAt time.Time) error
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) ListHoldings(ctx context.Context, userID string) ([]models.Holding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, symbol, quantity, avg_cost, created_at
		FROM holdings WHERE user_id = ? ORDER BY id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query holdings: %w", err)
	}
	defer rows.Close()

	holdings := make([]models.Holding, 0)
	for rows.Next() {
		var h models.Holding
		if err := rows.Scan(&h.ID, &h.UserID, &h.Symbol, &h.Quantity, &h.AvgCost, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holdings: %w", err)
	}
	return holdings, nil
}

func (s *SQLiteStore) CreateHolding(ctx context.Context, h models.Holding) (models.Holding, error) {
	h.Symbol = strings.ToUpper(strings.TrimSpace(h.Symbol))
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO holdings(user_id, symbol, quantity, avg_cost)
		VALUES (?, ?, ?, ?)`, h.UserID, h.Symbol, h.Quantity, h.AvgCost)
	if err != nil {
		return models.Holding{}, fmt.Errorf("insert holding: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return models.Holding{}, fmt.Errorf("holding last insert id: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, symbol, quantity, avg_cost, created_at
		FROM holdings WHERE id = ?`, id)

	var out models.Holding
	if err := row.Scan(&out.ID, &out.UserID, &out.Symbol, &out.Quantity, &out.AvgCost, &out.CreatedAt); err != nil {
		return models.Holding{}, fmt.Errorf("fetch inserted holding: %w", err)
	}

	return out, nil
}

func (s *SQLiteStore) DeleteHolding(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM holdings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete holding: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("holding rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQLiteStore) CashBalance(ctx context.Context, userID string) (float64, error) {
	var balance float64
	err := s.db.QueryRowContext(ctx, `
		SELECT balance FROM cash_balances WHERE user_id = ?`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query cash balance: %w", err)
	}
	return balance, nil
}

func (s *SQLiteStore) SetCashBalance(ctx context.Context, userID string, balance float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_balances(user_id, balance) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET balance = excluded.balance`, userID, balance)
	if err != nil {
		return fmt.Errorf("set cash balance: %w", err)
	}
	return nil
}

const alertColumns = `id, user_id, symbol, condition, target_price, enabled, triggered, triggered_at, created_at`

func (s *SQLiteStore) ListAlerts(ctx context.Context, userID string) ([]models.PriceAlert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+alertColumns+`
		FROM price_alerts WHERE user_id = ? ORDER BY id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func (s *SQLiteStore) ListActiveAlerts(ctx context.Context, userID string) ([]models.PriceAlert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+alertColumns+`
		FROM price_alerts
		WHERE user_id = ? AND enabled = 1 AND triggered = 0
		ORDER BY id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query active alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func scanAlerts(rows *sql.Rows) ([]models.PriceAlert, error) {
	alerts := make([]models.PriceAlert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (models.PriceAlert, error) {
	var a models.PriceAlert
	var enabledInt, triggeredInt int
	var triggeredAt sql.NullTime
	if err := row.Scan(&a.ID, &a.UserID, &a.Symbol, &a.Condition, &a.TargetPrice,
		&enabledInt, &triggeredInt, &triggeredAt, &a.CreatedAt); err != nil {
		return models.PriceAlert{}, fmt.Errorf("scan alert: %w", err)
	}
	a.Enabled = enabledInt == 1
	a.Triggered = triggeredInt == 1
	if triggeredAt.Valid {
		t := triggeredAt.Time
		a.TriggeredAt = &t
	}
	return a, nil
}

func (s *SQLiteStore) CreateAlert(ctx context.Context, alert models.PriceAlert) (models.PriceAlert, error) {
	alert.Symbol = strings.ToUpper(strings.TrimSpace(alert.Symbol))
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO price_alerts(user_id, symbol, condition, target_price)
		VALUES (?, ?, ?, ?)`, alert.UserID, alert.Symbol, alert.Condition, alert.TargetPrice)
	if err != nil {
		return models.PriceAlert{}, fmt.Errorf("insert alert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return models.PriceAlert{}, fmt.Errorf("alert last insert id: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+alertColumns+`
		FROM price_alerts WHERE id = ?`, id)

	out, err := scanAlert(row)
	if err != nil {
		return models.PriceAlert{}, fmt.Errorf("fetch inserted alert: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) DeleteAlert(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM price_alerts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("alert rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQLiteStore) DisableAlert(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE price_alerts SET enabled = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("disable alert: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("alert rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQLiteStore) MarkAlertTriggered(ctx context.Context, id int64, triggeredAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE price_alerts
		SET triggered = 1, triggered_at = ?
		WHERE id = ?`, triggeredAt, id)
	if err != nil {
		return fmt.Errorf("mark alert triggered: %w", err)
	}
	return nil
}
