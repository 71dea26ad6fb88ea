package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/byron-sandoval/Ferreter-a-sub000/internal/domain"
	"github.com/byron-sandoval/Ferreter-a-sub000/internal/store"
	"github.com/byron-sandoval/Ferreter-a-sub000/internal/xid"
)

// serializableAttempts bounds the internal retry on serialization failures
// before the conflict surfaces as store.ErrConcurrencyConflict.
const serializableAttempts = 3

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.db)
}

func (s *Store) ListItems(ctx context.Context, search string, onlyActive bool, limit int) ([]domain.Item, error) {
	if limit < 1 {
		limit = 200
	}
	needle := "%" + strings.ToLower(strings.TrimSpace(search)) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, category, unit_price_cents, unit_cost_cents, qty_on_hand, min_qty, active
		FROM items
		WHERE (NOT $1 OR active = true)
		  AND (lower(name) LIKE $2 OR lower(sku) LIKE $2)
		ORDER BY category, name
		LIMIT $3
	`, onlyActive, needle, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 128)
	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(&it.ID, &it.SKU, &it.Name, &it.Category, &it.UnitPriceCents, &it.UnitCostCents, &it.QtyOnHand, &it.MinQty, &it.Active); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (s *Store) GetItemByID(ctx context.Context, id string) (*domain.Item, error) {
	var it domain.Item
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sku, name, category, unit_price_cents, unit_cost_cents, qty_on_hand, min_qty, active
		FROM items
		WHERE id = $1
	`, id).Scan(&it.ID, &it.SKU, &it.Name, &it.Category, &it.UnitPriceCents, &it.UnitCostCents, &it.QtyOnHand, &it.MinQty, &it.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &it, nil
}

func (s *Store) GetItemsByIDs(ctx context.Context, ids []string) (map[string]domain.Item, error) {
	if len(ids) == 0 {
		return map[string]domain.Item{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, category, unit_price_cents, unit_cost_cents, qty_on_hand, min_qty, active
		FROM items
		WHERE active = true AND id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]domain.Item, len(ids))
	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(&it.ID, &it.SKU, &it.Name, &it.Category, &it.UnitPriceCents, &it.UnitCostCents, &it.QtyOnHand, &it.MinQty, &it.Active); err != nil {
			return nil, err
		}
		result[it.ID] = it
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ListLowStockItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, category, unit_price_cents, unit_cost_cents, qty_on_hand, min_qty, active
		FROM items
		WHERE active = true AND qty_on_hand <= min_qty
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 32)
	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(&it.ID, &it.SKU, &it.Name, &it.Category, &it.UnitPriceCents, &it.UnitCostCents, &it.QtyOnHand, &it.MinQty, &it.Active); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// DecrementStock is a single conditional UPDATE: the WHERE clause carries
// the availability check so the quantity can never go negative, even under
// concurrent decrements of the same item.
func (s *Store) DecrementStock(ctx context.Context, itemID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidRequest
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET qty_on_hand = qty_on_hand - $2, updated_at = now()
		WHERE id = $1 AND active = true AND qty_on_hand >= $2
	`, itemID, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM items WHERE id = $1 AND active = true)
		`, itemID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrInsufficientStock
	}
	return nil
}

func (s *Store) RestoreStock(ctx context.Context, itemID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidRequest
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET qty_on_hand = qty_on_hand + $2, updated_at = now()
		WHERE id = $1
	`, itemID, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) HasItemReferences(ctx context.Context, itemID string) (bool, error) {
	var referenced bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM sale_lines WHERE item_id = $1)
	`, itemID).Scan(&referenced)
	if err != nil {
		return false, err
	}
	return referenced, nil
}

func (s *Store) DeactivateItem(ctx context.Context, itemID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE items SET active = false, updated_at = now() WHERE id = $1
	`, itemID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteItem(ctx context.Context, itemID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM items WHERE id = $1
	`, itemID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetActiveSeries(ctx context.Context) (*domain.InvoiceSeries, error) {
	var series domain.InvoiceSeries
	err := s.db.QueryRowContext(ctx, `
		SELECT id, prefix, current, active
		FROM invoice_series
		WHERE active = true
		ORDER BY id
		LIMIT 1
	`).Scan(&series.ID, &series.Prefix, &series.Current, &series.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoActiveSeries
		}
		return nil, err
	}
	return &series, nil
}

// NextInvoiceNumber issues the next correlative in one statement. The row
// update serializes concurrent callers, so numbers come out strictly
// increasing and gap-free at issue time. A number consumed by a sale that
// later fails to persist is burned, never reissued.
func (s *Store) NextInvoiceNumber(ctx context.Context, seriesID string) (int64, error) {
	var next int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE invoice_series
		SET current = current + 1
		WHERE id = $1 AND active = true
		RETURNING current
	`, seriesID).Scan(&next)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNoActiveSeries
		}
		return 0, err
	}
	return next, nil
}

func (s *Store) CreateSale(ctx context.Context, sale *domain.Sale) error {
	if sale == nil || len(sale.Lines) == 0 {
		return store.ErrInvalidRequest
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	return s.withSerializableTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sales (
				id, series_id, invoice_number, customer_id, payment_method,
				subtotal_cents, tax_cents, total_cents, tendered_cents, change_cents,
				voided, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,false,$11)
		`, sale.ID, sale.SeriesID, sale.InvoiceNumber, nullIfEmpty(sale.CustomerID), sale.PaymentMethod,
			sale.SubtotalCents, sale.TaxCents, sale.TotalCents, sale.TenderedCents, sale.ChangeCents,
			sale.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrConcurrencyConflict
			}
			return err
		}

		for i := range sale.Lines {
			if sale.Lines[i].ID == "" {
				sale.Lines[i].ID = xid.New("sln")
			}
			sale.Lines[i].SaleID = sale.ID
			_, err := tx.ExecContext(ctx, `
				INSERT INTO sale_lines (id, sale_id, item_id, qty, unit_price_cents, amount_cents)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, sale.Lines[i].ID, sale.ID, sale.Lines[i].ItemID, sale.Lines[i].Qty,
				sale.Lines[i].UnitPriceCents, sale.Lines[i].AmountCents)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	var customerID, voidReason sql.NullString
	var voidedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, series_id, invoice_number, customer_id, payment_method,
		       subtotal_cents, tax_cents, total_cents, tendered_cents, change_cents,
		       voided, void_reason, voided_at, created_at
		FROM sales
		WHERE id = $1
	`, id).Scan(&sale.ID, &sale.SeriesID, &sale.InvoiceNumber, &customerID, &sale.PaymentMethod,
		&sale.SubtotalCents, &sale.TaxCents, &sale.TotalCents, &sale.TenderedCents, &sale.ChangeCents,
		&sale.Voided, &voidReason, &voidedAt, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.CustomerID = customerID.String
	sale.VoidReason = voidReason.String
	if voidedAt.Valid {
		at := voidedAt.Time
		sale.VoidedAt = &at
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, item_id, qty, unit_price_cents, amount_cents
		FROM sale_lines
		WHERE sale_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.ID, &line.SaleID, &line.ItemID, &line.Qty, &line.UnitPriceCents, &line.AmountCents); err != nil {
			return nil, err
		}
		sale.Lines = append(sale.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &sale, nil
}

// VoidSale marks the sale voided and restores stock for every line in one
// transaction. The conditional UPDATE guarantees the transition fires at
// most once.
func (s *Store) VoidSale(ctx context.Context, id string, reason string, at time.Time) (*domain.Sale, error) {
	var voided *domain.Sale
	err := s.withSerializableTx(ctx, func(tx *sql.Tx) error {
		var alreadyVoided bool
		err := tx.QueryRowContext(ctx, `
			SELECT voided FROM sales WHERE id = $1 FOR UPDATE
		`, id).Scan(&alreadyVoided)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if alreadyVoided {
			return store.ErrAlreadyVoided
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE sales
			SET voided = true, void_reason = $2, voided_at = $3
			WHERE id = $1 AND voided = false
		`, id, reason, at)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return store.ErrAlreadyVoided
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT item_id, qty FROM sale_lines WHERE sale_id = $1
		`, id)
		if err != nil {
			return err
		}
		type restock struct {
			itemID string
			qty    int
		}
		restocks := make([]restock, 0, 8)
		for rows.Next() {
			var r restock
			if err := rows.Scan(&r.itemID, &r.qty); err != nil {
				_ = rows.Close()
				return err
			}
			restocks = append(restocks, r)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return err
		}
		_ = rows.Close()

		for _, r := range restocks {
			if _, err := tx.ExecContext(ctx, `
				UPDATE items SET qty_on_hand = qty_on_hand + $2, updated_at = now() WHERE id = $1
			`, r.itemID, r.qty); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	voided, err = s.GetSaleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return voided, nil
}

func (s *Store) GetReturnedQtyBySale(ctx context.Context, saleID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rl.sale_line_id, COALESCE(SUM(rl.qty), 0)
		FROM return_lines rl
		JOIN returns r ON r.id = rl.return_id
		WHERE r.sale_id = $1
		GROUP BY rl.sale_line_id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var saleLineID string
		var qty int
		if err := rows.Scan(&saleLineID, &qty); err != nil {
			return nil, err
		}
		result[saleLineID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateReturn persists the return, re-checks the per-line bound against
// prior returns inside the transaction, and restores stock. Concurrent
// returns against the same sale serialize on the sale row.
func (s *Store) CreateReturn(ctx context.Context, ret *domain.Return) error {
	if ret == nil || len(ret.Lines) == 0 {
		return store.ErrEmptyReturn
	}
	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}

	return s.withSerializableTx(ctx, func(tx *sql.Tx) error {
		var voided bool
		err := tx.QueryRowContext(ctx, `
			SELECT voided FROM sales WHERE id = $1 FOR UPDATE
		`, ret.SaleID).Scan(&voided)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if voided {
			return store.ErrSaleVoided
		}

		soldByLine := make(map[string]int)
		lineRows, err := tx.QueryContext(ctx, `
			SELECT id, qty FROM sale_lines WHERE sale_id = $1
		`, ret.SaleID)
		if err != nil {
			return err
		}
		for lineRows.Next() {
			var lineID string
			var qty int
			if err := lineRows.Scan(&lineID, &qty); err != nil {
				_ = lineRows.Close()
				return err
			}
			soldByLine[lineID] = qty
		}
		if err := lineRows.Err(); err != nil {
			_ = lineRows.Close()
			return err
		}
		_ = lineRows.Close()

		returnedByLine := make(map[string]int)
		retRows, err := tx.QueryContext(ctx, `
			SELECT rl.sale_line_id, COALESCE(SUM(rl.qty), 0)
			FROM return_lines rl
			JOIN returns r ON r.id = rl.return_id
			WHERE r.sale_id = $1
			GROUP BY rl.sale_line_id
		`, ret.SaleID)
		if err != nil {
			return err
		}
		for retRows.Next() {
			var lineID string
			var qty int
			if err := retRows.Scan(&lineID, &qty); err != nil {
				_ = retRows.Close()
				return err
			}
			returnedByLine[lineID] = qty
		}
		if err := retRows.Err(); err != nil {
			_ = retRows.Close()
			return err
		}
		_ = retRows.Close()

		for _, line := range ret.Lines {
			sold, ok := soldByLine[line.SaleLineID]
			if !ok {
				return store.ErrNotFound
			}
			if returnedByLine[line.SaleLineID]+line.Qty > sold {
				return store.ErrOverReturn
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO returns (id, sale_id, reason, total_cents, created_at)
			VALUES ($1,$2,$3,$4,$5)
		`, ret.ID, ret.SaleID, ret.Reason, ret.TotalCents, ret.CreatedAt)
		if err != nil {
			return err
		}

		for i := range ret.Lines {
			if ret.Lines[i].ID == "" {
				ret.Lines[i].ID = xid.New("rln")
			}
			ret.Lines[i].ReturnID = ret.ID
			_, err := tx.ExecContext(ctx, `
				INSERT INTO return_lines (id, return_id, sale_line_id, item_id, qty, unit_price_cents, amount_cents)
				VALUES ($1,$2,$3,$4,$5,$6,$7)
			`, ret.Lines[i].ID, ret.ID, ret.Lines[i].SaleLineID, ret.Lines[i].ItemID,
				ret.Lines[i].Qty, ret.Lines[i].UnitPriceCents, ret.Lines[i].AmountCents)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE items SET qty_on_hand = qty_on_hand + $2, updated_at = now() WHERE id = $1
			`, ret.Lines[i].ItemID, ret.Lines[i].Qty); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetReturnsBySale(ctx context.Context, saleID string) ([]domain.Return, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, reason, total_cents, created_at
		FROM returns
		WHERE sale_id = $1
		ORDER BY created_at, id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	returns := make([]domain.Return, 0, 4)
	for rows.Next() {
		var ret domain.Return
		if err := rows.Scan(&ret.ID, &ret.SaleID, &ret.Reason, &ret.TotalCents, &ret.CreatedAt); err != nil {
			return nil, err
		}
		returns = append(returns, ret)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range returns {
		lineRows, err := s.db.QueryContext(ctx, `
			SELECT id, return_id, sale_line_id, item_id, qty, unit_price_cents, amount_cents
			FROM return_lines
			WHERE return_id = $1
			ORDER BY id
		`, returns[i].ID)
		if err != nil {
			return nil, err
		}
		for lineRows.Next() {
			var line domain.ReturnLine
			if err := lineRows.Scan(&line.ID, &line.ReturnID, &line.SaleLineID, &line.ItemID, &line.Qty, &line.UnitPriceCents, &line.AmountCents); err != nil {
				_ = lineRows.Close()
				return nil, err
			}
			returns[i].Lines = append(returns[i].Lines, line)
		}
		if err := lineRows.Err(); err != nil {
			_ = lineRows.Close()
			return nil, err
		}
		_ = lineRows.Close()
	}
	return returns, nil
}

func (s *Store) GetDailySummary(ctx context.Context, date string) (*domain.DailySummary, error) {
	summary := domain.DailySummary{Date: date}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(total_cents) FILTER (WHERE payment_method = 'cash'), 0),
		       COALESCE(SUM(total_cents) FILTER (WHERE payment_method = 'card'), 0),
		       COALESCE(SUM(total_cents) FILTER (WHERE payment_method = 'transfer'), 0),
		       COALESCE(SUM(tax_cents), 0)
		FROM sales
		WHERE voided = false AND (created_at AT TIME ZONE 'UTC')::date = $1::date
	`, date).Scan(&summary.SaleCount, &summary.CashSalesCents, &summary.CardSalesCents, &summary.TransferSalesCents, &summary.TaxCents)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_cents), 0)
		FROM returns
		WHERE (created_at AT TIME ZONE 'UTC')::date = $1::date
	`, date).Scan(&summary.ReturnCount, &summary.ReturnsCents)
	if err != nil {
		return nil, err
	}

	summary.NetSalesCents = summary.CashSalesCents + summary.CardSalesCents + summary.TransferSalesCents - summary.ReturnsCents
	return &summary, nil
}

func (s *Store) GetLatestCashSession(ctx context.Context, beforeDate string) (*domain.CashSession, error) {
	query := `
		SELECT id, business_date::text, opening_float_cents, cash_sales_cents, card_sales_cents,
		       transfer_sales_cents, returns_cents, expected_cash_cents, counted_cents,
		       discrepancy_cents, classification, next_float_cents, hand_over_cents,
		       COALESCE(notes, ''), created_at
		FROM cash_sessions
	`
	args := []any{}
	if beforeDate != "" {
		query += ` WHERE business_date < $1::date`
		args = append(args, beforeDate)
	}
	query += ` ORDER BY business_date DESC LIMIT 1`

	session, err := scanCashSession(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return session, nil
}

func (s *Store) GetCashSessionByDate(ctx context.Context, date string) (*domain.CashSession, error) {
	session, err := scanCashSession(s.db.QueryRowContext(ctx, `
		SELECT id, business_date::text, opening_float_cents, cash_sales_cents, card_sales_cents,
		       transfer_sales_cents, returns_cents, expected_cash_cents, counted_cents,
		       discrepancy_cents, classification, next_float_cents, hand_over_cents,
		       COALESCE(notes, ''), created_at
		FROM cash_sessions
		WHERE business_date = $1::date
	`, date))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return session, nil
}

func (s *Store) CreateCashSession(ctx context.Context, session *domain.CashSession) error {
	if session == nil || session.BusinessDate == "" {
		return store.ErrInvalidRequest
	}
	if session.ID == "" {
		session.ID = xid.New("sess")
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_sessions (
			id, business_date, opening_float_cents, cash_sales_cents, card_sales_cents,
			transfer_sales_cents, returns_cents, expected_cash_cents, counted_cents,
			discrepancy_cents, classification, next_float_cents, hand_over_cents, notes, created_at
		)
		VALUES ($1,$2::date,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, session.ID, session.BusinessDate, session.OpeningFloatCents, session.CashSalesCents,
		session.CardSalesCents, session.TransferSalesCents, session.ReturnsCents,
		session.ExpectedCashCents, session.CountedCents, session.DiscrepancyCents,
		session.Classification, session.NextFloatCents, session.HandOverCents,
		nullIfEmpty(session.Notes), session.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateSession
		}
		return err
	}
	return nil
}

func (s *Store) ListCashSessions(ctx context.Context, limit int) ([]domain.CashSession, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, business_date::text, opening_float_cents, cash_sales_cents, card_sales_cents,
		       transfer_sales_cents, returns_cents, expected_cash_cents, counted_cents,
		       discrepancy_cents, classification, next_float_cents, hand_over_cents,
		       COALESCE(notes, ''), created_at
		FROM cash_sessions
		ORDER BY business_date DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.CashSession, 0, limit)
	for rows.Next() {
		var session domain.CashSession
		if err := rows.Scan(&session.ID, &session.BusinessDate, &session.OpeningFloatCents,
			&session.CashSalesCents, &session.CardSalesCents, &session.TransferSalesCents,
			&session.ReturnsCents, &session.ExpectedCashCents, &session.CountedCents,
			&session.DiscrepancyCents, &session.Classification, &session.NextFloatCents,
			&session.HandOverCents, &session.Notes, &session.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry *domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user *domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRequest
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidRequest
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username, hashed string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(hashed) == "" {
		return store.ErrInvalidRequest
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, hashed)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// withSerializableTx runs fn inside a serializable transaction and retries
// serialization failures a bounded number of times. Exhausting the budget
// maps to store.ErrConcurrencyConflict.
func (s *Store) withSerializableTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < serializableAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			if isSerializationFailure(err) {
				lastErr = err
				continue
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			if isSerializationFailure(err) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("%w: %v", store.ErrConcurrencyConflict, lastErr)
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCashSession(row rowScanner) (*domain.CashSession, error) {
	var session domain.CashSession
	err := row.Scan(&session.ID, &session.BusinessDate, &session.OpeningFloatCents,
		&session.CashSalesCents, &session.CardSalesCents, &session.TransferSalesCents,
		&session.ReturnsCents, &session.ExpectedCashCents, &session.CountedCents,
		&session.DiscrepancyCents, &session.Classification, &session.NextFloatCents,
		&session.HandOverCents, &session.Notes, &session.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &session, nil
}
