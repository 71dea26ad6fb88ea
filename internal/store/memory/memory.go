package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/byron-sandoval/Ferreter-a-sub000/internal/domain"
	"github.com/byron-sandoval/Ferreter-a-sub000/internal/store"
	"github.com/byron-sandoval/Ferreter-a-sub000/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	itemsByID       map[string]domain.Item
	seriesByID      map[string]domain.InvoiceSeries
	salesByID       map[string]*domain.Sale
	returnsByID     map[string]domain.Return
	sessionsByDate  map[string]domain.CashSession
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. These credentials
// are never used in production (the backend uses PostgreSQL when
// DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	items := []domain.Item{
		{SKU: "FER-MART-01", Name: "Martillo de una", Category: "herramientas", UnitPriceCents: 8500, UnitCostCents: 5200, QtyOnHand: 40, MinQty: 5, Active: true},
		{SKU: "FER-CLAV-01", Name: "Clavos 2\" (lb)", Category: "fijaciones", UnitPriceCents: 1200, UnitCostCents: 700, QtyOnHand: 300, MinQty: 50, Active: true},
		{SKU: "FER-TORN-01", Name: "Tornillo drywall (lb)", Category: "fijaciones", UnitPriceCents: 1800, UnitCostCents: 1000, QtyOnHand: 250, MinQty: 40, Active: true},
		{SKU: "FER-DEST-01", Name: "Destornillador plano", Category: "herramientas", UnitPriceCents: 4500, UnitCostCents: 2600, QtyOnHand: 60, MinQty: 10, Active: true},
		{SKU: "FER-CINT-01", Name: "Cinta metrica 5m", Category: "medicion", UnitPriceCents: 6200, UnitCostCents: 3500, QtyOnHand: 35, MinQty: 8, Active: true},
		{SKU: "FER-PINT-01", Name: "Pintura latex blanca (gal)", Category: "pinturas", UnitPriceCents: 32000, UnitCostCents: 21000, QtyOnHand: 24, MinQty: 6, Active: true},
		{SKU: "FER-BROC-01", Name: "Brocha 3\"", Category: "pinturas", UnitPriceCents: 3800, UnitCostCents: 2000, QtyOnHand: 80, MinQty: 12, Active: true},
		{SKU: "FER-TUBO-01", Name: "Tubo PVC 1/2\" x 6m", Category: "plomeria", UnitPriceCents: 7400, UnitCostCents: 4300, QtyOnHand: 90, MinQty: 15, Active: true},
		{SKU: "FER-PEGA-01", Name: "Pegamento PVC 1/4", Category: "plomeria", UnitPriceCents: 9800, UnitCostCents: 6100, QtyOnHand: 45, MinQty: 10, Active: true},
		{SKU: "FER-CABL-01", Name: "Cable THHN 12 (m)", Category: "electricidad", UnitPriceCents: 1500, UnitCostCents: 900, QtyOnHand: 500, MinQty: 80, Active: true},
		{SKU: "FER-TOMA-01", Name: "Tomacorriente doble", Category: "electricidad", UnitPriceCents: 5600, UnitCostCents: 3200, QtyOnHand: 70, MinQty: 10, Active: true},
		{SKU: "FER-CAND-01", Name: "Candado 40mm", Category: "cerrajeria", UnitPriceCents: 11500, UnitCostCents: 7000, QtyOnHand: 30, MinQty: 5, Active: true},
	}

	itemMap := make(map[string]domain.Item, len(items))
	for _, it := range items {
		it.ID = xid.New("item")
		itemMap[it.ID] = it
	}

	return &Store{
		itemsByID: itemMap,
		seriesByID: map[string]domain.InvoiceSeries{
			"series-a": {ID: "series-a", Prefix: "A", Current: 0, Active: true},
		},
		salesByID:       make(map[string]*domain.Sale),
		returnsByID:     make(map[string]domain.Return),
		sessionsByDate:  make(map[string]domain.CashSession),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
}

// AddItem inserts a catalog record directly, standing in for the catalog
// service that owns item creation. Used by dev seeding and tests.
func (s *Store) AddItem(item domain.Item) domain.Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		item.ID = xid.New("item")
	}
	s.itemsByID[item.ID] = item
	return item
}

func (s *Store) ListItems(_ context.Context, search string, onlyActive bool, limit int) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 200
	}
	needle := strings.ToLower(strings.TrimSpace(search))
	items := make([]domain.Item, 0, len(s.itemsByID))
	for _, it := range s.itemsByID {
		if onlyActive && !it.Active {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(it.Name), needle) &&
			!strings.Contains(strings.ToLower(it.SKU), needle) {
			continue
		}
		items = append(items, it)
	}

	slices.SortFunc(items, func(a, b domain.Item) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) GetItemByID(_ context.Context, id string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.itemsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyItem := item
	return &copyItem, nil
}

func (s *Store) GetItemsByIDs(_ context.Context, ids []string) (map[string]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Item, len(ids))
	for _, id := range ids {
		if it, ok := s.itemsByID[id]; ok && it.Active {
			result[id] = it
		}
	}
	return result, nil
}

func (s *Store) ListLowStockItems(_ context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0)
	for _, it := range s.itemsByID {
		if it.Active && it.QtyOnHand <= it.MinQty {
			items = append(items, it)
		}
	}
	slices.SortFunc(items, func(a, b domain.Item) int {
		return cmpString(a.Name, b.Name)
	})
	return items, nil
}

// DecrementStock applies an atomic check-and-decrement; quantities never go
// negative.
func (s *Store) DecrementStock(_ context.Context, itemID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.itemsByID[itemID]
	if !exists || !item.Active {
		return store.ErrNotFound
	}
	if item.QtyOnHand < qty {
		return store.ErrInsufficientStock
	}
	item.QtyOnHand -= qty
	s.itemsByID[itemID] = item
	return nil
}

func (s *Store) RestoreStock(_ context.Context, itemID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.itemsByID[itemID]
	if !exists {
		return store.ErrNotFound
	}
	item.QtyOnHand += qty
	s.itemsByID[itemID] = item
	return nil
}

func (s *Store) HasItemReferences(_ context.Context, itemID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sale := range s.salesByID {
		for _, line := range sale.Lines {
			if line.ItemID == itemID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *Store) DeactivateItem(_ context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.itemsByID[itemID]
	if !exists {
		return store.ErrNotFound
	}
	item.Active = false
	s.itemsByID[itemID] = item
	return nil
}

func (s *Store) DeleteItem(_ context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.itemsByID[itemID]; !exists {
		return store.ErrNotFound
	}
	delete(s.itemsByID, itemID)
	return nil
}

func (s *Store) GetActiveSeries(_ context.Context) (*domain.InvoiceSeries, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, series := range s.seriesByID {
		if series.Active {
			copySeries := series
			return &copySeries, nil
		}
	}
	return nil, store.ErrNoActiveSeries
}

// NextInvoiceNumber issues the next correlative for a series. Numbers are
// strictly increasing and never reused, even when the sale that consumed
// one later fails to persist or is voided.
func (s *Store) NextInvoiceNumber(_ context.Context, seriesID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	series, exists := s.seriesByID[seriesID]
	if !exists || !series.Active {
		return 0, store.ErrNoActiveSeries
	}
	series.Current++
	s.seriesByID[seriesID] = series
	return series.Current, nil
}

func (s *Store) CreateSale(_ context.Context, sale *domain.Sale) error {
	if sale == nil || len(sale.Lines) == 0 {
		return store.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	for i := range sale.Lines {
		if sale.Lines[i].ID == "" {
			sale.Lines[i].ID = xid.New("sln")
		}
		sale.Lines[i].SaleID = sale.ID
	}
	s.salesByID[sale.ID] = cloneSale(sale)
	return nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

// VoidSale flips the sale to voided and restores stock for every line in
// the same lock. The transition is one-way.
func (s *Store) VoidSale(_ context.Context, id string, reason string, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if sale.Voided {
		return nil, store.ErrAlreadyVoided
	}

	for _, line := range sale.Lines {
		if item, ok := s.itemsByID[line.ItemID]; ok {
			item.QtyOnHand += line.Qty
			s.itemsByID[line.ItemID] = item
		}
	}

	sale.Voided = true
	sale.VoidReason = reason
	sale.VoidedAt = &at

	return cloneSale(sale), nil
}

func (s *Store) GetReturnedQtyBySale(_ context.Context, saleID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]int)
	for _, ret := range s.returnsByID {
		if ret.SaleID != saleID {
			continue
		}
		for _, line := range ret.Lines {
			result[line.SaleLineID] += line.Qty
		}
	}
	return result, nil
}

// CreateReturn persists the return and restores stock atomically. The
// per-line bound against the sale is re-checked inside the lock so that
// concurrent returns against the same sale cannot jointly exceed it.
func (s *Store) CreateReturn(_ context.Context, ret *domain.Return) error {
	if ret == nil || len(ret.Lines) == 0 {
		return store.ErrEmptyReturn
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[ret.SaleID]
	if !exists {
		return store.ErrNotFound
	}
	if sale.Voided {
		return store.ErrSaleVoided
	}

	soldByLine := make(map[string]int, len(sale.Lines))
	for _, line := range sale.Lines {
		soldByLine[line.ID] = line.Qty
	}
	returnedByLine := make(map[string]int)
	for _, prior := range s.returnsByID {
		if prior.SaleID != ret.SaleID {
			continue
		}
		for _, line := range prior.Lines {
			returnedByLine[line.SaleLineID] += line.Qty
		}
	}
	for _, line := range ret.Lines {
		sold, ok := soldByLine[line.SaleLineID]
		if !ok {
			return store.ErrNotFound
		}
		if returnedByLine[line.SaleLineID]+line.Qty > sold {
			return store.ErrOverReturn
		}
	}

	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	for i := range ret.Lines {
		if ret.Lines[i].ID == "" {
			ret.Lines[i].ID = xid.New("rln")
		}
		ret.Lines[i].ReturnID = ret.ID
		if item, ok := s.itemsByID[ret.Lines[i].ItemID]; ok {
			item.QtyOnHand += ret.Lines[i].Qty
			s.itemsByID[ret.Lines[i].ItemID] = item
		}
	}

	s.returnsByID[ret.ID] = cloneReturn(ret)
	return nil
}

func (s *Store) GetReturnsBySale(_ context.Context, saleID string) ([]domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Return, 0)
	for _, ret := range s.returnsByID {
		if ret.SaleID != saleID {
			continue
		}
		copied := ret
		copied.Lines = slices.Clone(ret.Lines)
		result = append(result, copied)
	}
	slices.SortFunc(result, func(a, b domain.Return) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) GetDailySummary(_ context.Context, date string) (*domain.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.DailySummary{Date: date}
	for _, sale := range s.salesByID {
		if sale.Voided || sale.CreatedAt.UTC().Format("2006-01-02") != date {
			continue
		}
		summary.SaleCount++
		summary.TaxCents += sale.TaxCents
		switch sale.PaymentMethod {
		case domain.PaymentCash:
			summary.CashSalesCents += sale.TotalCents
		case domain.PaymentCard:
			summary.CardSalesCents += sale.TotalCents
		case domain.PaymentTransfer:
			summary.TransferSalesCents += sale.TotalCents
		}
	}
	for _, ret := range s.returnsByID {
		if ret.CreatedAt.UTC().Format("2006-01-02") != date {
			continue
		}
		summary.ReturnCount++
		summary.ReturnsCents += ret.TotalCents
	}
	summary.NetSalesCents = summary.CashSalesCents + summary.CardSalesCents + summary.TransferSalesCents - summary.ReturnsCents
	return &summary, nil
}

func (s *Store) GetLatestCashSession(_ context.Context, beforeDate string) (*domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.CashSession
	for date, session := range s.sessionsByDate {
		if beforeDate != "" && date >= beforeDate {
			continue
		}
		if latest == nil || session.BusinessDate > latest.BusinessDate {
			copied := session
			latest = &copied
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

func (s *Store) GetCashSessionByDate(_ context.Context, date string) (*domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessionsByDate[date]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := session
	return &copied, nil
}

func (s *Store) CreateCashSession(_ context.Context, session *domain.CashSession) error {
	if session == nil || session.BusinessDate == "" {
		return store.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessionsByDate[session.BusinessDate]; exists {
		return store.ErrDuplicateSession
	}
	if session.ID == "" {
		session.ID = xid.New("sess")
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	s.sessionsByDate[session.BusinessDate] = *session
	return nil
}

func (s *Store) ListCashSessions(_ context.Context, limit int) ([]domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 50
	}
	sessions := make([]domain.CashSession, 0, len(s.sessionsByDate))
	for _, session := range s.sessionsByDate {
		sessions = append(sessions, session)
	}
	slices.SortFunc(sessions, func(a, b domain.CashSession) int {
		return cmpString(b.BusinessDate, a.BusinessDate)
	})
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry *domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, *entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.auditLogs[i])
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user *domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRequest
	}
	if _, exists := s.usersByUsername[username]; exists {
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
	s.usersByUsername[user.Username] = *user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username, hashed string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(hashed) == "" {
		return store.ErrInvalidRequest
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = hashed
	s.usersByUsername[username] = user
	return nil
}

func cloneSale(sale *domain.Sale) *domain.Sale {
	copied := *sale
	copied.Lines = slices.Clone(sale.Lines)
	if sale.VoidedAt != nil {
		at := *sale.VoidedAt
		copied.VoidedAt = &at
	}
	return &copied
}

func cloneReturn(ret *domain.Return) domain.Return {
	copied := *ret
	copied.Lines = slices.Clone(ret.Lines)
	return copied
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
