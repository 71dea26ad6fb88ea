package store

import (
	"context"
	"errors"
	"time"

	"github.com/byron-sandoval/Ferreter-a-sub000/internal/domain"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrInvalidRequest = errors.New("invalid request")

	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyCart         = errors.New("empty cart")
	ErrInvalidPayment    = errors.New("invalid payment")
	ErrNoActiveSeries    = errors.New("no active invoice series")
	ErrAlreadyVoided     = errors.New("sale already voided")

	ErrSaleVoided    = errors.New("sale is voided")
	ErrMissingReason = errors.New("missing reason")
	ErrOverReturn    = errors.New("return exceeds sold quantity")
	ErrEmptyReturn   = errors.New("return has no effective lines")

	ErrMissingCountedAmount = errors.New("missing counted amount")
	ErrDuplicateSession     = errors.New("cash session already closed for date")

	// ErrConcurrencyConflict is returned when a storage-level conflict
	// survives the internal retry budget. Callers treat it as retryable.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// Repository is the persistence contract shared by the in-memory and
// postgres implementations. Write operations that span several records
// (VoidSale, CreateReturn, CreateCashSession) are atomic within a single
// implementation call.
type Repository interface {
	ListItems(ctx context.Context, search string, onlyActive bool, limit int) ([]domain.Item, error)
	GetItemByID(ctx context.Context, id string) (*domain.Item, error)
	GetItemsByIDs(ctx context.Context, ids []string) (map[string]domain.Item, error)
	ListLowStockItems(ctx context.Context) ([]domain.Item, error)
	DecrementStock(ctx context.Context, itemID string, qty int) error
	RestoreStock(ctx context.Context, itemID string, qty int) error
	HasItemReferences(ctx context.Context, itemID string) (bool, error)
	DeactivateItem(ctx context.Context, itemID string) error
	DeleteItem(ctx context.Context, itemID string) error

	GetActiveSeries(ctx context.Context) (*domain.InvoiceSeries, error)
	NextInvoiceNumber(ctx context.Context, seriesID string) (int64, error)

	CreateSale(ctx context.Context, sale *domain.Sale) error
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	VoidSale(ctx context.Context, id string, reason string, at time.Time) (*domain.Sale, error)

	GetReturnedQtyBySale(ctx context.Context, saleID string) (map[string]int, error)
	CreateReturn(ctx context.Context, ret *domain.Return) error
	GetReturnsBySale(ctx context.Context, saleID string) ([]domain.Return, error)

	GetDailySummary(ctx context.Context, date string) (*domain.DailySummary, error)

	GetLatestCashSession(ctx context.Context, beforeDate string) (*domain.CashSession, error)
	GetCashSessionByDate(ctx context.Context, date string) (*domain.CashSession, error)
	CreateCashSession(ctx context.Context, session *domain.CashSession) error
	ListCashSessions(ctx context.Context, limit int) ([]domain.CashSession, error)

	CreateAuditLog(ctx context.Context, entry *domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user *domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username, hashed string) error
}
