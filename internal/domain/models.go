package domain

import "time"

// Item is the catalog/stock record. The core never creates items; it reads
// them and mutates QtyOnHand through ledger operations only.
type Item struct {
	ID             string `json:"id"`
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	UnitCostCents  int64  `json:"unit_cost_cents"`
	QtyOnHand      int    `json:"qty_on_hand"`
	MinQty         int    `json:"min_qty"`
	Active         bool   `json:"active"`
}

const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentTransfer = "transfer"
)

// TaxRatePercent is the flat sales tax applied to every sale subtotal.
const TaxRatePercent = 15

type SaleLine struct {
	ID             string `json:"id"`
	SaleID         string `json:"sale_id"`
	ItemID         string `json:"item_id"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	AmountCents    int64  `json:"amount_cents"`
}

type Sale struct {
	ID            string     `json:"id"`
	SeriesID      string     `json:"series_id"`
	InvoiceNumber int64      `json:"invoice_number"`
	CustomerID    string     `json:"customer_id,omitempty"`
	PaymentMethod string     `json:"payment_method"`
	SubtotalCents int64      `json:"subtotal_cents"`
	TaxCents      int64      `json:"tax_cents"`
	TotalCents    int64      `json:"total_cents"`
	TenderedCents int64      `json:"tendered_cents"`
	ChangeCents   int64      `json:"change_cents"`
	Voided        bool       `json:"voided"`
	VoidReason    string     `json:"void_reason,omitempty"`
	VoidedAt      *time.Time `json:"voided_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	Lines         []SaleLine `json:"lines"`
}

type SaleLineRequest struct {
	ItemID string `json:"item_id"`
	Qty    int    `json:"qty"`
}

type SaleRequest struct {
	CustomerID    string            `json:"customer_id,omitempty"`
	PaymentMethod string            `json:"payment_method"`
	CashSale      bool              `json:"cash_sale"`
	TenderedCents int64             `json:"tendered_cents"`
	Lines         []SaleLineRequest `json:"lines"`
}

type SaleResponse struct {
	Sale Sale `json:"sale"`
}

type VoidSaleRequest struct {
	SaleID string `json:"sale_id"`
	Reason string `json:"reason"`
}

type VoidSaleResponse struct {
	SaleID   string `json:"sale_id"`
	Voided   bool   `json:"voided"`
	VoidedAt string `json:"voided_at"`
}

type ReturnLine struct {
	ID             string `json:"id"`
	ReturnID       string `json:"return_id"`
	SaleLineID     string `json:"sale_line_id"`
	ItemID         string `json:"item_id"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	AmountCents    int64  `json:"amount_cents"`
}

type Return struct {
	ID         string       `json:"id"`
	SaleID     string       `json:"sale_id"`
	Reason     string       `json:"reason"`
	TotalCents int64        `json:"total_cents"`
	CreatedAt  time.Time    `json:"created_at"`
	Lines      []ReturnLine `json:"lines"`
}

type ReturnLineRequest struct {
	SaleLineID string `json:"sale_line_id"`
	Qty        int    `json:"qty"`
}

type ReturnRequest struct {
	SaleID string              `json:"sale_id"`
	Reason string              `json:"reason"`
	Lines  []ReturnLineRequest `json:"lines"`
}

type ReturnResponse struct {
	Return Return `json:"return"`
}

// InvoiceSeries holds the current correlative for one numbering series.
// Numbers are issued strictly increasing and never reused, voided or not.
type InvoiceSeries struct {
	ID      string `json:"id"`
	Prefix  string `json:"prefix"`
	Current int64  `json:"current"`
	Active  bool   `json:"active"`
}

const (
	SessionBalanced = "balanced"
	SessionSurplus  = "surplus"
	SessionShortage = "shortage"
)

// CashSession is the immutable close-of-day reconciliation record. The
// NextFloatCents of the latest session seeds the next session's opening float.
type CashSession struct {
	ID                 string    `json:"id"`
	BusinessDate       string    `json:"business_date"`
	OpeningFloatCents  int64     `json:"opening_float_cents"`
	CashSalesCents     int64     `json:"cash_sales_cents"`
	CardSalesCents     int64     `json:"card_sales_cents"`
	TransferSalesCents int64     `json:"transfer_sales_cents"`
	ReturnsCents       int64     `json:"returns_cents"`
	ExpectedCashCents  int64     `json:"expected_cash_cents"`
	CountedCents       int64     `json:"counted_cents"`
	DiscrepancyCents   int64     `json:"discrepancy_cents"`
	Classification     string    `json:"classification"`
	NextFloatCents     int64     `json:"next_float_cents"`
	HandOverCents      int64     `json:"hand_over_cents"`
	Notes              string    `json:"notes,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

type CashSessionRequest struct {
	BusinessDate      string `json:"business_date"`
	OpeningFloatCents *int64 `json:"opening_float_cents,omitempty"`
	CountedCents      *int64 `json:"counted_cents"`
	NextFloatCents    int64  `json:"next_float_cents"`
	Notes             string `json:"notes"`
}

type CashSessionResponse struct {
	CashSession CashSession `json:"cash_session"`
}

// DailySummary aggregates committed sales and returns for one business date.
// Voided sales never contribute.
type DailySummary struct {
	Date               string `json:"date"`
	SaleCount          int64  `json:"sale_count"`
	CashSalesCents     int64  `json:"cash_sales_cents"`
	CardSalesCents     int64  `json:"card_sales_cents"`
	TransferSalesCents int64  `json:"transfer_sales_cents"`
	ReturnCount        int64  `json:"return_count"`
	ReturnsCents       int64  `json:"returns_cents"`
	TaxCents           int64  `json:"tax_cents"`
	NetSalesCents      int64  `json:"net_sales_cents"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
