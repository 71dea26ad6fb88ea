package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/byron-sandoval/Ferreter-a-sub000/internal/cache"
	"github.com/byron-sandoval/Ferreter-a-sub000/internal/domain"
	"github.com/byron-sandoval/Ferreter-a-sub000/internal/store"
	"github.com/byron-sandoval/Ferreter-a-sub000/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo         store.Repository
	summaryCache cache.SummaryCache
	summaryTTL   time.Duration
	logger       *zap.Logger
}

func New(repo store.Repository, summaryCache cache.SummaryCache, summaryTTL time.Duration, logger *zap.Logger) *Service {
	if summaryCache == nil {
		summaryCache = cache.NoopSummaryCache{}
	}
	if summaryTTL < time.Second {
		summaryTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:         repo,
		summaryCache: summaryCache,
		summaryTTL:   summaryTTL,
		logger:       logger,
	}
}

func (s *Service) ListItems(ctx context.Context, search string, limit int) ([]domain.Item, error) {
	return s.repo.ListItems(ctx, search, true, limit)
}

func (s *Service) GetItem(ctx context.Context, id string) (domain.Item, error) {
	item, err := s.repo.GetItemByID(ctx, id)
	if err != nil {
		return domain.Item{}, err
	}
	return *item, nil
}

func (s *Service) ListLowStockItems(ctx context.Context) ([]domain.Item, error) {
	return s.repo.ListLowStockItems(ctx)
}

// RetireItem applies a single lifecycle rule: an item referenced by any
// historical sale line is deactivated, an unreferenced one is removed
// outright. The returned mode is "deactivated" or "deleted".
func (s *Service) RetireItem(ctx context.Context, itemID string) (string, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return "", fmt.Errorf("admin role required")
	}

	if _, err := s.repo.GetItemByID(ctx, itemID); err != nil {
		return "", err
	}
	referenced, err := s.repo.HasItemReferences(ctx, itemID)
	if err != nil {
		return "", err
	}

	mode := "deleted"
	if referenced {
		mode = "deactivated"
		err = s.repo.DeactivateItem(ctx, itemID)
	} else {
		err = s.repo.DeleteItem(ctx, itemID)
	}
	if err != nil {
		return "", err
	}

	s.logAudit(ctx, "item_retire", "item", itemID, "mode="+mode)
	return mode, nil
}

// CommitSale turns a cart into a committed sale as one unit of work. Stock
// is decremented line by line; any failure after the first decrement rolls
// back every decrement already applied before the error is returned, so a
// partially-applied sale is never visible.
func (s *Service) CommitSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	if len(req.Lines) == 0 {
		return domain.SaleResponse{}, store.ErrEmptyCart
	}

	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	switch req.PaymentMethod {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentTransfer:
	default:
		return domain.SaleResponse{}, store.ErrInvalidPayment
	}
	// The cash_sale flag is an assertion from the terminal; it must not
	// contradict the payment method that drives tender handling.
	if req.CashSale && req.PaymentMethod != domain.PaymentCash {
		return domain.SaleResponse{}, store.ErrInvalidPayment
	}

	qtyByItem := make(map[string]int, len(req.Lines))
	order := make([]string, 0, len(req.Lines))
	for _, line := range req.Lines {
		if strings.TrimSpace(line.ItemID) == "" || line.Qty < 1 {
			return domain.SaleResponse{}, store.ErrInvalidRequest
		}
		if _, seen := qtyByItem[line.ItemID]; !seen {
			order = append(order, line.ItemID)
		}
		qtyByItem[line.ItemID] += line.Qty
	}

	items, err := s.repo.GetItemsByIDs(ctx, order)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	for _, itemID := range order {
		if _, exists := items[itemID]; !exists {
			return domain.SaleResponse{}, fmt.Errorf("%w: item %s unavailable", store.ErrNotFound, itemID)
		}
	}

	series, err := s.repo.GetActiveSeries(ctx)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	applied := make([]string, 0, len(order))
	rollback := func() {
		for _, itemID := range applied {
			if err := s.repo.RestoreStock(ctx, itemID, qtyByItem[itemID]); err != nil {
				s.logger.Error("compensating stock restore failed",
					zap.String("item_id", itemID),
					zap.Int("qty", qtyByItem[itemID]),
					zap.Error(err))
			}
		}
	}

	for _, itemID := range order {
		if err := s.repo.DecrementStock(ctx, itemID, qtyByItem[itemID]); err != nil {
			rollback()
			if errors.Is(err, store.ErrInsufficientStock) {
				return domain.SaleResponse{}, fmt.Errorf("%w: item %s", store.ErrInsufficientStock, itemID)
			}
			return domain.SaleResponse{}, err
		}
		applied = append(applied, itemID)
	}

	now := time.Now().UTC()
	lines := make([]domain.SaleLine, 0, len(order))
	subtotalCents := int64(0)
	for _, itemID := range order {
		item := items[itemID]
		qty := qtyByItem[itemID]
		amount := int64(qty) * item.UnitPriceCents
		subtotalCents += amount
		lines = append(lines, domain.SaleLine{
			ID:             xid.New("sln"),
			ItemID:         itemID,
			Qty:            qty,
			UnitPriceCents: item.UnitPriceCents,
			AmountCents:    amount,
		})
	}
	taxCents := int64(math.Round(float64(subtotalCents) * float64(domain.TaxRatePercent) / 100))
	totalCents := subtotalCents + taxCents

	tenderedCents := int64(0)
	changeCents := int64(0)
	if req.PaymentMethod == domain.PaymentCash {
		if req.TenderedCents < totalCents {
			rollback()
			return domain.SaleResponse{}, store.ErrInvalidPayment
		}
		tenderedCents = req.TenderedCents
		changeCents = req.TenderedCents - totalCents
	}

	number, err := s.repo.NextInvoiceNumber(ctx, series.ID)
	if err != nil {
		rollback()
		return domain.SaleResponse{}, err
	}

	sale := domain.Sale{
		ID:            xid.New("sale"),
		SeriesID:      series.ID,
		InvoiceNumber: number,
		CustomerID:    strings.TrimSpace(req.CustomerID),
		PaymentMethod: req.PaymentMethod,
		SubtotalCents: subtotalCents,
		TaxCents:      taxCents,
		TotalCents:    totalCents,
		TenderedCents: tenderedCents,
		ChangeCents:   changeCents,
		CreatedAt:     now,
		Lines:         lines,
	}
	if err := s.repo.CreateSale(ctx, &sale); err != nil {
		// The issued invoice number is burned here; numbers are never
		// reissued, so uniqueness and monotonicity still hold.
		rollback()
		return domain.SaleResponse{}, err
	}

	s.logAudit(ctx, "sale_commit", "sale", sale.ID,
		fmt.Sprintf("invoice=%s-%d,total=%d,method=%s", series.Prefix, number, totalCents, sale.PaymentMethod))
	return domain.SaleResponse{Sale: sale}, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.SaleResponse, error) {
	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	return domain.SaleResponse{Sale: *sale}, nil
}

// VoidSale is a one-way transition. Stock restoration happens atomically
// with the flag flip inside the store; a second void attempt surfaces
// ErrAlreadyVoided without touching stock again.
func (s *Service) VoidSale(ctx context.Context, req domain.VoidSaleRequest) (domain.VoidSaleResponse, error) {
	if strings.TrimSpace(req.SaleID) == "" || strings.TrimSpace(req.Reason) == "" {
		return domain.VoidSaleResponse{}, store.ErrInvalidRequest
	}

	at := time.Now().UTC()
	voided, err := s.repo.VoidSale(ctx, req.SaleID, strings.TrimSpace(req.Reason), at)
	if err != nil {
		return domain.VoidSaleResponse{}, err
	}

	s.logAudit(ctx, "sale_void", "sale", voided.ID, "reason="+req.Reason)
	return domain.VoidSaleResponse{
		SaleID:   voided.ID,
		Voided:   voided.Voided,
		VoidedAt: at.Format(time.RFC3339),
	}, nil
}

// ProcessReturn validates a return against the originating sale and prior
// returns, derives the refund value proportionally (tax folded in via
// total/subtotal), restores stock, and persists the return atomically.
func (s *Service) ProcessReturn(ctx context.Context, req domain.ReturnRequest) (domain.ReturnResponse, error) {
	if strings.TrimSpace(req.SaleID) == "" {
		return domain.ReturnResponse{}, store.ErrInvalidRequest
	}
	if strings.TrimSpace(req.Reason) == "" {
		return domain.ReturnResponse{}, store.ErrMissingReason
	}

	sale, err := s.repo.GetSaleByID(ctx, req.SaleID)
	if err != nil {
		return domain.ReturnResponse{}, err
	}
	if sale.Voided {
		return domain.ReturnResponse{}, store.ErrSaleVoided
	}

	qtyByLine := make(map[string]int, len(req.Lines))
	order := make([]string, 0, len(req.Lines))
	for _, line := range req.Lines {
		if strings.TrimSpace(line.SaleLineID) == "" || line.Qty < 0 {
			return domain.ReturnResponse{}, store.ErrInvalidRequest
		}
		if line.Qty == 0 {
			continue
		}
		if _, seen := qtyByLine[line.SaleLineID]; !seen {
			order = append(order, line.SaleLineID)
		}
		qtyByLine[line.SaleLineID] += line.Qty
	}
	if len(order) == 0 {
		return domain.ReturnResponse{}, store.ErrEmptyReturn
	}

	saleLinesByID := make(map[string]domain.SaleLine, len(sale.Lines))
	for _, line := range sale.Lines {
		saleLinesByID[line.ID] = line
	}

	alreadyReturned, err := s.repo.GetReturnedQtyBySale(ctx, sale.ID)
	if err != nil {
		return domain.ReturnResponse{}, err
	}
	for _, lineID := range order {
		saleLine, exists := saleLinesByID[lineID]
		if !exists {
			return domain.ReturnResponse{}, fmt.Errorf("%w: sale line %s", store.ErrNotFound, lineID)
		}
		if qtyByLine[lineID] > saleLine.Qty-alreadyReturned[lineID] {
			return domain.ReturnResponse{}, fmt.Errorf("%w: line %s", store.ErrOverReturn, lineID)
		}
	}

	// Pinned at commit since sales are immutable: folds tax (and any
	// discount) into the refund pro-rata instead of recomputing it. A
	// zero-subtotal sale (every line priced at zero) has nothing to
	// prorate; factor 1 keeps each refund amount at zero.
	factor := 1.0
	if sale.SubtotalCents > 0 {
		factor = float64(sale.TotalCents) / float64(sale.SubtotalCents)
	}

	returnLines := make([]domain.ReturnLine, 0, len(order))
	totalCents := int64(0)
	for _, lineID := range order {
		saleLine := saleLinesByID[lineID]
		qty := qtyByLine[lineID]
		amount := int64(math.Round(float64(int64(qty)*saleLine.UnitPriceCents) * factor))
		totalCents += amount
		returnLines = append(returnLines, domain.ReturnLine{
			ID:             xid.New("rln"),
			SaleLineID:     lineID,
			ItemID:         saleLine.ItemID,
			Qty:            qty,
			UnitPriceCents: saleLine.UnitPriceCents,
			AmountCents:    amount,
		})
	}

	ret := domain.Return{
		ID:         xid.New("ret"),
		SaleID:     sale.ID,
		Reason:     strings.TrimSpace(req.Reason),
		TotalCents: totalCents,
		CreatedAt:  time.Now().UTC(),
		Lines:      returnLines,
	}
	if err := s.repo.CreateReturn(ctx, &ret); err != nil {
		return domain.ReturnResponse{}, err
	}

	s.logAudit(ctx, "return_commit", "return", ret.ID,
		fmt.Sprintf("sale=%s,total=%d", sale.ID, totalCents))
	return domain.ReturnResponse{Return: ret}, nil
}

func (s *Service) ListReturnsBySale(ctx context.Context, saleID string) ([]domain.Return, error) {
	if _, err := s.repo.GetSaleByID(ctx, saleID); err != nil {
		return nil, err
	}
	return s.repo.GetReturnsBySale(ctx, saleID)
}

// CloseCashSession reconciles one business day. Non-voided sales on the
// date are aggregated per payment method; returns are included by their
// own recorded date, so a return taken today against yesterday's sale
// belongs to today's session. The resulting record is immutable.
func (s *Service) CloseCashSession(ctx context.Context, req domain.CashSessionRequest) (domain.CashSessionResponse, error) {
	date := strings.TrimSpace(req.BusinessDate)
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return domain.CashSessionResponse{}, store.ErrInvalidRequest
	}
	if req.CountedCents == nil {
		return domain.CashSessionResponse{}, store.ErrMissingCountedAmount
	}
	if *req.CountedCents < 0 || req.NextFloatCents < 0 {
		return domain.CashSessionResponse{}, store.ErrInvalidRequest
	}

	if _, err := s.repo.GetCashSessionByDate(ctx, date); err == nil {
		return domain.CashSessionResponse{}, store.ErrDuplicateSession
	} else if !isNotFound(err) {
		return domain.CashSessionResponse{}, err
	}

	openingFloat := int64(0)
	if req.OpeningFloatCents != nil {
		if *req.OpeningFloatCents < 0 {
			return domain.CashSessionResponse{}, store.ErrInvalidRequest
		}
		openingFloat = *req.OpeningFloatCents
	} else if prior, err := s.repo.GetLatestCashSession(ctx, date); err == nil {
		openingFloat = prior.NextFloatCents
	} else if !isNotFound(err) {
		return domain.CashSessionResponse{}, err
	}

	summary, err := s.repo.GetDailySummary(ctx, date)
	if err != nil {
		return domain.CashSessionResponse{}, err
	}

	expectedCash := openingFloat + summary.CashSalesCents - summary.ReturnsCents
	discrepancy := *req.CountedCents - expectedCash
	classification := domain.SessionBalanced
	switch {
	case discrepancy > 0:
		classification = domain.SessionSurplus
	case discrepancy < 0:
		classification = domain.SessionShortage
	}

	session := domain.CashSession{
		ID:                 xid.New("sess"),
		BusinessDate:       date,
		OpeningFloatCents:  openingFloat,
		CashSalesCents:     summary.CashSalesCents,
		CardSalesCents:     summary.CardSalesCents,
		TransferSalesCents: summary.TransferSalesCents,
		ReturnsCents:       summary.ReturnsCents,
		ExpectedCashCents:  expectedCash,
		CountedCents:       *req.CountedCents,
		DiscrepancyCents:   discrepancy,
		Classification:     classification,
		NextFloatCents:     req.NextFloatCents,
		HandOverCents:      *req.CountedCents - req.NextFloatCents,
		Notes:              strings.TrimSpace(req.Notes),
		CreatedAt:          time.Now().UTC(),
	}
	if err := s.repo.CreateCashSession(ctx, &session); err != nil {
		return domain.CashSessionResponse{}, err
	}

	s.logAudit(ctx, "cash_session_close", "cash_session", session.ID,
		fmt.Sprintf("date=%s,expected=%d,counted=%d,discrepancy=%d", date, expectedCash, *req.CountedCents, discrepancy))
	return domain.CashSessionResponse{CashSession: session}, nil
}

func (s *Service) GetCashSession(ctx context.Context, date string) (domain.CashSessionResponse, error) {
	session, err := s.repo.GetCashSessionByDate(ctx, date)
	if err != nil {
		return domain.CashSessionResponse{}, err
	}
	return domain.CashSessionResponse{CashSession: *session}, nil
}

func (s *Service) ListCashSessions(ctx context.Context, limit int) ([]domain.CashSession, error) {
	return s.repo.ListCashSessions(ctx, limit)
}

func (s *Service) DailySummary(ctx context.Context, date string) (domain.DailySummary, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return domain.DailySummary{}, store.ErrInvalidRequest
	}

	cacheKey := "summary:daily:" + date
	if cached, hit, err := s.summaryCache.Get(ctx, cacheKey); err != nil {
		s.logger.Warn("summary cache read failed", zap.String("date", date), zap.Error(err))
	} else if hit {
		return *cached, nil
	}

	summary, err := s.repo.GetDailySummary(ctx, date)
	if err != nil {
		return domain.DailySummary{}, err
	}
	if err := s.summaryCache.Set(ctx, cacheKey, summary, s.summaryTTL); err != nil {
		s.logger.Warn("summary cache write failed", zap.String("date", date), zap.Error(err))
	}
	return *summary, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, &domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("audit log write failed",
			zap.String("action", action),
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
