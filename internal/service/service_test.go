package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/byron-sandoval/Ferreter-a-sub000/internal/cache"
	"github.com/byron-sandoval/Ferreter-a-sub000/internal/domain"
	"github.com/byron-sandoval/Ferreter-a-sub000/internal/store"
	"github.com/byron-sandoval/Ferreter-a-sub000/internal/store/memory"
	"github.com/byron-sandoval/Ferreter-a-sub000/internal/xid"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	svc := New(repo, cache.NoopSummaryCache{}, 5*time.Second, nil)
	return svc, repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func seedItem(repo *memory.Store, priceCents int64, qty int) domain.Item {
	return repo.AddItem(domain.Item{
		SKU:            "TEST-" + xid.New("sku"),
		Name:           "Articulo de prueba",
		Category:       "pruebas",
		UnitPriceCents: priceCents,
		QtyOnHand:      qty,
		MinQty:         1,
		Active:         true,
	})
}

func stockOf(t *testing.T, repo *memory.Store, itemID string) int {
	t.Helper()
	item, err := repo.GetItemByID(context.Background(), itemID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	return item.QtyOnHand
}

func TestCommitSaleComputesTaxAndChange(t *testing.T) {
	svc, repo := newTestService()
	item := seedItem(repo, 2500, 10)

	resp, err := svc.CommitSale(adminCtx(), domain.SaleRequest{
		PaymentMethod: "cash",
		CashSale:      true,
		TenderedCents: 12000,
		Lines:         []domain.SaleLineRequest{{ItemID: item.ID, Qty: 4}},
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}

	sale := resp.Sale
	if sale.SubtotalCents != 10000 {
		t.Fatalf("expected subtotal 10000, got %d", sale.SubtotalCents)
	}
	if sale.TaxCents != 1500 {
		t.Fatalf("expected tax 1500, got %d", sale.TaxCents)
	}
	if sale.TotalCents != 11500 {
		t.Fatalf("expected total 11500, got %d", sale.TotalCents)
	}
	if sale.ChangeCents != 500 {
		t.Fatalf("expected change 500, got %d", sale.ChangeCents)
	}
	if sale.InvoiceNumber != 1 {
		t.Fatalf("expected first invoice number 1, got %d", sale.InvoiceNumber)
	}
	if got := stockOf(t, repo, item.ID); got != 6 {
		t.Fatalf("expected stock 6 after sale, got %d", got)
	}
}

func TestCommitSaleRejectsEmptyCart(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CommitSale(adminCtx(), domain.SaleRequest{PaymentMethod: "cash", TenderedCents: 1000})
	if !errors.Is(err, store.ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestCommitSaleRejectsUnknownPaymentMethod(t *testing.T) {
	svc, repo := newTestService()
	item := seedItem(repo, 1000, 5)

	_, err := svc.CommitSale(adminCtx(), domain.SaleRequest{
		PaymentMethod: "cheque",
		Lines:         []domain.SaleLineRequest{{ItemID: item.ID, Qty: 1}},
	})
	if !errors.Is(err, store.ErrInvalidPayment) {
		t.Fatalf("expected ErrInvalidPayment, got %v", err)
	}
}

func TestCommitSaleCashUnderTenderRollsBackStock(t *testing.T) {
	svc, repo := newTestService()
	item := seedItem(repo, 5000, 8)

	_, err := svc.CommitSale(adminCtx(), domain.SaleRequest{
		PaymentMethod: "cash",
		CashSale:      true,
		TenderedCents: 5000,
		Lines:         []domain.SaleLineRequest{{ItemID: item.ID, Qty: 2}},
	})
	if !errors.Is(err, store.ErrInvalidPayment) {
		t.Fatalf("expected ErrInvalidPayment, got %v", err)
	}
	if got := stockOf(t, repo, item.ID); got != 8 {
		t.Fatalf("expected stock unchanged at 8, got %d", got)
	}
}

func TestCommitSaleInsufficientStockIsAllOrNothing(t *testing.T) {
	svc, repo := newTestService()
	plenty := seedItem(repo, 1000, 50)
	scarce := seedItem(repo, 2000, 1)

	_, err := svc.CommitSale(adminCtx(), domain.SaleRequest{
		PaymentMethod: "card",
		Lines: []domain.SaleLineRequest{
			{ItemID: plenty.ID, Qty: 3},
			{ItemID: scarce.ID, Qty: 2},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if got := stockOf(t, repo, plenty.ID); got != 50 {
		t.Fatalf("expected first item stock restored to 50, got %d", got)
	}
	if got := stockOf(t, repo, scarce.ID); got != 1 {
		t.Fatalf("expected second item stock unchanged at 1, got %d", got)
	}

	summary, err := svc.DailySummary(context.Background(), time.Now().UTC().Format("2006-01-02"))
	if err != nil {
		t.Fatalf("daily summary: %v", err)
	}
	if summary.SaleCount != 0 {
		t.Fatalf("expected no persisted sale after failed commit, got %d", summary.SaleCount)
	}
}

func TestNextInvoiceNumberConcurrentCallsAreGaplessAndUnique(t *testing.T) {
	_, repo := newTestService()

	const n = 40
	results := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			number, err := repo.NextInvoiceNumber(context.Background(), "series-a")
			if err != nil {
				t.Errorf("next invoice number: %v", err)
				return
			}
			results <- number
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool, n)
	for number := range results {
		if seen[number] {
			t.Fatalf("duplicate invoice number %d", number)
		}
		seen[number] = true
	}
	for want := int64(1); want <= n; want++ {
		if !seen[want] {
			t.Fatalf("missing invoice number %d", want)
		}
	}
}

func TestConcurrentDecrementsNeverDriveStockNegative(t *testing.T) {
	_, repo := newTestService()
	item := seedItem(repo, 1000, 5)

	const attempts = 12
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.DecrementStock(context.Background(), item.ID, 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 5 {
		t.Fatalf("expected exactly 5 successful decrements, got %d", succeeded)
	}
	if got := stockOf(t, repo, item.ID); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
}

func TestVoidSaleRestoresStockExactlyOnce(t *testing.T) {
	svc, repo := newTestService()
	first := seedItem(repo, 3000, 10)
	second := seedItem(repo, 1500, 10)

	resp, err := svc.CommitSale(adminCtx(), domain.SaleRequest{
		PaymentMethod: "card",
		Lines: []domain.SaleLineRequest{
			{ItemID: first.ID, Qty: 3},
			{ItemID: second.ID, Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}

	voided, err := svc.VoidSale(adminCtx(), domain.VoidSaleRequest{SaleID: resp.Sale.ID, Reason: "cliente desistio"})
	if err != nil {
		t.Fatalf("void sale failed: %v", err)
	}
	if !voided.Voided {
		t.Fatalf("expected voided response")
	}
	if got := stockOf(t, repo, first.ID); got != 10 {
		t.Fatalf("expected first item restored to 10, got %d", got)
	}
	if got := stockOf(t, repo, second.ID); got != 10 {
		t.Fatalf("expected second item restored to 10, got %d", got)
	}

	_, err = svc.VoidSale(adminCtx(), domain.VoidSaleRequest{SaleID: resp.Sale.ID, Reason: "segundo intento"})
	if !errors.Is(err, store.ErrAlreadyVoided) {
		t.Fatalf("expected ErrAlreadyVoided, got %v", err)
	}
	if got := stockOf(t, repo, first.ID); got != 10 {
		t.Fatalf("expected no double restore, got %d", got)
	}
}

func TestVoidedSaleExcludedFromDailySummary(t *testing.T) {
	svc, repo := newTestService()
	item := seedItem(repo, 2000, 10)

	resp, err := svc.CommitSale(adminCtx(), domain.SaleRequest{
		PaymentMethod: "cash",
		TenderedCents: 10000,
		Lines:         []domain.SaleLineRequest{{ItemID: item.ID, Qty: 2}},
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}
	if _, err := svc.VoidSale(adminCtx(), domain.VoidSaleRequest{SaleID: resp.Sale.ID, Reason: "error de captura"}); err != nil {
		t.Fatalf("void sale failed: %v", err)
	}

	summary, err := svc.DailySummary(context.Background(), time.Now().UTC().Format("2006-01-02"))
	if err != nil {
		t.Fatalf("daily summary: %v", err)
	}
	if summary.SaleCount != 0 || summary.CashSalesCents != 0 {
		t.Fatalf("expected voided sale excluded, got count=%d cash=%d", summary.SaleCount, summary.CashSalesCents)
	}
}

func TestProcessReturnAppliesProportionalFactor(t *testing.T) {
	svc, repo := newTestService()
	item := seedItem(repo, 2500, 10)

	resp, err := svc.CommitSale(adminCtx(), domain.SaleRequest{
		PaymentMethod: "cash",
		TenderedCents: 11500,
		Lines:         []domain.SaleLineRequest{{ItemID: item.ID, Qty: 4}},
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}
	sale := resp.Sale

	retResp, err := svc.ProcessReturn(adminCtx(), domain.ReturnRequest{
		SaleID: sale.ID,
		Reason: "producto defectuoso",
		Lines:  []domain.ReturnLineRequest{{SaleLineID: sale.Lines[0].ID, Qty: 2}},
	})
	if err != nil {
		t.Fatalf("process return failed: %v", err)
	}

	// 2 x 2500 x (11500/10000) = 5750
	if retResp.Return.TotalCents != 5750 {
		t.Fatalf("expected return total 5750, got %d", retResp.Return.TotalCents)
	}
	if got := stockOf(t, repo, item.ID); got != 8 {
		t.Fatalf("expected stock back to 8 after return, got %d", got)
	}
}

func TestProcessReturnRejectsOverReturnWithoutPartialEffects(t *testing.T) {
	svc, repo := newTestService()
	item := seedItem(repo, 2500, 10)

	resp, err := svc.CommitSale(adminCtx(), domain.SaleRequest{
		PaymentMethod: "card",
		Lines:         []domain.SaleLineRequest{{ItemID: item.ID, Qty: 4}},
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}
	sale := resp.Sale

	if _, err := svc.ProcessReturn(adminCtx(), domain.ReturnRequest{
		SaleID: sale.ID,
		Reason: "primera devolucion",
		Lines:  []domain.ReturnLineRequest{{SaleLineID: sale.Lines[0].ID, Qty: 3}},
	}); err != nil {
		t.Fatalf("first return failed: %v", err)
	}
	stockAfterFirst := stockOf(t, repo, item.ID)

	_, err = svc.ProcessReturn(adminCtx(), domain.ReturnRequest{
		SaleID: sale.ID,
		Reason: "segunda devolucion",
		Lines:  []domain.ReturnLineRequest{{SaleLineID: sale.Lines[0].ID, Qty: 2}},
	})
	if !errors.Is(err, store.ErrOverReturn) {
		t.Fatalf("expected ErrOverReturn, got %v", err)
	}
	if got := stockOf(t, repo, item.ID); got != stockAfterFirst {
		t.Fatalf("expected stock unchanged at %d after rejected return, got %d", stockAfterFirst, got)
	}

	returns, err := svc.ListReturnsBySale(context.Background(), sale.ID)
	if err != nil {
		t.Fatalf("list returns: %v", err)
	}
	if len(returns) != 1 {
		t.Fatalf("expected exactly one persisted return, got %d", len(returns))
	}
}

func TestProcessReturnGuards(t *testing.T) {
	svc, repo := newTestService()
	item := seedItem(repo, 2000, 10)

	resp, err := svc.CommitSale(adminCtx(), domain.SaleRequest{
		PaymentMethod: "card",
		Lines:         []domain.SaleLineRequest{{ItemID: item.ID, Qty: 2}},
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}
	sale := resp.Sale

	_, err = svc.ProcessReturn(adminCtx(), domain.ReturnRequest{
		SaleID: sale.ID,
		Reason: "   ",
		Lines:  []domain.ReturnLineRequest{{SaleLineID: sale.Lines[0].ID, Qty: 1}},
	})
	if !errors.Is(err, store.ErrMissingReason) {
		t.Fatalf("expected ErrMissingReason, got %v", err)
	}

	_, err = svc.ProcessReturn(adminCtx(), domain.ReturnRequest{
		SaleID: sale.ID,
		Reason: "sin cantidades",
		Lines:  []domain.ReturnLineRequest{{SaleLineID: sale.Lines[0].ID, Qty: 0}},
	})
	if !errors.Is(err, store.ErrEmptyReturn) {
		t.Fatalf("expected ErrEmptyReturn, got %v", err)
	}

	if _, err := svc.VoidSale(adminCtx(), domain.VoidSaleRequest{SaleID: sale.ID, Reason: "anulada"}); err != nil {
		t.Fatalf("void sale failed: %v", err)
	}
	_, err = svc.ProcessReturn(adminCtx(), domain.ReturnRequest{
		SaleID: sale.ID,
		Reason: "despues de anular",
		Lines:  []domain.ReturnLineRequest{{SaleLineID: sale.Lines[0].ID, Qty: 1}},
	})
	if !errors.Is(err, store.ErrSaleVoided) {
		t.Fatalf("expected ErrSaleVoided, got %v", err)
	}
}

func TestProcessReturnOfZeroPricedSaleRefundsZero(t *testing.T) {
	svc, repo := newTestService()
	item := seedItem(repo, 0, 5)

	resp, err := svc.CommitSale(adminCtx(), domain.SaleRequest{
		PaymentMethod: "cash",
		CashSale:      true,
		Lines:         []domain.SaleLineRequest{{ItemID: item.ID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}
	sale := resp.Sale
	if sale.SubtotalCents != 0 || sale.TotalCents != 0 {
		t.Fatalf("expected zero-value sale, got subtotal %d total %d", sale.SubtotalCents, sale.TotalCents)
	}

	retResp, err := svc.ProcessReturn(adminCtx(), domain.ReturnRequest{
		SaleID: sale.ID,
		Reason: "articulo de cortesia",
		Lines:  []domain.ReturnLineRequest{{SaleLineID: sale.Lines[0].ID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("process return failed: %v", err)
	}
	if retResp.Return.TotalCents != 0 {
		t.Fatalf("expected return total 0, got %d", retResp.Return.TotalCents)
	}
	if got := retResp.Return.Lines[0].AmountCents; got != 0 {
		t.Fatalf("expected line amount 0, got %d", got)
	}
	if got := stockOf(t, repo, item.ID); got != 5 {
		t.Fatalf("expected stock back to 5 after return, got %d", got)
	}
}

func TestCreateReturnReChecksOverReturnInStore(t *testing.T) {
	svc, repo := newTestService()
	item := seedItem(repo, 2500, 10)

	resp, err := svc.CommitSale(adminCtx(), domain.SaleRequest{
		PaymentMethod: "card",
		Lines:         []domain.SaleLineRequest{{ItemID: item.ID, Qty: 2}},
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}
	sale := resp.Sale

	if _, err := svc.ProcessReturn(adminCtx(), domain.ReturnRequest{
		SaleID: sale.ID,
		Reason: "primera devolucion",
		Lines:  []domain.ReturnLineRequest{{SaleLineID: sale.Lines[0].ID, Qty: 1}},
	}); err != nil {
		t.Fatalf("first return failed: %v", err)
	}
	stockAfterFirst := stockOf(t, repo, item.ID)

	// Straight to the store, as a racing writer that passed its own
	// pre-check before the first return landed would arrive.
	err = repo.CreateReturn(context.Background(), &domain.Return{
		SaleID: sale.ID,
		Reason: "segunda devolucion",
		Lines: []domain.ReturnLine{{
			SaleLineID:     sale.Lines[0].ID,
			ItemID:         item.ID,
			Qty:            2,
			UnitPriceCents: sale.Lines[0].UnitPriceCents,
			AmountCents:    2 * sale.Lines[0].UnitPriceCents,
		}},
	})
	if !errors.Is(err, store.ErrOverReturn) {
		t.Fatalf("expected ErrOverReturn from store, got %v", err)
	}
	if got := stockOf(t, repo, item.ID); got != stockAfterFirst {
		t.Fatalf("expected stock unchanged at %d after rejected return, got %d", stockAfterFirst, got)
	}

	returns, err := svc.ListReturnsBySale(context.Background(), sale.ID)
	if err != nil {
		t.Fatalf("list returns: %v", err)
	}
	if len(returns) != 1 {
		t.Fatalf("expected exactly one persisted return, got %d", len(returns))
	}
}

func TestCommitSaleRejectsContradictoryCashFlag(t *testing.T) {
	svc, repo := newTestService()
	item := seedItem(repo, 1000, 5)

	_, err := svc.CommitSale(adminCtx(), domain.SaleRequest{
		PaymentMethod: "card",
		CashSale:      true,
		Lines:         []domain.SaleLineRequest{{ItemID: item.ID, Qty: 1}},
	})
	if !errors.Is(err, store.ErrInvalidPayment) {
		t.Fatalf("expected ErrInvalidPayment, got %v", err)
	}
	if got := stockOf(t, repo, item.ID); got != 5 {
		t.Fatalf("expected stock untouched at 5, got %d", got)
	}
}

func TestCloseCashSessionArithmetic(t *testing.T) {
	svc, repo := newTestService()
	ctx := adminCtx()
	today := time.Now().UTC().Format("2006-01-02")

	cashSale := &domain.Sale{
		SeriesID:      "series-a",
		InvoiceNumber: 900001,
		PaymentMethod: domain.PaymentCash,
		SubtotalCents: 104348,
		TaxCents:      15652,
		TotalCents:    120000,
		Lines: []domain.SaleLine{
			{ItemID: "item-x", Qty: 10, UnitPriceCents: 10435, AmountCents: 104348},
		},
	}
	if err := repo.CreateSale(ctx, cashSale); err != nil {
		t.Fatalf("seed cash sale: %v", err)
	}
	cardSale := &domain.Sale{
		SeriesID:      "series-a",
		InvoiceNumber: 900002,
		PaymentMethod: domain.PaymentCard,
		SubtotalCents: 26087,
		TaxCents:      3913,
		TotalCents:    30000,
		Lines: []domain.SaleLine{
			{ItemID: "item-y", Qty: 1, UnitPriceCents: 26087, AmountCents: 26087},
		},
	}
	if err := repo.CreateSale(ctx, cardSale); err != nil {
		t.Fatalf("seed card sale: %v", err)
	}
	if err := repo.CreateReturn(ctx, &domain.Return{
		SaleID:     cashSale.ID,
		Reason:     "ajuste",
		TotalCents: 5000,
		Lines: []domain.ReturnLine{
			{SaleLineID: cashSale.Lines[0].ID, ItemID: "item-x", Qty: 1, UnitPriceCents: 10435, AmountCents: 5000},
		},
	}); err != nil {
		t.Fatalf("seed return: %v", err)
	}

	opening := int64(50000)
	counted := int64(164000)
	resp, err := svc.CloseCashSession(ctx, domain.CashSessionRequest{
		BusinessDate:      today,
		OpeningFloatCents: &opening,
		CountedCents:      &counted,
		NextFloatCents:    50000,
		Notes:             "cierre de prueba",
	})
	if err != nil {
		t.Fatalf("close cash session failed: %v", err)
	}

	session := resp.CashSession
	if session.CashSalesCents != 120000 || session.CardSalesCents != 30000 {
		t.Fatalf("unexpected per-method totals: cash=%d card=%d", session.CashSalesCents, session.CardSalesCents)
	}
	if session.ExpectedCashCents != 165000 {
		t.Fatalf("expected cash 165000, got %d", session.ExpectedCashCents)
	}
	if session.DiscrepancyCents != -1000 {
		t.Fatalf("expected discrepancy -1000, got %d", session.DiscrepancyCents)
	}
	if session.Classification != domain.SessionShortage {
		t.Fatalf("expected shortage classification, got %s", session.Classification)
	}
	if session.HandOverCents != 114000 {
		t.Fatalf("expected hand over 114000, got %d", session.HandOverCents)
	}
}

func TestCloseCashSessionCarriesFloatForward(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	today := time.Now().UTC().Format("2006-01-02")

	counted := int64(90000)
	if _, err := svc.CloseCashSession(ctx, domain.CashSessionRequest{
		BusinessDate:   yesterday,
		CountedCents:   &counted,
		NextFloatCents: 70000,
	}); err != nil {
		t.Fatalf("close first session failed: %v", err)
	}

	countedToday := int64(70000)
	resp, err := svc.CloseCashSession(ctx, domain.CashSessionRequest{
		BusinessDate:   today,
		CountedCents:   &countedToday,
		NextFloatCents: 30000,
	})
	if err != nil {
		t.Fatalf("close second session failed: %v", err)
	}
	if resp.CashSession.OpeningFloatCents != 70000 {
		t.Fatalf("expected opening float carried forward as 70000, got %d", resp.CashSession.OpeningFloatCents)
	}
}

func TestCloseCashSessionGuards(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()
	today := time.Now().UTC().Format("2006-01-02")

	_, err := svc.CloseCashSession(ctx, domain.CashSessionRequest{BusinessDate: today, NextFloatCents: 1000})
	if !errors.Is(err, store.ErrMissingCountedAmount) {
		t.Fatalf("expected ErrMissingCountedAmount, got %v", err)
	}

	counted := int64(5000)
	if _, err := svc.CloseCashSession(ctx, domain.CashSessionRequest{BusinessDate: today, CountedCents: &counted}); err != nil {
		t.Fatalf("close session failed: %v", err)
	}
	_, err = svc.CloseCashSession(ctx, domain.CashSessionRequest{BusinessDate: today, CountedCents: &counted})
	if !errors.Is(err, store.ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession, got %v", err)
	}
}

func TestRetireItemLifecycle(t *testing.T) {
	svc, repo := newTestService()
	ctx := adminCtx()

	unreferenced := seedItem(repo, 1000, 3)
	mode, err := svc.RetireItem(ctx, unreferenced.ID)
	if err != nil {
		t.Fatalf("retire unreferenced item: %v", err)
	}
	if mode != "deleted" {
		t.Fatalf("expected unreferenced item deleted, got %s", mode)
	}
	if _, err := repo.GetItemByID(context.Background(), unreferenced.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected item gone, got %v", err)
	}

	referenced := seedItem(repo, 2000, 5)
	if _, err := svc.CommitSale(ctx, domain.SaleRequest{
		PaymentMethod: "card",
		Lines:         []domain.SaleLineRequest{{ItemID: referenced.ID, Qty: 1}},
	}); err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}
	mode, err = svc.RetireItem(ctx, referenced.ID)
	if err != nil {
		t.Fatalf("retire referenced item: %v", err)
	}
	if mode != "deactivated" {
		t.Fatalf("expected referenced item deactivated, got %s", mode)
	}
	item, err := repo.GetItemByID(context.Background(), referenced.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.Active {
		t.Fatalf("expected item inactive after retire")
	}
}

func TestRetireItemRequiresAdmin(t *testing.T) {
	svc, repo := newTestService()
	item := seedItem(repo, 1000, 1)

	ctx := WithActor(context.Background(), domain.Actor{Username: "cashier", Role: "cashier"})
	if _, err := svc.RetireItem(ctx, item.ID); err == nil {
		t.Fatalf("expected retire to fail for non-admin")
	}
}
