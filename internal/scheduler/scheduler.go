package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/byron-sandoval/Ferreter-a-sub000/internal/config"
	"github.com/byron-sandoval/Ferreter-a-sub000/internal/service"
	"github.com/byron-sandoval/Ferreter-a-sub000/internal/store"
)

// Scheduler runs the periodic back-office checks: a morning low-stock scan
// and a reminder when the previous business day was never reconciled.
type Scheduler struct {
	cron   *cron.Cron
	svc    *service.Service
	cfg    config.Config
	logger *zap.Logger
}

func New(cfg config.Config, svc *service.Service, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		cron:   cron.New(),
		svc:    svc,
		cfg:    cfg,
		logger: logger,
	}
}

func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler",
		zap.String("low_stock_cron", s.cfg.LowStockCronSpec),
		zap.String("session_check_cron", s.cfg.SessionCheckCronSpec))

	if _, err := s.cron.AddFunc(s.cfg.LowStockCronSpec, s.scanLowStock); err != nil {
		s.logger.Error("failed to schedule low stock scan", zap.Error(err))
	}
	if _, err := s.cron.AddFunc(s.cfg.SessionCheckCronSpec, s.checkUnclosedSession); err != nil {
		s.logger.Error("failed to schedule session check", zap.Error(err))
	}

	s.cron.Start()
}

func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	s.cron.Stop()
}

func (s *Scheduler) scanLowStock() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	items, err := s.svc.ListLowStockItems(ctx)
	if err != nil {
		s.logger.Error("low stock scan failed", zap.Error(err))
		return
	}
	if len(items) == 0 {
		s.logger.Info("low stock scan clean")
		return
	}
	for _, item := range items {
		s.logger.Warn("item at or below minimum stock",
			zap.String("item_id", item.ID),
			zap.String("sku", item.SKU),
			zap.Int("qty_on_hand", item.QtyOnHand),
			zap.Int("min_qty", item.MinQty))
	}
}

func (s *Scheduler) checkUnclosedSession() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	_, err := s.svc.GetCashSession(ctx, yesterday)
	switch {
	case err == nil:
		s.logger.Info("previous business day reconciled", zap.String("business_date", yesterday))
	case errors.Is(err, store.ErrNotFound):
		s.logger.Warn("previous business day has no cash session close",
			zap.String("business_date", yesterday))
	default:
		s.logger.Error("session check failed", zap.String("business_date", yesterday), zap.Error(err))
	}
}
