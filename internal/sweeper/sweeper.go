package sweeper

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"apflow/internal/model"
	"apflow/internal/notify"
	"apflow/internal/repository"
)

const (
	// DefaultStaleAfter is how long an invoice may sit in Verified or
	// PendingApproval before its approver is reminded.
	DefaultStaleAfter = 48 * time.Hour
	// DefaultInterval is the sweep tick.
	DefaultInterval = time.Hour
	// DefaultDedupTTL suppresses repeat alerts for the same invoice.
	DefaultDedupTTL = 24 * time.Hour
)

// Deduper suppresses repeat alerts. Mark returns true when the key was not
// seen within ttl, claiming it atomically.
type Deduper interface {
	Mark(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisDeduper implements Deduper with SET NX EX.
type RedisDeduper struct {
	rdb *redis.Client
}

func NewRedisDeduper(rdb *redis.Client) *RedisDeduper {
	return &RedisDeduper{rdb: rdb}
}

func (d *RedisDeduper) Mark(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return d.rdb.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// NoDedup alerts on every tick, matching the behavior of running without
// redis.
type NoDedup struct{}

func (NoDedup) Mark(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, nil
}

// Sweeper periodically scans for invoices stuck in Verified or
// PendingApproval and reminds their approvers. It is read-only with respect
// to invoice state and fully decoupled from pipeline concurrency.
type Sweeper struct {
	repo       repository.InvoiceRepository
	notifier   notify.Dispatcher
	dedup      Deduper
	logger     *logrus.Logger
	staleAfter time.Duration
	interval   time.Duration
	dedupTTL   time.Duration
}

// New builds a Sweeper; zero durations fall back to the defaults.
func New(repo repository.InvoiceRepository, notifier notify.Dispatcher, dedup Deduper, logger *logrus.Logger, staleAfter, interval, dedupTTL time.Duration) *Sweeper {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if dedupTTL <= 0 {
		dedupTTL = DefaultDedupTTL
	}
	if dedup == nil {
		dedup = NoDedup{}
	}
	return &Sweeper{
		repo:       repo,
		notifier:   notifier,
		dedup:      dedup,
		logger:     logger,
		staleAfter: staleAfter,
		interval:   interval,
		dedupTTL:   dedupTTL,
	}
}

var watchedStatuses = []model.Status{model.StatusVerified, model.StatusPendingApproval}

// Sweep computes the stale alerts as of now. It mutates nothing on the
// invoices it reads; deduplication state lives outside the invoice record.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) ([]notify.StaleAlert, error) {
	invoices, err := s.repo.ListByStatus(ctx, watchedStatuses)
	if err != nil {
		return nil, err
	}

	alerts := make([]notify.StaleAlert, 0)
	for i := range invoices {
		inv := &invoices[i]
		elapsed := now.Sub(inv.LastActivityAt())
		if elapsed <= s.staleAfter {
			continue
		}
		fresh, err := s.dedup.Mark(ctx, "stale-alert:"+inv.ID, s.dedupTTL)
		if err != nil {
			// Degrade to alert-every-tick rather than staying silent.
			s.logger.WithError(err).WithField("invoice_id", inv.ID).
				Warn("alert dedup unavailable; alerting anyway")
			fresh = true
		}
		if !fresh {
			continue
		}
		alert := notify.StaleAlert{
			InvoiceID:  inv.ID,
			Status:     inv.Status,
			Approver:   inv.Approver,
			StaleHours: elapsed.Hours(),
		}
		if inv.Extracted != nil {
			alert.InvoiceNumber = inv.Extracted.InvoiceNumber
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

// Run executes Sweep on a fixed interval until ctx is cancelled, delivering
// each alert through the notifier. Delivery is best-effort.
func (s *Sweeper) Run(ctx context.Context) {
	log := s.logger.WithField("component", "sweeper")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.WithField("interval", s.interval.String()).Info("reminder sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info("reminder sweeper stopped")
			return
		case now := <-ticker.C:
			alerts, err := s.Sweep(ctx, now.UTC())
			if err != nil {
				log.WithError(err).Error("sweep failed")
				continue
			}
			for _, alert := range alerts {
				s.notifier.Remind(ctx, alert)
			}
			if len(alerts) > 0 {
				log.WithField("alerts", len(alerts)).Info("stale invoice reminders sent")
			}
		}
	}
}
