package services

import (
	"context"
	"fmt"
	"time"

	"leilao/internal/domain"
	"leilao/pkg/logger"

	"github.com/robfig/cron/v3"
)

// ExpiryMonitor periodically reports auctions that are still ABERTO past
// their end time. It never closes them: expiry is enforced at bid admission
// and the lifecycle only moves through explicit operator actions. The sweep
// runs on the leader instance only so a fleet emits each report once.
type ExpiryMonitor struct {
	cron       *cron.Cron
	auctions   domain.AuctionRepository
	eventPub   domain.EventPublisher
	leader     domain.LeaderElection
	clock      domain.Clock
	instanceID string
	interval   time.Duration
	log        logger.Logger
}

func NewExpiryMonitor(
	auctions domain.AuctionRepository,
	eventPub domain.EventPublisher,
	leader domain.LeaderElection,
	clock domain.Clock,
	instanceID string,
	interval time.Duration,
	log logger.Logger,
) *ExpiryMonitor {
	return &ExpiryMonitor{
		cron:       cron.New(),
		auctions:   auctions,
		eventPub:   eventPub,
		leader:     leader,
		clock:      clock,
		instanceID: instanceID,
		interval:   interval,
		log:        log,
	}
}

func (m *ExpiryMonitor) Start(ctx context.Context) error {
	m.log.Info("Starting expiry monitor", "interval", m.interval.String())

	_, err := m.cron.AddFunc(fmt.Sprintf("@every %s", m.interval), func() {
		m.sweep(ctx)
	})
	if err != nil {
		return err
	}

	m.cron.Start()
	return nil
}

func (m *ExpiryMonitor) Stop() error {
	m.log.Info("Stopping expiry monitor")
	m.cron.Stop()
	return nil
}

func (m *ExpiryMonitor) sweep(ctx context.Context) {
	isLeader, err := m.leader.IsLeader(ctx, m.instanceID)
	if err != nil {
		m.log.Error("Leader check failed", "error", err)
		return
	}
	if !isLeader {
		// A crashed leader leaves an expired lease behind; pick it up so
		// the fleet never goes permanently leaderless.
		became, err := m.leader.BecomeLeader(ctx, m.instanceID)
		if err != nil {
			m.log.Error("Leadership attempt failed", "error", err)
			return
		}
		if !became {
			return
		}
		m.log.Info("Became expiry monitor leader", "instance_id", m.instanceID)
	}

	expired, err := m.auctions.ListExpiredOpen(ctx, m.clock.Now())
	if err != nil {
		m.log.Error("Failed to list expired open auctions", "error", err)
		return
	}

	for _, auction := range expired {
		m.log.Warn("Auction past end time but still open",
			"auction_id", auction.ID, "end_time", auction.EndTime)

		if err := m.eventPub.PublishAuctionEvent(ctx, &domain.AuctionEvent{
			Type:      domain.EventAuctionExpiredOpen,
			AuctionID: auction.ID,
			Status:    auction.Status.String(),
			Timestamp: m.clock.Now(),
		}); err != nil {
			m.log.Error("Failed to publish expiry report",
				"auction_id", auction.ID, "error", err)
		}
	}
}
