package services

import (
	"context"
	"fmt"

	"leilao/internal/domain"
	"leilao/pkg/logger"
)

// EventListener bridges the auction event bus to websocket watchers.
type EventListener struct {
	connManager  domain.ConnectionManager
	highestCache domain.HighestBidCache
	log          logger.Logger
}

func NewEventListener(connManager domain.ConnectionManager, highestCache domain.HighestBidCache, log logger.Logger) *EventListener {
	return &EventListener{
		connManager:  connManager,
		highestCache: highestCache,
		log:          log,
	}
}

func (el *EventListener) Start(ctx context.Context, subscriber domain.EventSubscriber) error {
	el.log.Info("Starting event listener")
	return subscriber.SubscribeAuctionEvents(ctx, el.handleEvent)
}

func (el *EventListener) handleEvent(event *domain.AuctionEvent) error {
	el.log.Debug("Handling auction event", "type", event.Type, "auction_id", event.AuctionID)

	switch event.Type {
	case domain.EventBidAccepted:
		return el.handleBidAccepted(event)
	case domain.EventAuctionOpened:
		return el.handleStatusChange(event)
	case domain.EventAuctionClosed, domain.EventAuctionCancelled:
		return el.handleAuctionEnded(event)
	case domain.EventAuctionExpiredOpen:
		return el.handleExpiredOpen(event)
	}

	return fmt.Errorf("unknown event type %q", event.Type)
}

func (el *EventListener) handleBidAccepted(event *domain.AuctionEvent) error {
	return el.connManager.BroadcastToAuction(event.AuctionID, map[string]interface{}{
		"type":           "bid_update",
		"current_bid":    event.Amount,
		"current_winner": event.BidderID,
		"timestamp":      event.Timestamp,
	})
}

func (el *EventListener) handleStatusChange(event *domain.AuctionEvent) error {
	return el.connManager.BroadcastToAuction(event.AuctionID, map[string]interface{}{
		"type":      "status_update",
		"status":    event.Status,
		"timestamp": event.Timestamp,
	})
}

// handleAuctionEnded tells every watcher the auction is over, drops the
// stale highest-bid cache entry and closes the auction's connections.
func (el *EventListener) handleAuctionEnded(event *domain.AuctionEvent) error {
	if err := el.highestCache.Invalidate(context.Background(), event.AuctionID); err != nil {
		el.log.Warn("Failed to invalidate highest-bid cache",
			"auction_id", event.AuctionID, "error", err)
	}

	if err := el.connManager.BroadcastToAuction(event.AuctionID, map[string]interface{}{
		"type":      "auction_ended",
		"status":    event.Status,
		"timestamp": event.Timestamp,
	}); err != nil {
		el.log.Error("Failed to broadcast auction end",
			"auction_id", event.AuctionID, "error", err)
		return err
	}

	return el.connManager.CloseAuctionConnections(event.AuctionID)
}

func (el *EventListener) handleExpiredOpen(event *domain.AuctionEvent) error {
	// Informational only. The auction stays ABERTO until an explicit close;
	// bids placed past the end time are already rejected at admission.
	return el.connManager.BroadcastToAuction(event.AuctionID, map[string]interface{}{
		"type":      "auction_expired",
		"timestamp": event.Timestamp,
	})
}
