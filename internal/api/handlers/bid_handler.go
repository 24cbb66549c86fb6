package handlers

import (
	"net/http"
	"time"

	"leilao/internal/api/middleware"
	"leilao/internal/domain"
	"leilao/internal/services"
	"leilao/pkg/logger"

	"github.com/labstack/echo/v4"
)

type BidHandler struct {
	bids     *services.BidService
	identity middleware.IdentityProvider
	log      logger.Logger
}

func NewBidHandler(bids *services.BidService, identity middleware.IdentityProvider, log logger.Logger) *BidHandler {
	return &BidHandler{
		bids:     bids,
		identity: identity,
		log:      log,
	}
}

type PlaceBidRequest struct {
	Amount float64 `json:"amount"`
}

type BidResponse struct {
	ID        string    `json:"id"`
	AuctionID string    `json:"auction_id"`
	BidderID  string    `json:"bidder_id"`
	Amount    float64   `json:"amount"`
	PlacedAt  time.Time `json:"placed_at"`
}

func toBidResponse(b *domain.Bid) BidResponse {
	return BidResponse{
		ID:        b.ID,
		AuctionID: b.AuctionID,
		BidderID:  b.BidderID,
		Amount:    b.Amount,
		PlacedAt:  b.PlacedAt,
	}
}

func (h *BidHandler) PlaceBid(c echo.Context) error {
	bidderID, err := h.identity.Resolve(c.Request())
	if err != nil {
		return respondError(c, err)
	}

	var req PlaceBidRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	bid, err := h.bids.PlaceBid(c.Request().Context(), c.Param("id"), bidderID, req.Amount)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, toBidResponse(bid))
}

// ListBids returns the auction's bids in descending amount order.
func (h *BidHandler) ListBids(c echo.Context) error {
	bids, err := h.bids.ListBids(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}

	responses := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		responses = append(responses, toBidResponse(b))
	}
	return c.JSON(http.StatusOK, responses)
}

func (h *BidHandler) GetHighestBid(c echo.Context) error {
	snap, err := h.bids.CurrentHighest(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	if snap == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "auction has no bids"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"auction_id": snap.AuctionID,
		"bidder_id":  snap.BidderID,
		"amount":     snap.Amount,
		"updated_at": snap.UpdatedAt,
	})
}

// ListMyBids returns the caller's bids across auctions, newest first.
func (h *BidHandler) ListMyBids(c echo.Context) error {
	bidderID, err := h.identity.Resolve(c.Request())
	if err != nil {
		return respondError(c, err)
	}

	bids, err := h.bids.ListBidsByBidder(c.Request().Context(), bidderID)
	if err != nil {
		return respondError(c, err)
	}

	responses := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		responses = append(responses, toBidResponse(b))
	}
	return c.JSON(http.StatusOK, responses)
}
