package handlers

import (
	"context"
	"net/http"
	"time"

	"leilao/internal/api/middleware"
	"leilao/internal/domain"
	"leilao/internal/services"
	"leilao/pkg/logger"

	"github.com/labstack/echo/v4"
)

type AuctionHandler struct {
	manager  *services.AuctionManager
	identity middleware.IdentityProvider
	log      logger.Logger
}

func NewAuctionHandler(manager *services.AuctionManager, identity middleware.IdentityProvider, log logger.Logger) *AuctionHandler {
	return &AuctionHandler{
		manager:  manager,
		identity: identity,
		log:      log,
	}
}

type AuctionRequest struct {
	Title               string    `json:"title"`
	Description         string    `json:"description"`
	DetailedDescription string    `json:"detailed_description"`
	Observation         string    `json:"observation"`
	CategoryID          string    `json:"category_id"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	MinimumBid          float64   `json:"minimum_bid"`
	Increment           float64   `json:"increment"`
}

type AuctionResponse struct {
	ID                  string    `json:"id"`
	Title               string    `json:"title"`
	Description         string    `json:"description"`
	DetailedDescription string    `json:"detailed_description,omitempty"`
	Observation         string    `json:"observation,omitempty"`
	CategoryID          string    `json:"category_id"`
	SellerID            string    `json:"seller_id"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	MinimumBid          float64   `json:"minimum_bid"`
	Increment           float64   `json:"increment"`
	Status              string    `json:"status"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func toAuctionResponse(a *domain.Auction) AuctionResponse {
	return AuctionResponse{
		ID:                  a.ID,
		Title:               a.Title,
		Description:         a.Description,
		DetailedDescription: a.DetailedDescription,
		Observation:         a.Observation,
		CategoryID:          a.CategoryID,
		SellerID:            a.SellerID,
		StartTime:           a.StartTime,
		EndTime:             a.EndTime,
		MinimumBid:          a.MinimumBid,
		Increment:           a.Increment,
		Status:              a.Status.String(),
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}

func (r AuctionRequest) toInput() services.AuctionInput {
	return services.AuctionInput{
		Title:               r.Title,
		Description:         r.Description,
		DetailedDescription: r.DetailedDescription,
		Observation:         r.Observation,
		CategoryID:          r.CategoryID,
		StartTime:           r.StartTime,
		EndTime:             r.EndTime,
		MinimumBid:          r.MinimumBid,
		Increment:           r.Increment,
	}
}

func (h *AuctionHandler) CreateAuction(c echo.Context) error {
	sellerID, err := h.identity.Resolve(c.Request())
	if err != nil {
		return respondError(c, err)
	}

	var req AuctionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	auction, err := h.manager.CreateAuction(c.Request().Context(), sellerID, req.toInput())
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, toAuctionResponse(auction))
}

func (h *AuctionHandler) GetAuction(c echo.Context) error {
	auction, err := h.manager.GetAuction(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toAuctionResponse(auction))
}

// ListAuctions filters by either status or seller_id.
func (h *AuctionHandler) ListAuctions(c echo.Context) error {
	ctx := c.Request().Context()

	var (
		auctions []*domain.Auction
		err      error
	)

	switch {
	case c.QueryParam("status") != "":
		status, parseErr := domain.ParseAuctionStatus(c.QueryParam("status"))
		if parseErr != nil {
			return respondError(c, parseErr)
		}
		auctions, err = h.manager.ListByStatus(ctx, status)
	case c.QueryParam("seller_id") != "":
		auctions, err = h.manager.ListBySeller(ctx, c.QueryParam("seller_id"))
	default:
		auctions, err = h.manager.ListByStatus(ctx, domain.StatusAberto)
	}
	if err != nil {
		return respondError(c, err)
	}

	responses := make([]AuctionResponse, 0, len(auctions))
	for _, a := range auctions {
		responses = append(responses, toAuctionResponse(a))
	}
	return c.JSON(http.StatusOK, responses)
}

func (h *AuctionHandler) UpdateAuction(c echo.Context) error {
	var req AuctionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	auction, err := h.manager.UpdateAuction(c.Request().Context(), c.Param("id"), req.toInput())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toAuctionResponse(auction))
}

func (h *AuctionHandler) DeleteAuction(c echo.Context) error {
	if err := h.manager.DeleteAuction(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuctionHandler) OpenAuction(c echo.Context) error {
	return h.lifecycle(c, h.manager.OpenAuction)
}

func (h *AuctionHandler) CloseAuction(c echo.Context) error {
	return h.lifecycle(c, h.manager.CloseAuction)
}

func (h *AuctionHandler) CancelAuction(c echo.Context) error {
	return h.lifecycle(c, h.manager.CancelAuction)
}

func (h *AuctionHandler) lifecycle(c echo.Context, verb func(ctx context.Context, id string) (*domain.Auction, error)) error {
	auction, err := verb(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toAuctionResponse(auction))
}
