package handlers

import (
	"errors"
	"net/http"

	"leilao/internal/domain"

	"github.com/labstack/echo/v4"
)

// respondError maps the domain error taxonomy onto HTTP status codes. Every
// business outcome keeps its message; store failures surface as 503 without
// leaking driver details.
func respondError(c echo.Context, err error) error {
	var tooLow *domain.BidTooLowError
	if errors.As(err, &tooLow) {
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
			"error":            tooLow.Error(),
			"required_minimum": tooLow.RequiredMinimum,
		})
	}

	switch {
	case errors.Is(err, domain.ErrAuctionNotFound):
		return c.JSON(http.StatusNotFound, errBody(err))
	case errors.Is(err, domain.ErrNoIdentity):
		return c.JSON(http.StatusUnauthorized, errBody(err))
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrDeleteOpenAuction),
		errors.Is(err, domain.ErrCommitConflict):
		return c.JSON(http.StatusConflict, errBody(err))
	case errors.Is(err, domain.ErrImmutableAuction),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrAuctionNotOpen),
		errors.Is(err, domain.ErrOutsideWindow),
		errors.Is(err, domain.ErrSelfBid),
		errors.Is(err, domain.ErrBidTooLow):
		return c.JSON(http.StatusUnprocessableEntity, errBody(err))
	case errors.Is(err, domain.ErrStoreUnavailable):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "storage unavailable"})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func errBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}
