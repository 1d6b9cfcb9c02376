package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"silent-auction/internal/auth"
	"silent-auction/internal/biddingerrors"
	model "silent-auction/internal/models"
	"silent-auction/utils"

	"github.com/gin-gonic/gin"
)

const principalKey = "auction.principal"

// SetPrincipal stores the caller resolved by the auth middleware
func SetPrincipal(c *gin.Context, p *model.Principal) {
	c.Set(principalKey, p)
}

// PrincipalFrom returns the caller, or nil for anonymous requests
func PrincipalFrom(c *gin.Context) *model.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*model.Principal)
	return p
}

// IdentityFrom returns the caller's identity, or nil for anonymous requests
func IdentityFrom(c *gin.Context) *model.Identity {
	p := PrincipalFrom(c)
	if p == nil {
		return nil
	}
	id := p.Identity
	return &id
}

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, biddingerrors.ErrItemNotFound):
		return http.StatusNotFound, "item not found"
	case errors.Is(err, biddingerrors.ErrBiddingClosed):
		return http.StatusConflict, "bidding closed"
	case errors.Is(err, biddingerrors.ErrAuthRequired), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, biddingerrors.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid amount"
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return http.StatusConflict, "amount below minimum"
	case errors.Is(err, biddingerrors.ErrInvalidItem):
		return http.StatusBadRequest, "invalid item details"
	case errors.Is(err, biddingerrors.ErrForbidden):
		return http.StatusForbidden, "admin role required"
	case errors.Is(err, biddingerrors.ErrConflict):
		return http.StatusConflict, "someone outbid you, refresh and retry"
	case errors.Is(err, biddingerrors.ErrNoBids):
		return http.StatusNotFound, "no bids found for item"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// RespondError writes the mapped error, attaching the figures a client can act on
func RespondError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, message := MapErrorToHTTP(err)
	wrapped := fmt.Errorf("%s: %w", message, err)

	var tooLow *biddingerrors.BidTooLowError
	var cascade *biddingerrors.CascadeDeleteError
	switch {
	case errors.As(err, &tooLow):
		utils.JSONErrorWithData(c, status, wrapped, message, BidTooLowResponse{MinRequired: tooLow.MinRequired, CurrentTop: tooLow.CurrentTop})
	case errors.As(err, &cascade):
		message = "item deletion incomplete"
		utils.JSONErrorWithData(c, status, fmt.Errorf("%s: %w", message, err), message, CascadeDeleteResponse{
			ItemID:      cascade.ItemID,
			BidsDeleted: cascade.BidsDeleted,
			BidsTotal:   cascade.BidsTotal,
		})
	default:
		utils.JSONError(c, status, wrapped, message)
	}

	if fields == nil {
		fields = map[string]any{}
	}
	fields["handler"] = handlerName
	fields["status"] = status
	fields["error"] = err.Error()
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", fields)
	} else {
		utils.Warn(handlerName+": request rejected", fields)
	}
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
