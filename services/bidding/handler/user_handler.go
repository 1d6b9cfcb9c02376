package handler

import (
	"net/http"

	"silent-auction/internal/biddingerrors"
	"silent-auction/services/bidding/helpers"
	"silent-auction/utils"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	service UserServiceInterface
}

func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// RegisterHandler handles POST /users/register
func (h *UserHandler) RegisterHandler(c *gin.Context) {
	user, err := h.service.Register(c.Request.Context(), helpers.IdentityFrom(c))
	if err != nil {
		helpers.RespondError(c, "RegisterHandler", err, nil)
		return
	}

	utils.JSONResponse(c, http.StatusOK, user, "user registered successfully")
	helpers.LogSuccess("RegisterHandler", "user registered successfully", map[string]any{"user_id": user.UserID})
}

// MeHandler handles GET /users/me
func (h *UserHandler) MeHandler(c *gin.Context) {
	p := helpers.PrincipalFrom(c)
	if p == nil {
		helpers.RespondError(c, "MeHandler", biddingerrors.ErrAuthRequired, nil)
		return
	}
	utils.JSONResponse(c, http.StatusOK, p, "current user")
}
