package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	model "silent-auction/internal/models"
	"silent-auction/services/bidding/helpers"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

var (
	adminPrincipal  = &model.Principal{Identity: model.Identity{UserID: "admin1", Email: "admin@example.com"}, Role: model.RoleAdmin}
	bidderPrincipal = &model.Principal{Identity: model.Identity{UserID: "user1", Email: "bob@example.com"}, Role: model.RoleBidder}
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestRouter returns a gin engine that acts as if the auth middleware had
// resolved p (nil for anonymous requests).
func newTestRouter(p *model.Principal) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if p != nil {
			helpers.SetPrincipal(c, p)
		}
		c.Next()
	})
	return router
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reqBody []byte
	switch v := body.(type) {
	case nil:
	case string:
		reqBody = []byte(v)
	default:
		var err error
		reqBody, err = json.Marshal(v)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}
