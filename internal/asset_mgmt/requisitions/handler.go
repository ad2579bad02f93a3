package requisitions

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"CAMPUS-backend/internal/platform/apierr"
	"CAMPUS-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

// RegisterStaffRoutes: 払出しは職員が記録する
func RegisterStaffRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/products/:id/requisitions", h.Create)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadJSON(c, err)
		return
	}
	me := auth.IdentityFrom(c)
	res, err := h.svc.Create(c.Request.Context(), c.Param("id"), Requester{ID: me.ID, Name: me.Name}, req)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.Header("Location", "/transactions/"+res.TransactionID)
	c.JSON(http.StatusCreated, res)
}
