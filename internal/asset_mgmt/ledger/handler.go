package ledger

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"CAMPUS-backend/internal/platform/apierr"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.GET("/stats", h.GetStats)
}

// RegisterAdminRoutes: 再集計は管理者のみ
func RegisterAdminRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/stats/recount", h.Recount)
}

// GetStats godoc
// @Summary ダッシュボード集計
// @Tags stats
// @Produce json
// @Success 200 {object} Stats
// @Router /stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	st, err := h.svc.GetStats(c.Request.Context())
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) Recount(c *gin.Context) {
	res, err := h.svc.Recount(c.Request.Context())
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
