package repairs

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"CAMPUS-backend/internal/platform/apierr"
	"CAMPUS-backend/internal/platform/auth"
	"CAMPUS-backend/internal/platform/paging"
)

type Handler struct{ svc *Service }

// RegisterRoutes: 報告・閲覧・担当者の進捗更新
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/repairs", h.Create)
	r.GET("/repairs", h.List)
	r.GET("/repairs/:id", h.Get)
	r.POST("/repairs/:id/start", h.Start)
	r.POST("/repairs/:id/complete", h.Complete)
	r.POST("/repairs/:id/cancel", h.Cancel)
}

// RegisterModeratorRoutes: 担当者の割り当て
func RegisterModeratorRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/repairs/:id/assign", h.Assign)
}

// Create godoc
// @Summary 修理依頼
// @Tags repairs
// @Accept json
// @Produce json
// @Param body body CreateRequest true "ticket"
// @Success 201 {object} TicketResponse
// @Failure 409 {object} apierr.ErrDTO
// @Router /repairs [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadJSON(c, err)
		return
	}
	res, err := h.svc.Create(c.Request.Context(), auth.IdentityFrom(c), req)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.Header("Location", "/repairs/"+res.ID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Get(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /repairs?status=&product_id=&mine=1&assigned=1
func (h *Handler) List(c *gin.Context) {
	var f Filter
	if v := c.Query("status"); v != "" {
		st := Status(v)
		if !st.Valid() {
			apierr.Write(c, apierr.ErrInvalid("unknown status"))
			return
		}
		f.Status = &st
	}
	if v := c.Query("product_id"); v != "" {
		f.ProductID = &v
	}
	me := auth.IdentityFrom(c)
	if c.Query("mine") == "1" || !me.IsModerator() {
		f.ReporterID = &me.ID
	}
	if c.Query("assigned") == "1" {
		f.ReporterID = nil
		f.TechnicianID = &me.ID
	}
	res, err := h.svc.List(c.Request.Context(), f, paging.FromQuery(c))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Assign(c *gin.Context) {
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadJSON(c, err)
		return
	}
	res, err := h.svc.Assign(c.Request.Context(), auth.IdentityFrom(c), c.Param("id"), req)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Start(c *gin.Context) {
	res, err := h.svc.Start(c.Request.Context(), auth.IdentityFrom(c), c.Param("id"))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Complete(c *gin.Context) {
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		apierr.BadJSON(c, err)
		return
	}
	res, err := h.svc.Complete(c.Request.Context(), auth.IdentityFrom(c), c.Param("id"), req)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Cancel(c *gin.Context) {
	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		apierr.BadJSON(c, err)
		return
	}
	res, err := h.svc.Cancel(c.Request.Context(), auth.IdentityFrom(c), c.Param("id"), req)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
