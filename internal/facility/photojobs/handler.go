package photojobs

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"CAMPUS-backend/internal/platform/apierr"
	"CAMPUS-backend/internal/platform/auth"
	"CAMPUS-backend/internal/platform/paging"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/photo-jobs", h.Create)
	r.GET("/photo-jobs", h.List)
	r.GET("/photo-jobs/:id", h.Get)
	r.POST("/photo-jobs/:id/complete", h.Complete)
	r.POST("/photo-jobs/:id/cancel", h.Cancel)
}

// RegisterModeratorRoutes: 撮影者の割り当て
func RegisterModeratorRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/photo-jobs/:id/assign", h.Assign)
}

func parseTimeQuery(c *gin.Context, key string) (*time.Time, bool) {
	v := c.Query(key)
	if v == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		apierr.Write(c, apierr.ErrInvalid(key+" must be RFC3339"))
		return nil, false
	}
	return &t, true
}

// Create godoc
// @Summary 撮影依頼
// @Tags photo-jobs
// @Accept json
// @Produce json
// @Param body body CreateRequest true "job"
// @Success 201 {object} JobResponse
// @Failure 400 {object} apierr.ErrDTO
// @Router /photo-jobs [post]
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
	c.Header("Location", "/photo-jobs/"+res.ID)
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

// GET /photo-jobs?status=&from=&to=&mine=1&assigned=1
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
	me := auth.IdentityFrom(c).ID
	if c.Query("mine") == "1" {
		f.RequesterID = &me
	}
	if c.Query("assigned") == "1" {
		f.PhotographerID = &me
	}
	var ok bool
	if f.From, ok = parseTimeQuery(c, "from"); !ok {
		return
	}
	if f.To, ok = parseTimeQuery(c, "to"); !ok {
		return
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

func (h *Handler) Complete(c *gin.Context) {
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
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
	res, err := h.svc.Cancel(c.Request.Context(), auth.IdentityFrom(c), c.Param("id"))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
