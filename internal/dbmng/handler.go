// handler.go
package dbmng

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"CAMPUS-backend/internal/platform/apierr"
)

type Handler struct{ svc *Service }

// RegisterRoutes: 参照
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.GET("/categories", h.ListCategories)
	r.GET("/categories/:id", h.GetCategory)
}

// RegisterAdminRoutes: 登録・変更
func RegisterAdminRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/categories", h.CreateCategory)
	r.PUT("/categories/:id", h.UpdateCategory)
	r.DELETE("/categories/:id", h.DeleteCategory)
}

func paramID(c *gin.Context) (uint, bool) {
	idU64, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || idU64 == 0 {
		apierr.Write(c, apierr.ErrInvalid("invalid id"))
		return 0, false
	}
	return uint(idU64), true
}

func (h *Handler) ListCategories(c *gin.Context) {
	resp, err := h.svc.ListCategories(c.Request.Context(), c.Query("all"))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetCategory(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	resp, err := h.svc.GetCategory(c.Request.Context(), id)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) CreateCategory(c *gin.Context) {
	var req CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadJSON(c, err)
		return
	}
	resp, err := h.svc.CreateCategory(c.Request.Context(), req.Name, req.Code)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) UpdateCategory(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req UpdateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadJSON(c, err)
		return
	}
	resp, err := h.svc.UpdateCategory(c.Request.Context(), id, req.Name, req.Code, req.IsDisabled)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) DeleteCategory(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.svc.DisableCategory(c.Request.Context(), id); err != nil {
		apierr.Write(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
