package products

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"CAMPUS-backend/internal/asset_mgmt/inventory"
	"CAMPUS-backend/internal/platform/apierr"
	"CAMPUS-backend/internal/platform/paging"
)

const maxImageBytes = 8 << 20

type Handler struct{ svc *Service }

// RegisterRoutes: 参照系（ログイン済みなら誰でも）
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.GET("/products", h.List)
	r.GET("/products/export", h.Export)
	r.GET("/products/:id", h.Get)
	r.GET("/products/by-stock-id/:stock_id", h.GetByStockID)
}

// RegisterStaffRoutes: 登録・編集（staff/admin）
func RegisterStaffRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/products", h.Create)
	r.PATCH("/products/:id", h.UpdateInfo)
	r.PUT("/products/:id/status", h.UpdateStatus)
	r.POST("/products/:id/stock", h.AdjustStock)
	r.POST("/products/:id/image", h.UploadImage)
	r.DELETE("/products/:id", h.Delete)
}

func filterFromQuery(c *gin.Context) Filter {
	var f Filter
	if v := c.Query("category_id"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			id := uint(n)
			f.CategoryID = &id
		}
	}
	if v := c.Query("kind"); v != "" {
		k := inventory.Kind(v)
		if k.Valid() {
			f.Kind = &k
		}
	}
	if v := c.Query("status"); v != "" {
		if st, ok := inventory.NormalizeStatus(v); ok {
			f.Status = &st
		}
	}
	if v := c.Query("q"); v != "" {
		f.Keyword = &v
	}
	return f
}

// Create godoc
// @Summary 品目登録
// @Tags products
// @Accept json
// @Produce json
// @Param body body CreateProductRequest true "product"
// @Success 201 {object} ProductResponse
// @Router /products [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadJSON(c, err)
		return
	}
	res, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.Header("Location", "/products/"+res.ID)
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

func (h *Handler) GetByStockID(c *gin.Context) {
	res, err := h.svc.GetByStockID(c.Request.Context(), c.Param("stock_id"))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) List(c *gin.Context) {
	res, err := h.svc.List(c.Request.Context(), filterFromQuery(c), paging.FromQuery(c))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Export(c *gin.Context) {
	name := "stock-" + time.Now().Format("20060102") + ".xlsx"
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := h.svc.Export(c.Request.Context(), filterFromQuery(c), c.Writer); err != nil {
		// ヘッダ送信後の可能性があるのでステータスだけ
		c.Status(http.StatusInternalServerError)
		return
	}
}

func (h *Handler) UpdateInfo(c *gin.Context) {
	var req UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadJSON(c, err)
		return
	}
	res, err := h.svc.UpdateInfo(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadJSON(c, err)
		return
	}
	res, err := h.svc.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// AdjustStock godoc
// @Summary 在庫数の調整（set: 目標値 / add: 増減）
// @Tags products
// @Accept json
// @Produce json
// @Param id path string true "product id"
// @Param body body StockRequest true "stock"
// @Success 200 {object} ProductResponse
// @Router /products/{id}/stock [post]
func (h *Handler) AdjustStock(c *gin.Context) {
	var req StockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadJSON(c, err)
		return
	}
	res, err := h.svc.AdjustProductStock(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) UploadImage(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		apierr.Write(c, apierr.ErrInvalid("image file is required"))
		return
	}
	if fh.Size > maxImageBytes {
		apierr.Write(c, apierr.ErrInvalid("image exceeds 8MB"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		apierr.Write(c, apierr.ErrInvalid("cannot read image"))
		return
	}
	defer f.Close()

	res, err := h.svc.SetImage(c.Request.Context(), c.Param("id"), f)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		apierr.Write(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
