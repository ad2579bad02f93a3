package lends

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"CAMPUS-backend/internal/asset_mgmt/inventory"
	"CAMPUS-backend/internal/platform/apierr"
	"CAMPUS-backend/internal/platform/auth"
	"CAMPUS-backend/internal/platform/paging"
)

const maxSignatureBytes = 2 << 20

type Handler struct{ svc *Service }

// RegisterRoutes: ログイン済み利用者
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/products/:id/borrow", h.Borrow)
	r.GET("/products/:id/active-borrows", h.ListActiveBorrows)
	r.GET("/transactions", h.ListTransactions)
	r.GET("/transactions/:tx_id", h.GetTransaction)
	r.POST("/signatures", h.UploadSignature)
}

// RegisterStaffRoutes: 返却の受け取りは職員のみ
func RegisterStaffRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/products/:id/return", h.Return)
}

// ---------- handlers ----------

// Borrow godoc
// @Summary 貸出
// @Tags lends
// @Accept json
// @Produce json
// @Param id path string true "product id"
// @Param body body BorrowRequest false "borrow"
// @Success 201 {object} BorrowResponse
// @Failure 409 {object} apierr.ErrDTO
// @Router /products/{id}/borrow [post]
func (h *Handler) Borrow(c *gin.Context) {
	var req BorrowRequest
	// 本文なしも可
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		apierr.BadJSON(c, err)
		return
	}

	me := auth.IdentityFrom(c)
	who := Person{ID: me.ID, Name: me.Name}
	// 代理貸出
	if me.IsModerator() && req.BorrowerID != nil && *req.BorrowerID != "" {
		who = Person{ID: *req.BorrowerID}
		if req.BorrowerName != nil {
			who.Name = *req.BorrowerName
		}
	}

	res, err := h.svc.Borrow(c.Request.Context(), c.Param("id"), who, req)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.Header("Location", "/transactions/"+res.Transaction.ID)
	c.JSON(http.StatusCreated, res)
}

// Return godoc
// @Summary 返却
// @Tags lends
// @Accept json
// @Produce json
// @Param id path string true "product id"
// @Param body body ReturnRequest true "return"
// @Success 200 {object} ReturnResponse
// @Router /products/{id}/return [post]
func (h *Handler) Return(c *gin.Context) {
	var req ReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadJSON(c, err)
		return
	}
	me := auth.IdentityFrom(c)
	res, err := h.svc.CompleteReturn(c.Request.Context(), c.Param("id"), Person{ID: me.ID, Name: me.Name}, req)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListActiveBorrows(c *gin.Context) {
	res, err := h.svc.ListActiveBorrows(c.Request.Context(), c.Param("id"))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": res})
}

func (h *Handler) ListTransactions(c *gin.Context) {
	var f TxFilter
	if v := c.Query("type"); v != "" {
		t := inventory.TxType(v)
		f.Type = &t
	}
	if v := c.Query("status"); v != "" {
		st := inventory.TxStatus(v)
		f.Status = &st
	}
	if v := c.Query("product_id"); v != "" {
		f.ProductID = &v
	}
	if v := c.Query("borrower_id"); v != "" {
		f.BorrowerID = &v
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			apierr.Write(c, apierr.ErrInvalid("from must be RFC3339"))
			return
		}
		f.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			apierr.Write(c, apierr.ErrInvalid("to must be RFC3339"))
			return
		}
		f.To = &t
	}

	// 一般利用者は自分の履歴だけ
	if me := auth.IdentityFrom(c); !me.IsModerator() {
		f.BorrowerID = &me.ID
	}

	res, err := h.svc.ListTransactions(c.Request.Context(), f, paging.FromQuery(c))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetTransaction(c *gin.Context) {
	res, err := h.svc.GetTransaction(c.Request.Context(), c.Param("tx_id"))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	if me := auth.IdentityFrom(c); !me.IsModerator() && res.BorrowerID != me.ID {
		apierr.Write(c, apierr.ErrNotFound("transaction not found"))
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /signatures (multipart: signature)
func (h *Handler) UploadSignature(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSignatureBytes)
	fh, err := c.FormFile("signature")
	if err != nil {
		apierr.Write(c, apierr.ErrInvalid("signature file is required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		apierr.Write(c, apierr.ErrInvalid("could not read signature"))
		return
	}
	defer f.Close()

	res, err := h.svc.UploadSignature(c.Request.Context(), f)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}
