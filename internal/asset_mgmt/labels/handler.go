package labels

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"CAMPUS-backend/internal/platform/apierr"
)

type Handler struct{ svc *Service }

func RegisterStaffRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.GET("/labels.csv", h.Download)
}

// GET /labels.csv?ids=a,b,c&encoding=cp932
func (h *Handler) Download(c *gin.Context) {
	enc := Encoding(c.DefaultQuery("encoding", string(EncodingCP932)))
	var buf bytes.Buffer
	if _, err := h.svc.Write(c.Request.Context(), ParseIDs(c.Query("ids")), enc, &buf); err != nil {
		apierr.Write(c, err)
		return
	}
	ct := "text/csv; charset=Shift_JIS"
	if enc == EncodingUTF16 {
		ct = "text/csv; charset=UTF-16"
	}
	c.Header("Content-Disposition", `attachment; filename="labels.csv"`)
	c.Data(http.StatusOK, ct, buf.Bytes())
}
