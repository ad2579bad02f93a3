package bookings

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"CAMPUS-backend/internal/platform/apierr"
	"CAMPUS-backend/internal/platform/auth"
	"CAMPUS-backend/internal/platform/paging"
)

type Handler struct{ svc *Service }

// RegisterRoutes: ログイン済み利用者
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.GET("/rooms", h.ListRooms)
	r.GET("/rooms/:room_id/conflicts", h.CheckConflict)
	r.POST("/bookings", h.Create)
	r.GET("/bookings", h.List)
	r.GET("/bookings/:id", h.Get)
	r.POST("/bookings/:id/cancel", h.Cancel)
}

// RegisterModeratorRoutes: 承認・却下・部屋登録
func RegisterModeratorRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/rooms", h.CreateRoom)
	r.POST("/bookings/:id/approve", h.Approve)
	r.POST("/bookings/:id/reject", h.Reject)
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

func (h *Handler) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadJSON(c, err)
		return
	}
	res, err := h.svc.CreateRoom(c.Request.Context(), req)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListRooms(c *gin.Context) {
	res, err := h.svc.ListRooms(c.Request.Context())
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": res})
}

// GET /rooms/:room_id/conflicts?start=&end=
func (h *Handler) CheckConflict(c *gin.Context) {
	start, ok := parseTimeQuery(c, "start")
	if !ok {
		return
	}
	end, ok := parseTimeQuery(c, "end")
	if !ok {
		return
	}
	if start == nil || end == nil {
		apierr.Write(c, apierr.ErrInvalid("start and end are required"))
		return
	}
	conflict, err := h.svc.HasConflict(c.Request.Context(), c.Param("room_id"), *start, *end)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, ConflictResponse{Conflict: conflict})
}

// Create godoc
// @Summary 予約作成
// @Tags bookings
// @Accept json
// @Produce json
// @Param body body CreateBookingRequest true "booking"
// @Success 201 {object} BookingResponse
// @Failure 409 {object} apierr.ErrDTO
// @Router /bookings [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadJSON(c, err)
		return
	}
	res, err := h.svc.CreateBooking(c.Request.Context(), auth.IdentityFrom(c), req)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.Header("Location", "/bookings/"+res.ID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Get(c *gin.Context) {
	res, err := h.svc.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /bookings?room_id=&status=&from=&to=&mine=1
func (h *Handler) List(c *gin.Context) {
	var f Filter
	if v := c.Query("room_id"); v != "" {
		f.RoomID = &v
	}
	if v := c.Query("status"); v != "" {
		st := Status(v)
		if !st.Valid() {
			apierr.Write(c, apierr.ErrInvalid("unknown status"))
			return
		}
		f.Status = &st
	}
	if c.Query("mine") == "1" {
		me := auth.IdentityFrom(c).ID
		f.RequesterID = &me
	}
	var ok bool
	if f.From, ok = parseTimeQuery(c, "from"); !ok {
		return
	}
	if f.To, ok = parseTimeQuery(c, "to"); !ok {
		return
	}
	res, err := h.svc.ListBookings(c.Request.Context(), f, paging.FromQuery(c))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) decision(c *gin.Context) (*string, bool) {
	var req DecisionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apierr.BadJSON(c, err)
			return nil, false
		}
	}
	return req.Reason, true
}

func (h *Handler) Approve(c *gin.Context) {
	res, err := h.svc.Approve(c.Request.Context(), auth.IdentityFrom(c), c.Param("id"))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Reject(c *gin.Context) {
	reason, ok := h.decision(c)
	if !ok {
		return
	}
	res, err := h.svc.Reject(c.Request.Context(), auth.IdentityFrom(c), c.Param("id"), reason)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Cancel(c *gin.Context) {
	reason, ok := h.decision(c)
	if !ok {
		return
	}
	res, err := h.svc.Cancel(c.Request.Context(), auth.IdentityFrom(c), c.Param("id"), reason)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
