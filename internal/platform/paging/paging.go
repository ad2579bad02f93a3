// Package paging は一覧APIの limit/offset/order
package paging

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

type Page struct {
	Limit  int
	Offset int
	Order  string // asc or desc
}

// FromQuery: ?limit=&offset=&order=
func FromQuery(c *gin.Context) Page {
	return Normalize(Page{
		Limit:  atoiDef(c.Query("limit"), DefaultLimit),
		Offset: atoiDef(c.Query("offset"), 0),
		Order:  c.DefaultQuery("order", "desc"),
	})
}

func Normalize(p Page) Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Order != "asc" {
		p.Order = "desc"
	}
	return p
}

// OrderSQL は ORDER BY にそのまま埋め込める値だけ返す
func (p Page) OrderSQL() string {
	if p.Order == "asc" {
		return "ASC"
	}
	return "DESC"
}

// NextOffset: 0=終端
func NextOffset(p Page, total int64) int {
	next := p.Offset + p.Limit
	if next >= int(total) {
		return 0
	}
	return next
}

func atoiDef(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}

type Result[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	NextOffset int   `json:"next_offset"`
}

func NewResult[T any](items []T, total int64, p Page) Result[T] {
	if items == nil {
		items = []T{}
	}
	return Result[T]{Items: items, Total: total, NextOffset: NextOffset(p, total)}
}
