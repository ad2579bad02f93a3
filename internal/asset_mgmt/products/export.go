package products

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"CAMPUS-backend/internal/platform/paging"
)

const exportSheet = "Stock"

var exportHeader = []any{
	"Stock ID", "Name", "Kind", "Serial No.", "Quantity", "Borrowed", "Available", "Status", "Location", "Updated",
}

// Export は条件に合う品目を xlsx で w に書き出す
func (s *Service) Export(ctx context.Context, f Filter, w io.Writer) error {
	x := excelize.NewFile()
	defer x.Close()

	if err := x.SetSheetName("Sheet1", exportSheet); err != nil {
		return err
	}
	if err := x.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return err
	}
	bold, err := x.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := x.SetRowStyle(exportSheet, 1, 1, bold); err != nil {
		return err
	}
	_ = x.SetColWidth(exportSheet, "A", "A", 12)
	_ = x.SetColWidth(exportSheet, "B", "B", 32)
	_ = x.SetColWidth(exportSheet, "I", "J", 20)

	row := 2
	page := paging.Page{Limit: paging.MaxLimit, Offset: 0, Order: "asc"}
	for {
		items, total, err := s.read.ListProducts(ctx, f, page)
		if err != nil {
			return err
		}
		for i := range items {
			p := toResponse(&items[i])
			values := []any{
				p.StockID, p.Name, string(p.Kind), deref(p.SerialNumber), p.Quantity, p.BorrowedCount,
				p.Available, string(p.Status), deref(p.Location), p.UpdatedAt.Format("2006-01-02 15:04"),
			}
			if err := x.SetSheetRow(exportSheet, fmt.Sprintf("A%d", row), &values); err != nil {
				return err
			}
			row++
		}
		page.Offset += page.Limit
		if len(items) == 0 || int64(page.Offset) >= total {
			break
		}
	}

	_, err = x.WriteTo(w)
	return err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
