package inventory

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

type Status string

const (
	StatusAvailable     Status = "available"
	StatusBorrowed      Status = "borrowed"
	StatusMaintenance   Status = "maintenance"
	StatusRequisitioned Status = "requisitioned"
)

// 旧データに残っている表記ゆれ。
// 'ไม่ว่าง'（空いていない）は borrowed として扱う。
var statusAliases = map[string]Status{
	"available":     StatusAvailable,
	"ว่าง":          StatusAvailable,
	"พร้อมใช้งาน":   StatusAvailable,
	"free":          StatusAvailable,
	"borrowed":      StatusBorrowed,
	"ไม่ว่าง":       StatusBorrowed,
	"ถูกยืม":        StatusBorrowed,
	"in use":        StatusBorrowed,
	"lent":          StatusBorrowed,
	"maintenance":   StatusMaintenance,
	"ซ่อมบำรุง":     StatusMaintenance,
	"ส่งซ่อม":       StatusMaintenance,
	"repair":        StatusMaintenance,
	"requisitioned": StatusRequisitioned,
	"เบิกแล้ว":      StatusRequisitioned,
	"หมด":           StatusRequisitioned,
	"out of stock":  StatusRequisitioned,
	"depleted":      StatusRequisitioned,
}

var folder = cases.Fold()

func foldStatus(raw string) string {
	s := norm.NFC.String(raw)
	s = width.Fold.String(s)
	s = folder.String(s)
	s = strings.Join(strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(s)), " ")
	return s
}

// NormalizeStatus は表記ゆれを閉じた列挙に寄せる
func NormalizeStatus(raw string) (Status, bool) {
	st, ok := statusAliases[foldStatus(raw)]
	return st, ok
}

func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusBorrowed, StatusMaintenance, StatusRequisitioned:
		return true
	}
	return false
}

// Scan: DB上の旧表記も読めるようにする
func (s *Status) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("status: unsupported type %T", src)
	}
	st, ok := NormalizeStatus(raw)
	if !ok {
		return fmt.Errorf("status: unknown value %q", raw)
	}
	*s = st
	return nil
}

func (s Status) Value() (driver.Value, error) { return string(s), nil }
