// Package ledger は在庫ダッシュボード用の集計
// （total / available / borrowed / maintenance）を管理する。
//
// bulk 品の available / borrowed は「1つでも貸せるか」「1つでも貸出中か」の
// 品目単位で数える。貸出1件ごとには増減しない。
package ledger

import "CAMPUS-backend/internal/asset_mgmt/inventory"

type Field string

const (
	FieldTotal       Field = "total"
	FieldAvailable   Field = "available"
	FieldBorrowed    Field = "borrowed"
	FieldMaintenance Field = "maintenance"
)

var Fields = []Field{FieldTotal, FieldAvailable, FieldBorrowed, FieldMaintenance}

func (f Field) Valid() bool {
	switch f {
	case FieldTotal, FieldAvailable, FieldBorrowed, FieldMaintenance:
		return true
	}
	return false
}

type Stats struct {
	Total       int64 `json:"total"`
	Available   int64 `json:"available"`
	Borrowed    int64 `json:"borrowed"`
	Maintenance int64 `json:"maintenance"`
}

func (s Stats) Get(f Field) int64 {
	switch f {
	case FieldTotal:
		return s.Total
	case FieldAvailable:
		return s.Available
	case FieldBorrowed:
		return s.Borrowed
	case FieldMaintenance:
		return s.Maintenance
	}
	return 0
}

func (s *Stats) set(f Field, v int64) {
	switch f {
	case FieldTotal:
		s.Total = v
	case FieldAvailable:
		s.Available = v
	case FieldBorrowed:
		s.Borrowed = v
	case FieldMaintenance:
		s.Maintenance = v
	}
}

// Apply は d を加算する。0 を下回る項目は 0 に止め、その項目を drifted に返す
func (s Stats) Apply(d Delta) (next Stats, drifted []Field) {
	next = s
	for _, f := range Fields {
		v := s.Get(f) + int64(d.Get(f))
		if v < 0 {
			drifted = append(drifted, f)
			v = 0
		}
		next.set(f, v)
	}
	return next, drifted
}

// Delta は1回の更新で集計に加える差分
type Delta struct {
	Total       int `json:"total"`
	Available   int `json:"available"`
	Borrowed    int `json:"borrowed"`
	Maintenance int `json:"maintenance"`
}

func (d Delta) Get(f Field) int {
	switch f {
	case FieldTotal:
		return d.Total
	case FieldAvailable:
		return d.Available
	case FieldBorrowed:
		return d.Borrowed
	case FieldMaintenance:
		return d.Maintenance
	}
	return 0
}

func (d Delta) With(f Field, n int) Delta {
	switch f {
	case FieldTotal:
		d.Total += n
	case FieldAvailable:
		d.Available += n
	case FieldBorrowed:
		d.Borrowed += n
	case FieldMaintenance:
		d.Maintenance += n
	}
	return d
}

func (d Delta) Add(o Delta) Delta {
	return Delta{
		Total:       d.Total + o.Total,
		Available:   d.Available + o.Available,
		Borrowed:    d.Borrowed + o.Borrowed,
		Maintenance: d.Maintenance + o.Maintenance,
	}
}

func (d Delta) Neg() Delta {
	return Delta{Total: -d.Total, Available: -d.Available, Borrowed: -d.Borrowed, Maintenance: -d.Maintenance}
}

func (d Delta) IsZero() bool { return d == Delta{} }

// hasIncrement: 集計行が無いときに作成するかどうか
func (d Delta) hasIncrement() bool {
	return d.Total > 0 || d.Available > 0 || d.Borrowed > 0 || d.Maintenance > 0
}

// FieldForStatus: unique 品の状態が数えられる項目。requisitioned はどこにも数えない
func FieldForStatus(s inventory.Status) (Field, bool) {
	switch s {
	case inventory.StatusAvailable:
		return FieldAvailable, true
	case inventory.StatusBorrowed:
		return FieldBorrowed, true
	case inventory.StatusMaintenance:
		return FieldMaintenance, true
	}
	return "", false
}

// StatusChange: old を -1、new を +1。同じなら空
func StatusChange(oldStatus, newStatus inventory.Status) Delta {
	var d Delta
	if oldStatus == newStatus {
		return d
	}
	if f, ok := FieldForStatus(oldStatus); ok {
		d = d.With(f, -1)
	}
	if f, ok := FieldForStatus(newStatus); ok {
		d = d.With(f, 1)
	}
	return d
}

// Snapshot は集計に効く品目の状態
type Snapshot struct {
	Kind          inventory.Kind
	Status        inventory.Status
	Quantity      int
	BorrowedCount int
	Deleted       bool
}

func SnapshotOf(p *inventory.Product) Snapshot {
	return Snapshot{
		Kind:          p.Kind,
		Status:        p.Status,
		Quantity:      p.Quantity,
		BorrowedCount: p.BorrowedCount,
		Deleted:       p.Deleted(),
	}
}

// Contribution はこの品目1件が集計のどこに数えられるか
func Contribution(s Snapshot) Delta {
	var d Delta
	if s.Deleted {
		return d
	}
	d.Total = 1
	if s.Kind == inventory.KindUnique {
		if f, ok := FieldForStatus(s.Status); ok {
			d = d.With(f, 1)
		}
		return d
	}
	if s.Status == inventory.StatusMaintenance {
		d.Maintenance = 1
	} else if s.Quantity-s.BorrowedCount > 0 {
		d.Available = 1
	}
	if s.BorrowedCount > 0 {
		d.Borrowed = 1
	}
	return d
}

// Diff: before から after への変化で必要な集計差分
func Diff(before, after Snapshot) Delta {
	return Contribution(after).Add(Contribution(before).Neg())
}

// BorrowDelta は1単位の貸出で集計に加える差分。before は貸出前
//
//	unique: available → borrowed
//	bulk:   最後の1つが出たときだけ available -1、貸出0件→1件で borrowed +1
func BorrowDelta(before Snapshot) Delta {
	if before.Kind == inventory.KindUnique {
		return StatusChange(before.Status, inventory.StatusBorrowed)
	}
	var d Delta
	if before.Status != inventory.StatusMaintenance && before.Quantity-before.BorrowedCount == 1 {
		d.Available--
	}
	if before.BorrowedCount == 0 {
		d.Borrowed++
	}
	return d
}

// ReturnDelta は BorrowDelta の逆。before は返却前
func ReturnDelta(before Snapshot) Delta {
	if before.Kind == inventory.KindUnique {
		return StatusChange(before.Status, inventory.StatusAvailable)
	}
	var d Delta
	if before.BorrowedCount == 1 {
		d.Borrowed--
	}
	if before.Status != inventory.StatusMaintenance && before.Quantity-before.BorrowedCount <= 0 && before.Quantity-before.BorrowedCount+1 > 0 {
		d.Available++
	}
	return d
}
