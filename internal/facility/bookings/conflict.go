package bookings

import "time"

// Overlaps: [aStart,aEnd) と [bStart,bEnd) が重なるか。端点が接するだけなら重ならない。
// 長さ0の区間は時刻 t の点として扱い、t を含む区間（開始が t のものも含む）と重なる。
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	aPoint, bPoint := aStart.Equal(aEnd), bStart.Equal(bEnd)
	switch {
	case aPoint && bPoint:
		return aStart.Equal(bStart)
	case aPoint:
		return contains(bStart, bEnd, aStart)
	case bPoint:
		return contains(aStart, aEnd, bStart)
	}
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

func contains(start, end, t time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

// HasConflict は approved / pending の予約のうち [start,end) と重なるものがあるか
func HasConflict(existing []Booking, start, end time.Time) bool {
	for _, b := range existing {
		if !b.Status.Blocks() {
			continue
		}
		if Overlaps(b.StartAt, b.EndAt, start, end) {
			return true
		}
	}
	return false
}

func without(list []Booking, id string) []Booking {
	out := make([]Booking, 0, len(list))
	for _, b := range list {
		if b.ID != id {
			out = append(out, b)
		}
	}
	return out
}
