// Package notify はメッセージング基盤へのプッシュ通知
//
// API側は Publisher でキューに積むだけ。実際の送信は cmd/notifier が行う。
// 通知の成否は予約や修理依頼の状態に影響しない。
package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"CAMPUS-backend/internal/platform/logging"
)

type Template string

const (
	TplBookingPending   Template = "booking.pending"
	TplBookingApproved  Template = "booking.approved"
	TplBookingRejected  Template = "booking.rejected"
	TplBookingCancelled Template = "booking.cancelled"
	TplRepairCreated    Template = "repair.created"
	TplRepairAssigned   Template = "repair.assigned"
	TplRepairUpdated    Template = "repair.updated"
	TplPhotoJobAssigned Template = "photojob.assigned"
	TplPhotoJobUpdated  Template = "photojob.updated"
)

type Message struct {
	To       []string          `json:"to"`
	Template Template          `json:"template"`
	Fields   map[string]string `json:"fields"`
}

type Notifier interface {
	Publish(ctx context.Context, msg Message) error
}

// Nop は設定が無いとき用
type Nop struct{}

func (Nop) Publish(context.Context, Message) error { return nil }

// Send: 失敗してもログのみ
func Send(ctx context.Context, n Notifier, msg Message) {
	if n == nil || len(msg.To) == 0 {
		return
	}
	if err := n.Publish(ctx, msg); err != nil {
		logging.LogError("notify", "Send", "publish failed", msg.Template, err)
	}
}

var titles = map[Template]string{
	TplBookingPending:   "New booking waiting for approval",
	TplBookingApproved:  "Booking approved",
	TplBookingRejected:  "Booking rejected",
	TplBookingCancelled: "Booking cancelled",
	TplRepairCreated:    "New repair request",
	TplRepairAssigned:   "Repair request assigned to you",
	TplRepairUpdated:    "Repair request updated",
	TplPhotoJobAssigned: "Photography job assigned to you",
	TplPhotoJobUpdated:  "Photography job updated",
}

// Render はテキストメッセージ本文を組み立てる
func Render(msg Message) string {
	title, ok := titles[msg.Template]
	if !ok {
		title = string(msg.Template)
	}
	keys := make([]string, 0, len(msg.Fields))
	for k := range msg.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(title)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %s", k, msg.Fields[k])
	}
	return b.String()
}
