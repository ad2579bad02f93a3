package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const DefaultPushEndpoint = "https://api.line.me/v2/bot/message/push"

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []textMessage `json:"messages"`
}

// LinePusher は LINE Messaging API の push を叩く
type LinePusher struct {
	endpoint string
	token    string
	client   *http.Client
	limiter  *rate.Limiter
}

func NewLinePusher(endpoint, token string, perSecond float64) *LinePusher {
	if endpoint == "" {
		endpoint = DefaultPushEndpoint
	}
	return &LinePusher{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// Push は宛先ごとに送信し、最初のエラーを返す
func (p *LinePusher) Push(ctx context.Context, msg Message) error {
	text := Render(msg)
	var firstErr error
	for _, to := range msg.To {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := p.pushOne(ctx, to, text); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *LinePusher) pushOne(ctx context.Context, to, text string) error {
	body, err := json.Marshal(pushRequest{To: to, Messages: []textMessage{{Type: "text", Text: text}}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)

	res, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("push to %s: status %d: %s", to, res.StatusCode, string(b))
	}
	return nil
}
