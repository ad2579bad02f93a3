package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"CAMPUS-backend/internal/platform/logging"
)

const (
	publishBuffer  = 256
	dialTimeout    = 3 * time.Second
	publishTimeout = 5 * time.Second
	redialBackoff  = 10 * time.Second
)

var (
	ErrPublisherFull   = errors.New("notify: publish buffer full")
	ErrPublisherClosed = errors.New("notify: publisher closed")
)

// RabbitPublisher は通知メッセージを durable キューに積む。
// Publish はバッファに入れて即座に返り、送信は1本の接続を持つ goroutine が行う。
type RabbitPublisher struct {
	url   string
	queue string

	dialTimeout time.Duration
	buf         chan Message
	done        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup

	// run goroutine 専用
	conn     *amqp.Connection
	ch       *amqp.Channel
	nextDial time.Time
}

func NewRabbitPublisher(url, queue string) *RabbitPublisher {
	p := newRabbitPublisher(url, queue, dialTimeout)
	p.start()
	return p
}

func newRabbitPublisher(url, queue string, timeout time.Duration) *RabbitPublisher {
	return &RabbitPublisher{
		url:         url,
		queue:       queue,
		dialTimeout: timeout,
		buf:         make(chan Message, publishBuffer),
		done:        make(chan struct{}),
	}
}

func (p *RabbitPublisher) start() {
	p.wg.Add(1)
	go p.run()
}

// Publish はブロックしない。バッファが一杯なら ErrPublisherFull。
func (p *RabbitPublisher) Publish(ctx context.Context, msg Message) error {
	select {
	case <-p.done:
		return ErrPublisherClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.buf <- msg:
		return nil
	default:
		return ErrPublisherFull
	}
}

// Close は送信 goroutine を止める。接続済みなら残りを送ってから閉じる。
func (p *RabbitPublisher) Close() {
	p.stopOnce.Do(func() { close(p.done) })
	p.wg.Wait()
}

func (p *RabbitPublisher) run() {
	defer p.wg.Done()
	defer p.disconnect()

	for {
		select {
		case <-p.done:
			p.drain()
			return
		case msg := <-p.buf:
			p.send(msg)
		}
	}
}

func (p *RabbitPublisher) drain() {
	dropped := 0
	for {
		select {
		case msg := <-p.buf:
			if p.ch == nil {
				dropped++
				continue
			}
			p.send(msg)
		default:
			if dropped > 0 {
				logging.LogWarn("notify", "RabbitPublisher.drain", "dropped on shutdown", dropped)
			}
			return
		}
	}
}

func (p *RabbitPublisher) send(msg Message) {
	if err := p.ensureChannel(); err != nil {
		logging.LogError("notify", "RabbitPublisher.send", "broker unavailable; message dropped", msg.Template, err)
		return
	}
	body, err := json.Marshal(msg)
	if err != nil {
		logging.LogError("notify", "RabbitPublisher.send", "marshal failed", msg.Template, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		logging.LogError("notify", "RabbitPublisher.send", "publish failed", msg.Template, err)
		p.disconnect()
	}
}

// ensureChannel: 切れていれば張り直す。失敗後は redialBackoff の間ダイヤルしない。
func (p *RabbitPublisher) ensureChannel() error {
	if p.ch != nil && p.conn != nil && !p.conn.IsClosed() {
		return nil
	}
	p.disconnect()
	if time.Now().Before(p.nextDial) {
		return errors.New("waiting to redial")
	}

	// DefaultDial はハンドシェイクにも期限を掛ける
	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(p.dialTimeout)})
	if err != nil {
		p.nextDial = time.Now().Add(redialBackoff)
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		p.nextDial = time.Now().Add(redialBackoff)
		return err
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		p.nextDial = time.Now().Add(redialBackoff)
		return err
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *RabbitPublisher) disconnect() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}
