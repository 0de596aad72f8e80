package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    "github.com/labstack/gommon/log"
    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/graphuraprojects/agrirent/internal/config"
)

// Sender delivers one email.
type Sender interface {
    Send(ctx context.Context, to, subject, body string) error
}

// Consumer drains the notification queue.
type Consumer struct {
    cfg    config.QueueConfig
    sender Sender
    logger *log.Logger
}

// NewConsumer wires a consumer.  It panics on a nil sender.
func NewConsumer(cfg config.QueueConfig, sender Sender, logger *log.Logger) *Consumer {
    if sender == nil {
        panic("nil sender")
    }
    if cfg.MaxAttempts < 1 {
        cfg.MaxAttempts = 1
    }
    if cfg.RetryDelay <= 0 {
        cfg.RetryDelay = 2 * time.Second
    }
    return &Consumer{cfg: cfg, sender: sender, logger: logger}
}

// Run connects to the broker and consumes until ctx is cancelled,
// reconnecting with exponential backoff whenever the broker goes away.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return ctx.Err()
        }
        conn, err := dial(ctx, c.cfg.URL, c.cfg.DialTimeout)
        if err != nil {
            c.logger.Warnf("notification-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.logger.Warnf("notification-consumer: consume loop ended: %v; reconnecting", err)
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(20, 0, false); err != nil {
        c.logger.Warnf("notification-consumer: set QoS failed: %v", err)
    }
    if err := declare(ch, c.cfg.Name); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(c.cfg.Name, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            c.handle(ctx, ch, d)
        }
    }
}

func (c *Consumer) handle(ctx context.Context, ch *amqp.Channel, d amqp.Delivery) {
    retry, err := c.Process(ctx, d.Body)
    if err == nil {
        _ = d.Ack(false)
        return
    }
    if retry == nil {
        // reject without requeue; a poison message must not spin the consumer
        _ = d.Nack(false, false)
        return
    }
    // The delivery stays unacked while it waits, so a broken connection
    // hands it back to the broker.
    go func(n Notification) {
        if !sleep(ctx, c.retryDelay(n.Attempt)) {
            _ = d.Nack(false, true)
            return
        }
        if perr := publish(ctx, ch, c.cfg.Name, n); perr != nil {
            c.logger.Warnf("notification-consumer: requeue %s failed: %v; dropping", n.ID, perr)
            _ = d.Nack(false, false)
            return
        }
        _ = d.Ack(false)
    }(*retry)
}

// maxRetryDelay caps the backoff between delivery attempts.
const maxRetryDelay = time.Minute

// retryDelay is the wait before republishing a notification that has failed
// attempt times: RetryDelay, then doubling up to maxRetryDelay.
func (c *Consumer) retryDelay(attempt int) time.Duration {
    d := c.cfg.RetryDelay
    for i := 1; i < attempt && d < maxRetryDelay; i++ {
        d *= 2
    }
    if d > maxRetryDelay {
        d = maxRetryDelay
    }
    return d
}

// Process delivers one message body.  When sending fails and attempts
// remain it returns the notification to republish with Attempt incremented;
// once attempts are exhausted, or the body is not a notification, the
// returned retry is nil.
func (c *Consumer) Process(ctx context.Context, body []byte) (*Notification, error) {
    var n Notification
    if err := json.Unmarshal(body, &n); err != nil {
        c.logger.Errorf("notification-consumer: unmarshal: %v", err)
        return nil, fmt.Errorf("unmarshal: %w", err)
    }
    if n.To == "" {
        c.logger.Errorf("notification-consumer: %s (%s) has no recipient; dropping", n.ID, n.Kind)
        return nil, errors.New("missing recipient")
    }
    err := c.sender.Send(ctx, n.To, n.Subject, n.Body)
    if err == nil {
        c.logger.Infof("notification-consumer: sent %s (%s) to %s", n.ID, n.Kind, n.To)
        return nil, nil
    }
    n.Attempt++
    if n.Attempt >= c.cfg.MaxAttempts {
        c.logger.Errorf("notification-consumer: giving up on %s (%s) after %d attempts: %v", n.ID, n.Kind, n.Attempt, err)
        return nil, err
    }
    c.logger.Warnf("notification-consumer: send %s failed (attempt %d): %v", n.ID, n.Attempt, err)
    return &n, err
}
