package queue

import (
    "context"
    "encoding/json"
    "net"
    "time"

    "github.com/labstack/gommon/log"
    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/graphuraprojects/agrirent/internal/config"
)

// Publisher puts notifications on the durable notification queue.  Each
// publish dials its own connection, which is plenty for the volume of
// transactional email.  Errors are logged and returned so callers can treat
// delivery as best effort.
type Publisher struct {
    url         string
    queue       string
    dialTimeout time.Duration
    logger      *log.Logger
}

// NewPublisher returns a Publisher for cfg.
func NewPublisher(cfg config.QueueConfig, logger *log.Logger) *Publisher {
    return &Publisher{url: cfg.URL, queue: cfg.Name, dialTimeout: cfg.DialTimeout, logger: logger}
}

// Notify publishes n as a persistent JSON message.  Dialing the broker
// gives up at ctx's deadline or after the dial timeout, whichever is first.
func (p *Publisher) Notify(ctx context.Context, n Notification) error {
    conn, err := dial(ctx, p.url, p.dialTimeout)
    if err != nil {
        p.logger.Warnf("rabbitmq: dial failed: %v", err)
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        p.logger.Warnf("rabbitmq: channel open failed: %v", err)
        return err
    }
    defer func() { _ = ch.Close() }()

    if err := declare(ch, p.queue); err != nil {
        p.logger.Warnf("rabbitmq: queue declare failed: %v", err)
        return err
    }
    if err := publish(ctx, ch, p.queue, n); err != nil {
        p.logger.Warnf("rabbitmq: publish %s (%s) failed: %v", n.ID, n.Kind, err)
        return err
    }
    return nil
}

const defaultDialTimeout = 2 * time.Second

// dial opens a broker connection.  The TCP connect and the AMQP handshake
// are both bounded by timeout and by ctx.
func dial(ctx context.Context, url string, timeout time.Duration) (*amqp.Connection, error) {
    if timeout <= 0 {
        timeout = defaultDialTimeout
    }
    return amqp.DialConfig(url, amqp.Config{
        Heartbeat: 10 * time.Second,
        Locale:    "en_US",
        Dial: func(network, addr string) (net.Conn, error) {
            d := net.Dialer{Timeout: timeout}
            conn, err := d.DialContext(ctx, network, addr)
            if err != nil {
                return nil, err
            }
            deadline := time.Now().Add(timeout)
            if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
                deadline = dl
            }
            // amqp clears the deadline once the handshake completes
            if err := conn.SetDeadline(deadline); err != nil {
                _ = conn.Close()
                return nil, err
            }
            return conn, nil
        },
    })
}

// declare makes sure the durable queue exists (idempotent).
func declare(ch *amqp.Channel, name string) error {
    _, err := ch.QueueDeclare(
        name,
        true,  // durable
        false, // autoDelete
        false, // exclusive
        false, // noWait
        nil,
    )
    return err
}

func publish(ctx context.Context, ch *amqp.Channel, queue string, n Notification) error {
    body, err := json.Marshal(n)
    if err != nil {
        return err
    }
    return ch.PublishWithContext(ctx,
        "",    // default exchange
        queue, // routing key = queue name
        false, // mandatory
        false, // immediate
        amqp.Publishing{
            ContentType:  "application/json",
            DeliveryMode: amqp.Persistent,
            MessageId:    n.ID,
            Timestamp:    time.Now().UTC(),
            Body:         body,
        })
}
