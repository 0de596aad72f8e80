// Package queue carries outbound notifications over RabbitMQ: services
// publish them and a background consumer delivers them by email.
package queue

import (
    "time"

    "github.com/google/uuid"
)

// Kind tells the consumer (and anyone reading the queue) what triggered a
// notification.
type Kind string

const (
    KindOTP              Kind = "otp"
    KindBookingCreated   Kind = "booking_created"
    KindBookingDecided   Kind = "booking_decided"
    KindBookingCancelled Kind = "booking_cancelled"
    KindRefundRequired   Kind = "refund_required"
    KindPaymentReceived  Kind = "payment_received"
    KindMachineReviewed  Kind = "machine_reviewed"
)

// Notification is one email waiting to be sent.  Attempt counts failed
// deliveries so the consumer can give up after a bounded number of retries.
type Notification struct {
    ID        string    `json:"id"`
    Kind      Kind      `json:"kind"`
    To        string    `json:"to"`
    Subject   string    `json:"subject"`
    Body      string    `json:"body"`
    Attempt   int       `json:"attempt"`
    CreatedAt time.Time `json:"created_at"`
}

// NewNotification stamps a fresh notification with an ID and creation time.
func NewNotification(kind Kind, to, subject, body string) Notification {
    return Notification{
        ID:        uuid.NewString(),
        Kind:      kind,
        To:        to,
        Subject:   subject,
        Body:      body,
        CreatedAt: time.Now().UTC(),
    }
}
