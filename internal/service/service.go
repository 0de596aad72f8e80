// Package service holds the marketplace workflows: bookings, payments,
// machine approval, earnings and accounts.  Services sit between the HTTP
// handlers and the repositories and own every business rule; handlers only
// decode input and map the returned errors onto status codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/graphuraprojects/agrirent/internal/model"
	"github.com/graphuraprojects/agrirent/internal/queue"
	"github.com/graphuraprojects/agrirent/internal/repository"
)

// Error kinds.  ErrNotFound, ErrForbidden and ErrConflict are shared with
// the repository layer so a sentinel coming straight from a repository maps
// the same way as one raised here.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = repository.ErrNotFound
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = repository.ErrForbidden
	ErrConflict         = repository.ErrConflict
	ErrPrecondition     = errors.New("precondition failed")
	ErrInvalidSignature = errors.New("invalid payment signature")
	ErrGateway          = errors.New("payment gateway error")
)

// Error is a classified failure with a message safe to show to clients.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }
func (e *Error) Unwrap() error { return e.Kind }

func fail(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// notFound turns a repository ErrNotFound into a message naming what was
// missing and passes other errors through.
func notFound(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fail(ErrNotFound, "%s not found", what)
	}
	return err
}

// Logger is the subset of the gommon logger the services use.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Notifier queues an outbound notification.  Delivery is best effort: a
// failure is logged by the caller and never undoes the state change that
// triggered it.
type Notifier interface {
	Notify(ctx context.Context, n queue.Notification) error
}

// notify publishes n and logs (but swallows) any failure.
func notify(ctx context.Context, n Notifier, log Logger, msg queue.Notification) {
	if n == nil || msg.To == "" {
		return
	}
	if err := n.Notify(ctx, msg); err != nil {
		log.Warnf("notification %s to %s not queued: %v", msg.Kind, msg.To, err)
	}
}

// notifyAdmins sends the same notification to every admin.
func notifyAdmins(ctx context.Context, users UserReader, n Notifier, log Logger, kind queue.Kind, subject, body string) {
	admins, err := users.List(ctx, model.RoleAdmin)
	if err != nil {
		log.Warnf("listing admins for %s notification: %v", kind, err)
		return
	}
	for _, a := range admins {
		notify(ctx, n, log, queue.NewNotification(kind, a.Email, subject, body))
	}
}

// clock returns the current time in UTC.
type clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }
