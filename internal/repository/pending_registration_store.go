package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/graphuraprojects/agrirent/internal/model"
)

// PendingRegistrationStore keeps sign-ups awaiting OTP confirmation in Redis.
// Expiry is left to the key TTL so no sweeper is needed and every server
// instance sees the same entries.
type PendingRegistrationStore struct {
	rdb    *redis.Client
	prefix string
}

// NewPendingRegistrationStore binds the store to a Redis client.
func NewPendingRegistrationStore(rdb *redis.Client) *PendingRegistrationStore {
	return &PendingRegistrationStore{rdb: rdb, prefix: "pending_reg:"}
}

func (s *PendingRegistrationStore) key(email string) string {
	return s.prefix + strings.ToLower(strings.TrimSpace(email))
}

func (s *PendingRegistrationStore) attemptsKey(email string) string {
	return "pending_reg_attempts:" + strings.ToLower(strings.TrimSpace(email))
}

// recordAttempt bumps the attempts counter only while the sign-up exists and
// gives the counter the sign-up's remaining TTL.  Returns -1 when the sign-up
// is gone.
var recordAttempt = redis.NewScript(`
    local ttl = redis.call('PTTL', KEYS[1])
    if ttl == -2 then
        return -1
    end
    local n = redis.call('INCR', KEYS[2])
    if ttl > 0 then
        redis.call('PEXPIRE', KEYS[2], ttl)
    end
    return n
`)

// Save stores p for ttl, replacing any earlier pending sign-up for the same
// email (a re-register restarts the OTP flow and its attempt count).
func (s *PendingRegistrationStore) Save(ctx context.Context, p model.PendingRegistration, ttl time.Duration) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(p.Email), b, ttl)
		pipe.Del(ctx, s.attemptsKey(p.Email))
		return nil
	})
	return err
}

// Get returns the pending sign-up for email or ErrNotFound once it expired.
// Attempts is read from the counter.
func (s *PendingRegistrationStore) Get(ctx context.Context, email string) (model.PendingRegistration, error) {
	var p model.PendingRegistration
	b, err := s.rdb.Get(ctx, s.key(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return p, ErrNotFound
		}
		return p, err
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return p, err
	}
	n, err := s.rdb.Get(ctx, s.attemptsKey(email)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return p, err
	}
	p.Attempts = n
	return p, nil
}

// RecordAttempt counts one verification attempt for email and returns the
// new total.  Concurrent callers each see a distinct count.  The counter
// never outlives the sign-up and a sign-up that expired meanwhile yields
// ErrNotFound.
func (s *PendingRegistrationStore) RecordAttempt(ctx context.Context, email string) (int, error) {
	n, err := recordAttempt.Run(ctx, s.rdb, []string{s.key(email), s.attemptsKey(email)}).Int()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, ErrNotFound
	}
	return n, nil
}

// Consume deletes the pending sign-up.  Only one caller can consume a given
// entry; the others get ErrConflict.
func (s *PendingRegistrationStore) Consume(ctx context.Context, email string) error {
	var del *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.key(email))
		pipe.Del(ctx, s.attemptsKey(email))
		return nil
	})
	if err != nil {
		return err
	}
	if del.Val() == 0 {
		return ErrConflict
	}
	return nil
}

// Discard drops the pending sign-up, ignoring whether it existed.
func (s *PendingRegistrationStore) Discard(ctx context.Context, email string) error {
	return s.rdb.Del(ctx, s.key(email), s.attemptsKey(email)).Err()
}
