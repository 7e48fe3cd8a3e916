// Package emailqueue delivers verification emails through a River job queue
// backed by Postgres.
package emailqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/sirupsen/logrus"
)

const (
	QueueName         = "emails"
	DefaultMaxWorkers = 4
	maxAttempts       = 5
)

// OTPEmailArgs is the job payload for a verification code email.
type OTPEmailArgs struct {
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (OTPEmailArgs) Kind() string { return "otp_email" }

func (OTPEmailArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: QueueName, MaxAttempts: maxAttempts}
}

// Sender sends one verification email.
type Sender interface {
	SendOTP(ctx context.Context, email, code string, expiresAt time.Time) error
}

// OTPEmailWorker runs OTPEmailArgs jobs.
type OTPEmailWorker struct {
	river.WorkerDefaults[OTPEmailArgs]
	Sender Sender
}

func (w *OTPEmailWorker) Work(ctx context.Context, job *river.Job[OTPEmailArgs]) error {
	if w.Sender == nil {
		return errors.New("emailqueue: no sender configured")
	}
	// Codes past expiry are useless to the recipient.
	if !job.Args.ExpiresAt.IsZero() && time.Now().After(job.Args.ExpiresAt) {
		return nil
	}
	return w.Sender.SendOTP(ctx, job.Args.Email, job.Args.Code, job.Args.ExpiresAt)
}

// Timeout bounds a single send attempt.
func (w *OTPEmailWorker) Timeout(*river.Job[OTPEmailArgs]) time.Duration { return 30 * time.Second }

// Queue enqueues OTP emails. It satisfies core.EmailQueue.
type Queue struct {
	insert func(ctx context.Context, args river.JobArgs) error
	client *river.Client[pgx.Tx]
}

// NewQueue wraps a started or insert-only River client.
func NewQueue(client *river.Client[pgx.Tx]) *Queue {
	return &Queue{
		client: client,
		insert: func(ctx context.Context, args river.JobArgs) error {
			_, err := client.Insert(ctx, args, nil)
			return err
		},
	}
}

func (q *Queue) EnqueueOTP(ctx context.Context, email, code string, expiresAt time.Time) error {
	if q == nil || q.insert == nil {
		return errors.New("emailqueue: queue not initialized")
	}
	if err := q.insert(ctx, OTPEmailArgs{Email: email, Code: code, ExpiresAt: expiresAt}); err != nil {
		return fmt.Errorf("emailqueue: insert otp email: %w", err)
	}
	return nil
}

// Client returns the underlying River client.
func (q *Queue) Client() *river.Client[pgx.Tx] { return q.client }

// ClientConfig configures NewClient.
type ClientConfig struct {
	MaxWorkers int
	Sender     Sender
}

// NewClient builds a River client that works the emails queue.
func NewClient(pool *pgxpool.Pool, cfg ClientConfig) (*river.Client[pgx.Tx], error) {
	if pool == nil {
		return nil, errors.New("emailqueue: postgres pool required")
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	workers := river.NewWorkers()
	if err := river.AddWorkerSafely(workers, &OTPEmailWorker{Sender: cfg.Sender}); err != nil {
		return nil, fmt.Errorf("emailqueue: register worker: %w", err)
	}
	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:  map[string]river.QueueConfig{QueueName: {MaxWorkers: cfg.MaxWorkers}},
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("emailqueue: river client: %w", err)
	}
	return client, nil
}

// Migrate applies River's schema migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("emailqueue: river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("emailqueue: river migrate: %w", err)
	}
	return nil
}

// LogSender logs deliveries instead of sending mail. The code is never logged.
type LogSender struct {
	Log logrus.FieldLogger
}

func (s LogSender) SendOTP(_ context.Context, email, _ string, expiresAt time.Time) error {
	log := s.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithFields(logrus.Fields{"email": email, "expires_at": expiresAt}).Info("emailqueue: verification email sent")
	return nil
}
