package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/PaulFidika/userauth/identity"
	"github.com/sirupsen/logrus"
)

var (
	// ErrWebhookAuthFailed covers missing delivery headers and bad signatures.
	ErrWebhookAuthFailed = errors.New("webhook: authentication failed")
	// ErrMalformedWebhookPayload covers non-UTF-8 bodies, invalid JSON and
	// user events without data.id.
	ErrMalformedWebhookPayload = errors.New("webhook: malformed payload")
)

// DefaultDeliveryTTL is how long processed delivery ids are remembered.
const DefaultDeliveryTTL = 24 * time.Hour

// Delivery is one inbound webhook request.
type Delivery struct {
	ID        string // svix-id
	Timestamp string // svix-timestamp
	Signature string // svix-signature
	Body      []byte
}

// Ledger remembers processed delivery ids.
type Ledger interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string, ttl time.Duration) error
}

// Status summarises how a delivery was handled.
type Status string

const (
	StatusApplied   Status = "applied"
	StatusIgnored   Status = "ignored"
	StatusDuplicate Status = "duplicate"
)

// Processor authenticates deliveries and applies user events to the local
// store through the reconciler.
type Processor struct {
	auth       Authenticator
	secret     string
	reconciler *identity.Reconciler
	ledger     Ledger
	ttl        time.Duration
	log        logrus.FieldLogger
	now        func() time.Time
}

type Option func(*Processor)

func WithLedger(l Ledger) Option { return func(p *Processor) { p.ledger = l } }
func WithDeliveryTTL(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.ttl = d
		}
	}
}
func WithClock(now func() time.Time) Option { return func(p *Processor) { p.now = now } }
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Processor) {
		if l != nil {
			p.log = l
		}
	}
}

func NewProcessor(auth Authenticator, secret string, r *identity.Reconciler, opts ...Option) *Processor {
	p := &Processor{
		auth:       auth,
		secret:     secret,
		reconciler: r,
		ttl:        DefaultDeliveryTTL,
		log:        logrus.StandardLogger(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Handle authenticates and applies d. Errors wrapping ErrWebhookAuthFailed or
// ErrMalformedWebhookPayload are the sender's fault; anything else is ours.
func (p *Processor) Handle(ctx context.Context, d Delivery) (Status, error) {
	if d.ID == "" || d.Timestamp == "" || d.Signature == "" {
		return "", fmt.Errorf("%w: missing delivery headers", ErrWebhookAuthFailed)
	}
	if !p.auth.Verify(d.Body, d.Signature, p.secret, p.now()) {
		return "", fmt.Errorf("%w: signature mismatch", ErrWebhookAuthFailed)
	}
	if !utf8.Valid(d.Body) {
		return "", fmt.Errorf("%w: body is not utf-8", ErrMalformedWebhookPayload)
	}
	var ev Event
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedWebhookPayload, err)
	}

	log := p.log.WithFields(logrus.Fields{"delivery_id": d.ID, "event": ev.Type})
	if p.ledger != nil {
		seen, err := p.ledger.Seen(ctx, d.ID)
		if err != nil {
			log.WithError(err).Warn("webhook: delivery ledger lookup failed")
		} else if seen {
			log.Info("webhook: duplicate delivery acknowledged")
			return StatusDuplicate, nil
		}
	}

	status, err := p.dispatch(ctx, log, ev)
	if err != nil {
		return "", err
	}
	if p.ledger != nil {
		if err := p.ledger.Mark(ctx, d.ID, p.ttl); err != nil {
			log.WithError(err).Warn("webhook: failed to record delivery")
		}
	}
	return status, nil
}

func (p *Processor) dispatch(ctx context.Context, log logrus.FieldLogger, ev Event) (Status, error) {
	switch ev.Type {
	case EventUserCreated, EventUserUpdated, EventUserDeleted:
		var u UserData
		if len(ev.Data) > 0 {
			if err := json.Unmarshal(ev.Data, &u); err != nil {
				return "", fmt.Errorf("%w: user data: %w", ErrMalformedWebhookPayload, err)
			}
		}
		// Redelivery cannot add a missing id, so the event is acknowledged.
		if u.ID == "" {
			log.Warn("webhook: user event without data.id")
			return StatusIgnored, nil
		}
		return p.applyUser(ctx, log.WithField("external_id", u.ID), ev.Type, u)
	case EventSessionCreated, EventSessionEnded:
		var s SessionData
		_ = json.Unmarshal(ev.Data, &s)
		log.WithFields(logrus.Fields{"session_id": s.ID, "external_id": s.UserID}).Debug("webhook: session event")
		return StatusIgnored, nil
	default:
		log.Info("webhook: unhandled event type")
		return StatusIgnored, nil
	}
}

func (p *Processor) applyUser(ctx context.Context, log logrus.FieldLogger, typ string, u UserData) (Status, error) {
	if typ == EventUserDeleted {
		found, err := p.reconciler.Deactivate(ctx, u.ID)
		if err != nil {
			return "", err
		}
		if !found {
			return StatusIgnored, nil
		}
		return StatusApplied, nil
	}

	var opts []identity.ReconcileOption
	if typ == EventUserCreated {
		opts = append(opts, identity.WithReactivate())
	}
	res, err := p.reconciler.ReconcileWithRetry(ctx, u.Claims(), opts...)
	if errors.Is(err, identity.ErrEmailRequired) {
		log.Warn("webhook: user event without email cannot create a local user")
		return StatusIgnored, nil
	}
	if err != nil {
		return "", err
	}
	log.WithFields(logrus.Fields{"user_id": res.User.ID, "outcome": res.Outcome}).Info("webhook: user reconciled")
	return StatusApplied, nil
}
