package identity

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Outcome describes what a reconciliation did to the local record.
type Outcome string

const (
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeUpdated   Outcome = "updated"
	OutcomeLinked    Outcome = "linked"
	OutcomeCreated   Outcome = "created"
)

// Result is returned by Reconciler.Reconcile.
type Result struct {
	User    *User
	Outcome Outcome
	Changed bool
}

type matchKind int

const (
	matchNone matchKind = iota
	matchExternal
	matchEmail
)

// ReconcileOption adjusts a single reconciliation.
type ReconcileOption func(*reconcileOpts)

type reconcileOpts struct {
	reactivate bool
}

// WithReactivate marks a user found by external id active again. The
// user.created webhook uses it so a re-created provider account is usable.
func WithReactivate() ReconcileOption {
	return func(o *reconcileOpts) { o.reactivate = true }
}

// Reconciler maps external identities onto local users.
type Reconciler struct {
	store Store
	log   logrus.FieldLogger
	now   func() time.Time
}

type ReconcilerOption func(*Reconciler)

func WithLogger(l logrus.FieldLogger) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.log = l
		}
	}
}

func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

func NewReconciler(store Store, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{store: store, log: logrus.StandardLogger(), now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Reconcile finds, links or creates the local user for claims.
//
//	found by external id   -> refresh changed attributes
//	found by email         -> link external id, mark verified and active
//	not found, has email   -> create verified, active, passwordless user
//	not found, no email    -> ErrEmailRequired
func (r *Reconciler) Reconcile(ctx context.Context, claims ExternalClaims, opts ...ReconcileOption) (*Result, error) {
	if claims.Subject == "" {
		return nil, ErrSubjectRequired
	}
	var o reconcileOpts
	for _, fn := range opts {
		fn(&o)
	}
	email := NormalizeEmail(claims.Email)

	kind, u, err := r.lookup(ctx, claims.Subject, email)
	if err != nil {
		return nil, err
	}
	switch kind {
	case matchExternal:
		return r.refresh(ctx, u, claims, email, o)
	case matchEmail:
		return r.link(ctx, u, claims)
	default:
		if email == "" {
			return nil, ErrEmailRequired
		}
		return r.create(ctx, claims, email)
	}
}

// ReconcileWithRetry runs Reconcile and retries once when a concurrent
// writer won a uniqueness race; the second pass sees the winner's row.
func (r *Reconciler) ReconcileWithRetry(ctx context.Context, claims ExternalClaims, opts ...ReconcileOption) (*Result, error) {
	res, err := r.Reconcile(ctx, claims, opts...)
	if errors.Is(err, ErrDuplicateIdentity) {
		r.log.WithField("external_id", claims.Subject).Debug("identity: duplicate on reconcile, retrying")
		return r.Reconcile(ctx, claims, opts...)
	}
	return res, err
}

// Deactivate marks the user linked to externalID inactive. Unknown ids are a
// no-op and report false.
func (r *Reconciler) Deactivate(ctx context.Context, externalID string) (bool, error) {
	if externalID == "" {
		return false, ErrSubjectRequired
	}
	u, ok, err := r.store.FindByExternalID(ctx, externalID)
	if err != nil {
		return false, err
	}
	if !ok {
		r.log.WithField("external_id", externalID).Warn("identity: deactivate for unknown external id")
		return false, nil
	}
	if !u.IsActive {
		return true, nil
	}
	u.IsActive = false
	if err := r.store.Update(ctx, u); err != nil {
		return false, err
	}
	r.log.WithFields(logrus.Fields{"user_id": u.ID, "external_id": externalID}).Info("identity: user deactivated")
	return true, nil
}

func (r *Reconciler) lookup(ctx context.Context, subject, email string) (matchKind, *User, error) {
	u, ok, err := r.store.FindByExternalID(ctx, subject)
	if err != nil {
		return matchNone, nil, err
	}
	if ok {
		return matchExternal, u, nil
	}
	if email == "" {
		return matchNone, nil, nil
	}
	u, ok, err = r.store.FindByEmail(ctx, email)
	if err != nil {
		return matchNone, nil, err
	}
	if ok {
		return matchEmail, u, nil
	}
	return matchNone, nil, nil
}

func (r *Reconciler) refresh(ctx context.Context, u *User, claims ExternalClaims, email string, o reconcileOpts) (*Result, error) {
	changed := false
	if email != "" && email != u.Email {
		u.Email = email
		changed = true
	}
	if claims.GivenName != "" && claims.GivenName != u.GivenName {
		u.GivenName = claims.GivenName
		changed = true
	}
	if claims.FamilyName != "" && claims.FamilyName != u.FamilyName {
		u.FamilyName = claims.FamilyName
		changed = true
	}
	if claims.EmailVerified != nil && *claims.EmailVerified != u.IsEmailVerified {
		u.IsEmailVerified = *claims.EmailVerified
		if u.IsEmailVerified && u.EmailVerifiedAt == nil {
			now := r.now()
			u.EmailVerifiedAt = &now
		}
		changed = true
	}
	if o.reactivate && !u.IsActive {
		u.IsActive = true
		changed = true
	}
	if !changed {
		return &Result{User: u, Outcome: OutcomeUnchanged}, nil
	}
	if err := r.store.Update(ctx, u); err != nil {
		return nil, err
	}
	return &Result{User: u, Outcome: OutcomeUpdated, Changed: true}, nil
}

func (r *Reconciler) link(ctx context.Context, u *User, claims ExternalClaims) (*Result, error) {
	if prev := u.ExternalIDValue(); prev != "" && prev != claims.Subject {
		r.log.WithFields(logrus.Fields{
			"user_id":         u.ID,
			"previous_ext_id": prev,
			"external_id":     claims.Subject,
		}).Warn("identity: re-linking user to a different external id")
	}
	u.ExternalID = strPtr(claims.Subject)
	u.IsEmailVerified = true
	if u.EmailVerifiedAt == nil {
		now := r.now()
		u.EmailVerifiedAt = &now
	}
	u.IsActive = true
	if err := r.store.Update(ctx, u); err != nil {
		return nil, err
	}
	r.log.WithFields(logrus.Fields{"user_id": u.ID, "external_id": claims.Subject}).Info("identity: linked existing user")
	return &Result{User: u, Outcome: OutcomeLinked, Changed: true}, nil
}

func (r *Reconciler) create(ctx context.Context, claims ExternalClaims, email string) (*Result, error) {
	now := r.now()
	u := &User{
		ExternalID:      strPtr(claims.Subject),
		Email:           email,
		GivenName:       claims.GivenName,
		FamilyName:      claims.FamilyName,
		IsActive:        true,
		IsEmailVerified: true,
		EmailVerifiedAt: &now,
	}
	if err := r.store.Create(ctx, u); err != nil {
		return nil, err
	}
	r.log.WithFields(logrus.Fields{"user_id": u.ID, "external_id": claims.Subject}).Info("identity: created user")
	return &Result{User: u, Outcome: OutcomeCreated, Changed: true}, nil
}
