package core

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/PaulFidika/userauth/identity"
	jwtkit "github.com/PaulFidika/userauth/jwt"
	"github.com/sirupsen/logrus"
)

type captureQueue struct {
	mu    sync.Mutex
	codes map[string]string
	fail  error
}

func (q *captureQueue) EnqueueOTP(_ context.Context, email, code string, _ time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail != nil {
		return q.fail
	}
	q.codes[email] = code
	return nil
}

func (q *captureQueue) last(email string) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.codes[email]
}

type testEnv struct {
	svc   *Service
	store *identity.MemStore
	queue *captureQueue
	now   time.Time
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	signer, err := jwtkit.NewRSASigner(2048, "session-test")
	if err != nil {
		t.Fatalf("NewRSASigner: %v", err)
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	env := &testEnv{store: identity.NewMemStore(), queue: &captureQueue{codes: map[string]string{}}, now: time.Now()}
	svc, err := NewService(Config{Issuer: "userauth-test", Keys: jwtkit.NewStaticKeySource(signer)}, env.store,
		WithEmailQueue(env.queue),
		WithLogger(l),
		WithClock(func() time.Time { return env.now }),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	env.svc = svc
	return env
}

func (e *testEnv) signUp(t *testing.T, email string) *identity.User {
	t.Helper()
	u, err := e.svc.SignUp(context.Background(), SignUpInput{
		Email: email, Password: "Password123!", ConfirmPassword: "Password123!", GivenName: "Ann",
	})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	return u
}

func TestSignUp_CreatesInactiveUserAndSendsCode(t *testing.T) {
	env := newEnv(t)
	u := env.signUp(t, " Ann@Example.com")
	if u.Email != "ann@example.com" || u.IsActive || u.IsEmailVerified {
		t.Fatalf("unexpected user: %+v", u)
	}
	code := env.queue.last("ann@example.com")
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}
	if u.OTPExpiry == nil || !u.OTPExpiry.Equal(env.now.Add(DefaultOTPTTL)) {
		t.Fatalf("expected code to expire after %s", DefaultOTPTTL)
	}
	if u.PasswordHash == nil || *u.PasswordHash == "Password123!" {
		t.Fatalf("expected hashed password")
	}
}

func TestSignUp_Validation(t *testing.T) {
	env := newEnv(t)
	env.signUp(t, "taken@example.com")
	ctx := context.Background()

	cases := []struct {
		name string
		in   SignUpInput
		want error
	}{
		{"taken", SignUpInput{Email: "TAKEN@example.com", Password: "Password123!", ConfirmPassword: "Password123!"}, ErrEmailTaken},
		{"mismatch", SignUpInput{Email: "b@example.com", Password: "Password123!", ConfirmPassword: "Password124!"}, ErrPasswordMismatch},
		{"short", SignUpInput{Email: "c@example.com", Password: "short", ConfirmPassword: "short"}, ErrPasswordTooShort},
		{"missing", SignUpInput{Email: "", Password: "Password123!"}, ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.svc.SignUp(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestVerifyOTP_Flow(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.signUp(t, "ann@example.com")
	code := env.queue.last("ann@example.com")

	if _, err := env.svc.VerifyOTP(ctx, "nobody@example.com", code); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	if _, err := env.svc.VerifyOTP(ctx, "ann@example.com", wrong); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("expected ErrOTPInvalid, got %v", err)
	}
	u, err := env.svc.VerifyOTP(ctx, "ann@example.com", code)
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if !u.IsActive || !u.IsEmailVerified || u.EmailVerifiedAt == nil || u.OTPCode != nil {
		t.Fatalf("unexpected verified user: %+v", u)
	}
	if _, err := env.svc.VerifyOTP(ctx, "ann@example.com", code); !errors.Is(err, ErrOTPMissing) {
		t.Fatalf("expected ErrOTPMissing after use, got %v", err)
	}
}

func TestVerifyOTP_ExpiredClearsCode(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.signUp(t, "ann@example.com")
	code := env.queue.last("ann@example.com")

	env.now = env.now.Add(DefaultOTPTTL + time.Second)
	if _, err := env.svc.VerifyOTP(ctx, "ann@example.com", code); !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("expected ErrOTPExpired, got %v", err)
	}
	u, _, _ := env.store.FindByEmail(ctx, "ann@example.com")
	if u.OTPCode != nil {
		t.Fatalf("expected expired code to be cleared")
	}
}

func TestResendOTP(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.signUp(t, "ann@example.com")

	if err := env.svc.ResendOTP(ctx, "nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := env.svc.ResendOTP(ctx, "ann@example.com"); err != nil {
		t.Fatalf("ResendOTP: %v", err)
	}
	code := env.queue.last("ann@example.com")
	if _, err := env.svc.VerifyOTP(ctx, "ann@example.com", code); err != nil {
		t.Fatalf("VerifyOTP with resent code: %v", err)
	}
	if err := env.svc.ResendOTP(ctx, "ann@example.com"); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("expected ErrAlreadyVerified, got %v", err)
	}
}

func TestSignIn_RequiresVerifiedActiveAccount(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.signUp(t, "ann@example.com")

	if _, _, err := env.svc.SignIn(ctx, "ann@example.com", "Password123!", SignInMeta{}); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified, got %v", err)
	}
	if _, err := env.svc.VerifyOTP(ctx, "ann@example.com", env.queue.last("ann@example.com")); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if _, _, err := env.svc.SignIn(ctx, "ann@example.com", "wrong-password", SignInMeta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := env.svc.SignIn(ctx, "nobody@example.com", "Password123!", SignInMeta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	u, pair, err := env.svc.SignIn(ctx, "ann@example.com", "Password123!", SignInMeta{IP: "127.0.0.1"})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	got, err := env.svc.AuthenticateAccess(ctx, pair.Access.Token)
	if err != nil {
		t.Fatalf("AuthenticateAccess: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("access token resolved to another user")
	}
	if _, err := env.svc.AuthenticateAccess(ctx, pair.Refresh.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token must not authenticate as access, got %v", err)
	}

	u.IsActive = false
	if err := env.store.Update(ctx, u); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, _, err := env.svc.SignIn(ctx, "ann@example.com", "Password123!", SignInMeta{}); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}

func TestSignIn_ExternalUserHasNoPassword(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	ext := "user_1"
	if err := env.store.Create(ctx, &identity.User{Email: "ext@example.com", ExternalID: &ext, IsActive: true, IsEmailVerified: true}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, _, err := env.svc.SignIn(ctx, "ext@example.com", "", SignInMeta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRefresh_RotatesAndRejectsReuse(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.signUp(t, "ann@example.com")
	if _, err := env.svc.VerifyOTP(ctx, "ann@example.com", env.queue.last("ann@example.com")); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	_, pair, err := env.svc.SignIn(ctx, "ann@example.com", "Password123!", SignInMeta{})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	_, next, err := env.svc.Refresh(ctx, pair.Refresh.Token)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.Refresh.ID == pair.Refresh.ID {
		t.Fatalf("expected a new refresh token id")
	}
	if _, _, err := env.svc.Refresh(ctx, pair.Refresh.Token); !errors.Is(err, ErrRefreshReused) {
		t.Fatalf("expected ErrRefreshReused, got %v", err)
	}
	if _, _, err := env.svc.Refresh(ctx, pair.Access.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token must not refresh, got %v", err)
	}
	if _, _, err := env.svc.Refresh(ctx, next.Refresh.Token); err != nil {
		t.Fatalf("rotated refresh token should work: %v", err)
	}
}

func TestSweepExpiredOTPs(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.signUp(t, "a@example.com")
	env.signUp(t, "b@example.com")

	env.now = env.now.Add(DefaultOTPTTL + time.Minute)
	n, err := env.svc.SweepExpiredOTPs(ctx)
	if err != nil {
		t.Fatalf("SweepExpiredOTPs: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 cleared codes, got %d", n)
	}
}

func TestSignUp_EnqueueFailureStillCreatesUser(t *testing.T) {
	env := newEnv(t)
	env.queue.fail = errors.New("queue down")
	u := env.signUp(t, "ann@example.com")
	if _, ok, _ := env.store.FindByID(context.Background(), u.ID); !ok {
		t.Fatalf("expected user to be created even when email enqueue fails")
	}
}
