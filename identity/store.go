package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of *pgxpool.Pool used by PGStore.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ DB = (*pgxpool.Pool)(nil)

const pgUniqueViolation = "23505"

const userColumns = `id, external_id, email, given_name, family_name, password_hash,
	is_active, email_verified, email_verified_at, is_superuser,
	otp_code, otp_expiry, otp_sent_at, created_at, updated_at`

// PGStore persists users in Postgres. Uniqueness of email and external_id is
// enforced by the table's unique indexes.
type PGStore struct {
	pg     DB
	schema string
}

func NewPGStore(pg DB, schema string) *PGStore {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "auth"
	}
	return &PGStore{pg: pg, schema: s}
}

func (s *PGStore) usersTable() string { return s.schema + ".users" }

func (s *PGStore) FindByID(ctx context.Context, id uuid.UUID) (*User, bool, error) {
	if s.pg == nil || id == uuid.Nil {
		return nil, false, nil
	}
	return s.findOne(ctx, `SELECT `+userColumns+` FROM `+s.usersTable()+` WHERE id=$1 LIMIT 1`, id)
}

func (s *PGStore) FindByExternalID(ctx context.Context, externalID string) (*User, bool, error) {
	if s.pg == nil || externalID == "" {
		return nil, false, nil
	}
	return s.findOne(ctx, `SELECT `+userColumns+` FROM `+s.usersTable()+` WHERE external_id=$1 LIMIT 1`, externalID)
}

func (s *PGStore) FindByEmail(ctx context.Context, email string) (*User, bool, error) {
	email = NormalizeEmail(email)
	if s.pg == nil || email == "" {
		return nil, false, nil
	}
	return s.findOne(ctx, `SELECT `+userColumns+` FROM `+s.usersTable()+` WHERE email=$1 LIMIT 1`, email)
}

func (s *PGStore) findOne(ctx context.Context, sql string, arg any) (*User, bool, error) {
	var u User
	err := s.pg.QueryRow(ctx, sql, arg).Scan(
		&u.ID, &u.ExternalID, &u.Email, &u.GivenName, &u.FamilyName, &u.PasswordHash,
		&u.IsActive, &u.IsEmailVerified, &u.EmailVerifiedAt, &u.IsSuperuser,
		&u.OTPCode, &u.OTPExpiry, &u.OTPSentAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &u, true, nil
}

// Create inserts u, assigning an id when unset. CreatedAt/UpdatedAt are
// returned from the database.
func (s *PGStore) Create(ctx context.Context, u *User) error {
	if s.pg == nil {
		return errors.New("identity: postgres not configured")
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.Email = NormalizeEmail(u.Email)
	err := s.pg.QueryRow(ctx, `INSERT INTO `+s.usersTable()+` (id, external_id, email, given_name, family_name, password_hash,
		is_active, email_verified, email_verified_at, is_superuser, otp_code, otp_expiry, otp_sent_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at, updated_at`,
		u.ID, u.ExternalID, u.Email, u.GivenName, u.FamilyName, u.PasswordHash,
		u.IsActive, u.IsEmailVerified, u.EmailVerifiedAt, u.IsSuperuser,
		u.OTPCode, u.OTPExpiry, u.OTPSentAt,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	return mapPGError(err)
}

// Update writes every mutable column in a single statement.
func (s *PGStore) Update(ctx context.Context, u *User) error {
	if s.pg == nil {
		return errors.New("identity: postgres not configured")
	}
	u.Email = NormalizeEmail(u.Email)
	tag, err := s.pg.Exec(ctx, `UPDATE `+s.usersTable()+` SET external_id=$2, email=$3, given_name=$4, family_name=$5,
		password_hash=$6, is_active=$7, email_verified=$8, email_verified_at=$9, is_superuser=$10,
		otp_code=$11, otp_expiry=$12, otp_sent_at=$13, updated_at=NOW() WHERE id=$1`,
		u.ID, u.ExternalID, u.Email, u.GivenName, u.FamilyName,
		u.PasswordHash, u.IsActive, u.IsEmailVerified, u.EmailVerifiedAt, u.IsSuperuser,
		u.OTPCode, u.OTPExpiry, u.OTPSentAt,
	)
	if err != nil {
		return mapPGError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeExpiredOTPs clears OTP codes that expired before now.
func (s *PGStore) PurgeExpiredOTPs(ctx context.Context, now time.Time) (int64, error) {
	if s.pg == nil {
		return 0, nil
	}
	tag, err := s.pg.Exec(ctx, `UPDATE `+s.usersTable()+` SET otp_code=NULL, otp_expiry=NULL, updated_at=NOW()
		WHERE otp_code IS NOT NULL AND otp_expiry < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicateIdentity
	}
	return err
}
