// Package pgdir is the PostgreSQL identity.Directory. It uses pgx/v5 with
// hand-written SQL; audience scoping is a column predicate on every query so a
// record can never resolve across populations.
package pgdir

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/authhub/authhub/internal/identity"
)

const userColumns = `id::text, audience, account, name,
	COALESCE(phone, ''), COALESCE(email, ''), COALESCE(avatar, ''),
	enabled, COALESCE(last_login_at, 'epoch'::timestamptz),
	COALESCE(org_id, ''), COALESCE(position_id, ''), COALESCE(emp_no, ''),
	COALESCE(nickname, ''), COALESCE(level, '')`

// Directory is the pgx-backed identity directory.
type Directory struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates the directory over an open pool.
func New(log *slog.Logger, pool *pgxpool.Pool) *Directory {
	if log == nil {
		log = slog.Default()
	}
	return &Directory{
		pool:   pool,
		logger: log.With(slog.String("service", "pgdir")),
	}
}

// FindUser implements identity.Directory.
func (d *Directory) FindUser(ctx context.Context, audience identity.Audience, channel identity.Channel, key string) (identity.User, error) {
	key = strings.TrimSpace(key)
	var column string
	switch channel {
	case identity.ChannelID:
		if _, err := uuid.Parse(key); err != nil {
			return identity.User{}, identity.ErrNotFound
		}
		column = "id::text"
	case identity.ChannelAccount:
		column = "account"
	case identity.ChannelPhone:
		column = "phone"
	case identity.ChannelEmail:
		column = "email"
	default:
		return identity.User{}, fmt.Errorf("find user: unsupported channel %q", channel)
	}
	row := d.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM users WHERE audience = $1 AND %s = $2`, userColumns, column,
	), audience.String(), key)
	return scanUser(row)
}

// CreateUserWithContact implements identity.Directory. The upsert relies on
// the partial unique index per (audience, contact column): a concurrent
// duplicate insert collapses into returning the existing row.
func (d *Directory) CreateUserWithContact(ctx context.Context, audience identity.Audience, channel identity.Channel, contact string) (identity.User, error) {
	contact = strings.TrimSpace(contact)
	var column string
	switch channel {
	case identity.ChannelPhone:
		column = "phone"
	case identity.ChannelEmail:
		column = "email"
	default:
		return identity.User{}, fmt.Errorf("create user: channel %q has no reachable contact", channel)
	}

	row := d.pool.QueryRow(ctx, fmt.Sprintf(
		`INSERT INTO users (audience, account, name, %s, %s)
		 VALUES ($1, $2, $2, $2, TRUE)
		 ON CONFLICT (audience, %s) WHERE %s IS NOT NULL
		 DO UPDATE SET updated_at = now()
		 RETURNING %s`,
		column, "enabled", column, column, userColumns,
	), audience.String(), contact)
	return scanUser(row)
}

// VerifyPassword implements identity.Directory. Missing account and wrong
// password are indistinguishable to the caller.
func (d *Directory) VerifyPassword(ctx context.Context, audience identity.Audience, account, password string) (identity.User, error) {
	row := d.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s, COALESCE(password_hash, '') FROM users WHERE audience = $1 AND account = $2`, userColumns,
	), audience.String(), strings.TrimSpace(account))
	user, hash, err := scanUserWithHash(row)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.User{}, identity.ErrCredentialInvalid
		}
		return identity.User{}, err
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return identity.User{}, identity.ErrCredentialInvalid
	}
	return user, nil
}

// Register implements identity.Directory; new accounts are customer records.
func (d *Directory) Register(ctx context.Context, account, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = d.pool.Exec(ctx,
		`INSERT INTO users (audience, account, name, password_hash, enabled)
		 VALUES ($1, $2, $2, $3, TRUE)`,
		identity.AudienceCustomer.String(), strings.TrimSpace(account), string(hash),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("register: account %q already exists", account)
	}
	return err
}

// ListUsersByIDs implements identity.Directory, preserving request order.
func (d *Directory) ListUsersByIDs(ctx context.Context, ids []string) ([]identity.Record, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(strings.TrimSpace(id)); err == nil {
			valid = append(valid, strings.TrimSpace(id))
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}
	rows, err := d.pool.Query(ctx,
		`SELECT id::text, to_jsonb(u) - 'password_hash' FROM users u WHERE id::text = ANY($1)`,
		valid,
	)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	byID := map[string]identity.Record{}
	for rows.Next() {
		var id string
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scan user record: %w", err)
		}
		byID[id] = identity.Record(doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var out []identity.Record
	for _, id := range valid {
		if doc, ok := byID[id]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

// RolesByUserID implements identity.Directory.
func (d *Directory) RolesByUserID(ctx context.Context, userID string) ([]identity.Record, error) {
	if _, err := uuid.Parse(strings.TrimSpace(userID)); err != nil {
		return nil, nil
	}
	return d.queryDocs(ctx,
		`SELECT doc FROM roles WHERE user_id = $1 ORDER BY position`,
		strings.TrimSpace(userID),
	)
}

// PermissionsByUserAndRoleIDs implements identity.Directory.
func (d *Directory) PermissionsByUserAndRoleIDs(ctx context.Context, ids []string, orgID string) ([]identity.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return d.queryDocs(ctx,
		`SELECT doc FROM permissions
		 WHERE subject_id = ANY($1) AND ($2 = '' OR org_id = $2)
		 ORDER BY position`,
		ids, strings.TrimSpace(orgID),
	)
}

// ButtonCodesByUserAndRoleIDs implements identity.Directory.
func (d *Directory) ButtonCodesByUserAndRoleIDs(ctx context.Context, ids []string) ([]string, error) {
	return d.queryCodes(ctx, ids, false)
}

// MobileButtonCodesByUserAndRoleIDs implements identity.Directory.
func (d *Directory) MobileButtonCodesByUserAndRoleIDs(ctx context.Context, ids []string) ([]string, error) {
	return d.queryCodes(ctx, ids, true)
}

// RecordLogin implements identity.Directory.
func (d *Directory) RecordLogin(ctx context.Context, userID, device string) error {
	if _, err := uuid.Parse(strings.TrimSpace(userID)); err != nil {
		return fmt.Errorf("record login: invalid user id: %w", err)
	}
	tag, err := d.pool.Exec(ctx,
		`UPDATE users SET last_login_at = now(), last_login_device = $2, updated_at = now() WHERE id = $1`,
		strings.TrimSpace(userID), device,
	)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrNotFound
	}
	return nil
}

// ThirdPartyUserCount implements identity.Directory.
func (d *Directory) ThirdPartyUserCount(ctx context.Context) (int64, error) {
	var count int64
	if err := d.pool.QueryRow(ctx, `SELECT count(*) FROM third_party_users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("third-party count: %w", err)
	}
	return count, nil
}

func (d *Directory) queryDocs(ctx context.Context, sql string, args ...any) ([]identity.Record, error) {
	rows, err := d.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []identity.Record
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, identity.Record(doc))
	}
	return out, rows.Err()
}

func (d *Directory) queryCodes(ctx context.Context, ids []string, mobile bool) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := d.pool.Query(ctx,
		`SELECT code FROM button_codes WHERE subject_id = ANY($1) AND mobile = $2 ORDER BY position`,
		ids, mobile,
	)
	if err != nil {
		return nil, fmt.Errorf("query button codes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan button code: %w", err)
		}
		out = append(out, code)
	}
	return out, rows.Err()
}

func scanUser(row pgx.Row) (identity.User, error) {
	var u identity.User
	var audience, orgID, positionID, empNo, nickname, level string
	err := row.Scan(&u.ID, &audience, &u.Account, &u.Name,
		&u.Phone, &u.Email, &u.Avatar, &u.Enabled, &u.LastLoginAt,
		&orgID, &positionID, &empNo, &nickname, &level,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return identity.User{}, identity.ErrNotFound
		}
		return identity.User{}, fmt.Errorf("scan user: %w", err)
	}
	return buildUser(u, audience, orgID, positionID, empNo, nickname, level)
}

func scanUserWithHash(row pgx.Row) (identity.User, string, error) {
	var u identity.User
	var audience, orgID, positionID, empNo, nickname, level, hash string
	err := row.Scan(&u.ID, &audience, &u.Account, &u.Name,
		&u.Phone, &u.Email, &u.Avatar, &u.Enabled, &u.LastLoginAt,
		&orgID, &positionID, &empNo, &nickname, &level, &hash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return identity.User{}, "", identity.ErrNotFound
		}
		return identity.User{}, "", fmt.Errorf("scan user: %w", err)
	}
	user, err := buildUser(u, audience, orgID, positionID, empNo, nickname, level)
	return user, hash, err
}

func buildUser(u identity.User, audience, orgID, positionID, empNo, nickname, level string) (identity.User, error) {
	aud, err := identity.ParseAudience(audience)
	if err != nil {
		return identity.User{}, fmt.Errorf("user %s: %w", u.ID, err)
	}
	u.Audience = aud
	switch aud {
	case identity.AudienceBackOffice:
		u.BackOffice = &identity.BackOfficeProfile{OrgID: orgID, PositionID: positionID, EmpNo: empNo}
	case identity.AudienceCustomer:
		u.Customer = &identity.CustomerProfile{Nickname: nickname, Level: level}
	}
	return u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505"
}

var _ identity.Directory = (*Directory)(nil)
