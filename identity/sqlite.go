package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	rideAuth "github.com/MrEthical07/rideAuth"
	"github.com/MrEthical07/rideAuth/internal/logging"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL,
	email_norm    TEXT NOT NULL UNIQUE,
	display_name  TEXT NOT NULL DEFAULT '',
	verified      INTEGER NOT NULL DEFAULT 0,
	password_hash TEXT NOT NULL,
	created_at    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	expires_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS verifications (
	token_hash TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	expires_at INTEGER NOT NULL
);
`

// OpenSQLite opens (creating if needed) the database file at path with the
// pure-Go driver.
func OpenSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}
	return db, nil
}

// SQLiteBackend is an embedded account store for offline and single-device
// deployments.
type SQLiteBackend struct {
	db       *sql.DB
	opts     Options
	now      func() time.Time
	sessions sessionHolder
}

var _ rideAuth.IdentityBackend = (*SQLiteBackend)(nil)

// NewSQLiteBackend creates the schema on db and returns a backend.
func NewSQLiteBackend(ctx context.Context, db *sql.DB, opts Options) (*SQLiteBackend, error) {
	if db == nil {
		return nil, errors.New("identity: database handle is required")
	}
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteBackend{db: db, opts: opts, now: time.Now}, nil
}

// SignInWithPassword implements rideAuth.IdentityBackend.
func (b *SQLiteBackend) SignInWithPassword(ctx context.Context, email, password string) (rideAuth.Account, error) {
	if err := checkThrottle(ctx, b.opts.Limiter, email); err != nil {
		return rideAuth.Account{}, err
	}

	acct, err := b.loadWhere(ctx, "email_norm = ?", normalizeEmail(email))
	if err != nil {
		return rideAuth.Account{}, err
	}
	if err := verifyPassword(ctx, b.opts, acct, email, password); err != nil {
		return rideAuth.Account{}, err
	}
	b.maybeRehash(ctx, acct, password)

	if err := b.startSession(ctx, acct.Account); err != nil {
		return rideAuth.Account{}, err
	}
	return acct.Account, nil
}

// CreateAccount implements rideAuth.IdentityBackend. The new account is
// signed in.
func (b *SQLiteBackend) CreateAccount(ctx context.Context, email, password string) (rideAuth.Account, error) {
	hash, err := b.opts.Hasher.Hash(password)
	if err != nil {
		return rideAuth.Account{}, fmt.Errorf("hash password: %w", err)
	}

	acct := rideAuth.Account{ID: uuid.NewString(), Email: normalizeEmail(email)}
	res, err := b.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, email_norm, password_hash, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(email_norm) DO NOTHING`,
		acct.ID, acct.Email, acct.Email, hash, b.now().Unix(),
	)
	if err != nil {
		return rideAuth.Account{}, fmt.Errorf("store account: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return rideAuth.Account{}, fmt.Errorf("email already registered: %w", rideAuth.ErrAccountExists)
	}

	b.opts.Logger.Info("account created", zap.String("account_id", acct.ID), logging.Email(acct.Email))

	if err := b.startSession(ctx, acct); err != nil {
		return rideAuth.Account{}, err
	}
	return acct, nil
}

// SetDisplayName implements rideAuth.IdentityBackend.
func (b *SQLiteBackend) SetDisplayName(ctx context.Context, account rideAuth.Account, name string) error {
	if account.ID == "" {
		return rideAuth.ErrNotSignedIn
	}
	res, err := b.db.ExecContext(ctx, `UPDATE accounts SET display_name = ? WHERE id = ?`, name, account.ID)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account %s: %w", account.ID, rideAuth.ErrNoSuchAccount)
	}
	return nil
}

// SendVerificationEmail implements rideAuth.IdentityBackend.
func (b *SQLiteBackend) SendVerificationEmail(ctx context.Context, account rideAuth.Account) error {
	if account.ID == "" {
		return rideAuth.ErrNotSignedIn
	}
	acct, err := b.loadWhere(ctx, "id = ?", account.ID)
	if err != nil {
		return err
	}

	token, msg := newVerification(b.opts, acct.Account)
	tokenHash := hashToken(token)
	if _, err := b.db.ExecContext(ctx,
		`INSERT INTO verifications (token_hash, account_id, expires_at) VALUES (?, ?, ?)`,
		tokenHash, acct.ID, msg.ExpiresAt.Unix(),
	); err != nil {
		return fmt.Errorf("store verification: %w", err)
	}

	if err := b.opts.Notifier.NotifyVerification(ctx, msg); err != nil {
		_, _ = b.db.ExecContext(context.WithoutCancel(ctx), `DELETE FROM verifications WHERE token_hash = ?`, tokenHash)
		return fmt.Errorf("send verification: %w", err)
	}
	return nil
}

// ConfirmEmailVerification redeems a verification token once and marks the
// account verified.
func (b *SQLiteBackend) ConfirmEmailVerification(ctx context.Context, token string) (rideAuth.Account, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return rideAuth.Account{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var (
		accountID string
		expiresAt int64
	)
	err = tx.QueryRowContext(ctx,
		`DELETE FROM verifications WHERE token_hash = ? RETURNING account_id, expires_at`,
		hashToken(token),
	).Scan(&accountID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rideAuth.Account{}, rideAuth.ErrVerificationInvalid
	}
	if err != nil {
		return rideAuth.Account{}, fmt.Errorf("redeem verification: %w", err)
	}
	if b.now().Unix() > expiresAt {
		// The consumed row is still deleted.
		if err := tx.Commit(); err != nil {
			return rideAuth.Account{}, fmt.Errorf("commit: %w", err)
		}
		return rideAuth.Account{}, rideAuth.ErrVerificationInvalid
	}

	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET verified = 1 WHERE id = ?`, accountID); err != nil {
		return rideAuth.Account{}, fmt.Errorf("mark verified: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return rideAuth.Account{}, fmt.Errorf("commit: %w", err)
	}

	acct, err := b.loadWhere(ctx, "id = ?", accountID)
	if err != nil {
		return rideAuth.Account{}, err
	}
	return acct.Account, nil
}

// SignOut implements rideAuth.IdentityBackend.
func (b *SQLiteBackend) SignOut(ctx context.Context) {
	s, ok := b.sessions.take()
	if !ok {
		return
	}
	if _, err := b.db.ExecContext(context.WithoutCancel(ctx), `DELETE FROM sessions WHERE id = ?`, s.id); err != nil {
		b.opts.Logger.Warn("session delete failed", zap.String("account_id", s.account), zap.Error(err))
	}
}

// CurrentAccount implements rideAuth.IdentityBackend.
func (b *SQLiteBackend) CurrentAccount(ctx context.Context) (rideAuth.Account, bool) {
	s, ok := b.sessions.get()
	if !ok {
		return rideAuth.Account{}, false
	}

	var expiresAt int64
	err := b.db.QueryRowContext(ctx,
		`SELECT expires_at FROM sessions WHERE id = ? AND account_id = ?`, s.id, s.account,
	).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && b.now().Unix() > expiresAt) {
		b.sessions.clearIf(s.id)
		return rideAuth.Account{}, false
	}
	if err != nil {
		b.opts.Logger.Warn("session lookup failed", zap.Error(err))
		return rideAuth.Account{}, false
	}

	acct, err := b.loadWhere(ctx, "id = ?", s.account)
	if err != nil {
		return rideAuth.Account{}, false
	}
	return acct.Account, true
}

// SessionToken returns the signed token of the current session.
func (b *SQLiteBackend) SessionToken() (string, bool) {
	s, ok := b.sessions.get()
	return s.token, ok
}

func (b *SQLiteBackend) startSession(ctx context.Context, acct rideAuth.Account) error {
	s, err := issueSession(b.opts, acct)
	if err != nil {
		return err
	}
	expires := b.now().Add(b.opts.Sessions.TTL()).Unix()
	if _, err := b.db.ExecContext(ctx,
		`INSERT INTO sessions (id, account_id, expires_at) VALUES (?, ?, ?)`, s.id, acct.ID, expires,
	); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	b.sessions.set(s)
	return nil
}

// loadWhere reads one account; cond is a fixed SQL fragment, never user input.
func (b *SQLiteBackend) loadWhere(ctx context.Context, cond string, arg any) (storedAccount, error) {
	var (
		acct     storedAccount
		verified int
		created  int64
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, verified, password_hash, created_at FROM accounts WHERE `+cond, arg,
	).Scan(&acct.ID, &acct.Email, &acct.DisplayName, &verified, &acct.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return storedAccount{}, fmt.Errorf("lookup account: %w", rideAuth.ErrNoSuchAccount)
	}
	if err != nil {
		return storedAccount{}, fmt.Errorf("load account: %w", err)
	}
	acct.EmailVerified = verified == 1
	acct.CreatedAt = time.Unix(created, 0).UTC()
	return acct, nil
}

func (b *SQLiteBackend) maybeRehash(ctx context.Context, acct storedAccount, password string) {
	upgrade, err := b.opts.Hasher.NeedsUpgrade(acct.PasswordHash)
	if err != nil || !upgrade {
		return
	}
	hash, err := b.opts.Hasher.Hash(password)
	if err != nil {
		return
	}
	if _, err := b.db.ExecContext(ctx, `UPDATE accounts SET password_hash = ? WHERE id = ?`, hash, acct.ID); err != nil {
		b.opts.Logger.Warn("password rehash failed", zap.String("account_id", acct.ID), zap.Error(err))
	}
}
