package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an identical expense is already stored
	ErrDuplicate = errors.New("duplicate expense")
	// ErrWrongPIN is returned by CheckPIN on a mismatch
	ErrWrongPIN = errors.New("wrong pin")
)

// User is an account identified by phone number
type User struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	PINHash   string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// Expense is one persisted spend
type Expense struct {
	ID              string          `json:"id"`
	UserPhone       string          `json:"userPhone"`
	Amount          decimal.Decimal `json:"amount"`
	Merchant        string          `json:"merchant"`
	Category        string          `json:"category"`
	AppName         string          `json:"appName"`
	SourceStyle     string          `json:"sourceStyle,omitempty"`
	OriginalMessage string          `json:"originalMessage,omitempty"`
	Date            time.Time       `json:"date"`
}

// Store persists users and expenses in SQLite or Postgres
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the database. driver is "sqlite" or "postgres".
func Open(driver, dsn string) (*Store, error) {
	var db *sql.DB
	switch driver {
	case "sqlite":
		var err error
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		// a single writer avoids SQLITE_BUSY under concurrent syncs
		db.SetMaxOpenConns(1)
	case "postgres":
		config, err := pgx.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("parsing database URL: %w", err)
		}
		db = stdlib.OpenDB(*config)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	return &Store{db: db, driver: driver}, nil
}

// Close releases the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates missing tables and indexes
func (s *Store) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if s.driver == "postgres" {
		schema = postgresSchema
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return s.addSourceStyle(ctx)
}

// addSourceStyle upgrades databases created before expenses recorded
// their source style. Old rows keep an empty style.
func (s *Store) addSourceStyle(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT source_style FROM expenses LIMIT 1`)
	if err == nil {
		return rows.Close()
	}
	if _, err := s.db.ExecContext(ctx, `ALTER TABLE expenses ADD COLUMN source_style TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("adding source_style column: %w", err)
	}
	return nil
}

// rebind rewrites '?' placeholders as $n for Postgres
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// GetUserByPhone returns the user registered with phone
func (s *Store) GetUserByPhone(ctx context.Context, phone string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id, phone, pin_hash, created_at FROM users WHERE phone = ?`), phone,
	).Scan(&u.ID, &u.Phone, &u.PINHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("querying user: %w", err)
	}
	return u, nil
}

// CreateUser registers phone with a bcrypt hash of pin
func (s *Store) CreateUser(ctx context.Context, phone, pin string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hashing pin: %w", err)
	}

	u := User{
		ID:        uuid.NewString(),
		Phone:     phone,
		PINHash:   string(hash),
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO users (id, phone, pin_hash, created_at) VALUES (?, ?, ?, ?)`),
		u.ID, u.Phone, u.PINHash, u.CreatedAt,
	)
	if err != nil {
		return User{}, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// CheckPIN compares pin against the user's stored hash
func CheckPIN(u User, pin string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(u.PINHash), []byte(pin)); err != nil {
		return ErrWrongPIN
	}
	return nil
}

// CreateExpense stores e, filling in ID and Date when unset. An expense
// with the same phone, date and message as a stored one is rejected
// with ErrDuplicate.
func (s *Store) CreateExpense(ctx context.Context, e Expense) (Expense, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Date.IsZero() {
		e.Date = time.Now()
	}
	e.Date = e.Date.UTC()

	res, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO expenses (id, user_phone, amount, merchant, category, app_name, source_style, original_message, date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`),
		e.ID, e.UserPhone, e.Amount, e.Merchant, e.Category, e.AppName, e.SourceStyle, e.OriginalMessage, e.Date,
	)
	if err != nil {
		return Expense{}, fmt.Errorf("creating expense: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Expense{}, ErrDuplicate
	}
	return e, nil
}

// ListExpenses returns a user's expenses, newest first
func (s *Store) ListExpenses(ctx context.Context, phone string) ([]Expense, error) {
	return s.queryExpenses(ctx, `
		SELECT id, user_phone, amount, merchant, category, app_name, source_style, original_message, date
		FROM expenses
		WHERE user_phone = ?
		ORDER BY date DESC`, phone)
}

// AllExpenses returns every stored expense, oldest first
func (s *Store) AllExpenses(ctx context.Context) ([]Expense, error) {
	return s.queryExpenses(ctx, `
		SELECT id, user_phone, amount, merchant, category, app_name, source_style, original_message, date
		FROM expenses
		ORDER BY date ASC`)
}

// UpdateCategory sets the category of one expense
func (s *Store) UpdateCategory(ctx context.Context, id, category string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE expenses SET category = ? WHERE id = ?`), category, id)
	if err != nil {
		return fmt.Errorf("updating category: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) queryExpenses(ctx context.Context, query string, args ...any) ([]Expense, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying expenses: %w", err)
	}
	defer rows.Close()

	expenses := make([]Expense, 0)
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.UserPhone, &e.Amount, &e.Merchant, &e.Category, &e.AppName, &e.SourceStyle, &e.OriginalMessage, &e.Date); err != nil {
			return nil, fmt.Errorf("scanning expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating expenses: %w", err)
	}
	return expenses, nil
}
