package store

const sqliteSchema = `
-- users: accounts keyed by phone number, PIN stored as bcrypt hash
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    phone TEXT NOT NULL UNIQUE,
    pin_hash TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

-- expenses: debits extracted from forwarded notifications
CREATE TABLE IF NOT EXISTS expenses (
    id TEXT PRIMARY KEY,
    user_phone TEXT NOT NULL,
    amount REAL NOT NULL,
    merchant TEXT NOT NULL,
    category TEXT NOT NULL,
    app_name TEXT NOT NULL DEFAULT '',
    source_style TEXT NOT NULL DEFAULT '',
    original_message TEXT NOT NULL DEFAULT '',
    date DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_expenses_user_date ON expenses(user_phone, date);
CREATE UNIQUE INDEX IF NOT EXISTS idx_expenses_unique ON expenses(user_phone, date, original_message);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    phone TEXT NOT NULL UNIQUE,
    pin_hash TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS expenses (
    id TEXT PRIMARY KEY,
    user_phone TEXT NOT NULL,
    amount NUMERIC(14,2) NOT NULL,
    merchant TEXT NOT NULL,
    category TEXT NOT NULL,
    app_name TEXT NOT NULL DEFAULT '',
    source_style TEXT NOT NULL DEFAULT '',
    original_message TEXT NOT NULL DEFAULT '',
    date TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_expenses_user_date ON expenses(user_phone, date);
CREATE UNIQUE INDEX IF NOT EXISTS idx_expenses_unique ON expenses(user_phone, date, original_message);
`
