package app

import "serotonyl.ru/gifts-bot/internal/db/postgres"

// migrations - схема БД по версиям. Новые миграции только дописываются в конец.
var migrations = []postgres.Migration{
	{Version: 1, SQL: migration001Members},
	{Version: 2, SQL: migration002Ledger},
	{Version: 3, SQL: migration003Catalog},
	{Version: 4, SQL: migration004Openings},
	{Version: 5, SQL: migration005Inventory},
	{Version: 6, SQL: migration006Admin},
}

var migration001Members = `
CREATE TABLE IF NOT EXISTS members (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT UNIQUE NOT NULL,
    username VARCHAR(255),
    first_name VARCHAR(255) NOT NULL DEFAULT '',
    last_name VARCHAR(255),
    language_code VARCHAR(16),
    is_premium BOOLEAN DEFAULT FALSE,
    is_banned BOOLEAN DEFAULT FALSE,
    cases_opened BIGINT DEFAULT 0,
    joined_at TIMESTAMP DEFAULT NOW(),
    last_seen_at TIMESTAMP DEFAULT NOW(),
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_members_username ON members(LOWER(username));
`

var migration002Ledger = `
CREATE TABLE IF NOT EXISTS balances (
    user_id BIGINT PRIMARY KEY REFERENCES members(user_id),
    ton_balance NUMERIC(18,8) NOT NULL DEFAULT 0 CHECK (ton_balance >= 0),
    stars_balance BIGINT NOT NULL DEFAULT 0 CHECK (stars_balance >= 0),
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS transactions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES members(user_id),
    type VARCHAR(32) NOT NULL,
    currency VARCHAR(8) NOT NULL,
    amount NUMERIC(18,8) NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'completed',
    external_id VARCHAR(255),
    reference VARCHAR(64),
    description TEXT,
    created_at TIMESTAMP DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_external_id
    ON transactions(external_id) WHERE external_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_reference ON transactions(reference);
`

var migration003Catalog = `
CREATE TABLE IF NOT EXISTS cases (
    id VARCHAR(128) PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    category VARCHAR(32) NOT NULL DEFAULT 'mix',
    price NUMERIC(18,8) NOT NULL DEFAULT 0,
    currency VARCHAR(8) NOT NULL DEFAULT 'STARS',
    image_url TEXT,
    is_active BOOLEAN DEFAULT TRUE,
    open_count BIGINT DEFAULT 0,
    synced_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS items (
    id VARCHAR(128) PRIMARY KEY,
    case_id VARCHAR(128) NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
    name VARCHAR(255) NOT NULL,
    image_url TEXT,
    rarity VARCHAR(16) NOT NULL DEFAULT 'common',
    value BIGINT NOT NULL DEFAULT 0,
    probability DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_items_case_id ON items(case_id);
`

var migration004Openings = `
CREATE TABLE IF NOT EXISTS case_openings (
    id UUID PRIMARY KEY,
    request_id UUID NOT NULL,
    user_id BIGINT NOT NULL REFERENCES members(user_id),
    case_id VARCHAR(128) NOT NULL,
    item_id VARCHAR(128) NOT NULL,
    item_name VARCHAR(255) NOT NULL,
    item_rarity VARCHAR(16) NOT NULL,
    item_value BIGINT NOT NULL,
    cost NUMERIC(18,8) NOT NULL,
    currency VARCHAR(8) NOT NULL,
    roll DOUBLE PRECISION NOT NULL,
    total_weight DOUBLE PRECISION NOT NULL,
    strategy VARCHAR(16) NOT NULL,
    created_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_case_openings_user ON case_openings(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_case_openings_request ON case_openings(request_id);
`

var migration005Inventory = `
CREATE TABLE IF NOT EXISTS user_inventory (
    id UUID PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES members(user_id),
    item_id VARCHAR(128) NOT NULL,
    case_id VARCHAR(128) NOT NULL,
    opening_id UUID REFERENCES case_openings(id),
    item_name VARCHAR(255) NOT NULL,
    item_image TEXT,
    item_rarity VARCHAR(16) NOT NULL,
    item_value BIGINT NOT NULL,
    is_gifted BOOLEAN DEFAULT FALSE,
    gifted_to BIGINT,
    gifted_at TIMESTAMP,
    obtained_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_user_inventory_user ON user_inventory(user_id, obtained_at DESC);
`

var migration006Admin = `
CREATE TABLE IF NOT EXISTS admin_sessions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT REFERENCES members(user_id),
    session_token VARCHAR(255) UNIQUE,
    authenticated_at TIMESTAMP DEFAULT NOW(),
    expires_at TIMESTAMP,
    last_activity TIMESTAMP DEFAULT NOW(),
    is_active BOOLEAN DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_admin_sessions_user_id ON admin_sessions(user_id);
CREATE TABLE IF NOT EXISTS admin_login_attempts (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT,
    attempt_time TIMESTAMP DEFAULT NOW(),
    success BOOLEAN DEFAULT FALSE
);
`
