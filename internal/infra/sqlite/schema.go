package sqlite

// schema creates every table, view and index. Timestamps are stored as
// RFC3339 UTC text so SQLite's date functions work on them directly.
const schema = `
-- Accounts table
CREATE TABLE IF NOT EXISTS accounts (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    description TEXT,
    created TEXT,
    closed INTEGER NOT NULL DEFAULT 0,
    currency TEXT NOT NULL DEFAULT 'GBP'
);

-- Merchants table (normalized out of expanded transactions)
CREATE TABLE IF NOT EXISTS merchants (
    id TEXT PRIMARY KEY,
    group_id TEXT,
    name TEXT,
    category TEXT,
    emoji TEXT,
    logo_url TEXT,
    online INTEGER NOT NULL DEFAULT 0,
    atm INTEGER NOT NULL DEFAULT 0,

    -- Address
    address TEXT,
    city TEXT,
    region TEXT,
    country TEXT,
    postcode TEXT,
    latitude REAL,
    longitude REAL,

    -- Stats, refreshed from transactions after each ingest
    first_seen TEXT,
    last_seen TEXT,
    transaction_count INTEGER NOT NULL DEFAULT 0,
    total_spent INTEGER NOT NULL DEFAULT 0
);

-- Transactions table, amounts in minor units (pence)
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL,
    merchant_id TEXT,

    -- Timing
    created TEXT NOT NULL,
    settled TEXT,

    -- Money
    amount INTEGER NOT NULL,
    currency TEXT NOT NULL DEFAULT 'GBP',
    local_amount INTEGER,
    local_currency TEXT,

    -- Description
    description TEXT,
    category TEXT,
    notes TEXT,

    -- Metadata
    mcc TEXT,
    scheme TEXT,
    is_load INTEGER NOT NULL DEFAULT 0,
    include_in_spending INTEGER NOT NULL DEFAULT 1,
    decline_reason TEXT,

    FOREIGN KEY (account_id) REFERENCES accounts(id),
    FOREIGN KEY (merchant_id) REFERENCES merchants(id)
);

-- Pots table. Deleted pots are kept with deleted = 1.
CREATE TABLE IF NOT EXISTS pots (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL,
    name TEXT,
    style TEXT,
    balance INTEGER,
    goal INTEGER,
    currency TEXT NOT NULL DEFAULT 'GBP',
    created TEXT,
    updated TEXT,
    deleted INTEGER NOT NULL DEFAULT 0,
    locked INTEGER NOT NULL DEFAULT 0,

    FOREIGN KEY (account_id) REFERENCES accounts(id)
);

-- Reported balances, one row per account, overwritten on each ingest
CREATE TABLE IF NOT EXISTS balances (
    account_id TEXT PRIMARY KEY,
    balance INTEGER NOT NULL,
    total_balance INTEGER NOT NULL DEFAULT 0,
    spend_today INTEGER NOT NULL DEFAULT 0,
    currency TEXT NOT NULL DEFAULT 'GBP',
    updated_at TEXT NOT NULL,

    FOREIGN KEY (account_id) REFERENCES accounts(id)
);

-- Cumulative balance at end of each day, declined transactions excluded
CREATE VIEW IF NOT EXISTS daily_balances AS
WITH daily_totals AS (
    SELECT
        date(created) AS day,
        account_id,
        SUM(amount) AS daily_net
    FROM transactions
    WHERE decline_reason IS NULL
    GROUP BY 1, 2
)
SELECT
    day,
    account_id,
    daily_net,
    SUM(daily_net) OVER (PARTITION BY account_id ORDER BY day) AS eod_balance
FROM daily_totals;

CREATE INDEX IF NOT EXISTS idx_tx_account_date ON transactions(account_id, created);
CREATE INDEX IF NOT EXISTS idx_tx_merchant ON transactions(merchant_id);
CREATE INDEX IF NOT EXISTS idx_tx_category ON transactions(category);
CREATE INDEX IF NOT EXISTS idx_tx_created ON transactions(created);
CREATE INDEX IF NOT EXISTS idx_merchants_group ON merchants(group_id);
CREATE INDEX IF NOT EXISTS idx_merchants_category ON merchants(category);
CREATE INDEX IF NOT EXISTS idx_pots_account ON pots(account_id);
`

// dropStatements tears the schema down in dependency order for Reset.
var dropStatements = []string{
	"DROP VIEW IF EXISTS daily_balances",
	"DROP TABLE IF EXISTS balances",
	"DROP TABLE IF EXISTS transactions",
	"DROP TABLE IF EXISTS pots",
	"DROP TABLE IF EXISTS merchants",
	"DROP TABLE IF EXISTS accounts",
}
