package historydb

// schema is the destination history schema. Ownership cascades down from
// ledgers: deleting a ledger row removes its transactions, operations,
// effects and participant links. Accounts are never cascaded; they may be
// referenced by any ledger.
const schema = `
CREATE TABLE IF NOT EXISTS ledgers (
	sequence BIGINT PRIMARY KEY,
	importer_version INT NOT NULL,
	ledger_hash VARCHAR(64) NOT NULL UNIQUE,
	previous_ledger_hash VARCHAR(64),
	closed_at TIMESTAMPTZ NOT NULL,
	transaction_count INT NOT NULL,
	operation_count INT NOT NULL,
	total_coins BIGINT NOT NULL,
	fee_pool BIGINT NOT NULL,
	base_fee BIGINT NOT NULL,
	base_reserve BIGINT NOT NULL,
	max_tx_set_size BIGINT NOT NULL,
	imported_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS accounts (
	id BIGINT PRIMARY KEY,
	address VARCHAR(56) NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS transactions (
	hash VARCHAR(64) PRIMARY KEY,
	ledger_sequence BIGINT NOT NULL REFERENCES ledgers(sequence) ON DELETE CASCADE,
	application_order INT NOT NULL,
	account VARCHAR(56) NOT NULL,
	account_sequence BIGINT NOT NULL,
	fee_paid BIGINT NOT NULL,
	operation_count INT NOT NULL,
	envelope TEXT NOT NULL,
	result TEXT NOT NULL,
	meta TEXT NOT NULL,
	fee_meta TEXT,
	signatures TEXT[] NOT NULL DEFAULT '{}',
	memo_type VARCHAR(16) NOT NULL,
	memo TEXT,
	valid_after TIMESTAMPTZ,
	valid_before TIMESTAMPTZ,
	UNIQUE (ledger_sequence, application_order)
);

CREATE TABLE IF NOT EXISTS transaction_participants (
	transaction_hash VARCHAR(64) NOT NULL REFERENCES transactions(hash) ON DELETE CASCADE,
	account_id BIGINT NOT NULL REFERENCES accounts(id),
	PRIMARY KEY (transaction_hash, account_id)
);

CREATE TABLE IF NOT EXISTS operations (
	transaction_hash VARCHAR(64) NOT NULL REFERENCES transactions(hash) ON DELETE CASCADE,
	ledger_sequence BIGINT NOT NULL,
	application_order INT NOT NULL,
	source_account VARCHAR(56) NOT NULL,
	type VARCHAR(64) NOT NULL,
	type_code INT NOT NULL,
	details JSONB NOT NULL DEFAULT '{}',
	PRIMARY KEY (transaction_hash, application_order)
);

CREATE TABLE IF NOT EXISTS operation_participants (
	transaction_hash VARCHAR(64) NOT NULL,
	operation_order INT NOT NULL,
	account_id BIGINT NOT NULL REFERENCES accounts(id),
	PRIMARY KEY (transaction_hash, operation_order, account_id),
	FOREIGN KEY (transaction_hash, operation_order)
		REFERENCES operations(transaction_hash, application_order) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS effects (
	transaction_hash VARCHAR(64) NOT NULL,
	ledger_sequence BIGINT NOT NULL,
	operation_order INT NOT NULL,
	effect_order INT NOT NULL,
	account_id BIGINT NOT NULL REFERENCES accounts(id),
	account VARCHAR(56) NOT NULL,
	type VARCHAR(64) NOT NULL,
	type_code INT NOT NULL,
	details JSONB NOT NULL DEFAULT '{}',
	PRIMARY KEY (transaction_hash, operation_order, effect_order),
	FOREIGN KEY (transaction_hash, operation_order)
		REFERENCES operations(transaction_hash, application_order) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_transactions_ledger ON transactions(ledger_sequence);
CREATE INDEX IF NOT EXISTS idx_tx_participants_account ON transaction_participants(account_id);
CREATE INDEX IF NOT EXISTS idx_operations_ledger ON operations(ledger_sequence);
CREATE INDEX IF NOT EXISTS idx_op_participants_account ON operation_participants(account_id);
CREATE INDEX IF NOT EXISTS idx_effects_account ON effects(account_id);
CREATE INDEX IF NOT EXISTS idx_effects_ledger ON effects(ledger_sequence);
`
