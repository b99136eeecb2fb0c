package sqlite

// schema is applied once at Open time. inputs_assets exists purely to
// give policy/asset patterns (spec.md §4.6 "secondary lookups by policy
// id") an indexed path instead of scanning multi_assets_json.
const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	slot        INTEGER PRIMARY KEY,
	header_hash TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS inputs (
	tx_id             TEXT NOT NULL,
	output_index      INTEGER NOT NULL,
	address           TEXT NOT NULL,
	payment_cred      TEXT,
	deleg_cred        TEXT,
	lovelace          INTEGER NOT NULL,
	multi_assets_json TEXT,
	datum_hash        TEXT,
	script_hash       TEXT,
	created_slot      INTEGER NOT NULL,
	created_hash      TEXT NOT NULL,
	spent_slot        INTEGER,
	spent_hash        TEXT,
	PRIMARY KEY (tx_id, output_index)
);

CREATE INDEX IF NOT EXISTS idx_inputs_address      ON inputs(address);
CREATE INDEX IF NOT EXISTS idx_inputs_payment_cred ON inputs(payment_cred) WHERE payment_cred IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_inputs_deleg_cred   ON inputs(deleg_cred) WHERE deleg_cred IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_inputs_created_slot ON inputs(created_slot);
CREATE INDEX IF NOT EXISTS idx_inputs_spent_slot   ON inputs(spent_slot);

CREATE TABLE IF NOT EXISTS inputs_assets (
	tx_id        TEXT NOT NULL,
	output_index INTEGER NOT NULL,
	policy_id    TEXT NOT NULL,
	asset_name   TEXT NOT NULL,
	quantity     INTEGER NOT NULL,
	FOREIGN KEY (tx_id, output_index) REFERENCES inputs(tx_id, output_index)
);

CREATE INDEX IF NOT EXISTS idx_inputs_assets_policy ON inputs_assets(policy_id);
CREATE INDEX IF NOT EXISTS idx_inputs_assets_asset  ON inputs_assets(policy_id, asset_name);

CREATE TABLE IF NOT EXISTS binary_data (
	hash  TEXT PRIMARY KEY,
	bytes BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS scripts (
	hash  TEXT PRIMARY KEY,
	bytes BLOB NOT NULL,
	tag   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS patterns (
	text TEXT PRIMARY KEY
);
`
