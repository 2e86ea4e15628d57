package history

const schema = `
CREATE TABLE IF NOT EXISTS audit_runs (
	id TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL,
	pass INTEGER NOT NULL,
	warn INTEGER NOT NULL,
	fail INTEGER NOT NULL,
	parse_errors INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_results (
	run_id TEXT NOT NULL REFERENCES audit_runs(id) ON DELETE CASCADE,
	identifier TEXT NOT NULL,
	location TEXT NOT NULL,
	status TEXT NOT NULL,
	verdicts TEXT NOT NULL,
	PRIMARY KEY (run_id, identifier, location)
);

CREATE INDEX IF NOT EXISTS idx_audit_results_identifier ON audit_results(identifier);
`
