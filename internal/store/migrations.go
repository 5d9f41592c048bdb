package store

// schema is executed once in NewPostgres(); grounded on the teacher's
// internal/db/db.go (Init connects and pings) plus the CREATE TABLE IF NOT
// EXISTS style used by shashidhxr-queueCTL/internal/store/migrations.go.
const schema = `
CREATE TABLE IF NOT EXISTS campaigns (
	id            TEXT PRIMARY KEY,
	owner         TEXT NOT NULL,
	subject       TEXT NOT NULL,
	body          TEXT NOT NULL,
	attachments   JSONB NOT NULL DEFAULT '[]',
	start_time    TIMESTAMPTZ NOT NULL,
	delay_ms      BIGINT NOT NULL DEFAULT 0,
	hourly_limit  INTEGER NOT NULL,
	total_count   INTEGER NOT NULL,
	sent_count    INTEGER NOT NULL DEFAULT 0,
	failed_count  INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'scheduled',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id             TEXT PRIMARY KEY,
	campaign_id    TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
	owner          TEXT NOT NULL,
	recipient      TEXT NOT NULL,
	scheduled_time TIMESTAMPTZ NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	attempts       INTEGER NOT NULL DEFAULT 0,
	last_error     TEXT NOT NULL DEFAULT '',
	sent_time      TIMESTAMPTZ,
	lease_until    TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_campaign ON jobs(campaign_id);
CREATE INDEX IF NOT EXISTS idx_jobs_status_scheduled ON jobs(status, scheduled_time);
CREATE INDEX IF NOT EXISTS idx_jobs_owner_status ON jobs(owner, status);

CREATE TABLE IF NOT EXISTS rate_counters (
	hour_bucket TEXT NOT NULL,
	sender      TEXT NOT NULL,
	count       INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (hour_bucket, sender)
);
`
