package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/reachinbox/bulkmail-core/internal/errors"
	"github.com/reachinbox/bulkmail-core/internal/model"
)

// Postgres is the production Store, grounded on the teacher's
// internal/repository/campaign_repository.go: raw SQL through
// database/sql, no ORM, sql.ErrNoRows mapped to domain sentinels.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens dsn, pings it, and runs the schema migration, mirroring
// the teacher's internal/db/db.go Init().
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) CreateCampaignWithJobs(ctx context.Context, c *model.Campaign, jobs []*model.Job) error {
	attachmentsJSON, err := json.Marshal(c.Attachments)
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, owner, subject, body, attachments, start_time, delay_ms, hourly_limit, total_count, sent_count, failed_count, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		c.ID, c.Owner, c.Subject, c.Body, attachmentsJSON, c.StartTime, c.DelayMs, c.HourlyLimit,
		c.TotalCount, c.SentCount, c.FailedCount, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return appErrors.NewAlreadyExists(c.ID)
	}
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO jobs
			(id, campaign_id, owner, recipient, scheduled_time, status, attempts, last_error, sent_time, lease_until, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, j := range jobs {
		if _, err := stmt.ExecContext(ctx, j.ID, j.CampaignID, j.Owner, j.Recipient, j.ScheduledTime,
			j.Status, j.Attempts, j.LastError, j.SentTime, j.LeaseUntil, j.CreatedAt, j.UpdatedAt); err != nil {
			return fmt.Errorf("insert job %s: %w", j.ID, err)
		}
	}

	return tx.Commit()
}

func (p *Postgres) LoadPendingJobs(ctx context.Context, beforeOrAt time.Time) (<-chan JobResult, error) {
	var rows *sql.Rows
	var err error
	if beforeOrAt.IsZero() {
		rows, err = p.db.QueryContext(ctx, `
			SELECT id, campaign_id, owner, recipient, scheduled_time, status, attempts, last_error, sent_time, lease_until, created_at, updated_at
			FROM jobs WHERE status = $1 ORDER BY scheduled_time ASC`, model.JobPending)
	} else {
		rows, err = p.db.QueryContext(ctx, `
			SELECT id, campaign_id, owner, recipient, scheduled_time, status, attempts, last_error, sent_time, lease_until, created_at, updated_at
			FROM jobs WHERE status = $1 AND scheduled_time <= $2 ORDER BY scheduled_time ASC`, model.JobPending, beforeOrAt)
	}
	if err != nil {
		return nil, err
	}

	out := make(chan JobResult)
	go func() {
		defer close(out)
		defer rows.Close()
		for rows.Next() {
			j, scanErr := scanJob(rows)
			out <- JobResult{Job: j, Err: scanErr}
			if scanErr != nil {
				return
			}
		}
		if err := rows.Err(); err != nil {
			out <- JobResult{Err: err}
		}
	}()
	return out, nil
}

func (p *Postgres) UpdateJob(ctx context.Context, id string, casStatus model.JobStatus, patch model.JobPatch) (bool, error) {
	setClauses := []string{"status = $1", "updated_at = $2"}
	args := []interface{}{patch.Status, time.Now().UTC()}
	argPos := 3

	if patch.Attempts != nil {
		setClauses = append(setClauses, fmt.Sprintf("attempts = $%d", argPos))
		args = append(args, *patch.Attempts)
		argPos++
	}
	if patch.SentTime != nil {
		setClauses = append(setClauses, fmt.Sprintf("sent_time = $%d", argPos))
		args = append(args, *patch.SentTime)
		argPos++
	}
	if patch.LastError != nil {
		setClauses = append(setClauses, fmt.Sprintf("last_error = $%d", argPos))
		args = append(args, *patch.LastError)
		argPos++
	}
	if patch.ClearLease {
		setClauses = append(setClauses, "lease_until = NULL")
	} else if patch.LeaseUntil != nil {
		setClauses = append(setClauses, fmt.Sprintf("lease_until = $%d", argPos))
		args = append(args, *patch.LeaseUntil)
		argPos++
	}

	query := fmt.Sprintf("UPDATE jobs SET %s WHERE id = $%d AND status = $%d",
		joinClauses(setClauses), argPos, argPos+1)
	args = append(args, id, casStatus)

	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func joinClauses(clauses []string) string {
	out := clauses[0]
	for _, c := range clauses[1:] {
		out += ", " + c
	}
	return out
}

func (p *Postgres) RecomputeCampaign(ctx context.Context, campaignID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs WHERE campaign_id = $1 GROUP BY status`, campaignID)
	if err != nil {
		return err
	}
	counts := map[model.JobStatus]int{}
	for rows.Next() {
		var status model.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return err
		}
		counts[status] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT total_count FROM campaigns WHERE id = $1 FOR UPDATE`, campaignID).Scan(&total); err != nil {
		return err
	}

	sent, failed := counts[model.JobSent], counts[model.JobFailed]
	status := model.CampaignScheduled
	if sent+failed >= total && total > 0 {
		status = model.CampaignCompleted
	} else if sent+failed >= 1 {
		status = model.CampaignInProgress
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE campaigns SET sent_count = $1, failed_count = $2, status = $3, updated_at = $4 WHERE id = $5`,
		sent, failed, status, time.Now().UTC(), campaignID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) ReadCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, owner, subject, body, attachments, start_time, delay_ms, hourly_limit, total_count, sent_count, failed_count, status, created_at, updated_at
		FROM campaigns WHERE id = $1`, id)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return c, err
}

func (p *Postgres) ReadJob(ctx context.Context, id string) (*model.Job, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, campaign_id, owner, recipient, scheduled_time, status, attempts, last_error, sent_time, lease_until, created_at, updated_at
		FROM jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job %s not found", id)
	}
	return j, err
}

func (p *Postgres) ListCampaignsByOwner(ctx context.Context, owner string) ([]*model.Campaign, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, owner, subject, body, attachments, start_time, delay_ms, hourly_limit, total_count, sent_count, failed_count, status, created_at, updated_at
		FROM campaigns WHERE owner = $1 ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) ListTerminalJobsByOwner(ctx context.Context, owner string) ([]*model.Job, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, campaign_id, owner, recipient, scheduled_time, status, attempts, last_error, sent_time, lease_until, created_at, updated_at
		FROM jobs WHERE owner = $1 AND status != $2 ORDER BY updated_at DESC`, owner, model.JobPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (p *Postgres) ListJobsByCampaign(ctx context.Context, campaignID string) ([]*model.Job, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, campaign_id, owner, recipient, scheduled_time, status, attempts, last_error, sent_time, lease_until, created_at, updated_at
		FROM jobs WHERE campaign_id = $1 ORDER BY scheduled_time ASC`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (p *Postgres) CountJobsByStatus(ctx context.Context, status model.JobStatus) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE status = $1`, status).Scan(&n)
	return n, err
}

func (p *Postgres) UpsertRateCounter(ctx context.Context, hourBucket, sender string, count int) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO rate_counters (hour_bucket, sender, count) VALUES ($1, $2, $3)
		ON CONFLICT (hour_bucket, sender) DO UPDATE SET count = $3`, hourBucket, sender, count)
	return err
}

func (p *Postgres) ReadRateCounter(ctx context.Context, hourBucket, sender string) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `SELECT count FROM rate_counters WHERE hour_bucket = $1 AND sender = $2`, hourBucket, sender).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return count, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row scanner) (*model.Campaign, error) {
	var c model.Campaign
	var attachmentsJSON []byte
	if err := row.Scan(&c.ID, &c.Owner, &c.Subject, &c.Body, &attachmentsJSON, &c.StartTime, &c.DelayMs,
		&c.HourlyLimit, &c.TotalCount, &c.SentCount, &c.FailedCount, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if len(attachmentsJSON) > 0 {
		if err := json.Unmarshal(attachmentsJSON, &c.Attachments); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

func scanJob(row scanner) (*model.Job, error) {
	var j model.Job
	if err := row.Scan(&j.ID, &j.CampaignID, &j.Owner, &j.Recipient, &j.ScheduledTime, &j.Status,
		&j.Attempts, &j.LastError, &j.SentTime, &j.LeaseUntil, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
