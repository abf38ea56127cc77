package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
	"github.com/adamtc007/ob-poc-sub001/bpmn/store"
)

func (s *Store) EnqueueJob(ctx context.Context, job *bpmn.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("sqlite: marshal job: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bpmn_jobs (job_key, instance_id, task_type, status, data) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(job_key) DO UPDATE SET
			instance_id = excluded.instance_id,
			task_type   = excluded.task_type,
			status      = excluded.status,
			data        = excluded.data`,
		job.JobKey, job.ProcessInstanceID, job.TaskType, int(job.Status), string(data))
	return err
}

func (s *Store) LoadJob(ctx context.Context, jobKey string) (*bpmn.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM bpmn_jobs WHERE job_key = ?`, jobKey).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var j bpmn.Job
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal job: %w", err)
	}
	return &j, nil
}

// DequeueJobs atomically claims up to max Pending jobs of the requested
// task types, marking them InFlight before returning — mirroring the
// memory store's claim-on-read semantics (§4.3.7) inside one transaction so
// two concurrent activate_jobs calls never double-claim the same job.
func (s *Store) DequeueJobs(ctx context.Context, taskTypes []string, max int) ([]*bpmn.Job, error) {
	if len(taskTypes) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	placeholders := make([]string, len(taskTypes))
	args := make([]any, 0, len(taskTypes)+2)
	args = append(args, int(bpmn.JobPending))
	for i, t := range taskTypes {
		placeholders[i] = "?"
		args = append(args, t)
	}
	query := fmt.Sprintf(
		`SELECT job_key, data FROM bpmn_jobs WHERE status = ? AND task_type IN (%s) ORDER BY job_key`,
		strings.Join(placeholders, ", "))
	if max > 0 {
		query += fmt.Sprintf(" LIMIT %d", max)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	type claimed struct {
		key string
		job bpmn.Job
	}
	var claims []claimed
	for rows.Next() {
		var key, data string
		if err := rows.Scan(&key, &data); err != nil {
			rows.Close()
			return nil, err
		}
		var j bpmn.Job
		if err := json.Unmarshal([]byte(data), &j); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: unmarshal job: %w", err)
		}
		claims = append(claims, claimed{key: key, job: j})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*bpmn.Job, 0, len(claims))
	for _, c := range claims {
		c.job.Status = bpmn.JobInFlight
		data, err := json.Marshal(&c.job)
		if err != nil {
			return nil, fmt.Errorf("sqlite: marshal job: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE bpmn_jobs SET status = ?, data = ? WHERE job_key = ?`,
			int(bpmn.JobInFlight), string(data), c.key,
		); err != nil {
			return nil, err
		}
		jc := c.job
		out = append(out, &jc)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) AckJob(ctx context.Context, jobKey string) error {
	return s.setJobStatus(ctx, jobKey, bpmn.JobAcked)
}

func (s *Store) setJobStatus(ctx context.Context, jobKey string, status bpmn.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM bpmn_jobs WHERE job_key = ?`, jobKey).Scan(&data)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	var j bpmn.Job
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return fmt.Errorf("sqlite: unmarshal job: %w", err)
	}
	j.Status = status
	out, err := json.Marshal(&j)
	if err != nil {
		return fmt.Errorf("sqlite: marshal job: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE bpmn_jobs SET status = ?, data = ? WHERE job_key = ?`, int(status), string(out), jobKey)
	return err
}

func (s *Store) CancelJobsForInstance(ctx context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT job_key, data FROM bpmn_jobs WHERE instance_id = ? AND status != ?`,
		instanceID, int(bpmn.JobAcked))
	if err != nil {
		return err
	}
	type row struct {
		key  string
		data string
	}
	var pending []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.key, &r.data); err != nil {
			rows.Close()
			return err
		}
		pending = append(pending, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range pending {
		var j bpmn.Job
		if err := json.Unmarshal([]byte(r.data), &j); err != nil {
			return fmt.Errorf("sqlite: unmarshal job: %w", err)
		}
		j.Status = bpmn.JobCancelled
		out, err := json.Marshal(&j)
		if err != nil {
			return fmt.Errorf("sqlite: marshal job: %w", err)
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE bpmn_jobs SET status = ?, data = ? WHERE job_key = ?`,
			int(bpmn.JobCancelled), string(out), r.key,
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) JobsForInstance(ctx context.Context, instanceID string) ([]*bpmn.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM bpmn_jobs WHERE instance_id = ? ORDER BY job_key`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*bpmn.Job
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var j bpmn.Job
		if err := json.Unmarshal([]byte(data), &j); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal job: %w", err)
		}
		out = append(out, &j)
	}
	return out, rows.Err()
}

func (s *Store) DedupeGet(ctx context.Context, jobKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found string
	err := s.db.QueryRowContext(ctx, `SELECT job_key FROM bpmn_dedupe WHERE job_key = ?`, jobKey).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) DedupePut(ctx context.Context, jobKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bpmn_dedupe (job_key) VALUES (?) ON CONFLICT(job_key) DO NOTHING`, jobKey)
	return err
}
