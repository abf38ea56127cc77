// Package mysql is a MySQL/MariaDB-backed implementation of store.Store
// (§6.4), the second of the concrete reference backends §11 calls for.
// Schema and JSON-blob-plus-indexed-columns shape mirror bpmn/store/sqlite;
// connection pooling (as opposed to sqlite's single-connection approach)
// follows the teacher's graph/store/mysql.go, since MySQL — unlike SQLite —
// is built for concurrent writers.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
	"github.com/adamtc007/ob-poc-sub001/bpmn/store"
	_ "github.com/go-sql-driver/mysql"
)

// Store is a MySQL/MariaDB implementation of store.Store.
type Store struct {
	db *sql.DB
}

// New opens a MySQL-backed store using dsn (see the go-sql-driver/mysql DSN
// format: "user:pass@tcp(host:port)/dbname?parseTime=true") and ensures the
// schema exists.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}

	s := &Store{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql: create tables: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bpmn_programs (
			bytecode_version VARCHAR(64) PRIMARY KEY,
			data             JSON NOT NULL,
			created_at       TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS bpmn_instances (
			instance_id VARCHAR(36) PRIMARY KEY,
			process_key VARCHAR(255) NOT NULL,
			state       INT NOT NULL,
			data        JSON NOT NULL,
			updated_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			INDEX idx_instances_state (state)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS bpmn_fibers (
			instance_id VARCHAR(36) NOT NULL,
			fiber_id    VARCHAR(36) NOT NULL,
			data        JSON NOT NULL,
			PRIMARY KEY (instance_id, fiber_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS bpmn_jobs (
			job_key     VARCHAR(512) PRIMARY KEY,
			instance_id VARCHAR(36) NOT NULL,
			task_type   VARCHAR(255) NOT NULL,
			status      INT NOT NULL,
			data        JSON NOT NULL,
			INDEX idx_jobs_status_type (status, task_type),
			INDEX idx_jobs_instance (instance_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS bpmn_events (
			instance_id VARCHAR(36) NOT NULL,
			seq         BIGINT UNSIGNED NOT NULL,
			data        JSON NOT NULL,
			PRIMARY KEY (instance_id, seq)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS bpmn_incidents (
			incident_id VARCHAR(36) PRIMARY KEY,
			instance_id VARCHAR(36) NOT NULL,
			data        JSON NOT NULL,
			INDEX idx_incidents_instance (instance_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS bpmn_payload_versions (
			instance_id VARCHAR(36) NOT NULL,
			hash        VARCHAR(64) NOT NULL,
			payload     LONGTEXT NOT NULL,
			PRIMARY KEY (instance_id, hash)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS bpmn_dedupe (
			job_key    VARCHAR(512) PRIMARY KEY,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *Store) StoreProgram(ctx context.Context, program *bpmn.Program) error {
	data, err := json.Marshal(program)
	if err != nil {
		return fmt.Errorf("mysql: marshal program: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bpmn_programs (bytecode_version, data) VALUES (?, ?)
		 ON DUPLICATE KEY UPDATE data = VALUES(data)`,
		program.BytecodeVersion.String(), string(data))
	return err
}

func (s *Store) LoadProgram(ctx context.Context, version bpmn.Hash256) (*bpmn.Program, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM bpmn_programs WHERE bytecode_version = ?`, version.String(),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var p bpmn.Program
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("mysql: unmarshal program: %w", err)
	}
	return &p, nil
}

func (s *Store) SaveInstance(ctx context.Context, inst *bpmn.ProcessInstance) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("mysql: marshal instance: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bpmn_instances (instance_id, process_key, state, data) VALUES (?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE process_key = VALUES(process_key), state = VALUES(state), data = VALUES(data)`,
		inst.InstanceID, inst.ProcessKey, int(inst.State), string(data))
	return err
}

func (s *Store) LoadInstance(ctx context.Context, instanceID string) (*bpmn.ProcessInstance, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM bpmn_instances WHERE instance_id = ?`, instanceID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var inst bpmn.ProcessInstance
	if err := json.Unmarshal([]byte(data), &inst); err != nil {
		return nil, fmt.Errorf("mysql: unmarshal instance: %w", err)
	}
	return &inst, nil
}

func (s *Store) SaveFiber(ctx context.Context, instanceID string, fiber *bpmn.Fiber) error {
	data, err := json.Marshal(fiber)
	if err != nil {
		return fmt.Errorf("mysql: marshal fiber: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bpmn_fibers (instance_id, fiber_id, data) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE data = VALUES(data)`,
		instanceID, fiber.FiberID, string(data))
	return err
}

func (s *Store) LoadFibers(ctx context.Context, instanceID string) ([]*bpmn.Fiber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM bpmn_fibers WHERE instance_id = ? ORDER BY fiber_id`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*bpmn.Fiber
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var f bpmn.Fiber
		if err := json.Unmarshal([]byte(data), &f); err != nil {
			return nil, fmt.Errorf("mysql: unmarshal fiber: %w", err)
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (s *Store) DeleteFiber(ctx context.Context, instanceID, fiberID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM bpmn_fibers WHERE instance_id = ? AND fiber_id = ?`, instanceID, fiberID)
	return err
}

func (s *Store) DeleteAllFibers(ctx context.Context, instanceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bpmn_fibers WHERE instance_id = ?`, instanceID)
	return err
}

func (s *Store) EnqueueJob(ctx context.Context, job *bpmn.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("mysql: marshal job: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bpmn_jobs (job_key, instance_id, task_type, status, data) VALUES (?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE instance_id = VALUES(instance_id), task_type = VALUES(task_type),
			status = VALUES(status), data = VALUES(data)`,
		job.JobKey, job.ProcessInstanceID, job.TaskType, int(job.Status), string(data))
	return err
}

func (s *Store) LoadJob(ctx context.Context, jobKey string) (*bpmn.Job, error) {
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
		return nil, fmt.Errorf("mysql: unmarshal job: %w", err)
	}
	return &j, nil
}

// DequeueJobs claims up to max Pending jobs of the requested task types
// inside one transaction with SELECT ... FOR UPDATE, so two concurrent
// activate_jobs calls against the same MySQL instance never double-claim a
// job — a guarantee sqlite's single-connection Store gets for free and this
// backend must earn explicitly via row locking.
func (s *Store) DequeueJobs(ctx context.Context, taskTypes []string, max int) ([]*bpmn.Job, error) {
	if len(taskTypes) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	placeholders := make([]string, len(taskTypes))
	args := make([]any, 0, len(taskTypes)+1)
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
	query += " FOR UPDATE"

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
			return nil, fmt.Errorf("mysql: unmarshal job: %w", err)
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
			return nil, fmt.Errorf("mysql: marshal job: %w", err)
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
		return fmt.Errorf("mysql: unmarshal job: %w", err)
	}
	j.Status = status
	out, err := json.Marshal(&j)
	if err != nil {
		return fmt.Errorf("mysql: marshal job: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE bpmn_jobs SET status = ?, data = ? WHERE job_key = ?`, int(status), string(out), jobKey)
	return err
}

func (s *Store) CancelJobsForInstance(ctx context.Context, instanceID string) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_key, data FROM bpmn_jobs WHERE instance_id = ? AND status != ?`,
		instanceID, int(bpmn.JobAcked))
	if err != nil {
		return err
	}
	type row struct{ key, data string }
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
			return fmt.Errorf("mysql: unmarshal job: %w", err)
		}
		j.Status = bpmn.JobCancelled
		out, err := json.Marshal(&j)
		if err != nil {
			return fmt.Errorf("mysql: marshal job: %w", err)
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
			return nil, fmt.Errorf("mysql: unmarshal job: %w", err)
		}
		out = append(out, &j)
	}
	return out, rows.Err()
}

func (s *Store) AppendEvent(ctx context.Context, instanceID string, event bpmn.RuntimeEvent) error {
	data, err := json.Marshal(&event)
	if err != nil {
		return fmt.Errorf("mysql: marshal event: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bpmn_events (instance_id, seq, data) VALUES (?, ?, ?)`,
		instanceID, event.Seq, string(data))
	return err
}

func (s *Store) ReadEvents(ctx context.Context, instanceID string, fromSeq uint64) ([]bpmn.RuntimeEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM bpmn_events WHERE instance_id = ? AND seq >= ? ORDER BY seq`,
		instanceID, fromSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]bpmn.RuntimeEvent, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var ev bpmn.RuntimeEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, fmt.Errorf("mysql: unmarshal event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) SaveIncident(ctx context.Context, incident *bpmn.Incident) error {
	data, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("mysql: marshal incident: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bpmn_incidents (incident_id, instance_id, data) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE data = VALUES(data)`,
		incident.IncidentID, incident.ProcessInstanceID, string(data))
	return err
}

func (s *Store) LoadIncidentsForInstance(ctx context.Context, instanceID string) ([]*bpmn.Incident, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM bpmn_incidents WHERE instance_id = ? ORDER BY incident_id`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*bpmn.Incident
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var inc bpmn.Incident
		if err := json.Unmarshal([]byte(data), &inc); err != nil {
			return nil, fmt.Errorf("mysql: unmarshal incident: %w", err)
		}
		out = append(out, &inc)
	}
	return out, rows.Err()
}

func (s *Store) SavePayloadVersion(ctx context.Context, instanceID string, hash bpmn.Hash256, payload string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bpmn_payload_versions (instance_id, hash, payload) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE payload = VALUES(payload)`,
		instanceID, hash.String(), payload)
	return err
}

func (s *Store) LoadPayloadVersion(ctx context.Context, instanceID string, hash bpmn.Hash256) (string, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM bpmn_payload_versions WHERE instance_id = ? AND hash = ?`,
		instanceID, hash.String(),
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return "", store.ErrNotFound
	}
	return payload, err
}

func (s *Store) DedupeGet(ctx context.Context, jobKey string) (bool, error) {
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bpmn_dedupe (job_key) VALUES (?) ON DUPLICATE KEY UPDATE job_key = job_key`, jobKey)
	return err
}

var _ store.Store = (*Store)(nil)
