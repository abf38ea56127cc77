package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
	"github.com/adamtc007/ob-poc-sub001/bpmn/store"
)

func (s *Store) AppendEvent(ctx context.Context, instanceID string, event bpmn.RuntimeEvent) error {
	data, err := json.Marshal(&event)
	if err != nil {
		return fmt.Errorf("sqlite: marshal event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bpmn_events (instance_id, seq, data) VALUES (?, ?, ?)`,
		instanceID, event.Seq, string(data))
	return err
}

func (s *Store) ReadEvents(ctx context.Context, instanceID string, fromSeq uint64) ([]bpmn.RuntimeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
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
			return nil, fmt.Errorf("sqlite: unmarshal event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) SaveIncident(ctx context.Context, incident *bpmn.Incident) error {
	data, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("sqlite: marshal incident: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bpmn_incidents (incident_id, instance_id, data) VALUES (?, ?, ?)
		 ON CONFLICT(incident_id) DO UPDATE SET data = excluded.data`,
		incident.IncidentID, incident.ProcessInstanceID, string(data))
	return err
}

func (s *Store) LoadIncidentsForInstance(ctx context.Context, instanceID string) ([]*bpmn.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
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
			return nil, fmt.Errorf("sqlite: unmarshal incident: %w", err)
		}
		out = append(out, &inc)
	}
	return out, rows.Err()
}

func (s *Store) SavePayloadVersion(ctx context.Context, instanceID string, hash bpmn.Hash256, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bpmn_payload_versions (instance_id, hash, payload) VALUES (?, ?, ?)
		 ON CONFLICT(instance_id, hash) DO UPDATE SET payload = excluded.payload`,
		instanceID, hash.String(), payload)
	return err
}

func (s *Store) LoadPayloadVersion(ctx context.Context, instanceID string, hash bpmn.Hash256) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
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
