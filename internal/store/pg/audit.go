package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"inkpost.org/internal/audit"
)

// Audit adapts Store to audit.Store. Rows are only ever inserted.
type Audit struct{ s *Store }

var _ audit.Store = Audit{}

// Audit returns the audit store view.
func (s *Store) Audit() Audit { return Audit{s: s} }

func (a Audit) Insert(ctx context.Context, e *audit.Entry) error {
	if a.s.db == nil {
		return errNoDB
	}
	var snapshot []byte
	if len(e.Snapshot) > 0 {
		var err error
		if snapshot, err = json.Marshal(e.Snapshot); err != nil {
			return fmt.Errorf("encode audit snapshot: %w", err)
		}
	}
	_, err := a.s.db.ExecContext(ctx, `
		insert into audit_log (id, action, actor_id, target_type, target_id, snapshot, correlation_id, ip, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.Action, nullIfEmpty(e.ActorID), e.TargetType, e.TargetID, snapshot,
		nullIfEmpty(e.CorrelationID), nullIfEmpty(e.IP), e.CreatedAt)
	return err
}

func (a Audit) Count(ctx context.Context) (int, error) {
	if a.s.db == nil {
		return 0, errNoDB
	}
	var n int
	if err := a.s.db.QueryRowContext(ctx, `select count(*) from audit_log`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (a Audit) ListRecent(ctx context.Context, limit int) ([]*audit.Entry, error) {
	if a.s.db == nil {
		return nil, errNoDB
	}
	rows, err := a.s.db.QueryContext(ctx, `
		select id, action, coalesce(actor_id, ''), target_type, target_id, snapshot,
		       coalesce(correlation_id, ''), coalesce(ip, ''), created_at
		from audit_log
		order by created_at desc, id desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*audit.Entry
	for rows.Next() {
		var (
			e        audit.Entry
			snapshot []byte
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.ActorID, &e.TargetType, &e.TargetID, &snapshot, &e.CorrelationID, &e.IP, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(snapshot) > 0 {
			if err := json.Unmarshal(snapshot, &e.Snapshot); err != nil {
				return nil, fmt.Errorf("decode audit snapshot %s: %w", e.ID, err)
			}
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
