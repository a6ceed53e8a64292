package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"gatehouse.dev/internal/audit"
)

var _ audit.Store = (*Store)(nil)

const auditColumns = `id, actor_id, action, resource, resource_id, details, ip_address, user_agent, correlation_id, occurred_at`

func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	details := []byte("{}")
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("encode details: %w", err)
		}
		details = b
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log (`+auditColumns+`)
		values ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10)
	`, e.ID, e.ActorID, e.Action, e.ResourceKind, nullIfEmpty(e.ResourceID), string(details),
		nullIfEmpty(e.IPAddress), nullIfEmpty(e.UserAgent), nullIfEmpty(e.CorrelationID), e.OccurredAt)
	return err
}

func (s *Store) ListAudit(ctx context.Context, f audit.Filter) ([]audit.Entry, int, error) {
	if s.db == nil {
		return nil, 0, errors.New("database connection unavailable")
	}
	var w where
	if f.ActorID != "" {
		w.add("actor_id = $%d", f.ActorID)
	}
	if f.ResourceKind != "" {
		w.add("resource = $%d", f.ResourceKind)
	}
	if f.Action != "" {
		w.add("action = $%d", f.Action)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from audit_log`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, args := w.page(f.Limit, f.Offset)
	rows, err := s.db.QueryContext(ctx,
		`select `+auditColumns+` from audit_log`+w.String()+` order by occurred_at desc, id desc`+limit, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := []audit.Entry{}
	for rows.Next() {
		var (
			e                          audit.Entry
			resourceID, ip, ua, corrID sql.NullString
			details                    []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.ResourceKind, &resourceID, &details, &ip, &ua, &corrID, &e.OccurredAt); err != nil {
			return nil, 0, err
		}
		e.ResourceID, e.IPAddress, e.UserAgent, e.CorrelationID = resourceID.String, ip.String, ua.String, corrID.String
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, 0, fmt.Errorf("decode details: %w", err)
			}
		}
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}
