package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ayurflow/clinic-api/internal/model"
	"github.com/ayurflow/clinic-api/internal/repository"
)

type auditRepository struct {
	db *sqlx.DB
}

func NewAuditRepository(db *sqlx.DB) repository.AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, entry *model.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, user_id, clinic_id, action, resource, resource_id,
			result, risk_level, ip_address, user_agent, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.UserID,
		entry.ClinicID,
		entry.Action,
		entry.Resource,
		entry.ResourceID,
		entry.Result,
		entry.RiskLevel,
		entry.IPAddress,
		entry.UserAgent,
		entry.Metadata,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, filters map[string]interface{}, limit, offset int) ([]*model.AuditLog, int64, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argCount := 1

	for _, key := range []string{"user_id", "resource", "resource_id", "action", "result"} {
		if v, ok := filters[key]; ok {
			where += fmt.Sprintf(" AND %s = $%d", key, argCount)
			args = append(args, v)
			argCount++
		}
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM audit_logs"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	query := `
		SELECT id, user_id, clinic_id, action, resource, resource_id,
			   result, risk_level, ip_address, user_agent, metadata, created_at
		FROM audit_logs` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argCount, argCount+1)
	args = append(args, limit, offset)

	var entries []*model.AuditLog
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, total, nil
}

func (r *auditRepository) Aggregate(ctx context.Context, from, to time.Time) (*model.AuditAggregate, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT action, result, user_id::text, COUNT(*)
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY action, result, user_id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate audit entries: %w", err)
	}
	defer rows.Close()

	agg := &model.AuditAggregate{
		ActionCounts:  make(map[string]int),
		FailureCounts: make(map[string]int),
		UserActivity:  make(map[string]int),
	}
	for rows.Next() {
		var action, result, userID string
		var count int
		if err := rows.Scan(&action, &result, &userID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate row: %w", err)
		}
		agg.TotalEntries += int64(count)
		agg.ActionCounts[action] += count
		if result == string(model.AuditResultFailure) {
			agg.FailureCounts[action] += count
		}
		agg.UserActivity[userID] += count
	}
	return agg, rows.Err()
}

func (r *auditRepository) CountBefore(ctx context.Context, before time.Time) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM audit_logs WHERE created_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return count, nil
}

func (r *auditRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM audit_logs WHERE created_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up audit entries: %w", err)
	}
	return result.RowsAffected()
}
