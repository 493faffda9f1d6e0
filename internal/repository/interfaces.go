package repository

import (
	"context"
	"time"

	"github.com/ayurflow/clinic-api/internal/model"
)

// AuditRepository is the durable, append-only audit sink. Create is the only
// write; retention cleanup removes rows past the compliance window.
type AuditRepository interface {
	Create(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, filters map[string]interface{}, limit, offset int) ([]*model.AuditLog, int64, error)
	Aggregate(ctx context.Context, from, to time.Time) (*model.AuditAggregate, error)
	CountBefore(ctx context.Context, before time.Time) (int64, error)
	Cleanup(ctx context.Context, before time.Time) (int64, error)
}
