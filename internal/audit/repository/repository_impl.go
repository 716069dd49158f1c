package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/invoicely/internal/audit/domain"
	"github.com/smallbiznis/invoicely/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func store(db *gorm.DB) repository.Repository[domain.AuditLog] {
	return repository.ProvideStore[domain.AuditLog](db)
}

// Insert appends one row. Rows are never updated.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return store(db).Create(ctx, entry)
}

// List returns rows newest first. One row past Limit is fetched so the
// caller can tell whether another page exists.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	query := &domain.AuditLog{
		Action:     strings.TrimSpace(filter.Action),
		TargetType: strings.TrimSpace(filter.TargetType),
		ActorType:  strings.TrimSpace(filter.ActorType),
	}
	if targetID := strings.TrimSpace(filter.TargetID); targetID != "" {
		query.TargetID = &targetID
	}

	opts := []repository.QueryOption{repository.WithOrder("id desc")}
	if filter.CursorID > 0 {
		opts = append(opts, repository.WithCondition("id < ?", filter.CursorID))
	}
	if filter.Limit > 0 {
		opts = append(opts, repository.WithLimit(filter.Limit+1))
	}
	return store(db).Find(ctx, query, opts...)
}
