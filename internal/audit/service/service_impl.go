package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/invoicely/internal/audit/domain"
	"github.com/smallbiznis/invoicely/internal/audit/masking"
	"github.com/smallbiznis/invoicely/internal/clock"
	obscontext "github.com/smallbiznis/invoicely/internal/observability/context"
	"github.com/smallbiznis/invoicely/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// providerIDs masks metadata keys holding payment provider identifiers.
var providerIDs = masking.NewMasker("customer_id", "subscription_id")

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func New(p Params) auditdomain.Service {
	return NewService(p)
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: clk,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) error {
	return s.RecordTx(ctx, s.db, entry)
}

func (s *Service) RecordTx(ctx context.Context, tx *gorm.DB, entry auditdomain.Entry) error {
	log, err := s.build(ctx, entry)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(ctx, tx, log); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", log.Action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) build(ctx context.Context, entry auditdomain.Entry) (*auditdomain.AuditLog, error) {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return nil, auditdomain.ErrInvalidAction
	}

	actorType := entry.ActorType
	switch actorType {
	case "":
		actorType = auditdomain.ActorTypeSystem
	case auditdomain.ActorTypeUser, auditdomain.ActorTypeSystem, auditdomain.ActorTypeWebhook:
	default:
		return nil, auditdomain.ErrInvalidActorType
	}

	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	payload := providerIDs.Apply(entry.Metadata)
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		if payload == nil {
			payload = map[string]any{}
		}
		payload["request_id"] = requestID
	}

	log := &auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  string(actorType),
		ActorID:    normalize(entry.ActorID),
		Action:     action,
		TargetType: targetType,
		TargetID:   normalize(entry.TargetID),
		CreatedAt:  s.clock.Now(),
	}
	if payload != nil {
		log.Metadata = datatypes.JSONMap(payload)
	}

	info := auditdomain.RequestInfoFromContext(ctx)
	log.IPAddress = normalize(info.IPAddress)
	log.UserAgent = normalize(info.UserAgent)
	return log, nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	filter := auditdomain.ListFilter{
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		ActorType:  req.ActorType,
		Limit:      pageSize,
	}
	if cursor != nil {
		filter.CursorID = cursor.ID
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	page, info, err := pagination.Trim(items, pageSize, func(item *auditdomain.AuditLog) int64 {
		return item.ID.Int64()
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	logs := make([]auditdomain.AuditLog, 0, len(page))
	for _, item := range page {
		if item == nil {
			continue
		}
		logs = append(logs, *item)
	}
	return auditdomain.ListAuditLogResponse{PageInfo: info, AuditLogs: logs}, nil
}

func normalize(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
