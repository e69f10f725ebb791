package consumer

import (
	"context"
	"time"

	"meeple-backoffice/pkg/db/option"
	"meeple-backoffice/pkg/db/pagination"
	"meeple-backoffice/pkg/errutil"
	"meeple-backoffice/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	node      *snowflake.Node
	consumers repository.Repository[Consumer]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node:      p.Node,
		consumers: repository.ProvideStore[Consumer](p.DB),
	}
}

type CreateParams struct {
	DisplayName string
	Phone       string
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*Consumer, error) {
	if params.DisplayName == "" {
		return nil, errutil.ValidationFailed("display_name is required")
	}

	if params.Phone != "" {
		if exist, err := s.consumers.FindOne(ctx, &Consumer{Phone: params.Phone}); err != nil {
			return nil, err
		} else if exist != nil {
			return nil, errutil.Conflict("phone already registered")
		}
	}

	now := time.Now()
	cons := &Consumer{
		ID:          s.node.Generate().Int64(),
		DisplayName: params.DisplayName,
		Phone:       params.Phone,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.consumers.Create(ctx, cons); err != nil {
		zap.L().Error("failed to create consumer", zap.Error(err))
		return nil, err
	}

	return cons, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Consumer, error) {
	cons, err := s.consumers.FindOne(ctx, &Consumer{ID: id})
	if err != nil {
		return nil, err
	}
	if cons == nil {
		return nil, errutil.NotFound("consumer not found")
	}
	return cons, nil
}

func (s *Service) List(ctx context.Context, page pagination.Pagination) ([]*Consumer, pagination.PageInfo, error) {
	page = page.Normalize()

	total, err := s.consumers.Count(ctx, &Consumer{})
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	consumers, err := s.consumers.Find(ctx, &Consumer{},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
		option.WithOffset(page.Offset()),
		option.WithLimit(page.Limit),
	)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	return consumers, pagination.BuildPageInfo(page, total), nil
}

type UpdateParams struct {
	DisplayName *string
	Phone       *string
}

func (s *Service) Update(ctx context.Context, id int64, params UpdateParams) (*Consumer, error) {
	cons, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{"updated_at": time.Now()}
	if params.DisplayName != nil {
		updates["display_name"] = *params.DisplayName
		cons.DisplayName = *params.DisplayName
	}
	if params.Phone != nil {
		updates["phone"] = *params.Phone
		cons.Phone = *params.Phone
	}

	if err := s.consumers.Update(ctx, id, updates); err != nil {
		zap.L().Error("failed to update consumer", zap.Int64("consumer_id", id), zap.Error(err))
		return nil, err
	}

	return cons, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.consumers.Delete(ctx, id)
}
