package user

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
	node  *snowflake.Node
	users repository.Repository[User]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node:  p.Node,
		users: repository.ProvideStore[User](p.DB),
	}
}

type CreateParams struct {
	DisplayName string
	Email       string
	Phone       string
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*User, error) {
	if params.DisplayName == "" {
		return nil, errutil.ValidationFailed("display_name is required")
	}
	if params.Email == "" {
		return nil, errutil.ValidationFailed("email is required")
	}

	if exist, err := s.users.FindOne(ctx, &User{Email: params.Email}); err != nil {
		return nil, err
	} else if exist != nil {
		return nil, errutil.Conflict("email already registered")
	}

	now := time.Now()
	u := &User{
		ID:          s.node.Generate().Int64(),
		DisplayName: params.DisplayName,
		Email:       params.Email,
		Phone:       params.Phone,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.users.Create(ctx, u); err != nil {
		zap.L().Error("failed to create user", zap.Error(err))
		return nil, err
	}

	return u, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	u, err := s.users.FindOne(ctx, &User{ID: id})
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errutil.NotFound("user not found")
	}
	return u, nil
}

func (s *Service) List(ctx context.Context, page pagination.Pagination) ([]*User, pagination.PageInfo, error) {
	page = page.Normalize()

	total, err := s.users.Count(ctx, &User{})
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	users, err := s.users.Find(ctx, &User{},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
		option.WithOffset(page.Offset()),
		option.WithLimit(page.Limit),
	)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	return users, pagination.BuildPageInfo(page, total), nil
}

type UpdateParams struct {
	DisplayName *string
	Phone       *string
}

func (s *Service) Update(ctx context.Context, id int64, params UpdateParams) (*User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{"updated_at": time.Now()}
	if params.DisplayName != nil {
		updates["display_name"] = *params.DisplayName
		u.DisplayName = *params.DisplayName
	}
	if params.Phone != nil {
		updates["phone"] = *params.Phone
		u.Phone = *params.Phone
	}

	if err := s.users.Update(ctx, id, updates); err != nil {
		zap.L().Error("failed to update user", zap.Int64("user_id", id), zap.Error(err))
		return nil, err
	}

	return u, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.users.Delete(ctx, id)
}
