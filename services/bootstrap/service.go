package bootstrap

import (
	"meeple-backoffice/services/consumer"
	"meeple-backoffice/services/ledger"
	"meeple-backoffice/services/user"
	"meeple-backoffice/services/webhook"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Migrate brings the schema up to date for every persisted model.
func (s *Service) Migrate() error {
	if err := s.db.AutoMigrate(
		&user.User{},
		&consumer.Consumer{},
		&ledger.Balance{},
		&ledger.HistoryEntry{},
		&webhook.WebhookLog{},
	); err != nil {
		zap.L().Error("[bootstrap] migration failed", zap.Error(err))
		return err
	}

	zap.L().Info("[bootstrap] schema migrated")
	return nil
}
