package processlog

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/castaway-live/castaway/internal/models"
	"github.com/castaway-live/castaway/pkg/logctx"
	"github.com/castaway-live/castaway/pkg/tool"
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Save asynchronously persists a webhook process log. Nil input is ignored.
func (s *Service) Save(ctx context.Context, row *models.WebhookProcessLog) {
	go func() {
		if row == nil {
			return
		}
		if row.ID == "" {
			row.ID = tool.GenerateUUIDV7()
		}
		if err := s.db.Save(row).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save webhook process log: %v", err)
		}
	}()
}
