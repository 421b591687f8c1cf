package repos

import (
	"github.com/yungbote/neurobridge-prereq/internal/data/repos/knowledge"
	"github.com/yungbote/neurobridge-prereq/internal/platform/logger"
	"gorm.io/gorm"
)

type NodeRecordRepo = knowledge.NodeRecordRepo

func NewNodeRecordRepo(db *gorm.DB, log *logger.Logger) NodeRecordRepo {
	return knowledge.NewNodeRecordRepo(db, log)
}
