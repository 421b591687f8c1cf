package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-prereq/internal/data/repos"
	"github.com/yungbote/neurobridge-prereq/internal/platform/logger"
)

type Repos struct {
	NodeRecord repos.NodeRecordRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		NodeRecord: repos.NewNodeRecordRepo(db, log),
	}
}
