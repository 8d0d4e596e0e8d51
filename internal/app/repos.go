package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/doccache-backend/internal/data/repos/documents"
	"github.com/yungbote/doccache-backend/internal/platform/logger"
)

type Repos struct {
	Documents   documents.DocumentRepo
	SearchCache documents.SearchCacheRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Documents:   documents.NewDocumentRepo(db, log),
		SearchCache: documents.NewSearchCacheRepo(db, log),
	}
}
