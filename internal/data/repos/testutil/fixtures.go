package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-prereq/internal/domain"
)

func SeedNodeRecord(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, topicKey string, masteries ...string) *types.NodeRecord {
	tb.Helper()
	rec := &types.NodeRecord{
		ID:         uuid.New(),
		OwnerID:    ownerID,
		TopicKey:   topicKey,
		Topic:      topicKey,
		PublicName: topicKey,
		Blurb:      types.DefaultBlurb,
		Masteries:  datatypes.NewJSONType(types.NewMasteryChecklist(masteries)),
	}
	if err := tx.WithContext(ctx).Create(rec).Error; err != nil {
		tb.Fatalf("seed node record: %v", err)
	}
	return rec
}
