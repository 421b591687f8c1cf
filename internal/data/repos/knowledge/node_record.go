package knowledge

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-prereq/internal/domain"
	"github.com/yungbote/neurobridge-prereq/internal/pkg/dbctx"
	"github.com/yungbote/neurobridge-prereq/internal/platform/logger"
)

type NodeRecordRepo interface {
	Create(dbc dbctx.Context, row *types.NodeRecord) (*types.NodeRecord, error)
	GetOrCreate(dbc dbctx.Context, row *types.NodeRecord) (*types.NodeRecord, bool, error)

	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.NodeRecord, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.NodeRecord, error)
	GetByOwnerAndKey(dbc dbctx.Context, ownerID uuid.UUID, topicKey string) (*types.NodeRecord, error)
	GetByOwner(dbc dbctx.Context, ownerID uuid.UUID) ([]*types.NodeRecord, error)

	AppendStatus(dbc dbctx.Context, id uuid.UUID, snap types.StatusSnapshot) (*types.NodeRecord, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type nodeRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNodeRecordRepo(db *gorm.DB, baseLog *logger.Logger) NodeRecordRepo {
	return &nodeRecordRepo{db: db, log: baseLog.With("repo", "NodeRecordRepo")}
}

// Create inserts the record, assigning an id when the caller left it zero.
// A second record for the same (owner, topic key) fails with
// gorm.ErrDuplicatedKey when the connection translates errors.
func (r *nodeRecordRepo) Create(dbc dbctx.Context, row *types.NodeRecord) (*types.NodeRecord, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return nil, errors.New("nil node record")
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.Blurb == "" {
		row.Blurb = types.DefaultBlurb
	}
	if row.Masteries.Data() == nil {
		row.Masteries = datatypes.NewJSONType(map[string]bool{})
	}
	if row.LearningStatus.Data() == nil {
		row.LearningStatus = datatypes.NewJSONType([]types.StatusSnapshot{})
	}
	if err := t.WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// GetOrCreate inserts row unless a record for (owner, topic key) already
// exists, in which case the stored record is returned with created=false.
func (r *nodeRecordRepo) GetOrCreate(dbc dbctx.Context, row *types.NodeRecord) (*types.NodeRecord, bool, error) {
	if row == nil {
		return nil, false, errors.New("nil node record")
	}
	if existing, err := r.GetByOwnerAndKey(dbc, row.OwnerID, row.TopicKey); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, false, nil
	}
	created, err := r.Create(dbc, row)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, false, err
	}
	existing, getErr := r.GetByOwnerAndKey(dbc, row.OwnerID, row.TopicKey)
	if getErr != nil || existing == nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *nodeRecordRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.NodeRecord, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.NodeRecord
	if err := t.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *nodeRecordRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.NodeRecord, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.NodeRecord
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *nodeRecordRepo) GetByOwnerAndKey(dbc dbctx.Context, ownerID uuid.UUID, topicKey string) (*types.NodeRecord, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.NodeRecord
	err := t.WithContext(dbc.Ctx).
		Where("owner_id = ? AND topic_key = ?", ownerID, topicKey).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *nodeRecordRepo) GetByOwner(dbc dbctx.Context, ownerID uuid.UUID) ([]*types.NodeRecord, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.NodeRecord
	if err := t.WithContext(dbc.Ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// AppendStatus adds a snapshot to the end of the record's status history.
// Writers for one owner are serialized above the repo, so a read then write
// inside one transaction is enough.
func (r *nodeRecordRepo) AppendStatus(dbc dbctx.Context, id uuid.UUID, snap types.StatusSnapshot) (*types.NodeRecord, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if snap.At.IsZero() {
		snap.At = time.Now().UTC()
	}
	var out *types.NodeRecord
	err := t.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		var row types.NodeRecord
		if err := tx.Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
			return err
		}
		if row.ID == uuid.Nil {
			return gorm.ErrRecordNotFound
		}
		hist := append(row.LearningStatus.Data(), snap)
		row.LearningStatus = datatypes.NewJSONType(hist)
		if err := tx.Model(&types.NodeRecord{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"learning_status": row.LearningStatus,
				"updated_at":      time.Now().UTC(),
			}).Error; err != nil {
			return err
		}
		out = &row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *nodeRecordRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.NodeRecord{}).
		Where("id = ?", id).
		Updates(updates).Error
}
