package persistence

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/zeroclaw/gateway/internal/domain/memory"
	"github.com/zeroclaw/gateway/internal/infrastructure/persistence/models"
	domainErrors "github.com/zeroclaw/gateway/pkg/errors"
	"gorm.io/gorm"
)

// GormMemoryRepository is the authoritative, durable side of hybrid memory:
// every Store/Recall/Forget hits this table first, and the semantic index
// (LanceDB) is only ever a best-effort accelerator layered on top of it.
// Grounded on gorm_message_repository.go's conversion and error-mapping
// shape.
type GormMemoryRepository struct {
	db *gorm.DB
}

// NewGormMemoryRepository creates a GORM-backed memory.AuthoritativeStore.
func NewGormMemoryRepository(db *gorm.DB) memory.AuthoritativeStore {
	return &GormMemoryRepository{db: db}
}

// Save 保存记忆条目 (创建或更新)
func (r *GormMemoryRepository) Save(ctx context.Context, entry *memory.MemoryEntry) error {
	model, err := r.toModel(entry)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return domainErrors.NewInternalError("failed to save memory entry: " + err.Error())
	}
	return nil
}

// Get 按 ID 获取记忆条目
func (r *GormMemoryRepository) Get(ctx context.Context, id string) (*memory.MemoryEntry, error) {
	var model models.MemoryEntryModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("memory entry not found")
		}
		return nil, domainErrors.NewInternalError("failed to get memory entry: " + err.Error())
	}
	return r.toEntry(&model)
}

// ListBySession 列出会话下最近的记忆条目 (按创建时间倒序)
func (r *GormMemoryRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*memory.MemoryEntry, error) {
	var rows []models.MemoryEntryModel
	q := r.db.WithContext(ctx).Order("created_at desc")
	if sessionID != "" {
		q = q.Where("session_id = ?", sessionID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to list memory entries: " + err.Error())
	}

	entries := make([]*memory.MemoryEntry, 0, len(rows))
	for i := range rows {
		entry, err := r.toEntry(&rows[i])
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Delete 删除记忆条目
func (r *GormMemoryRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.MemoryEntryModel{}, "id = ?", id)
	if result.Error != nil {
		return domainErrors.NewInternalError("failed to delete memory entry: " + result.Error.Error())
	}
	if result.RowsAffected == 0 {
		return domainErrors.NewNotFoundError("memory entry not found")
	}
	return nil
}

// HealthCheck pings the underlying connection, used by HybridMemory to
// report authoritative-store liveness.
func (r *GormMemoryRepository) HealthCheck(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return domainErrors.NewInternalError("failed to get underlying sql.DB: " + err.Error())
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return domainErrors.NewInternalError("database ping failed: " + err.Error())
	}
	return nil
}

func (r *GormMemoryRepository) toModel(entry *memory.MemoryEntry) (*models.MemoryEntryModel, error) {
	metaBytes, err := json.Marshal(entry.Metadata)
	if err != nil {
		return nil, domainErrors.NewInternalError("failed to marshal memory metadata: " + err.Error())
	}
	return &models.MemoryEntryModel{
		ID:        entry.ID,
		SessionID: entry.SessionID,
		UserID:    entry.UserID,
		Category:  string(entry.Category),
		Content:   entry.Content,
		Metadata:  string(metaBytes),
		CreatedAt: entry.CreatedAt,
		UpdatedAt: entry.UpdatedAt,
	}, nil
}

func (r *GormMemoryRepository) toEntry(model *models.MemoryEntryModel) (*memory.MemoryEntry, error) {
	var meta map[string]interface{}
	if model.Metadata != "" {
		if err := json.Unmarshal([]byte(model.Metadata), &meta); err != nil {
			meta = make(map[string]interface{})
		}
	}
	return &memory.MemoryEntry{
		ID:        model.ID,
		SessionID: model.SessionID,
		UserID:    model.UserID,
		Category:  memory.Category(model.Category),
		Content:   model.Content,
		Metadata:  meta,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}, nil
}
