package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Tesseract-Nexus/go-shared/cache"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"catalog-import-service/internal/models"
)

var ErrNotFound = errors.New("not found")

const (
	SessionCacheTTL     = 5 * time.Minute
	SessionListCacheTTL = 1 * time.Minute
)

// SessionRepositoryInterface defines the persistence operations for import
// sessions. The service layer depends on this interface so tests can swap in
// a mock.
type SessionRepositoryInterface interface {
	Create(ctx context.Context, session *models.ImportSession) error
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.ImportSession, error)
	List(ctx context.Context, tenantID string, status string, limit, offset int) ([]models.ImportSession, int64, error)
	Update(ctx context.Context, session *models.ImportSession) error
	UpdateLocked(ctx context.Context, tenantID string, id uuid.UUID, fn func(session *models.ImportSession) error) (*models.ImportSession, error)
	Delete(ctx context.Context, tenantID string, id uuid.UUID) error
	DeleteTerminal(ctx context.Context, tenantID string) (int64, error)
}

// SessionRepository is the gorm/Postgres implementation
type SessionRepository struct {
	db    *gorm.DB
	redis *redis.Client
	cache *cache.CacheLayer
}

func NewSessionRepository(db *gorm.DB, redis *redis.Client) *SessionRepository {
	repo := &SessionRepository{
		db:    db,
		redis: redis,
	}

	if redis != nil {
		cacheConfig := cache.CacheConfig{
			L1Enabled:  true,
			L1MaxItems: 1000,
			L1TTL:      15 * time.Second,
			DefaultTTL: SessionCacheTTL,
			KeyPrefix:  "tesseract:import-sessions:",
		}
		repo.cache = cache.NewCacheLayerFromClient(redis, cacheConfig)
	}

	return repo
}

func (r *SessionRepository) invalidateSessionCaches(ctx context.Context, tenantID string, sessionID uuid.UUID) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Delete(ctx, fmt.Sprintf("session:%s:%s", tenantID, sessionID.String()))
	_ = r.cache.DeletePattern(ctx, fmt.Sprintf("sessions:list:%s:*", tenantID))
}

// Create stores a new session
func (r *SessionRepository) Create(ctx context.Context, session *models.ImportSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	session.CreatedAt = time.Now()
	session.UpdatedAt = time.Now()

	err := r.db.WithContext(ctx).Create(session).Error
	if err == nil {
		r.invalidateSessionCaches(ctx, session.TenantID, session.ID)
	}
	return err
}

// GetByID retrieves a session by ID with caching
func (r *SessionRepository) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.ImportSession, error) {
	cacheKey := fmt.Sprintf("session:%s:%s", tenantID, id.String())

	if r.cache != nil {
		var session models.ImportSession
		err := r.cache.GetOrSetJSON(ctx, cacheKey, &session, SessionCacheTTL, func() (any, error) {
			var s models.ImportSession
			if err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&s).Error; err != nil {
				return nil, err
			}
			return &s, nil
		})
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		return &session, nil
	}

	var session models.ImportSession
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// List retrieves a tenant's sessions newest first, optionally filtered by
// status. "all" and "" mean no status filter.
func (r *SessionRepository) List(ctx context.Context, tenantID string, status string, limit, offset int) ([]models.ImportSession, int64, error) {
	type listResult struct {
		Sessions []models.ImportSession `json:"sessions"`
		Total    int64                  `json:"total"`
	}

	query := func() (*listResult, error) {
		var sessions []models.ImportSession
		var total int64

		q := r.db.WithContext(ctx).Model(&models.ImportSession{}).Where("tenant_id = ?", tenantID)
		if status != "" && status != "all" {
			q = q.Where("status = ?", status)
		}
		if err := q.Count(&total).Error; err != nil {
			return nil, err
		}
		if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&sessions).Error; err != nil {
			return nil, err
		}
		return &listResult{Sessions: sessions, Total: total}, nil
	}

	if r.cache != nil {
		cacheKey := fmt.Sprintf("sessions:list:%s:%s:%d:%d", tenantID, status, limit, offset)
		var result listResult
		err := r.cache.GetOrSetJSON(ctx, cacheKey, &result, SessionListCacheTTL, func() (any, error) {
			return query()
		})
		if err != nil {
			return nil, 0, err
		}
		return result.Sessions, result.Total, nil
	}

	result, err := query()
	if err != nil {
		return nil, 0, err
	}
	return result.Sessions, result.Total, nil
}

// Update writes the full session row
func (r *SessionRepository) Update(ctx context.Context, session *models.ImportSession) error {
	session.UpdatedAt = time.Now()
	err := r.db.WithContext(ctx).Save(session).Error
	if err == nil {
		r.invalidateSessionCaches(ctx, session.TenantID, session.ID)
	}
	return err
}

// UpdateLocked loads the session under a row lock, applies fn, and saves the
// result, all in one transaction. Concurrent edits to the same session
// serialize here instead of clobbering each other's staged data.
func (r *SessionRepository) UpdateLocked(ctx context.Context, tenantID string, id uuid.UUID, fn func(session *models.ImportSession) error) (*models.ImportSession, error) {
	var session models.ImportSession

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ? AND id = ?", tenantID, id).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if err := fn(&session); err != nil {
			return err
		}

		session.UpdatedAt = time.Now()
		return tx.Save(&session).Error
	})
	if err != nil {
		return nil, err
	}

	r.invalidateSessionCaches(ctx, tenantID, id)
	return &session, nil
}

// Delete permanently removes a session
func (r *SessionRepository) Delete(ctx context.Context, tenantID string, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).Delete(&models.ImportSession{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	r.invalidateSessionCaches(ctx, tenantID, id)
	return nil
}

// DeleteTerminal removes every terminal session for a tenant (discarded or
// rolled back). Active drafts are kept, and so are saved sessions until they
// are rolled back, matching the single-session delete guard.
func (r *SessionRepository) DeleteTerminal(ctx context.Context, tenantID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status IN ?", tenantID, models.TerminalStatuses).
		Delete(&models.ImportSession{})
	if result.Error != nil {
		return 0, result.Error
	}

	if r.cache != nil {
		_ = r.cache.DeletePattern(ctx, fmt.Sprintf("session:%s:*", tenantID))
		_ = r.cache.DeletePattern(ctx, fmt.Sprintf("sessions:list:%s:*", tenantID))
	}
	return result.RowsAffected, nil
}
