package persistence

import (
	"context"
	"time"

	"FormaLink/internal/modules/notification/domain/entity"
	"FormaLink/internal/modules/notification/domain/repository"

	"gorm.io/gorm"
)

type notificationRepositoryImpl struct {
	db *gorm.DB
}

// NewNotificationRepository 创建通知仓储实现
func NewNotificationRepository(db *gorm.DB) repository.NotificationRepository {
	return &notificationRepositoryImpl{db: db}
}

// visible 统一可见性过滤：定向给我的，或者属于我的角色分组 / TOUS 的
func (r *notificationRepositoryImpl) visible(ctx context.Context, identity string, role string) *gorm.DB {
	groups := []string{entity.AudienceTous}
	if role != "" {
		groups = append(groups, role)
	}
	return r.db.WithContext(ctx).
		Model(&entity.Notification{}).
		Where("destinataire_id = ? OR (audience <> '' AND audience IN ?)", identity, groups)
}

func (r *notificationRepositoryImpl) Create(ctx context.Context, notif *entity.Notification) error {
	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = time.Now()
	}
	if notif.Priorite == "" {
		notif.Priorite = entity.PrioriteNormale
	}
	return r.db.WithContext(ctx).Create(notif).Error
}

func (r *notificationRepositoryImpl) GetByID(ctx context.Context, id int64) (*entity.Notification, error) {
	var notif entity.Notification
	err := r.db.WithContext(ctx).First(&notif, id).Error
	if err != nil {
		return nil, err
	}
	return &notif, nil
}

func (r *notificationRepositoryImpl) List(ctx context.Context, identity string, role string, filter repository.ListFilter) ([]*entity.Notification, int64, error) {
	q := r.visible(ctx, identity, role)
	if filter.Categorie != "" {
		q = q.Where("categorie = ?", filter.Categorie)
	}
	if filter.Priorite != "" {
		q = q.Where("priorite = ?", filter.Priorite)
	}
	if filter.NonLuesSeules {
		q = q.Where("lue = 0")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	var notifs []*entity.Notification
	err := q.Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&notifs).Error
	return notifs, total, err
}

func (r *notificationRepositoryImpl) Counts(ctx context.Context, identity string, role string) (*entity.Counts, error) {
	var counts entity.Counts
	err := r.visible(ctx, identity, role).
		Select("COUNT(*) AS total, " +
			"IFNULL(SUM(lue = 0), 0) AS non_lues, " +
			"IFNULL(SUM(priorite = 'URGENTE' AND lue = 0), 0) AS urgentes, " +
			"IFNULL(SUM(action_requise = 1 AND action_effectuee = 0), 0) AS actions_requises").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return &counts, nil
}

func (r *notificationRepositoryImpl) MarkAsRead(ctx context.Context, id int64, identity string, role string) error {
	now := time.Now()
	return r.visible(ctx, identity, role).
		Where("id = ? AND lue = 0", id).
		Updates(map[string]interface{}{"lue": true, "date_lecture": now}).Error
}

func (r *notificationRepositoryImpl) MarkAllAsRead(ctx context.Context, identity string, role string) (int64, error) {
	now := time.Now()
	res := r.visible(ctx, identity, role).
		Where("lue = 0").
		Updates(map[string]interface{}{"lue": true, "date_lecture": now})
	return res.RowsAffected, res.Error
}

func (r *notificationRepositoryImpl) MarkActionEffectuee(ctx context.Context, id int64) (bool, error) {
	// 条件更新保证 false→true 单调，第二次调用影响 0 行
	res := r.db.WithContext(ctx).
		Model(&entity.Notification{}).
		Where("id = ? AND action_requise = 1 AND action_effectuee = 0", id).
		Update("action_effectuee", true)
	return res.RowsAffected > 0, res.Error
}

func (r *notificationRepositoryImpl) ExistsByCorrelation(ctx context.Context, correlationId string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&entity.Notification{}).
		Where("correlation_id = ?", correlationId).
		Count(&n).Error
	return n > 0, err
}

func (r *notificationRepositoryImpl) ListRappelsActionsRequises(ctx context.Context, olderThan time.Time) ([]*repository.RappelAgg, error) {
	var aggs []*repository.RappelAgg
	err := r.db.WithContext(ctx).
		Model(&entity.Notification{}).
		Select("destinataire_id AS destinataire_id, COUNT(*) AS nb").
		Where("action_requise = 1 AND action_effectuee = 0 AND destinataire_id <> '' AND created_at < ?", olderThan).
		Group("destinataire_id").
		Scan(&aggs).Error
	return aggs, err
}
