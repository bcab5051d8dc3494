package respond

import "FormaLink/internal/modules/notification/domain/entity"

type NotificationListRespond struct {
	Items []*entity.Notification `json:"items"`
	Total int64                  `json:"total"`
	Page  int                    `json:"page"`
}

type MarkAllAsReadRespond struct {
	NbMarquees int64          `json:"nbMarquees"`
	Counts     *entity.Counts `json:"counts"`
}
