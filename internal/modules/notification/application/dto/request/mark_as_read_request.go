package request

type MarkAsReadRequest struct {
	OwnerId        string `json:"ownerId"`
	Role           string `json:"role"`
	NotificationId int64  `json:"notificationId"`
}

type MarkAllAsReadRequest struct {
	OwnerId string `json:"ownerId"`
	Role    string `json:"role"`
}

type ExecuteActionRequest struct {
	OwnerId        string `json:"ownerId"`
	Role           string `json:"role"`
	NotificationId int64  `json:"notificationId"`
}
