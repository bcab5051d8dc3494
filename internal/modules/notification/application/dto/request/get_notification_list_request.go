package request

type GetNotificationListRequest struct {
	OwnerId       string `json:"ownerId"`
	Role          string `json:"role"`
	Categorie     string `json:"categorie"`
	Priorite      string `json:"priorite"`
	NonLuesSeules bool   `json:"nonLuesSeules"`
	Page          int    `json:"page"`
	PageSize      int    `json:"pageSize"`
}
