package handler

import (
	notifRequest "FormaLink/internal/modules/notification/application/dto/request"
	"FormaLink/internal/modules/notification/application/service"
	"FormaLink/pkg/back"
	"FormaLink/pkg/xerr"
	"FormaLink/pkg/zlog"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	svc service.NotificationService
}

func NewNotificationHandler(svc service.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

func (h *NotificationHandler) GetNotificationList(c *gin.Context) {
	var req notifRequest.GetNotificationListRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	req.OwnerId = c.GetString("uuid")
	req.Role = c.GetString("role")

	data, err := h.svc.GetNotificationList(c.Request.Context(), req)
	back.Result(c, data, err)
}

func (h *NotificationHandler) GetNotificationCounts(c *gin.Context) {
	data, err := h.svc.GetCounts(c.Request.Context(), c.GetString("uuid"), c.GetString("role"))
	back.Result(c, data, err)
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	var req notifRequest.MarkAsReadRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	req.OwnerId = c.GetString("uuid")
	req.Role = c.GetString("role")

	data, err := h.svc.MarkAsRead(c.Request.Context(), req)
	back.Result(c, data, err)
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	req := notifRequest.MarkAllAsReadRequest{
		OwnerId: c.GetString("uuid"),
		Role:    c.GetString("role"),
	}

	data, err := h.svc.MarkAllAsRead(c.Request.Context(), req)
	back.Result(c, data, err)
}

func (h *NotificationHandler) ExecuteAction(c *gin.Context) {
	var req notifRequest.ExecuteActionRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	req.OwnerId = c.GetString("uuid")
	req.Role = c.GetString("role")

	err := h.svc.ExecuteAction(c.Request.Context(), req)
	back.Result(c, nil, err)
}
