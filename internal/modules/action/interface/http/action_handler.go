package handler

import (
	"FormaLink/internal/config"
	actionRequest "FormaLink/internal/modules/action/application/dto/request"
	"FormaLink/internal/modules/action/application/service"
	"FormaLink/internal/modules/action/domain/action"
	"FormaLink/pkg/back"
	"FormaLink/pkg/xerr"
	"FormaLink/pkg/zlog"

	"github.com/gin-gonic/gin"
)

type ActionHandler struct {
	dispatchSvc service.DispatchService
	callbackSvc service.CallbackService
}

func NewActionHandler(dispatchSvc service.DispatchService, callbackSvc service.CallbackService) *ActionHandler {
	return &ActionHandler{dispatchSvc: dispatchSvc, callbackSvc: callbackSvc}
}

// Dispatch 动作触发入口。受理即返回；冲突返回 409 语义码和已有关联的剩余等待时间。
func (h *ActionHandler) Dispatch(c *gin.Context) {
	var req actionRequest.DispatchActionRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	req.OwnerSessionId = c.GetString("uuid")
	req.OwnerRole = c.GetString("role")

	ack, conflict, err := h.dispatchSvc.Dispatch(c.Request.Context(), req)
	if err != nil {
		back.Result(c, nil, err)
		return
	}
	if conflict != nil {
		back.ErrorData(c, xerr.Conflict, service.ConflictMessage(conflict), conflict)
		return
	}
	back.Success(c, ack)
}

// ListActionTypes 支持的动作类型清单，前端渲染动作按钮用。
// 未知类型依然能触发（原样转发），清单只是参考
func (h *ActionHandler) ListActionTypes(c *gin.Context) {
	back.Success(c, action.AllSupportedTypes())
}

// Callback 工作流引擎回调入口。不走 JWT 组：引擎用静态令牌（可选）。
// 未知关联也回 2xx，避免引擎无限重试。
func (h *ActionHandler) Callback(c *gin.Context) {
	token := config.GetConfig().WorkflowConfig.CallbackToken
	if token != "" && c.GetHeader("X-Callback-Token") != token {
		back.Error(c, xerr.Unauthorized, "jeton de rappel invalide")
		return
	}

	var req actionRequest.WorkflowCallbackRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	err := h.callbackSvc.Ingest(c.Request.Context(), req)
	back.Result(c, nil, err)
}
