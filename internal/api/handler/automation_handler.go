package handler

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/yonid4/job-postings-scraper-sub002/internal/automation"
	"github.com/yonid4/job-postings-scraper-sub002/internal/config"
	"github.com/yonid4/job-postings-scraper-sub002/internal/storage"
)

// AutomationService 编排器暴露给HTTP层的能力面
type AutomationService interface {
	Search(ctx context.Context, req *automation.SearchRequest) (*automation.SearchResult, error)
	Apply(ctx context.Context, sourceID string, profile *automation.ApplicantProfile) (*automation.ApplicationOutcome, error)
	Resume(ctx context.Context, token string) (*automation.ResumeResult, error)
	GetListing(ctx context.Context, sourceID string) (*automation.Listing, error)
	PendingInterruptions() int
}

// AutomationHandler 负责处理搜索/申请/恢复相关的HTTP请求
type AutomationHandler struct {
	cfg     *config.Config
	orch    AutomationService
	storage *storage.Storage
	profile *automation.ApplicantProfile
	logger  *log.Logger
}

// NewAutomationHandler 创建一个新的 AutomationHandler 实例
func NewAutomationHandler(cfg *config.Config, orch AutomationService, storageManager *storage.Storage, profile *automation.ApplicantProfile) *AutomationHandler {
	return &AutomationHandler{
		cfg:     cfg,
		orch:    orch,
		storage: storageManager,
		profile: profile,
		logger:  log.New(os.Stdout, "[AutomationHandler] ", log.LstdFlags|log.Lshortfile),
	}
}

// HandleSearch 处理职位搜索请求。
// POST /api/v1/search
func (h *AutomationHandler) HandleSearch(ctx context.Context, c *app.RequestContext) {
	var req automation.SearchRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "请求体解析失败: " + err.Error()})
		return
	}

	result, err := h.orch.Search(ctx, &req)
	if err != nil {
		if sig, ok := automation.AsManualIntervention(err); ok {
			h.writeInterruption(c, sig)
			return
		}
		h.logger.Printf("搜索失败: %v", err)
		// 部分结果仍然交还客户端
		if result != nil && len(result.Listings) > 0 {
			c.JSON(consts.StatusOK, result)
			return
		}
		c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
		return
	}

	h.markSeen(ctx, result.Listings)
	c.JSON(consts.StatusOK, result)
}

// applyRequest 申请请求体
type applyRequest struct {
	SourceID string `json:"source_id"`
}

// HandleApply 处理站内引导式申请请求。
// POST /api/v1/applications
func (h *AutomationHandler) HandleApply(ctx context.Context, c *app.RequestContext) {
	var req applyRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "请求体解析失败: " + err.Error()})
		return
	}
	if req.SourceID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "source_id 不能为空"})
		return
	}
	if h.profile == nil || !h.profile.AutoApplyEnabled {
		c.JSON(consts.StatusForbidden, utils.H{"error": "申请人档案未启用自动申请"})
		return
	}

	outcome, err := h.orch.Apply(ctx, req.SourceID, h.profile)
	if err != nil {
		if sig, ok := automation.AsManualIntervention(err); ok {
			h.writeInterruption(c, sig)
			return
		}
		h.logger.Printf("申请失败 (source_id=%s): %v", req.SourceID, err)
		// 流程失败也带上已产生的结果，客户端能看到走到了第几步
		if outcome != nil {
			c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error(), "outcome": outcome})
			return
		}
		c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
		return
	}

	c.JSON(consts.StatusOK, outcome)
}

// HandleResume 消费恢复令牌，把挂起的会话从中断点继续。
// POST /api/v1/resume/:token
func (h *AutomationHandler) HandleResume(ctx context.Context, c *app.RequestContext) {
	token := c.Param("token")
	if token == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "token 不能为空"})
		return
	}

	result, err := h.orch.Resume(ctx, token)
	if err != nil {
		if sig, ok := automation.AsManualIntervention(err); ok {
			// 恢复后又撞上新的挑战
			h.writeInterruption(c, sig)
			return
		}
		if errors.Is(err, automation.ErrExpiredInterruption) {
			c.JSON(consts.StatusGone, utils.H{"error": "恢复令牌未知或已过期"})
			return
		}
		h.logger.Printf("恢复失败 (token=%s): %v", token, err)
		// 恢复流程失败时已提取的部分结果仍然交还客户端
		if result != nil && len(result.Listings) > 0 {
			h.markSeen(ctx, result.Listings)
			c.JSON(consts.StatusOK, result)
			return
		}
		if result != nil && result.Outcome != nil {
			c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error(), "outcome": result.Outcome})
			return
		}
		c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
		return
	}

	if result != nil {
		h.markSeen(ctx, result.Listings)
	}
	c.JSON(consts.StatusOK, result)
}

// HandleGetListing 查询单条职位详情。
// GET /api/v1/listings/:source_id
func (h *AutomationHandler) HandleGetListing(ctx context.Context, c *app.RequestContext) {
	sourceID := c.Param("source_id")
	if sourceID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "source_id 不能为空"})
		return
	}

	listing, err := h.orch.GetListing(ctx, sourceID)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
		return
	}
	if listing == nil {
		c.JSON(consts.StatusNotFound, utils.H{"error": "职位不存在"})
		return
	}
	c.JSON(consts.StatusOK, listing)
}

// HandleFavorite 收藏职位。
// POST /api/v1/listings/:source_id/favorite
func (h *AutomationHandler) HandleFavorite(ctx context.Context, c *app.RequestContext) {
	h.toggleFavorite(ctx, c, true)
}

// HandleUnfavorite 取消收藏。
// DELETE /api/v1/listings/:source_id/favorite
func (h *AutomationHandler) HandleUnfavorite(ctx context.Context, c *app.RequestContext) {
	h.toggleFavorite(ctx, c, false)
}

func (h *AutomationHandler) toggleFavorite(ctx context.Context, c *app.RequestContext, favorite bool) {
	sourceID := c.Param("source_id")
	if sourceID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "source_id 不能为空"})
		return
	}
	if h.storage == nil || h.storage.MySQL == nil {
		c.JSON(consts.StatusServiceUnavailable, utils.H{"error": "数据库未初始化"})
		return
	}

	var err error
	if favorite {
		err = h.storage.MySQL.AddFavorite(ctx, sourceID)
	} else {
		err = h.storage.MySQL.RemoveFavorite(ctx, sourceID)
	}
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, utils.H{"source_id": sourceID, "favorited": favorite})
}

// HandleHealth 健康检查，带上挂起中断数量
func (h *AutomationHandler) HandleHealth(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{
		"status":                "ok",
		"pending_interruptions": h.orch.PendingInterruptions(),
	})
}

// writeInterruption 人工验证中断的统一响应载荷。
// 客户端在原浏览器会话中完成验证后，用resumeToken调用resume接口继续
func (h *AutomationHandler) writeInterruption(c *app.RequestContext, sig *automation.ManualInterventionRequired) {
	c.JSON(consts.StatusConflict, utils.H{
		"error":                     "CAPTCHA_CHALLENGE",
		"message":                   sig.Message,
		"requiresManualIntervention": true,
		"resumeToken":               sig.ResumeToken,
	})
}

// markSeen 把返回的职位加入Redis已见集合，尽力而为
func (h *AutomationHandler) markSeen(ctx context.Context, listings []automation.Listing) {
	if h.storage == nil || h.storage.Redis == nil || len(listings) == 0 {
		return
	}
	ids := make([]string, 0, len(listings))
	for i := range listings {
		ids = append(ids, listings[i].SourceID)
	}
	if err := h.storage.Redis.MarkListingsSeen(ctx, ids); err != nil {
		h.logger.Printf("已见职位集合写入失败: %v", err)
	}
}
