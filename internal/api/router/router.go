package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"

	"github.com/yonid4/job-postings-scraper-sub002/internal/api/handler"
	"github.com/yonid4/job-postings-scraper-sub002/internal/config"
)

// RegisterRoutes 注册 API 路由。配置了api_key时业务接口走Bearer鉴权，
// 健康检查始终放行
func RegisterRoutes(h *server.Hertz, cfg *config.Config, automationHandler *handler.AutomationHandler) {
	api := h.Group("/api/v1")

	api.GET("/health", automationHandler.HandleHealth)

	if cfg.Server.APIKey != "" {
		api.Use(keyauth.New(
			keyauth.WithKeyLookUp("header:Authorization", "Bearer"),
			keyauth.WithFilter(func(ctx context.Context, c *app.RequestContext) bool {
				// 健康检查不鉴权
				return string(c.Path()) == "/api/v1/health"
			}),
			keyauth.WithValidator(func(ctx context.Context, c *app.RequestContext, key string) (bool, error) {
				return key == cfg.Server.APIKey, nil
			}),
			keyauth.WithErrorHandler(func(ctx context.Context, c *app.RequestContext, err error) {
				c.JSON(consts.StatusUnauthorized, utils.H{"error": "鉴权失败"})
				c.Abort()
			}),
		))
	}

	api.POST("/search", automationHandler.HandleSearch)
	api.POST("/applications", automationHandler.HandleApply)
	api.POST("/resume/:token", automationHandler.HandleResume)

	api.GET("/listings/:source_id", automationHandler.HandleGetListing)
	api.POST("/listings/:source_id/favorite", automationHandler.HandleFavorite)
	api.DELETE("/listings/:source_id/favorite", automationHandler.HandleUnfavorite)
}
