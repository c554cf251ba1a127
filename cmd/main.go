package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/spf13/pflag"

	"github.com/yonid4/job-postings-scraper-sub002/internal/api/handler"
	"github.com/yonid4/job-postings-scraper-sub002/internal/api/router"
	"github.com/yonid4/job-postings-scraper-sub002/internal/automation"
	"github.com/yonid4/job-postings-scraper-sub002/internal/config"
	appCoreLogger "github.com/yonid4/job-postings-scraper-sub002/internal/logger"
	"github.com/yonid4/job-postings-scraper-sub002/internal/profile"
	"github.com/yonid4/job-postings-scraper-sub002/internal/storage"
	"github.com/yonid4/job-postings-scraper-sub002/pkg/ratelimit"

	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
)

func main() {
	initLogger()

	var (
		configPath    string
		createConfig  bool
		createProfile bool
	)
	pflag.StringVarP(&configPath, "config", "c", "internal/config/config.yaml", "配置文件路径")
	pflag.BoolVar(&createConfig, "create-config", false, "在配置文件路径生成示例配置后退出")
	pflag.BoolVar(&createProfile, "create-profile", false, "生成示例申请人档案后退出")
	pflag.Parse()

	if createConfig {
		if err := config.CreateSampleConfig(configPath); err != nil {
			glog.Fatalf("生成示例配置失败: %v", err)
		}
		glog.Infof("示例配置已写入: %s", configPath)
		return
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("加载配置失败: %v", err)
	}
	glog.Info("配置加载成功")

	if createProfile {
		if err := profile.CreateSample(cfg.Profile.Path); err != nil {
			glog.Fatalf("生成示例申请人档案失败: %v", err)
		}
		glog.Infof("示例申请人档案已写入: %s", cfg.Profile.Path)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	glog.Info("存储服务初始化成功")

	// 申请人档案缺失时降级为只读模式：搜索可用，自动申请被拒绝
	applicantProfile, err := profile.Load(cfg.Profile.Path)
	if err != nil {
		glog.Warnf("加载申请人档案失败 (%s): %v, 自动申请功能不可用", cfg.Profile.Path, err)
		applicantProfile = nil
	} else {
		glog.Infof("申请人档案加载成功: %s", applicantProfile.FullName)
	}

	limiter := ratelimit.NewTokenBucket(cfg.Automation.SiteQPM, 0)
	glog.Infof("站点限流器初始化成功, QPM: %d", cfg.Automation.SiteQPM)

	catalog := automation.DefaultCatalog(cfg.Automation.SelectorCatalogVersion)
	glog.Infof("选择器目录加载成功, 版本: %s", catalog.Version())

	factory := automation.NewChromeFactory(&cfg.Automation, &cfg.Site, appCoreLogger.Logger)

	// 存储组件允许降级缺席，对应接口保持nil交由编排器做仅日志处理。
	// 注意不能把有类型的nil指针塞进接口变量
	var (
		listingStore  automation.ListingStore
		artifactStore automation.ArtifactStore
		publisher     automation.OutcomePublisher
		summaries     automation.SummarySink
		mirror        automation.TokenMirror
	)
	if storageManager.MySQL != nil {
		listingStore = storageManager.MySQL
	}
	if storageManager.MinIO != nil {
		artifactStore = storageManager.MinIO
	}
	if storageManager.RabbitMQ != nil {
		publisher = storageManager.RabbitMQ
	}
	if storageManager.Redis != nil {
		summaries = storageManager.Redis
		mirror = storageManager.Redis
	}

	monitor := automation.NewMonitor(cfg.Automation.ResumeTokenTTL(), mirror, appCoreLogger.Logger)
	orch := automation.NewOrchestrator(cfg, catalog, factory, monitor,
		listingStore, artifactStore, publisher, summaries, limiter, appCoreLogger.Logger)
	glog.Info("自动化编排器初始化成功")

	automationHandler := handler.NewAutomationHandler(cfg, orch, storageManager, applicantProfile)
	glog.Info("AutomationHandler初始化成功")

	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	)
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		glog.CtxInfof(c, "Request: %s %s", string(ctx.Method()), string(ctx.Path()))
		ctx.Next(c)
		glog.CtxInfof(c, "Response: status %d", ctx.Response.StatusCode())
	})

	router.RegisterRoutes(h, cfg, automationHandler)
	glog.Info("HTTP路由注册成功")

	glog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)

	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("HTTP服务器关闭失败: %v", err)
	}

	// 丢弃所有挂起中断并关闭残留浏览器会话
	orch.Shutdown(shutdownCtx)
	glog.Info("浏览器会话已全部清理")

	if storageManager.MinIO != nil {
		if err := storageManager.MinIO.CleanCache(); err != nil {
			glog.Warnf("清理申请材料缓存失败: %v", err)
		}
	}
	glog.Info("优雅退出完成")
}

func initLogger() {
	logFilePath := "logs/app.log"
	if err := os.MkdirAll("logs", 0755); err != nil {
		log.Fatalf("无法创建日志目录: %v", err)
	}
	fileWriter, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("无法打开日志文件 %s: %v", logFilePath, err)
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}

	multiWriter := zerolog.MultiLevelWriter(consoleWriter, fileWriter)

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	zerolog.TimeFieldFormat = "15:04:05"

	logger := zerolog.New(multiWriter).With().Timestamp().Caller().Logger()

	appCoreLogger.Logger = logger
	zlog.Logger = logger

	// Hertz 的 glog 也走同一个 zerolog 实例
	hertzCompatibleLogger := hertzadapter.From(appCoreLogger.Logger)
	glog.SetLogger(hertzCompatibleLogger)
	glog.SetLevel(glog.LevelInfo)
}
