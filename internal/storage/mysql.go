package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/yonid4/job-postings-scraper-sub002/internal/automation"
	"github.com/yonid4/job-postings-scraper-sub002/internal/config"
	"github.com/yonid4/job-postings-scraper-sub002/internal/storage/models"
	"github.com/yonid4/job-postings-scraper-sub002/internal/tracing"
)

var mysqlTracer = otel.Tracer("job-agent/storage/mysql")

// GormTracingPlugin 是一个GORM插件，用于向OpenTelemetry中添加数据库操作的追踪点
type GormTracingPlugin struct {
	tracer         trace.Tracer
	dbName         string
	dbSystem       string
	disableErrSkip bool
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}

	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}

	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}

	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}

	return nil
}

// before 返回在GORM操作之前执行的回调函数
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		if p.disableErrSkip && db.Statement.SkipHooks {
			return
		}

		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		spanName := fmt.Sprintf("%s %s", operation, tableName)
		opts := []trace.SpanStartOption{
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		}

		newCtx, span := p.tracer.Start(ctx, spanName, opts...)
		db.Statement.Context = context.WithValue(newCtx, "otel-span", span)
	}
}

// after 返回在GORM操作之后执行的回调函数
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value("otel-span").(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(
			attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
			attribute.String("db.statement", tracing.SafeSQL(db.Statement.SQL.String())),
		)

		// ErrRecordNotFound 是业务逻辑正常情况的一部分，不作为错误处理
		if db.Error != nil {
			if errors.Is(db.Error, gorm.ErrRecordNotFound) {
				span.SetAttributes(attribute.String("error.type", "record_not_found"))
				span.SetStatus(codes.Ok, "record not found")
			} else {
				span.SetAttributes(attribute.String("error.type", "database_error"))
				span.RecordError(db.Error)
				span.SetStatus(codes.Error, db.Error.Error())
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}

// NewGormTracingPlugin 创建一个新的GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer:         mysqlTracer,
		dbName:         dbName,
		dbSystem:       "mysql",
		disableErrSkip: true,
	}
}

// MySQL 提供关系数据库功能
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// 确保MySQL实现了编排器需要的持久化面
var _ automation.ListingStore = (*MySQL)(nil)

// NewMySQL 创建MySQL客户端
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	var logLevel logger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = logger.Silent
	case 2:
		logLevel = logger.Error
	case 3:
		logLevel = logger.Warn
	case 4:
		logLevel = logger.Info
	default:
		logLevel = logger.Info
	}

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	m := &MySQL{
		db:  db,
		cfg: cfg,
	}

	tracingPlugin := NewGormTracingPlugin(cfg.Database)
	if err := db.Use(tracingPlugin); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	if cfg.AutoMigrate {
		if err := m.autoMigrateSchema(); err != nil {
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				sqlDB.Close()
			}
			return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
		}
	}

	log.Println("成功连接到MySQL")
	return m, nil
}

// autoMigrateSchema 使用GORM自动迁移数据库表结构
func (m *MySQL) autoMigrateSchema() error {
	currentLogger := m.db.Logger

	// 迁移期间关闭SQL日志打印
	silentLogger := logger.New(
		log.New(log.Writer(), "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	silentDB := m.db.Session(&gorm.Session{Logger: silentLogger})

	err := silentDB.AutoMigrate(
		&models.JobListing{},
		&models.ApplicationRecord{},
		&models.FavoriteListing{},
	)

	m.db = m.db.Session(&gorm.Session{Logger: currentLogger})

	if err != nil {
		return fmt.Errorf("GORM自动迁移失败: %w", err)
	}
	log.Println("GORM数据库结构迁移成功")
	return nil
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// SaveListing 幂等落库：主键冲突时更新全部业务字段。
// 同一职位被不同搜索反复提取是常态，调用方不需要关心是插入还是更新
func (m *MySQL) SaveListing(ctx context.Context, listing *automation.Listing) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.SaveListing",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		semconv.DBSystemMySQL,
		attribute.String("db.sql.table", "job_listings"),
		attribute.String("listing.source_id", listing.SourceID),
	)

	row, err := listingToModel(listing)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("职位转换失败: %w", err)
	}

	err = m.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_id"}},
			UpdateAll: true,
		}).Create(row).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// GetListing 按SourceID查询。未找到返回nil而不是错误
func (m *MySQL) GetListing(ctx context.Context, sourceID string) (*automation.Listing, error) {
	var row models.JobListing
	err := m.db.WithContext(ctx).Where("source_id = ?", sourceID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return modelToListing(&row)
}

// SaveApplicationRecord 记录一次申请结果
func (m *MySQL) SaveApplicationRecord(ctx context.Context, outcome *automation.ApplicationOutcome) error {
	unansweredJSON, err := models.StringSliceToJSON(outcome.UnansweredQuestions)
	if err != nil {
		return fmt.Errorf("未回答问题序列化失败: %w", err)
	}
	record := &models.ApplicationRecord{
		ListingID:      outcome.ListingID,
		ListingURL:     outcome.ListingURL,
		Status:         string(outcome.Status),
		StepsCompleted: outcome.StepsCompleted,
		UnansweredJSON: unansweredJSON,
		Message:        outcome.Message,
		CompletedAt:    outcome.CompletedAt,
	}
	return m.db.WithContext(ctx).Create(record).Error
}

// IsFavorited 该职位是否在收藏表中
func (m *MySQL) IsFavorited(ctx context.Context, sourceID string) (bool, error) {
	var count int64
	err := m.db.WithContext(ctx).Model(&models.FavoriteListing{}).
		Where("source_id = ?", sourceID).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AddFavorite 收藏职位，重复收藏幂等
func (m *MySQL) AddFavorite(ctx context.Context, sourceID string) error {
	return m.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_id"}},
			DoNothing: true,
		}).Create(&models.FavoriteListing{SourceID: sourceID}).Error
}

// RemoveFavorite 取消收藏
func (m *MySQL) RemoveFavorite(ctx context.Context, sourceID string) error {
	return m.db.WithContext(ctx).
		Where("source_id = ?", sourceID).
		Delete(&models.FavoriteListing{}).Error
}

// ListApplicationRecords 按职位查询申请历史，按完成时间倒序
func (m *MySQL) ListApplicationRecords(ctx context.Context, listingID string, limit int) ([]models.ApplicationRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var records []models.ApplicationRecord
	err := m.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("completed_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// listingToModel 领域对象转数据库行
func listingToModel(l *automation.Listing) (*models.JobListing, error) {
	requirements, err := models.StringSliceToJSON(l.Requirements)
	if err != nil {
		return nil, err
	}
	responsibilities, err := models.StringSliceToJSON(l.Responsibilities)
	if err != nil {
		return nil, err
	}
	benefits, err := models.StringSliceToJSON(l.Benefits)
	if err != nil {
		return nil, err
	}
	return &models.JobListing{
		SourceID:               l.SourceID,
		URL:                    l.URL,
		Title:                  l.Title,
		Company:                l.Company,
		Location:               l.Location,
		Description:            l.Description,
		RequirementsJSON:       requirements,
		ResponsibilitiesJSON:   responsibilities,
		BenefitsJSON:           benefits,
		SalaryMin:              l.SalaryMin,
		SalaryMax:              l.SalaryMax,
		SalaryCurrency:         l.SalaryCurrency,
		EmploymentType:         string(l.EmploymentType),
		Seniority:              string(l.Seniority),
		RemoteType:             string(l.RemoteType),
		WorkArrangement:        l.WorkArrangement,
		ExternalApplicationURL: l.ExternalApplicationURL,
		PostedAt:               l.PostedAt,
		ScrapedAt:              l.ScrapedAt,
		LastUpdatedAt:          l.LastUpdatedAt,
	}, nil
}

// modelToListing 数据库行转领域对象
func modelToListing(row *models.JobListing) (*automation.Listing, error) {
	requirements, err := models.JSONToStringSlice(row.RequirementsJSON)
	if err != nil {
		return nil, err
	}
	responsibilities, err := models.JSONToStringSlice(row.ResponsibilitiesJSON)
	if err != nil {
		return nil, err
	}
	benefits, err := models.JSONToStringSlice(row.BenefitsJSON)
	if err != nil {
		return nil, err
	}
	return &automation.Listing{
		SourceID:               row.SourceID,
		URL:                    row.URL,
		Title:                  row.Title,
		Company:                row.Company,
		Location:               row.Location,
		Description:            row.Description,
		Requirements:           requirements,
		Responsibilities:       responsibilities,
		Benefits:               benefits,
		SalaryMin:              row.SalaryMin,
		SalaryMax:              row.SalaryMax,
		SalaryCurrency:         row.SalaryCurrency,
		EmploymentType:         automation.EmploymentType(row.EmploymentType),
		Seniority:              automation.SeniorityLevel(row.Seniority),
		RemoteType:             automation.RemoteType(row.RemoteType),
		WorkArrangement:        row.WorkArrangement,
		ExternalApplicationURL: row.ExternalApplicationURL,
		PostedAt:               row.PostedAt,
		ScrapedAt:              row.ScrapedAt,
		LastUpdatedAt:          row.LastUpdatedAt,
	}, nil
}
