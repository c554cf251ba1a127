package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// JobListing 职位信息表。SourceID是目标站点分配的职位ID，
// 同一职位多次提取时按SourceID幂等更新
type JobListing struct {
	SourceID    string `gorm:"type:varchar(64);primaryKey"`
	URL         string `gorm:"type:varchar(1024);not null"`
	Title       string `gorm:"type:varchar(255);not null;index:idx_listings_title"`
	Company     string `gorm:"type:varchar(255);index:idx_listings_company"`
	Location    string `gorm:"type:varchar(255)"`
	Description string `gorm:"type:text"`

	RequirementsJSON     datatypes.JSON `gorm:"type:json"`
	ResponsibilitiesJSON datatypes.JSON `gorm:"type:json"`
	BenefitsJSON         datatypes.JSON `gorm:"type:json"`

	SalaryMin      int    `gorm:"type:int"`
	SalaryMax      int    `gorm:"type:int"`
	SalaryCurrency string `gorm:"type:varchar(8)"`

	EmploymentType  string `gorm:"type:varchar(32)"`
	Seniority       string `gorm:"type:varchar(32)"`
	RemoteType      string `gorm:"type:varchar(16)"`
	WorkArrangement string `gorm:"type:varchar(16)"`

	// 为空表示只能走站内引导式申请
	ExternalApplicationURL string `gorm:"type:varchar(1024)"`

	PostedAt      *time.Time `gorm:"type:datetime(6)"`
	ScrapedAt     time.Time  `gorm:"type:datetime(6)"`
	LastUpdatedAt time.Time  `gorm:"type:datetime(6)"`
	CreatedAt     time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt     time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (JobListing) TableName() string {
	return "job_listings"
}

// ApplicationRecord 申请结果记录表。每次引导式申请落一条，包括策略放弃
type ApplicationRecord struct {
	RecordID       uint64         `gorm:"primaryKey;autoIncrement"`
	ListingID      string         `gorm:"type:varchar(64);not null;index:idx_applications_listing_id"`
	ListingURL     string         `gorm:"type:varchar(1024)"`
	Status         string         `gorm:"type:varchar(32);not null;index:idx_applications_status"`
	StepsCompleted int            `gorm:"type:int"`
	UnansweredJSON datatypes.JSON `gorm:"type:json"`
	Message        string         `gorm:"type:text"`
	CompletedAt    time.Time      `gorm:"type:datetime(6);index:idx_applications_completed_at"`
	CreatedAt      time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
}

func (ApplicationRecord) TableName() string {
	return "application_records"
}

// FavoriteListing 收藏表。搜索结果返回时按这张表补收藏标记
type FavoriteListing struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	SourceID  string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_favorites_source_id_unique"`
	CreatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
}

func (FavoriteListing) TableName() string {
	return "favorite_listings"
}

// StringSliceToJSON 把字符串切片转为datatypes.JSON，空切片转为NULL
func StringSliceToJSON(values []string) (datatypes.JSON, error) {
	if len(values) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

// JSONToStringSlice StringSliceToJSON的逆操作，NULL转为nil切片
func JSONToStringSlice(data datatypes.JSON) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	return values, nil
}
