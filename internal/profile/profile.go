package profile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yonid4/job-postings-scraper-sub002/internal/automation"
)

// Load 从yaml文件加载申请人档案。每次自动化运行加载一次，引擎只读
func Load(path string) (*automation.ApplicantProfile, error) {
	if path == "" {
		return nil, fmt.Errorf("档案文件路径不能为空")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取档案文件失败: %w", err)
	}

	var p automation.ApplicantProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("解析档案文件失败: %w", err)
	}

	if err := Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate 档案的基本完整性检查。
// 简历材料允许缺失——必填上传控件碰到缺失材料时由申请策略决定放弃方式
func Validate(p *automation.ApplicantProfile) error {
	if p.FullName == "" {
		return fmt.Errorf("档案缺少姓名")
	}
	if p.Email == "" {
		return fmt.Errorf("档案缺少邮箱")
	}
	if p.MaxApplicationsPerSession < 0 {
		return fmt.Errorf("max_applications_per_session 不能为负数")
	}
	return nil
}

// CreateSample 生成一份示例档案文件，已存在时拒绝覆盖
func CreateSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("文件 '%s' 已存在，不会覆盖", path)
	}

	sample := &automation.ApplicantProfile{
		FullName:                  "Jane Doe",
		Email:                     "jane.doe@example.com",
		Phone:                     "+1-555-0100",
		Location:                  "San Francisco, CA",
		ResumeObjectKey:           "resumes/jane-doe.pdf",
		CoverLetterText:           "I am excited to apply for this position.",
		AutoApplyEnabled:          true,
		MaxApplicationsPerSession: 10,
		SkipComplexApplications:   true,
		RequireManualReview:       false,
		DefaultAnswers: map[automation.QuestionCategory]string{
			automation.CategoryRelocation:        "Yes",
			automation.CategoryWorkAuthorization: "Yes, I am authorized to work in the US",
			automation.CategoryYearsExperience:   "5",
			automation.CategoryRemotePreference:  "Hybrid",
		},
	}

	data, err := yaml.Marshal(sample)
	if err != nil {
		return fmt.Errorf("序列化示例档案失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("写入示例档案文件 '%s' 失败: %w", path, err)
	}
	fmt.Printf("示例档案文件已创建: %s\n", path)
	return nil
}
