package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yonid4/job-postings-scraper-sub002/internal/automation"
)

// TestLoadProfile 完整yaml档案的加载
func TestLoadProfile(t *testing.T) {
	content := `
full_name: "Jordan Smith"
email: "jordan@example.org"
phone: "+49 170 0000000"
location: "Berlin"
resume_object_key: "resumes/jordan.pdf"
auto_apply_enabled: true
max_applications_per_session: 5
skip_complex_applications: true
default_answers:
  relocation: "Yes"
  years_of_experience: "6"
`
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p, err := Load(path)

	require.NoError(t, err, "加载合法档案不应出错")
	assert.Equal(t, "Jordan Smith", p.FullName)
	assert.Equal(t, "jordan@example.org", p.Email)
	assert.Equal(t, "resumes/jordan.pdf", p.ResumeObjectKey)
	assert.True(t, p.AutoApplyEnabled)
	assert.True(t, p.SkipComplexApplications)
	assert.Equal(t, 5, p.MaxApplicationsPerSession)
	assert.Equal(t, "Yes", p.DefaultAnswers[automation.CategoryRelocation])
	assert.Equal(t, "6", p.DefaultAnswers[automation.CategoryYearsExperience])
}

// TestLoadProfileMissingFile 文件不存在时报错
func TestLoadProfileMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/profile.yaml")
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err, "空路径应报错")
}

// TestValidateProfile 基本完整性检查
func TestValidateProfile(t *testing.T) {
	valid := &automation.ApplicantProfile{FullName: "Jane", Email: "jane@example.com"}
	assert.NoError(t, Validate(valid))

	// 简历材料允许缺失
	assert.NoError(t, Validate(&automation.ApplicantProfile{FullName: "Jane", Email: "jane@example.com", ResumePath: ""}))

	assert.Error(t, Validate(&automation.ApplicantProfile{Email: "jane@example.com"}), "缺姓名应报错")
	assert.Error(t, Validate(&automation.ApplicantProfile{FullName: "Jane"}), "缺邮箱应报错")
	assert.Error(t, Validate(&automation.ApplicantProfile{
		FullName: "Jane", Email: "jane@example.com", MaxApplicationsPerSession: -1,
	}), "负数申请上限应报错")
}

// TestCreateSample 示例档案可生成、可回读，且拒绝覆盖
func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.yaml")

	require.NoError(t, CreateSample(path))

	p, err := Load(path)
	require.NoError(t, err, "生成的示例档案必须能通过加载校验")
	assert.NotEmpty(t, p.FullName)
	assert.NotEmpty(t, p.DefaultAnswers)

	err = CreateSample(path)
	assert.Error(t, err, "已存在的文件不应被覆盖")
}
