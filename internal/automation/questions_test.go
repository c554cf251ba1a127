package automation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMatchQuestionPriority relocation优先级高于remote_preference，
// "willing to relocate"不会被"remote"类关键词抢走
func TestMatchQuestionPriority(t *testing.T) {
	cat, ok := MatchQuestion("Are you willing to relocate?")
	require.True(t, ok)
	assert.Equal(t, CategoryRelocation, cat, "搬迁问题必须落入relocation类别")
}

// TestMatchQuestionCategories 逐类关键词匹配
func TestMatchQuestionCategories(t *testing.T) {
	cases := []struct {
		question string
		want     QuestionCategory
	}{
		{"Are you legally authorized to work in the US?", CategoryWorkAuthorization},
		{"Will you now or in the future require sponsorship?", CategoryWorkAuthorization},
		{"How many years of experience do you have with Go?", CategoryYearsExperience},
		{"What are your salary expectations?", CategorySalaryExpectation},
		{"What is your notice period?", CategoryNoticePeriod},
		{"When can you start?", CategoryStartDate},
		{"Do you have a bachelor's degree?", CategoryEducation},
		{"Are you open to remote work?", CategoryRemotePreference},
	}
	for _, tc := range cases {
		cat, ok := MatchQuestion(tc.question)
		require.True(t, ok, "问题应命中某个类别: %s", tc.question)
		assert.Equal(t, tc.want, cat, "问题类别与预期不符: %s", tc.question)
	}
}

// TestMatchQuestionCaseInsensitive 匹配大小写不敏感
func TestMatchQuestionCaseInsensitive(t *testing.T) {
	cat, ok := MatchQuestion("ARE YOU WILLING TO RELOCATE TO MUNICH?")
	require.True(t, ok)
	assert.Equal(t, CategoryRelocation, cat)
}

// TestMatchQuestionNoMatch 未命中与命中是两种结果
func TestMatchQuestionNoMatch(t *testing.T) {
	_, ok := MatchQuestion("What is your favorite color?")
	assert.False(t, ok, "无关问题不应命中任何类别")

	_, ok = MatchQuestion("   ")
	assert.False(t, ok, "空白问题不应命中任何类别")
}

// TestAnswerForQuestion 档案默认答案的查找
func TestAnswerForQuestion(t *testing.T) {
	profile := &ApplicantProfile{
		DefaultAnswers: map[QuestionCategory]string{
			CategoryRelocation:      "Yes",
			CategoryYearsExperience: "6",
		},
	}

	answer, ok := profile.AnswerForQuestion("Are you willing to relocate?")
	require.True(t, ok)
	assert.Equal(t, "Yes", answer)

	// 命中类别但档案无答案
	_, ok = profile.AnswerForQuestion("What are your salary expectations?")
	assert.False(t, ok, "档案里没有答案的类别应返回false")

	// 未命中类别
	_, ok = profile.AnswerForQuestion("Describe your hobbies")
	assert.False(t, ok)
}
