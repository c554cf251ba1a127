package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStringSliceJSONRoundTrip 字符串切片与JSON列的互转
func TestStringSliceJSONRoundTrip(t *testing.T) {
	values := []string{"Go", "Kubernetes", "gRPC"}

	data, err := StringSliceToJSON(values)
	require.NoError(t, err)
	require.NotNil(t, data)

	back, err := JSONToStringSlice(data)
	require.NoError(t, err)
	assert.Equal(t, values, back)
}

// TestStringSliceJSONEmpty 空切片存NULL，NULL读回空切片
func TestStringSliceJSONEmpty(t *testing.T) {
	data, err := StringSliceToJSON(nil)
	require.NoError(t, err)
	assert.Nil(t, data, "空切片应存为NULL而不是空数组")

	back, err := JSONToStringSlice(nil)
	require.NoError(t, err)
	assert.Empty(t, back)
}

// TestTableNames 表名固定，迁移和手工运维都依赖它
func TestTableNames(t *testing.T) {
	assert.Equal(t, "job_listings", JobListing{}.TableName())
	assert.Equal(t, "application_records", ApplicationRecord{}.TableName())
	assert.Equal(t, "favorite_listings", FavoriteListing{}.TableName())
}
