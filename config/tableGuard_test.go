package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type guardedRow struct {
	ID   int `gorm:"primaryKey"`
	Name string
}

func TestTableGuardPlugin(t *testing.T) {
	d, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, d.Use(NewTableGuardPlugin()))
	require.NoError(t, d.Table("abc1_codes").AutoMigrate(&guardedRow{}))

	require.NoError(t, d.Table("abc1_codes").Create(&guardedRow{ID: 1, Name: "a"}).Error)

	var n int64
	require.NoError(t, d.Table("abc1_codes").Count(&n).Error)
	assert.EqualValues(t, 1, n)

	err = d.Table("ABC1_codes").Count(&n).Error
	assert.ErrorContains(t, err, "table guard")

	err = d.Table("abc-1_codes").Create(&guardedRow{ID: 2}).Error
	assert.ErrorContains(t, err, "table guard")
}
