package models

import (
	"errors"

	"gorm.io/gorm"
)

const GlobalSettingCrmURL = "crm_url"

// GlobalSetting is a key/value row of application-wide configuration.
type GlobalSetting struct {
	Key   string `gorm:"primaryKey;size:100" json:"key"`
	Value string `gorm:"type:text" json:"value"`
}

// GetGlobalSetting returns ("", false, nil) when the key is absent.
func GetGlobalSetting(tx *gorm.DB, key string) (string, bool, error) {
	var s GlobalSetting
	if err := tx.Where(&GlobalSetting{Key: key}).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return s.Value, true, nil
}
