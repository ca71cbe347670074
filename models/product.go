package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var ErrProductNotConfigured = errors.New("product not configured")

// Product carries the serialization metadata of a product and which packaging layers get printed.
type Product struct {
	ID                 string    `gorm:"primaryKey;size:36" json:"id"`
	Name               string    `gorm:"size:255;not null" json:"name"`
	Ndc                string    `gorm:"size:50" json:"ndc"`
	Gtin               string    `gorm:"size:20" json:"gtin"`
	RegistrationNo     string    `gorm:"size:100" json:"registration_no"`
	CountryId          string    `gorm:"size:36;index" json:"country_id"`
	ProductNumberPrint bool      `gorm:"not null;default:false" json:"product_number_print"`
	FirstLayerPrint    bool      `gorm:"not null;default:false" json:"first_layer_print"`
	SecondLayerPrint   bool      `gorm:"not null;default:false" json:"second_layer_print"`
	ThirdLayerPrint    bool      `gorm:"not null;default:false" json:"third_layer_print"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PrintsLevel reports whether codes are printed for the given layer. Pallet level is never a layer.
func (p *Product) PrintsLevel(level PackagingLevel) bool {
	switch level {
	case PackagingLevelUnit:
		return p.ProductNumberPrint
	case PackagingLevelFirstLayer:
		return p.FirstLayerPrint
	case PackagingLevelSecondLayer:
		return p.SecondLayerPrint
	case PackagingLevelThirdLayer:
		return p.ThirdLayerPrint
	}
	return false
}

// ProductGenerationId maps a product to the generation id its dynamic tables are named after.
type ProductGenerationId struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	ProductId    string    `gorm:"size:36;not null;uniqueIndex" json:"product_id"`
	GenerationId string    `gorm:"size:32;not null;index" json:"generation_id"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Country holds the country-specific code template.
type Country struct {
	ID            string `gorm:"primaryKey;size:36" json:"id"`
	Name          string `gorm:"size:100;not null" json:"name"`
	CodeStructure string `gorm:"size:1000;not null" json:"code_structure"`
}

func GetProduct(tx *gorm.DB, productId string) (*Product, error) {
	var product Product
	if err := tx.Where("id = ?", productId).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product %s not found", ErrProductNotConfigured, productId)
		}
		return nil, err
	}
	return &product, nil
}

func GetProductGenerationId(tx *gorm.DB, productId string) (string, error) {
	var pg ProductGenerationId
	if err := tx.Where("product_id = ?", productId).First(&pg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: no generation id for product %s", ErrProductNotConfigured, productId)
		}
		return "", err
	}
	return pg.GenerationId, nil
}

// GetAllGenerationIds lists every distinct generation id, sorted.
func GetAllGenerationIds(tx *gorm.DB) ([]string, error) {
	var ids []string
	err := tx.Model(&ProductGenerationId{}).
		Distinct("generation_id").
		Order("generation_id").
		Pluck("generation_id", &ids).Error
	return ids, err
}

func GetCountry(tx *gorm.DB, countryId string) (*Country, error) {
	var country Country
	if err := tx.Where("id = ?", countryId).First(&country).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: country %s not found", ErrProductNotConfigured, countryId)
		}
		return nil, err
	}
	return &country, nil
}
