package workflow

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/codepool/config"
	"bitbucket.org/mmdatafocus/codepool/inventory"
	"bitbucket.org/mmdatafocus/codepool/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testProductId    = "prod-1"
	testBatchId      = "batch-1"
	testGenerationId = "GYXT"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, config.InstallPlugins(db))
	require.NoError(t, models.MigrateTable(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type productOpt func(*models.Product)

func withoutLayer(level models.PackagingLevel) productOpt {
	return func(p *models.Product) {
		switch level {
		case models.PackagingLevelUnit:
			p.ProductNumberPrint = false
		case models.PackagingLevelFirstLayer:
			p.FirstLayerPrint = false
		case models.PackagingLevelSecondLayer:
			p.SecondLayerPrint = false
		case models.PackagingLevelThirdLayer:
			p.ThirdLayerPrint = false
		}
	}
}

// seedCatalog creates one country, location, product (printing every layer unless opts say otherwise),
// generation id and batch.
func seedCatalog(t *testing.T, db *gorm.DB, productId, batchId, generationId string, opts ...productOpt) {
	t.Helper()
	require.NoError(t, db.FirstOrCreate(&models.Country{ID: "mm", Name: "Myanmar", CodeStructure: "01 GTIN 21 uniqueCode"}).Error)
	require.NoError(t, db.FirstOrCreate(&models.Location{ID: "loc-1", Name: "Yangon plant"}).Error)

	p := models.Product{
		ID:                 productId,
		Name:               "Paracetamol 500mg",
		Gtin:               "00012345678901",
		CountryId:          "mm",
		ProductNumberPrint: true,
		FirstLayerPrint:    true,
		SecondLayerPrint:   true,
		ThirdLayerPrint:    true,
	}
	for _, o := range opts {
		o(&p)
	}
	require.NoError(t, db.Create(&p).Error)
	// gorm skips false on columns with a default, so apply the flags explicitly
	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", productId).Updates(map[string]interface{}{
		"product_number_print": p.ProductNumberPrint,
		"first_layer_print":    p.FirstLayerPrint,
		"second_layer_print":   p.SecondLayerPrint,
		"third_layer_print":    p.ThirdLayerPrint,
	}).Error)

	if generationId != "" {
		require.NoError(t, db.Create(&models.ProductGenerationId{ID: uuid.NewString(), ProductId: productId, GenerationId: generationId}).Error)
	}
	require.NoError(t, db.Create(&models.Batch{
		ID:                batchId,
		ProductId:         productId,
		BatchNo:           "B" + batchId,
		ManufacturingDate: time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC),
		ExpiryDate:        time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		LocationId:        "loc-1",
		ProductHistoryId:  "ph-" + batchId,
	}).Error)
}

func seedPool(t *testing.T, db *gorm.DB, n int) {
	t.Helper()
	var rows []models.CodesGenerated
	for i := 1; i <= n; i++ {
		rows = append(rows, models.CodesGenerated{Code: fmt.Sprintf("S%05d", i)})
	}
	require.NoError(t, db.Create(&rows).Error)
}

func seedRequest(t *testing.T, db *gorm.DB, batchId, productId string, level models.PackagingLevel, n int) string {
	t.Helper()
	req := models.CodeGenerationRequest{
		ID:                 uuid.NewString(),
		BatchId:            batchId,
		ProductId:          productId,
		PackagingHierarchy: level.Hierarchy(),
		LocationId:         "loc-1",
		NoOfCodes:          n,
		Status:             models.RequestStatusCompleted,
	}
	require.NoError(t, db.Create(&req).Error)
	return req.ID
}

func seedCodes(t *testing.T, db *gorm.DB, store *inventory.Store, table, batchId string, from, to int64, mutate func(*models.RenderedCode)) {
	t.Helper()
	var rows []models.RenderedCode
	for i := from; i <= to; i++ {
		r := models.RenderedCode{
			ID:          uuid.NewString(),
			SerialNo:    i,
			ProductId:   testProductId,
			BatchId:     batchId,
			UniqueCode:  fmt.Sprintf("GYXT1S%05d", i),
			LocationId:  "loc-1",
			CodeGenId:   "req",
			CountryCode: "x",
		}
		if mutate != nil {
			mutate(&r)
		}
		rows = append(rows, r)
	}
	_, err := store.BulkInsert(db, table, rows)
	require.NoError(t, err)
}

type fakeNotifier struct {
	notices []config.CodeRequestNotice
}

func (f *fakeNotifier) NotifyCodeRequest(_ context.Context, n config.CodeRequestNotice) (string, error) {
	f.notices = append(f.notices, n)
	return fmt.Sprintf("msg-%d", len(f.notices)), nil
}
