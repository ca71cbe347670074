package workflow

import (
	"context"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/codepool/codetemplate"
	"bitbucket.org/mmdatafocus/codepool/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSsccPrefix = "89041349"

func ssccOpts(dryRun bool) SsccOptions {
	return SsccOptions{Prefix: testSsccPrefix, ExtensionDigit: 3, TxTimeout: time.Minute, DryRun: dryRun, ChunkSize: 2}
}

func seedSscc(t *testing.T, db *gorm.DB, code string, createdAt time.Time, mutate func(*models.SsccCode)) string {
	t.Helper()
	row := models.SsccCode{
		ID:        uuid.NewString(),
		SsccCode:  code,
		PackLevel: int(models.PackagingLevelPallet),
		ProductId: testProductId,
		BatchId:   testBatchId,
		CreatedAt: createdAt,
	}
	if mutate != nil {
		mutate(&row)
	}
	require.NoError(t, db.Create(&row).Error)
	return row.ID
}

func expectedSscc(t *testing.T, counter int64) string {
	t.Helper()
	base, err := codetemplate.SSCCBase(testSsccPrefix)
	require.NoError(t, err)
	code, err := codetemplate.SSCC(3, base+counter)
	require.NoError(t, err)
	return code
}

func TestSsccSequencer_ResequenceAssignsDistinctValidCodes(t *testing.T) {
	db := newTestDB(t)
	placeholder := codetemplate.SSCCPlaceholder(3, testSsccPrefix)
	t0 := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, seedSscc(t, db, placeholder, t0.Add(time.Duration(i)*time.Minute), nil))
	}

	out, err := NewSsccSequencer(db, quietLogger()).Resequence(context.Background(), ssccOpts(false))
	require.NoError(t, err)
	assert.Equal(t, "389041349", out.Pattern)
	assert.Equal(t, 5, out.Pending)
	assert.EqualValues(t, 0, out.StartCounter)

	seen := map[string]bool{}
	var prev int64
	for i, id := range ids {
		var row models.SsccCode
		require.NoError(t, db.First(&row, "id = ?", id).Error)
		assert.Len(t, row.SsccCode, codetemplate.SSCCLength)
		assert.Equal(t, expectedSscc(t, int64(i+1)), row.SsccCode)
		ext, body, err := codetemplate.ParseSSCC(row.SsccCode)
		require.NoError(t, err)
		assert.Equal(t, 3, ext)
		assert.Greater(t, body, prev)
		prev = body
		assert.False(t, seen[row.SsccCode])
		seen[row.SsccCode] = true
	}
	assert.Equal(t, "389041349000000010", expectedSscc(t, 1))
}

func TestSsccSequencer_ResumesAfterCommittedCode(t *testing.T) {
	db := newTestDB(t)
	t0 := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	seedSscc(t, db, expectedSscc(t, 7), t0, func(r *models.SsccCode) { r.Printed = true })
	seedSscc(t, db, expectedSscc(t, 3), t0, func(r *models.SsccCode) { r.IsAggregated = true })
	pending := seedSscc(t, db, codetemplate.SSCCPlaceholder(3, testSsccPrefix), t0.Add(time.Minute), nil)
	// a previously assigned but uncommitted code is renumbered too
	reissued := seedSscc(t, db, expectedSscc(t, 20), t0.Add(2*time.Minute), nil)

	out, err := NewSsccSequencer(db, quietLogger()).Resequence(context.Background(), ssccOpts(false))
	require.NoError(t, err)
	assert.EqualValues(t, 7, out.StartCounter)
	require.Len(t, out.Assignments, 2)

	var pendingRow, reissuedRow models.SsccCode
	require.NoError(t, db.First(&pendingRow, "id = ?", pending).Error)
	assert.Equal(t, expectedSscc(t, 8), pendingRow.SsccCode)
	require.NoError(t, db.First(&reissuedRow, "id = ?", reissued).Error)
	assert.Equal(t, expectedSscc(t, 9), reissuedRow.SsccCode)

	// committed rows keep their codes
	var printed int64
	require.NoError(t, db.Model(&models.SsccCode{}).Where("sscc_code = ?", expectedSscc(t, 7)).Count(&printed).Error)
	assert.EqualValues(t, 1, printed)
}

func TestSsccSequencer_DryRunLeavesRows(t *testing.T) {
	db := newTestDB(t)
	placeholder := codetemplate.SSCCPlaceholder(3, testSsccPrefix)
	id := seedSscc(t, db, placeholder, time.Now(), nil)

	out, err := NewSsccSequencer(db, quietLogger()).Resequence(context.Background(), ssccOpts(true))
	require.NoError(t, err)
	assert.True(t, out.DryRun)
	require.Len(t, out.Assignments, 1)
	assert.Equal(t, expectedSscc(t, 1), out.Assignments[0].NewCode)

	var row models.SsccCode
	require.NoError(t, db.First(&row, "id = ?", id).Error)
	assert.Equal(t, placeholder, row.SsccCode)
}

func TestSsccSequencer_IgnoresOtherExtensionDigits(t *testing.T) {
	db := newTestDB(t)
	other, err := codetemplate.SSCC(4, 8904134900000050)
	require.NoError(t, err)
	id := seedSscc(t, db, other, time.Now(), nil)

	out, err := NewSsccSequencer(db, quietLogger()).Resequence(context.Background(), ssccOpts(false))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Pending)

	var row models.SsccCode
	require.NoError(t, db.First(&row, "id = ?", id).Error)
	assert.Equal(t, other, row.SsccCode)
}

func TestSsccSequencer_InvalidPrefix(t *testing.T) {
	db := newTestDB(t)
	opts := ssccOpts(false)
	opts.Prefix = ""
	_, err := NewSsccSequencer(db, quietLogger()).Resequence(context.Background(), opts)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestSequenceCodes_PrefixOverflow(t *testing.T) {
	opts := SsccOptions{Prefix: "123456789012345", ExtensionDigit: 3}
	base, err := codetemplate.SSCCBase(opts.Prefix)
	require.NoError(t, err)

	codes, err := sequenceCodes(opts, base, 0, 9)
	require.NoError(t, err)
	assert.Len(t, codes, 9)

	_, err = sequenceCodes(opts, base, 0, 10)
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestSsccSequencer_FillThenResequence(t *testing.T) {
	db := newTestDB(t)
	seedCatalog(t, db, testProductId, testBatchId, testGenerationId)
	reqIds := []string{
		seedRequest(t, db, testBatchId, testProductId, models.PackagingLevelPallet, 3),
		seedRequest(t, db, testBatchId, testProductId, models.PackagingLevelPallet, 2),
	}
	seedSscc(t, db, expectedSscc(t, 1), time.Now(), func(r *models.SsccCode) { r.Printed = true })

	s := NewSsccSequencer(db, quietLogger())

	dry, err := s.Fill(context.Background(), ssccOpts(true))
	require.NoError(t, err)
	require.Len(t, dry, 1)
	assert.EqualValues(t, 4, dry[0].Inserted)
	n, err := models.CountSsccCodes(db, testBatchId, testProductId)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	outcomes, err := s.Fill(context.Background(), ssccOpts(false))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	o := outcomes[0]
	require.NoError(t, o.Err)
	assert.EqualValues(t, 5, o.Requested)
	assert.EqualValues(t, 1, o.Generated)
	assert.EqualValues(t, 4, o.Inserted)

	var rows []models.SsccCode
	require.NoError(t, db.Where("printed = ?", false).Find(&rows).Error)
	require.Len(t, rows, 4)
	for _, r := range rows {
		assert.Equal(t, codetemplate.SSCCPlaceholder(3, testSsccPrefix), r.SsccCode)
		assert.Equal(t, "ph-"+testBatchId, r.ProductHistoryId)
		assert.Equal(t, "loc-1", r.LocationId)
		assert.Contains(t, reqIds, r.CodeGenId)
		assert.Equal(t, int(models.PackagingLevelPallet), r.PackLevel)
	}

	// a second fill is a no-op
	again, err := s.Fill(context.Background(), ssccOpts(false))
	require.NoError(t, err)
	assert.EqualValues(t, 0, again[0].Inserted)

	out, err := s.Resequence(context.Background(), ssccOpts(false))
	require.NoError(t, err)
	assert.Equal(t, 4, out.Pending)
	assert.EqualValues(t, 1, out.StartCounter)
	assert.Equal(t, expectedSscc(t, 2), out.Assignments[0].NewCode)
	assert.Equal(t, expectedSscc(t, 5), out.Assignments[3].NewCode)
}
