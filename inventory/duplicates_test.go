package inventory

import (
	"testing"

	"bitbucket.org/mmdatafocus/codepool/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_DuplicateQueries(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(0)
	table := "gyxt1_codes"
	require.NoError(t, s.Create(db, table))

	_, err := s.BulkInsert(db, table, []models.RenderedCode{
		newRow("b1", 1, "A"),
		newRow("b1", 2, "A"),
		newRow("b1", 3, "B"),
		newRow("b2", 4, "B"),
		newRow("b2", 5, "C"),
		newRow("b3", 6, "C", printed),
		newRow("b4", 7, "D"),
	})
	require.NoError(t, err)

	batches, err := s.DuplicateBatches(db, table)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b2", "b3"}, batches)

	dups, err := s.InBatchDuplicates(db, table, "b1")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, serials(dups))

	shared, err := s.SharedCodes(db, table, "b1", "b2")
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, shared)

	shared, err = s.SharedCodes(db, table, "b1", "b3")
	require.NoError(t, err)
	assert.Empty(t, shared)

	// C is shared by b2 and b3 but b3's copy is printed, so only B counts
	codes, err := s.CrossBatchCodes(db, table, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, codes)

	codes, err = s.CrossBatchCodes(db, table, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, codes)
}
