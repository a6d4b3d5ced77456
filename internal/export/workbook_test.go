package export

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkbookWriteAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.xlsx")

	wb, err := OpenWorkbook(path)
	require.NoError(t, err)

	created, err := wb.UseSheet("listings")
	require.NoError(t, err)
	assert.True(t, created)

	require.NoError(t, wb.WriteRow(0, 0, []Cell{String("id"), String("name"), String("rent")}))
	require.NoError(t, wb.WriteRow(1, 0, []Cell{String("100___1"), String("サンプルハイツ"), Number(250000)}))
	require.NoError(t, wb.WriteRow(2, 0, []Cell{String("200___5"), String("テストレジデンス"), Number(390000)}))
	require.NoError(t, wb.Flush())

	// Reopen to prove the data survived the save.
	wb, err = OpenWorkbook(path)
	require.NoError(t, err)
	created, err = wb.UseSheet("listings")
	require.NoError(t, err)
	assert.False(t, created, "sheet persisted across reopen")

	ids, err := wb.ReadColumn("id")
	require.NoError(t, err)
	assert.Equal(t, []string{"100___1", "200___5"}, ids)

	names, err := wb.ReadColumn("name")
	require.NoError(t, err)
	assert.Equal(t, []string{"サンプルハイツ", "テストレジデンス"}, names)
}

func TestWorkbookReadColumnStopsAtGap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.xlsx")
	wb, err := OpenWorkbook(path)
	require.NoError(t, err)
	_, err = wb.UseSheet("listings")
	require.NoError(t, err)

	require.NoError(t, wb.WriteRow(0, 0, []Cell{String("id")}))
	require.NoError(t, wb.WriteRow(1, 0, []Cell{String("100___1")}))
	// Row 2 left empty.
	require.NoError(t, wb.WriteRow(3, 0, []Cell{String("200___5")}))

	ids, err := wb.ReadColumn("id")
	require.NoError(t, err)
	assert.Equal(t, []string{"100___1"}, ids)
}

func TestWorkbookReadColumnMissingHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.xlsx")
	wb, err := OpenWorkbook(path)
	require.NoError(t, err)
	_, err = wb.UseSheet("listings")
	require.NoError(t, err)
	require.NoError(t, wb.WriteRow(0, 0, []Cell{String("id")}))

	_, err = wb.ReadColumn("payload")

	assert.Error(t, err)
}

func TestWorkbookClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.xlsx")
	wb, err := OpenWorkbook(path)
	require.NoError(t, err)
	_, err = wb.UseSheet("listings")
	require.NoError(t, err)

	require.NoError(t, wb.WriteRow(0, 0, []Cell{String("id")}))
	require.NoError(t, wb.WriteRow(1, 0, []Cell{String("100___1")}))

	require.NoError(t, wb.Clear())

	ids, err := wb.ReadColumn("id")
	require.NoError(t, err, "cleared sheet reads as empty")
	assert.Empty(t, ids)
}

func TestWorkbookClearWithoutSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.xlsx")
	wb, err := OpenWorkbook(path)
	require.NoError(t, err)

	assert.Error(t, wb.Clear())
	assert.Error(t, wb.WriteRow(0, 0, []Cell{String("x")}))
}
