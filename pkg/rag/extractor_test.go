package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/paideia-labs/paideia/pkg/fault"
)

func TestExtractPages_PlainText(t *testing.T) {
	pages, err := ExtractPages("notes.txt", []byte("hello world"))
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, "hello world", pages[0].Text)
}

func TestExtractPages_EmptySource(t *testing.T) {
	_, err := ExtractPages("notes.txt", nil)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindCorruptSource))
}

func TestExtractPages_WhitespaceOnlySource(t *testing.T) {
	_, err := ExtractPages("notes.txt", []byte("   \n\t  "))
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindCorruptSource))
}

func TestExtractPages_UnsupportedFormat(t *testing.T) {
	_, err := ExtractPages("image.png", []byte{0x89, 0x50, 0x4e, 0x47})
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindCorruptSource))
}

func TestExtractPages_CorruptPDF(t *testing.T) {
	_, err := ExtractPages("broken.pdf", []byte("%PDF-1.4 but not really"))
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindCorruptSource))
}

func TestExtractPages_Xlsx(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "topic"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "binary trees"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	pages, err := ExtractPages("syllabus.xlsx", buf.Bytes())
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Contains(t, pages[0].Text, "topic")
	assert.Contains(t, pages[0].Text, "binary trees")
}
