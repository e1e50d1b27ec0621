package importer

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/stockbook/internal/shared"
)

func workbook(t *testing.T, rows ...[]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := r
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	return &buf
}

func TestParseRows(t *testing.T) {
	buf := workbook(t,
		[]interface{}{"Quantity", "Product", "Price"},
		[]interface{}{24, "Lager", "2.50"},
		[]interface{}{"", "", ""},
		[]interface{}{0, "Stout", "3"},
	)
	rows, err := Parse(buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "Lager", rows[0].Product)
	require.Equal(t, 2, rows[0].Line)
	require.Equal(t, int64(24), rows[0].Quantity)
	require.True(t, rows[0].Amount.Equal(decimal.RequireFromString("60")))
	require.Equal(t, int64(0), rows[1].Quantity)
}

func TestParseRejectsBadInput(t *testing.T) {
	_, err := Parse(workbook(t, []interface{}{"Product", "Price"}, []interface{}{"Lager", "1"}))
	require.ErrorIs(t, err, shared.ErrInvalid)

	_, err = Parse(workbook(t, []interface{}{"Product", "Price", "Quantity"}, []interface{}{"Lager", "1", "-4"}))
	require.ErrorIs(t, err, shared.ErrInvalid)

	_, err = Parse(bytes.NewBufferString("not a workbook"))
	require.ErrorIs(t, err, shared.ErrInvalid)
}

func TestTemplateParsesAsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Template(&buf))
	_, err := Parse(&buf)
	require.ErrorIs(t, err, shared.ErrInvalid)
}
