package importer

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/stockbook/internal/shared"
)

// Row is one product line of an opening-stock workbook.
type Row struct {
	Line     int             `validate:"gte=0"`
	Product  string          `validate:"required,max=200"`
	Price    decimal.Decimal `validate:"-"`
	Quantity int64           `validate:"gte=0"`
	Amount   decimal.Decimal `validate:"-"`
}

var columns = []string{"product", "price", "quantity", "amount"}

// Parse reads the active sheet. The first row is a header naming the
// product, price and quantity columns; amount is optional and defaults to
// price times quantity. Blank rows are skipped.
func Parse(r io.Reader) ([]Row, error) {
	const op = "importer: parse"
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, shared.Wrap(shared.KindInvalid, op, err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, shared.Wrap(shared.KindInvalid, op, err)
	}
	if len(rows) < 2 {
		return nil, shared.E(shared.KindInvalid, op, "workbook has no data rows")
	}
	idx, err := headerIndex(rows[0])
	if err != nil {
		return nil, err
	}

	var out []Row
	for i := 1; i < len(rows); i++ {
		line := i + 1
		cell := func(name string) string {
			c, ok := idx[name]
			if !ok || c >= len(rows[i]) {
				return ""
			}
			return strings.TrimSpace(rows[i][c])
		}
		name := cell("product")
		if name == "" {
			continue
		}
		row := Row{Line: line, Product: name}
		if row.Price, err = parseDecimal(cell("price")); err != nil {
			return nil, shared.E(shared.KindInvalid, op, "line %d: price: %v", line, err)
		}
		if q := cell("quantity"); q != "" {
			row.Quantity, err = strconv.ParseInt(q, 10, 64)
			if err != nil || row.Quantity < 0 {
				return nil, shared.E(shared.KindInvalid, op, "line %d: quantity %q", line, q)
			}
		}
		if a := cell("amount"); a != "" {
			if row.Amount, err = parseDecimal(a); err != nil {
				return nil, shared.E(shared.KindInvalid, op, "line %d: amount: %v", line, err)
			}
		} else {
			row.Amount = row.Price.Mul(decimal.NewFromInt(row.Quantity))
		}
		if row.Price.IsNegative() || row.Amount.IsNegative() {
			return nil, shared.E(shared.KindInvalid, op, "line %d: negative money", line)
		}
		out = append(out, row)
	}
	if len(out) == 0 {
		return nil, shared.E(shared.KindInvalid, op, "workbook has no product rows")
	}
	return out, nil
}

func headerIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(columns))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		for _, c := range columns {
			if key == c {
				idx[c] = i
			}
		}
	}
	for _, required := range columns[:3] {
		if _, ok := idx[required]; !ok {
			return nil, shared.E(shared.KindInvalid, "importer: parse", "missing %q column", required)
		}
	}
	return idx, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
}

// Template writes an empty workbook with the expected header.
func Template(w io.Writer) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	header := []interface{}{"Product", "Price", "Quantity", "Amount"}
	if err := f.SetSheetRow("Sheet1", "A1", &header); err != nil {
		return fmt.Errorf("importer: template: %w", err)
	}
	_, err := f.WriteTo(w)
	return err
}
