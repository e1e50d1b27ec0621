package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/stockbook/internal/coordinator"
	"github.com/odyssey-erp/stockbook/internal/reports"
	"github.com/odyssey-erp/stockbook/internal/shared"
	"github.com/odyssey-erp/stockbook/internal/store/memory"
)

func writeWorkbook(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	path := filepath.Join(t.TempDir(), "stock.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestImportCommandJSON(t *testing.T) {
	store := memory.New()
	c := coordinator.New(store, slog.New(slog.NewTextHandler(io.Discard, nil)), coordinator.Config{},
		coordinator.WithAudit(store), coordinator.WithIdempotency(store))
	ctx := shared.ContextWithPrincipal(context.Background(), shared.Principal{TenantID: 1, UserID: 1})
	v, err := c.CreateVendor(ctx, coordinator.CreateVendorInput{Name: "V1"})
	require.NoError(t, err)

	path := writeWorkbook(t, [][]interface{}{
		{"Product", "Price", "Quantity"},
		{"Lager", "2.50", 24},
		{"Stout", "3", 6},
	})

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := ImportCommand(context.Background(), c, ImportOptions{
		TenantID: 1, UserID: 1, VendorID: v.ID, Path: path, IdempotencyKey: "k1",
		JSONOutput: true, Stdout: stdout, Stderr: stderr,
	})
	require.Equal(t, 0, code, stderr.String())
	var summary ImportSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, 2, summary.Created)
	require.Equal(t, int64(30), summary.Quantity)

	code = ImportCommand(context.Background(), c, ImportOptions{
		TenantID: 1, UserID: 1, VendorID: v.ID, Path: path, IdempotencyKey: "k1",
		Stdout: stdout, Stderr: stderr,
	})
	require.Equal(t, 2, code)
	require.Contains(t, stderr.String(), "already processed")
}

func TestImportCommandValidatesFlags(t *testing.T) {
	stderr := new(bytes.Buffer)
	require.Equal(t, 1, ImportCommand(context.Background(), nil, ImportOptions{Stderr: stderr}))
	require.Contains(t, stderr.String(), "--tenant")

	stderr.Reset()
	require.Equal(t, 1, ImportCommand(context.Background(), nil, ImportOptions{
		TenantID: 1, UserID: 1, VendorID: 1, Path: "x.xlsx", Date: "03/06/2024", Stderr: stderr,
	}))
	require.Contains(t, stderr.String(), "invalid date")
}

func TestTemplateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.xlsx")
	require.Equal(t, 0, TemplateCommand(path, io.Discard))
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	v, err := f.GetCellValue("Sheet1", "A1")
	require.NoError(t, err)
	require.Equal(t, "Product", v)
}

type stubReporter struct {
	rows       []reports.MovementRow
	err        error
	start, end time.Time
}

func (s *stubReporter) MovementReport(_ context.Context, _ int64, start, end time.Time) ([]reports.MovementRow, error) {
	s.start, s.end = start, end
	return s.rows, s.err
}

func TestReportCommandHuman(t *testing.T) {
	rep := &stubReporter{rows: []reports.MovementRow{{ProductID: 1, ProductName: "Lager", MorningStock: 100, Purchased: 20, Sold: 30, CurrentStock: 90}}}
	stdout := new(bytes.Buffer)
	code := ReportCommand(context.Background(), rep, ReportOptions{TenantID: 1, From: "2024-06-03", Stdout: stdout, Stderr: io.Discard})
	require.Equal(t, 0, code)
	require.Equal(t, rep.start, rep.end)
	require.Contains(t, stdout.String(), "Stock movement 2024-06-03 to 2024-06-03")
	require.Contains(t, stdout.String(), "Lager")
	require.Contains(t, stdout.String(), "90")
}

func TestReportCommandXLSXAndErrors(t *testing.T) {
	rep := &stubReporter{rows: []reports.MovementRow{{ProductID: 1, ProductName: "Lager"}}}
	path := filepath.Join(t.TempDir(), "movement.xlsx")
	code := ReportCommand(context.Background(), rep, ReportOptions{TenantID: 1, From: "2024-06-01", To: "2024-06-03", XLSXPath: path, Stdout: io.Discard, Stderr: io.Discard})
	require.Equal(t, 0, code)
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	_ = f.Close()

	stderr := new(bytes.Buffer)
	require.Equal(t, 1, ReportCommand(context.Background(), rep, ReportOptions{TenantID: 1, From: "June", Stderr: stderr}))

	rep.err = shared.E(shared.KindInvalid, "reports", "bad window")
	require.Equal(t, 2, ReportCommand(context.Background(), rep, ReportOptions{TenantID: 1, From: "2024-06-01", Stderr: stderr}))
}

type stubRunner struct {
	reports []coordinator.IntegrityReport
	err     error
}

func (s stubRunner) Run(context.Context, int64) ([]coordinator.IntegrityReport, error) {
	return s.reports, s.err
}

func TestCheckCommandExitCodes(t *testing.T) {
	stdout := new(bytes.Buffer)
	ok := stubRunner{reports: []coordinator.IntegrityReport{{TenantID: 1}}}
	require.Equal(t, 0, CheckCommand(context.Background(), ok, CheckOptions{Stdout: stdout, Stderr: io.Discard}))
	require.Contains(t, stdout.String(), "tenant 1: ok")

	broken := stubRunner{reports: []coordinator.IntegrityReport{{TenantID: 2, RankError: "gap at 2"}}}
	stdout.Reset()
	require.Equal(t, 10, CheckCommand(context.Background(), broken, CheckOptions{JSONOutput: true, Stdout: stdout, Stderr: io.Discard}))
	var summaries []CheckSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	require.False(t, summaries[0].OK)

	require.Equal(t, 1, CheckCommand(context.Background(), stubRunner{err: errors.New("down")}, CheckOptions{Stdout: io.Discard, Stderr: io.Discard}))
}

func TestExitCode(t *testing.T) {
	require.Equal(t, 1, exitCode(errors.New("x")))
	require.Equal(t, 2, exitCode(shared.ErrInvalid))
	require.Equal(t, 3, exitCode(shared.E(shared.KindInsufficientStock, "op", "short %s", decimal.Zero)))
}
