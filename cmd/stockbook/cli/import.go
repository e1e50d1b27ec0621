package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/odyssey-erp/stockbook/internal/coordinator"
	"github.com/odyssey-erp/stockbook/internal/importer"
	"github.com/odyssey-erp/stockbook/internal/shared"
)

// Importer runs bulk imports.
type Importer interface {
	BulkImport(ctx context.Context, in coordinator.BulkImportInput) (coordinator.ImportResult, error)
}

// ImportOptions defines the flags of the import command.
type ImportOptions struct {
	TenantID       int64
	UserID         int64
	VendorID       int64
	Path           string
	IdempotencyKey string
	Date           string
	JSONOutput     bool
	Stdout         io.Writer
	Stderr         io.Writer
}

// ImportSummary is the JSON output of the import command.
type ImportSummary struct {
	BatchID    string `json:"batch_id"`
	Created    int    `json:"created"`
	Updated    int    `json:"updated"`
	PurchaseID int64  `json:"purchase_id,omitempty"`
	Quantity   int64  `json:"quantity"`
}

// ImportCommand reads an opening-stock workbook and imports it for a tenant.
func ImportCommand(ctx context.Context, imp Importer, opts ImportOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.TenantID <= 0 || opts.UserID <= 0 || opts.VendorID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "import: --tenant, --user and --vendor are required and must be positive")
		return 1
	}
	if opts.Path == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "import: --file is required")
		return 1
	}
	var date time.Time
	if opts.Date != "" {
		d, err := time.Parse("2006-01-02", opts.Date)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "import: invalid date %q (expected YYYY-MM-DD)\n", opts.Date)
			return 1
		}
		date = d
	}
	f, err := os.Open(opts.Path)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "import: %v\n", err)
		return 1
	}
	defer func() { _ = f.Close() }()
	rows, err := importer.Parse(f)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "import: %v\n", err)
		return 1
	}

	ctx = shared.ContextWithPrincipal(ctx, shared.Principal{TenantID: opts.TenantID, UserID: opts.UserID, Role: "cli"})
	res, err := imp.BulkImport(ctx, coordinator.BulkImportInput{
		VendorID:       opts.VendorID,
		Rows:           rows,
		IdempotencyKey: opts.IdempotencyKey,
		PurchaseDate:   date,
	})
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "import: %v\n", err)
		return exitCode(err)
	}
	summary := ImportSummary{
		BatchID:    res.BatchID.String(),
		Created:    res.Created,
		Updated:    res.Updated,
		PurchaseID: res.PurchaseID,
		Quantity:   res.Quantity,
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "import: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "Imported %d row(s) from %s: %d created, %d updated, %d unit(s) stocked (batch %s)\n",
		len(rows), opts.Path, summary.Created, summary.Updated, summary.Quantity, summary.BatchID)
	return 0
}

// TemplateCommand writes an empty import workbook to path.
func TemplateCommand(path string, stderr io.Writer) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	f, err := os.Create(path)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "import template: %v\n", err)
		return 1
	}
	if err := importer.Template(f); err != nil {
		_ = f.Close()
		_, _ = fmt.Fprintf(stderr, "import template: %v\n", err)
		return 1
	}
	if err := f.Close(); err != nil {
		_, _ = fmt.Fprintf(stderr, "import template: %v\n", err)
		return 1
	}
	return 0
}

// exitCode maps engine failures to process exit codes. Invalid input exits
// with 2, other domain failures with 3 and everything else with 1.
func exitCode(err error) int {
	switch shared.KindOf(err) {
	case "":
		return 1
	case shared.KindInvalid:
		return 2
	default:
		return 3
	}
}
