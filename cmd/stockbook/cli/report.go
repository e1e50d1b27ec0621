package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/odyssey-erp/stockbook/internal/reports"
)

// MovementReporter serves movement reports.
type MovementReporter interface {
	MovementReport(ctx context.Context, tenantID int64, start, end time.Time) ([]reports.MovementRow, error)
}

// ReportOptions defines the flags of the report command.
type ReportOptions struct {
	TenantID   int64
	From       string
	To         string
	JSONOutput bool
	XLSXPath   string
	Stdout     io.Writer
	Stderr     io.Writer
}

// ReportCommand prints the stock movement report of a tenant.
func ReportCommand(ctx context.Context, rep MovementReporter, opts ReportOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.TenantID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "report: --tenant is required and must be positive")
		return 1
	}
	from, err := time.Parse("2006-01-02", opts.From)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "report: invalid --from %q (expected YYYY-MM-DD)\n", opts.From)
		return 1
	}
	to := from
	if opts.To != "" {
		if to, err = time.Parse("2006-01-02", opts.To); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "report: invalid --to %q (expected YYYY-MM-DD)\n", opts.To)
			return 1
		}
	}
	rows, err := rep.MovementReport(ctx, opts.TenantID, from, to)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "report: %v\n", err)
		return exitCode(err)
	}

	switch {
	case opts.XLSXPath != "":
		f, err := os.Create(opts.XLSXPath)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "report: %v\n", err)
			return 1
		}
		werr := reports.WriteXLSX(f, rows, reports.DayWindow(from, to))
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "report: %v\n", werr)
			return 1
		}
		_, _ = fmt.Fprintf(opts.Stdout, "Wrote %d row(s) to %s\n", len(rows), opts.XLSXPath)
	case opts.JSONOutput:
		if err := json.NewEncoder(opts.Stdout).Encode(rows); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "report: encode json: %v\n", err)
			return 1
		}
	default:
		renderReportHuman(opts.Stdout, rows, from, to)
	}
	return 0
}

func renderReportHuman(out io.Writer, rows []reports.MovementRow, from, to time.Time) {
	_, _ = fmt.Fprintf(out, "Stock movement %s to %s\n", from.Format("2006-01-02"), to.Format("2006-01-02"))
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tPRODUCT\tMORNING\tPURCHASED\tSOLD\tCURRENT")
	for _, r := range rows {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\n", r.ProductID, r.ProductName, r.MorningStock, r.Purchased, r.Sold, r.CurrentStock)
	}
	_ = tw.Flush()
}
