package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/odyssey-erp/stockbook/internal/coordinator"
)

// IntegrityRunner checks one tenant, or every tenant for a zero id.
type IntegrityRunner interface {
	Run(ctx context.Context, tenantID int64) ([]coordinator.IntegrityReport, error)
}

// CheckOptions defines the flags of the check command.
type CheckOptions struct {
	TenantID   int64
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// CheckSummary is the JSON output of the check command for one tenant.
type CheckSummary struct {
	TenantID      int64  `json:"tenant_id"`
	OK            bool   `json:"ok"`
	RankError     string `json:"rank_error,omitempty"`
	Mismatches    int    `json:"stock_mismatches"`
	BrokenHolders int    `json:"broken_holders"`
}

// CheckCommand runs the integrity check in process. It exits with 10 when
// any tenant reports violations.
func CheckCommand(ctx context.Context, runner IntegrityRunner, opts CheckOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.TenantID < 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "check: --tenant must not be negative")
		return 1
	}
	reports, err := runner.Run(ctx, opts.TenantID)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "check: %v\n", err)
		return 1
	}
	summaries := make([]CheckSummary, 0, len(reports))
	failed := false
	for _, r := range reports {
		summaries = append(summaries, CheckSummary{
			TenantID:      r.TenantID,
			OK:            r.OK(),
			RankError:     r.RankError,
			Mismatches:    len(r.Mismatches),
			BrokenHolders: len(r.BrokenHolders),
		})
		failed = failed || !r.OK()
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summaries); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "check: encode json: %v\n", err)
			return 1
		}
	} else {
		for _, s := range summaries {
			if s.OK {
				_, _ = fmt.Fprintf(opts.Stdout, "tenant %d: ok\n", s.TenantID)
				continue
			}
			_, _ = fmt.Fprintf(opts.Stdout, "tenant %d: %d stock mismatch(es), %d broken ledger chain(s)", s.TenantID, s.Mismatches, s.BrokenHolders)
			if s.RankError != "" {
				_, _ = fmt.Fprintf(opts.Stdout, ", ranks: %s", s.RankError)
			}
			_, _ = fmt.Fprintln(opts.Stdout)
		}
	}
	if failed {
		return 10
	}
	return 0
}
