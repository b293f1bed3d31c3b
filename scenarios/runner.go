package scenarios

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"

	"github.com/menmos/harness/cluster"
	"github.com/menmos/harness/config"
)

// Result is the outcome of one scenario.
type Result struct {
	Name string
	Err  error
}

type Results []Result

func (rs Results) OK() bool {
	for _, r := range rs {
		if r.Err != nil {
			return false
		}
	}
	return true
}

func (rs Results) Failures() Results {
	var failed Results
	for _, r := range rs {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// RunSuite executes each scenario against its own freshly booted cluster,
// writing one result line per scenario. A fixture that fails to boot counts
// as a scenario failure; the run continues with the next scenario either way.
func RunSuite(ctx context.Context, cfg *config.Config, suite []Scenario, logger *slog.Logger, out io.Writer) Results {
	results := make(Results, 0, len(suite))

	for _, scen := range suite {
		err := runOne(ctx, cfg, scen, logger)
		if err == nil {
			fmt.Fprintf(out, "%s %s\n", color.GreenString("PASS"), scen.Name)
		} else {
			fmt.Fprintf(out, "%s %s: %s\n", color.RedString("FAIL"), scen.Name, err)
		}
		results = append(results, Result{Name: scen.Name, Err: err})
	}

	return results
}

func runOne(ctx context.Context, cfg *config.Config, scen Scenario, logger *slog.Logger) error {
	c, err := cluster.Start(ctx, cfg, scen.StorageNodes, logger)
	if err != nil {
		return fmt.Errorf("fixture setup failed: %w", err)
	}
	defer c.Stop()

	return scen.Run(ctx, c)
}

// PrintSummary writes the pass/fail tally and re-lists failures.
func PrintSummary(out io.Writer, results Results) {
	failures := results.Failures()
	fmt.Fprintf(out, "\n%d scenarios, %d failures\n", len(results), len(failures))
	for _, f := range failures {
		fmt.Fprintf(out, "  %s %s: %s\n", color.RedString("FAIL"), f.Name, f.Err)
	}
}
