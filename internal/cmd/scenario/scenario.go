// Package scenario parses scenario command flags and replays Lua calculator
// scenarios.
package scenario

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	entrypoint "github.com/louisbranch/examdesk/internal/platform/cmd"
	"github.com/louisbranch/examdesk/internal/services/calculator/scenario"
)

// Config holds scenario command configuration.
type Config struct {
	Dir     string `env:"EXAMDESK_SCENARIO_DIR"`
	File    string `env:"EXAMDESK_SCENARIO_FILE"`
	Verbose bool   `env:"EXAMDESK_SCENARIO_VERBOSE"`
}

// ErrScenariosFailed reports that at least one scenario did not pass.
var ErrScenariosFailed = errors.New("scenarios failed")

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.Dir, "dir", cfg.Dir, "directory of scenario lua files")
	fs.StringVar(&cfg.File, "scenario", cfg.File, "path to a single scenario lua file")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "list passing scenarios too")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run replays the configured scenarios and writes a report to out.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	dir := strings.TrimSpace(cfg.Dir)
	file := strings.TrimSpace(cfg.File)
	if dir == "" && file == "" {
		return errors.New("scenario dir or file is required")
	}

	var (
		results []scenario.Result
		err     error
	)
	if file != "" {
		results, err = scenario.RunFile(file)
	} else {
		results, err = scenario.RunDir(dir)
	}
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	failed := 0
	for _, result := range results {
		if result.Passed() {
			if cfg.Verbose {
				fmt.Fprintf(out, "PASS %s (%d steps)\n", result.Name, result.Steps)
			}
			continue
		}
		failed++
		fmt.Fprintf(out, "FAIL %s (%s)\n", result.Name, result.Path)
		for _, failure := range result.Failures {
			fmt.Fprintf(out, "  %s\n", failure)
		}
	}
	fmt.Fprintf(errOut, "%d scenarios, %d failed\n", len(results), failed)
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrScenariosFailed, failed, len(results))
	}
	return nil
}
