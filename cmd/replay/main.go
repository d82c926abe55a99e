package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/config"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/logging"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/replay"
)

// #region main
type CLI struct {
	Fixtures []string `arg:"" name:"fixture" type:"existingfile" help:"Fixture JSON files to replay"`
	Config   string   `short:"c" type:"path" help:"Control plane config to replay against (optional)"`
	JSON     bool     `help:"Print full results as JSON instead of a table"`
	Verbose  bool     `short:"v" help:"Log scheduler activity to stderr"`
}

func main() {
	cli := &CLI{}
	kong.Parse(cli,
		kong.Name("replay"),
		kong.Description("Replay recorded control plane fixtures deterministically"),
		kong.UsageOnError(),
	)
	os.Exit(run(cli))
}

func run(cli *CLI) int {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 2
	}
	level := "disabled"
	if cli.Verbose {
		level = "debug"
	}
	logger, err := logging.New(level, true, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 2
	}

	exitCode := 0
	for _, path := range cli.Fixtures {
		f, err := replay.LoadFixture(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
			return 2
		}
		res, err := replay.Run(f, cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "replay %s: %v\n", path, err)
			return 2
		}
		if cli.JSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				fmt.Fprintf(os.Stderr, "encode: %v\n", err)
				return 2
			}
		} else {
			printComparison(path, f, res)
		}
		if res.Mismatches() > 0 {
			exitCode = 1
		}
	}
	return exitCode
}

// #endregion main

// #region output
var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD75F"))
	diffStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#D70000"))
	headStyle = lipgloss.NewStyle().Bold(true)
)

// printComparison outputs the expectation table and the run summary.
func printComparison(path string, f *replay.Fixture, res *replay.Result) {
	fmt.Println(headStyle.Render(path))
	if f.Description != "" {
		fmt.Println(f.Description)
	}
	fmt.Printf("%-60s| %-8s| %s\n", "Expectation", "Matched", "Result")
	fmt.Printf("%-60s+%-9s+%s\n",
		"------------------------------------------------------------", "---------", "------")
	for _, c := range res.Checks {
		verdict := okStyle.Render("OK")
		if !c.OK {
			verdict = diffStyle.Render("DIFF")
		}
		fmt.Printf("%-60s| %-8d| %s\n", c.Expectation.String(), c.Matched, verdict)
	}

	s := res.Summary
	fmt.Printf("\nSummary: %d frames, %d commits, %d failures, %d denials, %d quality failures, %d resolution commits\n",
		s.Frames, s.Commits, s.Failures, s.Denials, s.QualityFailures, s.ResolutionCommits)
	fmt.Printf("Final: fg=%q bg=%q scale=%.2f | %d/%d expectations diverge\n\n",
		s.Foreground, s.Background, s.FinalScale, res.Mismatches(), len(res.Checks))
}

// #endregion output
