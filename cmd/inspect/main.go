package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/diag"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/logging"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/preset"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/state"
)

// #region cli
type CLI struct {
	JSON bool `help:"Output as JSON instead of a table"`

	Reports ReportsCmd `cmd:"" help:"List logged preset switch reports"`
	State   StateCmd   `cmd:"" help:"Dump persisted key/value state"`
	Status  StatusCmd  `cmd:"" help:"Show a running control plane's status"`
	Events  EventsCmd  `cmd:"" help:"Show a running control plane's recent gate flips and switches"`
}

type ReportsCmd struct {
	DB   string `required:"" type:"existingfile" help:"Path to the control plane database"`
	Last int    `default:"20" help:"Show N most recent reports"`
}

type StateCmd struct {
	DB     string `required:"" type:"existingfile" help:"Path to the control plane database"`
	Prefix string `help:"Only keys with this prefix"`
}

type StatusCmd struct {
	Addr    string        `default:"localhost:8421" help:"Diagnostics address"`
	Timeout time.Duration `default:"3s"`
}

type EventsCmd struct {
	Addr    string        `default:"localhost:8421" help:"Diagnostics address"`
	Timeout time.Duration `default:"3s"`
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("inspect"),
		kong.Description("Inspect control plane history and live state"),
		kong.UsageOnError(),
	)
	if err := ctx.Run(cli); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errStyle.Render("error:"), err)
		os.Exit(1)
	}
}

// #endregion cli

// #region styles
var (
	errStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#D70000"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	keyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// #endregion styles

// #region reports
func (c *ReportsCmd) Run(cli *CLI) error {
	store, err := state.NewStore(c.DB)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	reps, err := logging.ListSwitchReports(store.DB(), c.Last)
	if err != nil {
		return err
	}
	if cli.JSON {
		return printJSON(reps)
	}
	if len(reps) == 0 {
		fmt.Fprintln(os.Stderr, "no switch reports found")
		return nil
	}
	fmt.Println(reportTable(reps))
	return nil
}

func reportTable(reps []preset.SwitchReport) *table.Table {
	t := newTable("Finished", "Scope", "Origin", "Preset", "Outcome", "Class", "Total", "Reasons")
	for _, r := range reps {
		name := r.PresetID
		if r.Anchor {
			name += " (anchor)"
		}
		reasons := make([]string, len(r.Reasons))
		for i, reason := range r.Reasons {
			reasons[i] = string(reason)
		}
		t.Row(
			r.FinishedAt.Local().Format("15:04:05.000"),
			string(r.Scope),
			string(r.Origin),
			name,
			string(r.Outcome),
			string(r.Class),
			r.Total.Round(time.Millisecond).String(),
			strings.Join(reasons, ","),
		)
	}
	return t
}

// #endregion reports

// #region state
func (c *StateCmd) Run(cli *CLI) error {
	store, err := state.NewStore(c.DB)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	entries, err := store.List(c.Prefix)
	if err != nil {
		return err
	}
	if cli.JSON {
		return printJSON(entries)
	}
	t := newTable("Key", "Value", "Updated")
	for _, e := range entries {
		v := e.Value
		if len(v) > 60 {
			v = v[:57] + "..."
		}
		t.Row(e.Key, v, e.UpdatedAt.Local().Format(time.DateTime))
	}
	fmt.Println(t)
	return nil
}

// #endregion state

// #region live
func (c *StatusCmd) Run(cli *CLI) error {
	client, err := diag.NewClient(c.Addr)
	if err != nil {
		return err
	}
	defer client.Close()
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	st, err := client.Status(ctx)
	if err != nil {
		return err
	}
	if cli.JSON {
		return printJSON(st)
	}
	row := func(k string, v any) {
		fmt.Printf("%s %v\n", keyStyle.Render(fmt.Sprintf("%-14s", k)), v)
	}
	row("enabled", st.Enabled)
	row("override", st.Override)
	row("auto cycle", st.AutoCycle)
	row("gates", fmt.Sprintf("audio=%t beat=%t render=%t", st.Gates.AudioValid, st.Gates.BeatTrusted, st.Gates.RenderStable))
	row("section", st.Section)
	row("scale", fmt.Sprintf("%.2f (rung %d)", st.Scale, st.ScaleIndex))
	row("foreground", st.Foreground)
	row("background", st.Background)
	row("in flight", st.InFlight)
	row("owner", st.Owner)
	row("strikes", st.Strikes)
	row("status", st.Message)
	if !st.LastFrameAt.IsZero() {
		row("last frame", time.Since(st.LastFrameAt).Round(time.Millisecond).String()+" ago")
	}
	return nil
}

func (c *EventsCmd) Run(cli *CLI) error {
	client, err := diag.NewClient(c.Addr)
	if err != nil {
		return err
	}
	defer client.Close()
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	ev, err := client.RecentEvents(ctx)
	if err != nil {
		return err
	}
	if cli.JSON {
		return printJSON(ev)
	}
	gates := newTable("At", "Gate", "Value", "Reason")
	for _, g := range ev.Gates {
		gates.Row(g.At.Local().Format("15:04:05.000"), string(g.Gate), fmt.Sprint(g.Value), g.Reason)
	}
	fmt.Println(gates)
	fmt.Println(reportTable(ev.Switches))
	return nil
}

// #endregion live
