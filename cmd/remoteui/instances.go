package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/epinadev/claude-remote-ui/internal/api"
	"github.com/epinadev/claude-remote-ui/internal/model"
)

var instancesCmd = &cobra.Command{
	Use:     "instances",
	Aliases: []string{"ls"},
	Short:   "List tracked Claude instances, most recent first",
	Args:    cobra.NoArgs,
	RunE:    runInstances,
}

var switchCmd = &cobra.Command{
	Use:   "switch <pane>",
	Short: "Make a tracked pane the active instance",
	Args:  cobra.ExactArgs(1),
	RunE:  runSwitch,
}

func init() {
	rootCmd.AddCommand(instancesCmd, switchCmd)
}

func runInstances(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	st, err := a.reg.Snapshot(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return writeInstanceTable(out, st)
	}
	resp := api.InstancesResponse{Instances: []api.InstanceItem{}}
	if st.Active != nil {
		resp.Current = st.Active.PaneID
	}
	for _, rec := range st.Instances {
		resp.Instances = append(resp.Instances, api.InstanceItem{
			Pane:        rec.PaneID,
			Session:     rec.SessionName,
			Window:      rec.WindowName,
			DisplayName: rec.DisplayName,
			LastActive:  rec.LastActive.Format(time.RFC3339),
		})
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func writeInstanceTable(out io.Writer, st model.RegistryState) error {
	if len(st.Instances) == 0 {
		_, err := fmt.Fprintln(out, "No tracked instances.")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tPANE\tNAME\tLAST ACTIVE") //nolint:errcheck
	for _, rec := range st.Instances {
		mark := ""
		if st.Active != nil && st.Active.PaneID == rec.PaneID {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mark, rec.PaneID, rec.DisplayName, rec.LastActive.Local().Format("2006-01-02 15:04:05")) //nolint:errcheck
	}
	return tw.Flush()
}

func runSwitch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	paneID := args[0]
	if err := model.ValidatePaneID(paneID); err != nil {
		return err
	}
	rec, ok, err := a.reg.Lookup(ctx, paneID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrUnknownInstance, paneID)
	}
	if !a.tmux.IsAlive(ctx, rec.PaneTarget) {
		return fmt.Errorf("%w: %s", model.ErrPaneNotFound, paneID)
	}
	target, err := a.reg.SetActive(ctx, paneID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Switched to %s (%s)\n", target.DisplayName(), target.PaneID)
	return err
}
