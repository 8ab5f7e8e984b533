package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"lineage/internal/config"
	"lineage/internal/core"
	"lineage/internal/logger"
	"lineage/internal/project"
	"lineage/internal/workspace"
)

const (
	ExitSuccess       = 0
	ExitStale         = 1
	ExitInvalidUsage  = 2
	ExitConfigError   = 3
	ExitInternalError = 4
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "lineage",
		Short:         "Inspect dataset and workflow provenance of a project",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", ".lineage/config.yaml", "path to the project configuration")

	withProject := func(run func(out io.Writer, p *project.Project, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return &exitError{code: ExitConfigError, msg: err.Error()}
			}
			log, err := logger.New(cfg.Log.Mode)
			if err != nil {
				return &exitError{code: ExitConfigError, msg: err.Error()}
			}
			p, err := project.Open(cfg, log, nil)
			if err != nil {
				return &exitError{code: ExitInternalError, msg: err.Error()}
			}
			defer p.Close()
			return run(cmd.OutOrStdout(), p, args)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "datasets",
			Short: "List current datasets",
			Args:  cobra.NoArgs,
			RunE:  withProject(listDatasets),
		},
		&cobra.Command{
			Use:   "history NAME",
			Short: "Show the derivation chain of a dataset, newest first",
			Args:  cobra.ExactArgs(1),
			RunE:  withProject(showHistory),
		},
		&cobra.Command{
			Use:   "plans",
			Short: "List plans in dependency order",
			Args:  cobra.NoArgs,
			RunE:  withProject(listPlans),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show plans made stale by changed inputs",
			Args:  cobra.NoArgs,
			RunE:  withProject(showStatus),
		},
	)
	return root
}

func listDatasets(out io.Writer, p *project.Project, _ []string) error {
	all, err := p.Datasets.AllCurrent()
	if err != nil {
		return err
	}
	for _, ds := range all {
		fmt.Fprintf(out, "%s\t%s\t%d files\t%s\n", ds.Name, ds.Identifier, len(ds.LiveFiles()), ds.Title)
	}
	return nil
}

func showHistory(out io.Writer, p *project.Project, args []string) error {
	chain, err := p.Datasets.History(args[0])
	if err != nil {
		return err
	}
	if len(chain) == 0 {
		return &exitError{code: ExitInvalidUsage, msg: fmt.Sprintf("dataset %q not found", args[0])}
	}
	for _, ds := range chain {
		state := "live"
		if ds.IsRemoved() {
			state = "removed"
		}
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", ds.Identifier, ds.DateCreated.Format("2006-01-02T15:04:05Z07:00"), state, fileSummary(ds))
	}
	return nil
}

func fileSummary(ds *core.Dataset) string {
	paths := make([]string, 0, len(ds.Files))
	for _, f := range ds.LiveFiles() {
		paths = append(paths, f.Path)
	}
	return strings.Join(paths, ",")
}

func listPlans(out io.Writer, p *project.Project, _ []string) error {
	order, err := p.Graph.TopologicalOrder()
	if err != nil {
		return err
	}
	for _, pl := range order {
		fmt.Fprintf(out, "%s\t%s\t%s -> %s\n", pl.Name, pl.Command,
			strings.Join(pl.InputPaths(), ","), strings.Join(pl.OutputPaths(), ","))
	}
	return nil
}

func showStatus(out io.Writer, p *project.Project, _ []string) error {
	st, err := p.Status(workspace.NewChecksummer(p.Root()), "")
	if err != nil {
		return err
	}
	if st.Cycle != nil {
		fmt.Fprintf(out, "warning: cycle %s\n", strings.Join(st.Cycle, " -> "))
	}
	for _, u := range st.Modified {
		fmt.Fprintf(out, "modified\t%s\n", u.Path)
	}
	for _, u := range st.Deleted {
		fmt.Fprintf(out, "deleted\t%s\n", u.Path)
	}
	for _, pl := range st.Rerun {
		fmt.Fprintf(out, "rerun\t%s\n", pl.Name)
	}
	for _, pl := range st.Blocked {
		fmt.Fprintf(out, "blocked\t%s\n", pl.Name)
	}
	if st.UpToDate() {
		fmt.Fprintln(out, "up to date")
		return nil
	}
	return &exitError{code: ExitStale}
}
