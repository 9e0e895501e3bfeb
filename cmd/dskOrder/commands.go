package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jdefrancesco/dskOrder/internal/dcommit"
	"github.com/jdefrancesco/dskOrder/internal/dfs"
	"github.com/jdefrancesco/dskOrder/internal/djournal"
	"github.com/jdefrancesco/dskOrder/internal/dplan"
	"github.com/jdefrancesco/dskOrder/internal/session"
	"github.com/jdefrancesco/dskOrder/internal/ui"
	"github.com/jdefrancesco/dskOrder/pkg/utils"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	flOrder   []string
	flExport  string
	flJournal string
)

var listCmd = &cobra.Command{
	Use:   "list [DIR]",
	Short: "List the images of a directory in filename order",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}

		entries := sess.Entries()
		width := utils.Digits(len(entries))
		data := pterm.TableData{{"#", "Name", "Size", "Digest"}}
		for _, e := range entries {
			digest := e.Digest
			if len(digest) > 12 {
				digest = digest[:12]
			}
			data = append(data, []string{
				utils.PadSeq(e.Position+1, width),
				e.CurrentName,
				utils.DisplaySize(uint64(max(e.Size, 0))),
				digest,
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

var planCmd = &cobra.Command{
	Use:   "plan [DIR]",
	Short: "Preview the renames for an order without touching any file",
	Example: `  dskOrder plan ~/trip --prefix trip --order b.jpg,a.png
  dskOrder plan ~/trip --prefix trip --export plan.csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		plan, err := arrangedPlan(sess)
		if err != nil {
			return err
		}
		showPlan(plan)

		if flExport == "" {
			return nil
		}
		if strings.EqualFold(filepath.Ext(flExport), ".csv") {
			err = plan.WriteCSV(flExport)
		} else {
			err = plan.WriteJSON(flExport)
		}
		if err != nil {
			return err
		}
		pterm.Success.Printfln("Plan written to %s", flExport)
		return nil
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply [DIR]",
	Short: "Rename the images to match an order",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		plan, err := arrangedPlan(sess)
		if err != nil {
			return err
		}
		if !plan.Differs() {
			pterm.Info.Println("Filenames already match this order.")
			return nil
		}
		showPlan(plan)
		if !confirm(fmt.Sprintf("Rename %d files?", plan.Changes())) {
			pterm.Warning.Println("Nothing renamed.")
			return nil
		}

		report, err := sess.CommitPlan(cmd.Context(), plan)
		if report != nil {
			showCommitReport(report)
		}
		return err
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore [DIR]",
	Short: "Undo the latest commit using its journal",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}

		name := flJournal
		if name == "" {
			_, latest, err := sess.Journal().Latest()
			if errors.Is(err, djournal.ErrNoJournal) {
				pterm.Warning.Println("No rename log found.")
				return nil
			}
			if err != nil {
				return err
			}
			name = latest
		}
		if !confirm(fmt.Sprintf("Restore original filenames from %s?", name)) {
			return nil
		}

		report, err := sess.RestoreJournal(cmd.Context(), name)
		if err != nil && report == nil {
			return err
		}
		for _, f := range report.Failures {
			pterm.Warning.Println(f.Err)
		}
		if report.OK() {
			pterm.Success.Println(report.Summary())
		} else {
			pterm.Warning.Println(report.Summary())
		}
		return err
	},
}

var journalCmd = &cobra.Command{
	Use:   "journal [DIR]",
	Short: "List the rename journals of a directory, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := djournal.Open(cfg.Dir, cfg.JournalTag)
		if err != nil {
			return err
		}
		sums, err := j.Summaries(cmd.Context())
		if err != nil {
			return err
		}
		if len(sums) == 0 {
			pterm.Info.Println("No rename log found.")
			return nil
		}

		data := pterm.TableData{{"Journal", "Size", "Prefix", "Files", "Renamed"}}
		for _, s := range sums {
			size := utils.DisplaySize(dfs.GetFileSize(filepath.Join(j.Dir(), s.Name)))
			if s.Err != nil {
				data = append(data, []string{s.Name, size, pterm.Red("unreadable"), "", ""})
				continue
			}
			data = append(data, []string{s.Name, size, s.Prefix, fmt.Sprint(s.Files), fmt.Sprint(s.Finalized)})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

var infoCmd = &cobra.Command{
	Use:   "info [DIR]",
	Short: "Show facts about the filesystem holding a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := dfs.Usage(cfg.Dir)
		if info == nil {
			return err
		}
		if err != nil {
			pterm.Warning.Printfln("Usage unavailable: %v", err)
		}

		fsType := info.Type
		if fsType == "" {
			fsType = "unknown"
		}
		data := pterm.TableData{
			{"Directory", cfg.Dir},
			{"Filesystem", fsType},
			{"Mount point", info.MountPoint},
			{"Case-insensitive names", fmt.Sprint(info.CaseInsensitive)},
			{"Total", utils.DisplaySize(info.Total)},
			{"Used", fmt.Sprintf("%s (%s)", utils.DisplaySize(info.Used), dfs.FormatPercent(info.UsePercent))},
			{"Available", utils.DisplaySize(info.Avail)},
		}
		return pterm.DefaultTable.WithData(data).Render()
	},
}

var arrangeCmd = &cobra.Command{
	Use:   "arrange [DIR]",
	Short: "Arrange images interactively in the terminal",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Ask has no terminal to prompt on while the arranger runs.
		if cfg.Overwrite == "ask" {
			cfg.Overwrite = "never"
		}
		sess, done, err := session.Start(cmd.Context(), cfg, session.WithDecider(decider()))
		if err != nil {
			return err
		}
		go func() {
			if err := <-done; err != nil {
				pterm.Error.Println(err)
			}
		}()
		return ui.LaunchTUI(sess)
	},
}

func init() {
	for _, c := range []*cobra.Command{planCmd, applyCmd} {
		c.Flags().StringSliceVar(&flOrder, "order", nil, "Filenames to put first, in order. The rest keep their order.")
	}
	planCmd.Flags().StringVar(&flExport, "export", "", "Write the plan to a .json or .csv file.")

	for _, c := range []*cobra.Command{applyCmd, restoreCmd} {
		c.Flags().BoolVarP(&flYes, "yes", "y", false, "Do not ask; overwrite files in the way.")
	}
	applyCmd.Flags().BoolVar(&flNoClobber, "no-clobber", false, "Never overwrite files outside the batch.")
	applyCmd.MarkFlagsMutuallyExclusive("yes", "no-clobber")
	restoreCmd.Flags().StringVar(&flJournal, "journal", "", "Journal to restore instead of the latest.")
}

func arrangedPlan(sess *session.Session) (*dplan.Plan, error) {
	if len(flOrder) > 0 {
		if err := sess.ArrangeNames(flOrder); err != nil {
			return nil, err
		}
	}
	return sess.Plan()
}

func showPlan(plan *dplan.Plan) {
	data := pterm.TableData{{"#", "Current", "New"}}
	for _, it := range plan.Items {
		next := it.Final
		if !it.Changed() {
			next = pterm.Gray(it.Final)
		}
		data = append(data, []string{fmt.Sprint(it.Seq), it.Current, next})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		for _, line := range plan.Lines() {
			pterm.Println(line)
		}
	}
	pterm.Info.Printfln("%d of %d files get a new name", plan.Changes(), plan.Len())
}

func showCommitReport(report *dcommit.Report) {
	for _, f := range report.Failures {
		pterm.Warning.Println(f.Err)
	}
	if report.StageDir != "" {
		pterm.Warning.Printfln("Files that could not be renamed wait in %s; run restore to put them back.", report.StageDir)
	}
	if report.Journal != "" {
		pterm.Info.Printfln("Rename log saved: %s", report.Journal)
	}
	if report.OK() {
		pterm.Success.Println(report.Summary())
	} else {
		pterm.Warning.Println(report.Summary())
	}
}
