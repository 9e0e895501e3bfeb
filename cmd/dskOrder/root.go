package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/pprof"

	"github.com/jdefrancesco/dskOrder/internal/config"
	"github.com/jdefrancesco/dskOrder/internal/dcommit"
	"github.com/jdefrancesco/dskOrder/internal/dsklog"
	"github.com/jdefrancesco/dskOrder/internal/session"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	v   = viper.New()
	cfg config.Config

	flNoBanner   bool
	flCpuProfile string
	flYes        bool
	flNoClobber  bool

	profileFile *os.File
)

var rootCmd = &cobra.Command{
	Use:   "dskOrder",
	Short: "Rename images in a directory to match the order you choose",
	Long: `dskOrder numbers the images of one directory (prefix_001.jpg, prefix_002.png, ...)
in the order you arrange them. Renames go through a private staging directory so
no file is ever overwritten by another file of the batch, and every commit is
journaled so it can be undone later with "dskOrder restore".`,
	Version:       ver,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if !flNoBanner {
			showHeader()
		}
		if err := startProfile(); err != nil {
			return err
		}

		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return err
		}
		if err := loadConfig(abs); err != nil {
			return err
		}

		dsklog.InitializeDlogger(cfg.LogFile)
		if err := dsklog.SetLevel(cfg.LogLevel); err != nil {
			return err
		}
		dsklog.Dlogger.Infof("dskOrder %s: %s %s", ver, cmd.Name(), cfg.Dir)
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate("Version: {{.Version}}\n")
	config.SetDefaults(v)

	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&flNoBanner, "no-banner", false, "Do not show the dskOrder banner.")
	pf.StringVar(&flCpuProfile, "cpuprofile", "", "Write CPU profile to disk for analysis.")
	pf.String("prefix", "", "Prefix for the new filenames.")
	pf.Int("width", config.DefaultWidth, "Minimum number of digits in sequence numbers.")
	pf.String("separator", config.DefaultSeparator, "Separator placed between prefix and number.")
	pf.StringSlice("ext", nil, "Image extensions to include (default jpg,jpeg,png).")
	pf.Bool("skip-hidden", true, "Skip hidden dotfiles.")
	pf.String("hash", "sha256", "Content digest recorded in journals: sha256, blake3 or none.")
	pf.String("hash-max-size", "512MiB", "Do not fingerprint files larger than this.")
	pf.Bool("verify", true, "Check recorded digests before restoring a file.")
	pf.String("overwrite", string(config.OverwriteAsk), "Files outside the batch in the way: ask, always or never.")
	pf.String("journal-tag", config.DefaultJournalTag, "Filename prefix of journal files.")
	pf.String("log-file", config.DefaultLogFile, "Log file.")
	pf.String("log-level", "info", "Log level.")

	for key, flag := range map[string]string{
		"prefix":        "prefix",
		"width":         "width",
		"separator":     "separator",
		"extensions":    "ext",
		"skip_hidden":   "skip-hidden",
		"hash":          "hash",
		"hash_max_size": "hash-max-size",
		"verify":        "verify",
		"overwrite":     "overwrite",
		"journal_tag":   "journal-tag",
		"log_file":      "log-file",
		"log_level":     "log-level",
	} {
		if err := v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(listCmd, planCmd, applyCmd, restoreCmd, journalCmd, infoCmd, arrangeCmd)
}

// loadConfig reads .dskorder.yaml, the environment and the flags, in
// increasing precedence.
func loadConfig(dir string) error {
	if err := config.ReadFile(v, dir); err != nil {
		return err
	}
	c, err := config.Load(v, dir)
	if err != nil {
		return err
	}
	if flYes {
		c.Overwrite = config.OverwriteAlways
	}
	if flNoClobber {
		c.Overwrite = config.OverwriteNever
	}
	cfg = c
	return nil
}

// decider turns the overwrite policy into a dcommit.Decider. Ask prompts
// on the terminal.
func decider() dcommit.Decider {
	switch cfg.Overwrite {
	case config.OverwriteAlways:
		return dcommit.AlwaysOverwrite
	case config.OverwriteNever:
		return dcommit.NeverOverwrite
	}
	return func(_ context.Context, c dcommit.Conflict) bool {
		prompt := fmt.Sprintf("%s already exists. Replace it with %s?", c.Target, c.Source)
		ok, err := pterm.DefaultInteractiveConfirm.WithDefaultValue(false).Show(prompt)
		if err != nil {
			dsklog.Dlogger.Warnf("Overwrite prompt failed: %v", err)
			return false
		}
		return ok
	}
}

// confirm asks a yes/no question unless --yes was given.
func confirm(question string) bool {
	if flYes {
		return true
	}
	ok, err := pterm.DefaultInteractiveConfirm.WithDefaultValue(false).Show(question)
	return err == nil && ok
}

// openSession scans cfg.Dir with a spinner showing progress.
func openSession(ctx context.Context) (*session.Session, error) {
	spinner, _ := pterm.DefaultSpinner.Start("Scanning " + cfg.Dir)
	sess, done, err := session.Start(ctx, cfg,
		session.WithDecider(decider()),
		session.WithProgress(func(loaded, total int) {
			spinner.UpdateText(fmt.Sprintf("Loading %d of %d", loaded, total))
		}),
	)
	if err == nil {
		err = <-done
	}
	if err != nil {
		spinner.Fail(err.Error())
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("scan interrupted")
		}
		return nil, err
	}
	spinner.Success(fmt.Sprintf("Loaded %d images from %s", len(sess.Entries()), cfg.Dir))
	return sess, nil
}

func startProfile() error {
	if flCpuProfile == "" || profileFile != nil {
		return nil
	}
	f, err := os.Create(flCpuProfile)
	if err != nil {
		return fmt.Errorf("cpuprofile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return fmt.Errorf("cpuprofile: %w", err)
	}
	profileFile = f
	return nil
}

func stopProfile() {
	if profileFile == nil {
		return
	}
	pprof.StopCPUProfile()
	profileFile.Close()
}
