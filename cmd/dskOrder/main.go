package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jdefrancesco/dskOrder/internal/dsklog"

	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"
)

// Version
const ver = "0.1.0"

func main() {
	// SIGINT stops scans. A commit or restore that already started
	// renaming still runs to the end.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	stopProfile()
	if err != nil {
		dsklog.Dlogger.Errorf("Command failed: %v", err)
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

// showHeader prints colorful dskOrder banner.
func showHeader() {

	fmt.Println("")
	pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithStyle("dsk", pterm.NewStyle(pterm.FgLightGreen)),
		putils.LettersFromStringWithStyle("Order", pterm.NewStyle(pterm.FgLightWhite))).
		Render()
}
