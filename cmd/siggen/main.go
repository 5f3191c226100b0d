package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dougsko/siggen/pkg/control"
	"github.com/dougsko/siggen/pkg/logging"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	Version = "0.1.0-dev"
	Build   = "development"
)

const defaultSocketPath = control.DefaultSocketPath

func newRootCmd() (*cobra.Command, *cliFlags) {
	cmd := &cobra.Command{
		Use:          "siggen",
		Short:        "SDR signal generator",
		Long:         `Transmit a sine, constant, noise, two tone or swept baseband waveform through an SDR sink, reconfigurable at runtime.`,
		Version:      fmt.Sprintf("%s (%s)", Version, Build),
		Args:         cobra.NoArgs,
		SilenceUsage: true,
	}
	f := registerFlags(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return run(cmd, f)
	}
	return cmd, f
}

func run(cmd *cobra.Command, f *cliFlags) error {
	cfg, err := f.loadConfig(cmd.Flags())
	if err != nil {
		return err
	}

	if err := logging.InitGlobalLogger(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.CloseGlobalLogger()

	logging.Infof("main", "siggen version %s starting...", Version)

	app, err := NewApp(cfg, f.httpAddress(cfg))
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Start(); err != nil {
		return err
	}
	if f.scriptPath != "" {
		app.RunScript(f.scriptPath)
	}

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	consoleDone := make(chan struct{})
	go func() {
		defer close(consoleDone)
		interactive := term.IsTerminal(int(os.Stdin.Fd()))
		runConsole(app.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), app.Dispatcher(), interactive)
	}()

	select {
	case <-consoleDone:
	case sig := <-sigChan:
		logging.Infof("main", "Received %s", sig)
	case <-app.Context().Done():
	}

	logging.Info("main", "Shutting down...")
	if err := app.Close(); err != nil {
		logging.Errorf("main", "Error during shutdown: %v", err)
	}
	logging.Info("main", "siggen stopped")
	return app.Err()
}

func main() {
	cmd, _ := newRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
