// Package main implements the gebrd daemon entry point.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gebrproject/gebr/internal/acct"
	"github.com/gebrproject/gebr/internal/config"
	"github.com/gebrproject/gebr/internal/daemon"
	"github.com/gebrproject/gebr/pkg/gebrlog"
)

var version = "dev"

// options holds the command-line flags. Flags that are set override the
// configuration file.
type options struct {
	Home       string
	ConfigFile string
	Port       int
	Listen     string
	StatusAddr string
	ServerType string
	KeepAlive  bool
	Foreground bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	return newDaemonCommand(&options{})
}

func newDaemonCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gebrd",
		Short: "GeBR job daemon",
		Long: `gebrd runs flows submitted by GeBR clients and streams their output
and status back to every connected client.

On start the listening port is printed on stdout. When a daemon for this
host is already running, its port is printed instead and gebrd exits.`,
		Version:      version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, opts)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.Home, "home", "", "daemon home directory (default ~/.gebr)")
	pf.StringVarP(&opts.ConfigFile, "config", "c", "", "configuration file (default <home>/gebrd.yaml)")

	f := cmd.Flags()
	f.IntVarP(&opts.Port, "port", "p", 0, "listening port, 0 picks a free one")
	f.StringVar(&opts.Listen, "listen", "", "listening address")
	f.StringVar(&opts.StatusAddr, "status-addr", "", "address of the read-only HTTP status endpoint")
	f.StringVar(&opts.ServerType, "server-type", "", "regular or batch")
	f.BoolVar(&opts.KeepAlive, "keep-alive", false, "keep running after the last client quits")
	f.BoolVarP(&opts.Foreground, "foreground", "f", false, "also log to stderr")

	cmd.AddCommand(newHistoryCommand(opts))
	return cmd
}

// loadConfig builds the configuration from defaults, the file and the flags
// that were set.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	home := opts.Home
	if home == "" {
		home = config.DefaultHome()
	}
	cfg := config.NewConfig(home)
	path := opts.ConfigFile
	if path == "" {
		path = cfg.DefaultFile()
	}
	if err := cfg.Load(path); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = opts.Port
	}
	if flags.Changed("listen") {
		cfg.Listen = opts.Listen
	}
	if flags.Changed("status-addr") {
		cfg.StatusAddr = opts.StatusAddr
	}
	if flags.Changed("server-type") {
		cfg.ServerType = opts.ServerType
	}
	if flags.Changed("keep-alive") {
		cfg.KeepAlive = opts.KeepAlive
	}
	if flags.Changed("foreground") {
		cfg.Foreground = opts.Foreground
	}
	return cfg, cfg.Validate()
}

func openAcct(cfg *config.Config) (*acct.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.AcctDB), 0o755); err != nil {
		return nil, fmt.Errorf("accounting dir: %w", err)
	}
	return acct.Open(cfg.AcctDB)
}

func runDaemon(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	dl, err := gebrlog.Setup(cfg.LogDir, "gebrd", cfg.Foreground)
	if err != nil {
		return err
	}
	defer dl.Close()
	log.Printf("[DAEMON] gebrd version %s starting (home=%s)", version, cfg.Home)

	ac, err := openAcct(cfg)
	if err != nil {
		return err
	}
	defer ac.Close()

	d := daemon.New(cfg, daemon.Options{Acct: ac})
	if err := d.Start(); err != nil {
		var are *daemon.AlreadyRunningError
		if errors.As(err, &are) {
			log.Printf("[DAEMON] %v", err)
			fmt.Fprintln(cmd.OutOrStdout(), are.Port)
			return nil
		}
		log.Printf("[DAEMON] Failed to start: %v", err)
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), d.Port())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				log.Printf("[DAEMON] Received SIGHUP, ignored")
				continue
			}
			log.Printf("[DAEMON] Received %s, shutting down", sig)
			d.Shutdown()
			<-d.Done()
			return nil
		case <-d.Done():
			return nil
		}
	}
}
