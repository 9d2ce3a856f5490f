// Package cli provides the command-line interface for sshscope.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/sshscope/sshscope/internal/appconfig"
	"github.com/sshscope/sshscope/internal/browser"
	"github.com/sshscope/sshscope/internal/diag"
	"github.com/sshscope/sshscope/internal/doctor"
	"github.com/sshscope/sshscope/internal/events"
	"github.com/sshscope/sshscope/internal/history"
	"github.com/sshscope/sshscope/internal/locator"
	"github.com/sshscope/sshscope/internal/model"
	"github.com/sshscope/sshscope/internal/profile"
	"github.com/sshscope/sshscope/internal/scan"
	"github.com/sshscope/sshscope/internal/transport"
	"github.com/sshscope/sshscope/internal/tunnel"
	"github.com/sshscope/sshscope/internal/ui"
	"github.com/sshscope/sshscope/internal/util"
)

// connFlags are the connection options shared by tunnel, scan, diag, and
// connect. Explicit flags win over --profile, which wins over config.yaml
// defaults.
type connFlags struct {
	profileName string
	sshHost     string
	sshUser     string
	keyPath     string
}

func (f *connFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.profileName, "profile", "", "saved profile name")
	cmd.Flags().StringVar(&f.sshHost, "ssh-host", "", "SSH jump host")
	cmd.Flags().StringVar(&f.sshUser, "ssh-user", "", "SSH user")
	cmd.Flags().StringVar(&f.keyPath, "key", "", "private key file path")
}

func (f *connFlags) resolve() (model.TunnelConfig, error) {
	cfg, _ := appconfig.Load()
	out := model.TunnelConfig{
		SSHHost:    cfg.Defaults.SSHHost,
		SSHUser:    cfg.Defaults.SSHUser,
		KeyPath:    cfg.Defaults.KeyPath,
		RemoteHost: cfg.Defaults.TargetHost,
		RemotePort: cfg.Defaults.TargetPort,
		LocalPort:  cfg.Defaults.LocalPort,
	}
	if f.profileName != "" {
		p, err := profile.Get(f.profileName)
		if err != nil {
			return model.TunnelConfig{}, err
		}
		out = p.Tunnel
	}
	if f.sshHost != "" {
		out.SSHHost = f.sshHost
	}
	if f.sshUser != "" {
		out.SSHUser = f.sshUser
	}
	if f.keyPath != "" {
		out.KeyPath = f.keyPath
	}
	return out, nil
}

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "sshscope",
		Short: "SSH tunnel, remote port scan, and diagnostics via the system SSH client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ui.Run()
		},
	}

	root.AddCommand(
		newLocateCmd(),
		newTunnelCmd(),
		newScanCmd(),
		newDiagCmd(),
		newConnectCmd(),
		newProfileCmd(),
		newEventsCmd(),
		newDoctorCmd(),
	)
	return root
}

func newLocateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locate",
		Short: "Show which SSH transport binary sshscope would use",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, ok := locator.Default().Locate()
			if !ok {
				return locator.ErrTransportNotFound
			}
			fmt.Println(path)
			return nil
		},
	}
}

func newTunnelCmd() *cobra.Command {
	root := &cobra.Command{Use: "tunnel", Short: "Manage the SSH tunnel"}

	var flags connFlags
	var remoteHost string
	var remotePort, localPort int
	var openAfter bool
	up := &cobra.Command{
		Use:   "up",
		Short: "Open the tunnel and hold it until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve()
			if err != nil {
				return err
			}
			if remoteHost != "" {
				cfg.RemoteHost = remoteHost
			}
			if remotePort > 0 {
				cfg.RemotePort = remotePort
			}
			if localPort > 0 {
				cfg.LocalPort = localPort
			}

			bin, err := locator.Require()
			if err != nil {
				return err
			}
			bus := events.NewBus()
			go printEvents(bus.Subscribe())
			sess := tunnel.NewSession(transport.New(bin), bus)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := sess.Connect(ctx, cfg); err != nil {
				return err
			}
			fmt.Printf("tunnel up: %s (Ctrl+C to close)\n", cfg.ForwardString())
			if openAfter {
				if err := browser.Open(fmt.Sprintf("http://localhost:%d", cfg.LocalPort)); err != nil {
					slog.Warn("failed to open the browser", "error", err)
				}
			}

			<-ctx.Done()
			return sess.Disconnect()
		},
	}
	flags.register(up)
	up.Flags().StringVar(&remoteHost, "remote-host", "", "host the forward points at")
	up.Flags().IntVar(&remotePort, "remote-port", 0, "remote port")
	up.Flags().IntVar(&localPort, "local-port", 0, "local listen port")
	up.Flags().BoolVar(&openAfter, "open", false, "open http://localhost:<local-port> once the tunnel is up")

	var argsFlags connFlags
	var argsRemoteHost string
	var argsRemotePort, argsLocalPort int
	dry := &cobra.Command{
		Use:   "args",
		Short: "Print the transport command line without starting anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := argsFlags.resolve()
			if err != nil {
				return err
			}
			if argsRemoteHost != "" {
				cfg.RemoteHost = argsRemoteHost
			}
			if argsRemotePort > 0 {
				cfg.RemotePort = argsRemotePort
			}
			if argsLocalPort > 0 {
				cfg.LocalPort = argsLocalPort
			}
			bin, err := locator.Require()
			if err != nil {
				return err
			}
			client := transport.New(bin)
			fmt.Println(bin)
			for _, a := range client.BuildTunnelArgs(cfg) {
				fmt.Printf("  %s\n", a)
			}
			return nil
		},
	}
	argsFlags.register(dry)
	dry.Flags().StringVar(&argsRemoteHost, "remote-host", "", "host the forward points at")
	dry.Flags().IntVar(&argsRemotePort, "remote-port", 0, "remote port")
	dry.Flags().IntVar(&argsLocalPort, "local-port", 0, "local listen port")

	root.AddCommand(up, dry)
	return root
}

func newScanCmd() *cobra.Command {
	var flags connFlags
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "scan [target-host]",
		Short: "Probe the target's web ports from the SSH host",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveTarget(&flags, args)
			if err != nil {
				return err
			}
			bin, err := locator.Require()
			if err != nil {
				return err
			}

			if !jsonOut {
				figure.NewFigure("sshscope", "", true).Print()
				color.New(color.FgCyan).Printf("scanning %s via %s\n\n", target.RemoteHost, target.SSHHost)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			engine := scan.NewEngine(transport.New(bin), events.NewBus())
			run, err := engine.Start(ctx, target)
			if err != nil {
				return err
			}

			for f := range run.Findings() {
				if jsonOut {
					b, _ := json.Marshal(f)
					fmt.Println(string(b))
					continue
				}
				printFinding(f)
			}
			<-run.Done()

			out := run.Outcome()
			switch out.State {
			case model.ScanCompleted:
				if err := history.Touch(target.RemoteHost); err != nil {
					slog.Warn("failed to record scan history", "error", err)
				}
				if !jsonOut {
					fmt.Println()
					if len(out.OpenPorts) > 0 {
						color.New(color.FgGreen).Printf("open ports (%d): %s\n", len(out.OpenPorts), joinInts(out.OpenPorts))
					} else {
						color.New(color.Faint).Println("no open web ports found")
					}
				}
				return nil
			case model.ScanCancelled:
				if !jsonOut {
					color.New(color.FgYellow).Println("\nscan cancelled")
				}
				return nil
			default:
				return fmt.Errorf("%s", out.Err)
			}
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit findings as JSON lines")
	return cmd
}

func newDiagCmd() *cobra.Command {
	var flags connFlags
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "diag [target-host]",
		Short: "Run the fixed remote diagnostic script against the target",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveTarget(&flags, args)
			if err != nil {
				return err
			}
			bin, err := locator.Require()
			if err != nil {
				return err
			}

			runner := diag.NewRunner(transport.New(bin), events.NewBus())
			report := runner.Run(cmd.Context(), target)

			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				for _, line := range report.Lines {
					printDiagLine(line)
				}
			}
			if report.State == diag.StateErrored {
				return fmt.Errorf("%s", report.Err)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit the report as JSON")
	return cmd
}

func newConnectCmd() *cobra.Command {
	var flags connFlags
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Open an interactive session on the SSH host",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveTarget(&flags, nil)
			if err != nil {
				return err
			}
			bin, err := locator.Require()
			if err != nil {
				return err
			}
			return transport.New(bin).RunInteractive(cmd.Context(), target)
		},
	}
	flags.register(cmd)
	return cmd
}

func newProfileCmd() *cobra.Command {
	root := &cobra.Command{Use: "profile", Short: "Manage saved tunnel profiles"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := profile.LoadAll()
			if err != nil {
				return err
			}
			fmt.Printf("%-16s %-20s %-12s %-22s %s\n", "NAME", "SSH HOST", "USER", "FORWARD", "KEY")
			for _, p := range profiles {
				fmt.Printf("%-16s %-20s %-12s %-22s %s\n",
					p.Name, p.Tunnel.SSHHost, p.Tunnel.SSHUser,
					fmt.Sprintf("%d->%s:%d", p.Tunnel.LocalPort, p.Tunnel.RemoteHost, p.Tunnel.RemotePort),
					util.EmptyDash(p.Tunnel.KeyPath))
			}
			return nil
		},
	}

	var cfg model.TunnelConfig
	save := &cobra.Command{
		Use:   "save <name>",
		Short: "Save or replace a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := profile.Save(args[0], cfg); err != nil {
				return err
			}
			fmt.Printf("saved profile %s\n", args[0])
			return nil
		},
	}
	save.Flags().StringVar(&cfg.SSHHost, "ssh-host", "", "SSH jump host")
	save.Flags().StringVar(&cfg.SSHUser, "ssh-user", "root", "SSH user")
	save.Flags().StringVar(&cfg.KeyPath, "key", "", "private key file path")
	save.Flags().StringVar(&cfg.RemoteHost, "remote-host", "", "host the forward points at")
	save.Flags().IntVar(&cfg.RemotePort, "remote-port", 80, "remote port")
	save.Flags().IntVar(&cfg.LocalPort, "local-port", 8080, "local listen port")

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := profile.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted profile %s\n", args[0])
			return nil
		},
	}

	root.AddCommand(list, save, del)
	return root
}

func newEventsCmd() *cobra.Command {
	var category, level, since string
	var limit int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recorded tunnel, scan, and diag lifecycle events",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := events.Query{Category: category, Level: events.Level(level), Limit: limit}
			if since != "" {
				d, err := time.ParseDuration(since)
				if err != nil {
					return fmt.Errorf("parse --since: %w", err)
				}
				q.Since = time.Now().Add(-d)
			}
			evts, err := events.NewStore().Read(q)
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				for _, evt := range evts {
					if err := enc.Encode(evt); err != nil {
						return err
					}
				}
				return nil
			}
			if len(evts) == 0 {
				fmt.Println("no recorded events")
				return nil
			}
			for _, evt := range evts {
				printEvent(evt)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only events in this category (tunnel, scan, diag)")
	cmd.Flags().StringVar(&level, "level", "", "only events at this level (info, success, warning, error)")
	cmd.Flags().StringVar(&since, "since", "", "only events newer than this age, e.g. 30m or 24h")
	cmd.Flags().IntVar(&limit, "limit", 0, "keep only the newest N events")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit events as JSON lines")
	return cmd
}

func newDoctorCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check transport availability, profiles, and file permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := doctor.Run()
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			if report.TransportPath != "" {
				fmt.Printf("transport: %s\n", report.TransportPath)
			}
			if len(report.Issues) == 0 {
				fmt.Println("no issues found")
				return nil
			}
			for _, issue := range report.Issues {
				fmt.Printf("[%s] %s %s: %s (%s)\n", issue.Severity, issue.Check, issue.Target, issue.Message, issue.Recommendation)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

// resolveTarget builds a scan/diag target from the positional target host
// plus the shared connection flags.
func resolveTarget(flags *connFlags, args []string) (model.ScanTarget, error) {
	cfg, err := flags.resolve()
	if err != nil {
		return model.ScanTarget{}, err
	}
	target := model.ScanTarget{
		RemoteHost: cfg.RemoteHost,
		SSHHost:    cfg.SSHHost,
		SSHUser:    cfg.SSHUser,
		KeyPath:    cfg.KeyPath,
	}
	if len(args) > 0 {
		target.RemoteHost = args[0]
	}
	if err := target.Validate(); err != nil {
		return model.ScanTarget{}, err
	}
	return target, nil
}

func printFinding(f model.Finding) {
	switch f.Kind {
	case model.FindingPortOpen:
		color.New(color.FgGreen).Printf("  port %d: open\n", f.Port)
	case model.FindingPortClosed:
		color.New(color.Faint).Printf("  port %d: closed\n", f.Port)
	case model.FindingHTTPResponse:
		color.New(color.FgYellow).Printf("  %s on port %d: %s\n", f.Protocol, f.Port, f.Text)
	case model.FindingServerHeader:
		color.New(color.FgYellow).Printf("    %s\n", f.Text)
	case model.FindingSectionMarker:
		color.New(color.FgBlue).Printf("%s\n", f.Text)
	default:
		fmt.Printf("  %s\n", f.Text)
	}
}

func printDiagLine(line diag.Line) {
	switch line.Category {
	case diag.CategorySuccess:
		color.New(color.FgGreen).Println(line.Text)
	case diag.CategoryFailure:
		color.New(color.FgRed).Println(line.Text)
	case diag.CategorySection:
		color.New(color.FgBlue).Println(line.Text)
	default:
		fmt.Println(line.Text)
	}
}

func printEvents(ch <-chan events.Event) {
	for evt := range ch {
		printEvent(evt)
	}
}

func printEvent(evt events.Event) {
	ts := evt.Timestamp.Local().Format("15:04:05")
	switch evt.Level {
	case events.LevelSuccess:
		color.New(color.FgGreen).Printf("[%s] %s\n", ts, evt.Message)
	case events.LevelWarning:
		color.New(color.FgYellow).Printf("[%s] %s\n", ts, evt.Message)
	case events.LevelError:
		color.New(color.FgRed).Printf("[%s] %s\n", ts, evt.Message)
	default:
		fmt.Printf("[%s] %s\n", ts, evt.Message)
	}
}

func joinInts(nums []int) string {
	out := ""
	for i, n := range nums {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%d", n)
	}
	return out
}
