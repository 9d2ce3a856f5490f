// Package main is the entry point for the sshscope binary.
//
// sshscope wraps the system SSH client (OpenSSH ssh or PuTTY plink) to open
// local port forwards, probe a remote host's web ports from the SSH side, and
// run one-shot diagnostics. Invoked without arguments it launches the
// interactive dashboard; subcommands (tunnel, scan, diag, connect, profile,
// doctor, locate) run the corresponding operation and exit.
package main

import (
	"fmt"
	"os"

	"github.com/sshscope/sshscope/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
