package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fluxcd/compose-sync/pkg/config"
	fluxerr "github.com/fluxcd/compose-sync/pkg/errors"
)

func main() {
	rootCmd := newRoot().Command()

	if cmd, err := rootCmd.ExecuteC(); err != nil {
		var usage *config.UsageError
		switch {
		case errors.As(err, &usage):
			fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
			fmt.Fprintln(cmd.ErrOrStderr(), "")
			fmt.Fprintln(cmd.ErrOrStderr(), cmd.UsageString())
		default:
			// already logged by the time it gets here
			if help := fluxerr.Help(err); help != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), help)
			}
		}
		os.Exit(1)
	}
}
