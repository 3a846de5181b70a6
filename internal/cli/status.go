package cli

import (
	"fmt"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newStatusCommand(e *env) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check whether the backend answers its health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.load(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			url := a.Backend.BaseURL()

			if !watch {
				if a.Probe.Check(cmd.Context()) {
					fmt.Fprintf(out, "Backend %s: online\n", url)
					return nil
				}
				return errors.Errorf("Backend %s: offline", url)
			}

			last := ""
			a.Probe.OnStatus(func(online bool) {
				state := "offline"
				if online {
					state = "online"
				}
				if state == last {
					return
				}
				last = state
				fmt.Fprintf(out, "%s  Backend %s: %s\n", time.Now().Format(time.Kitchen), url, state)
			})
			a.Probe.Run(cmd.Context())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep polling and print every status change")
	return cmd
}

func newServeCommand(e *env) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the views over HTTP and keep probing the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				e.cfg.Server.Port = port
			}
			a, err := e.load(cmd.Context())
			if err != nil {
				return err
			}
			return a.Serve(cmd.Context(), e.version)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "Listen port")
	return cmd
}

func newVersionCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "threatctl %s (%s %s/%s)\n", e.version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
