package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/webframp/relnotes/srv"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "relnotes",
		Short:         "Serve and render a product changelog",
		Version:       srv.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newRenderCmd())
	return root
}
