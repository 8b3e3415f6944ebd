package main

import (
    "log"

    "github.com/spf13/cobra"

    freshcli "github.com/amirimatin/go-freshness/pkg/cli"
)

func main() {
    if err := newRoot().Execute(); err != nil {
        log.Fatal(err)
    }
}

func newRoot() *cobra.Command {
    root := &cobra.Command{
        Use:           "freshctl",
        Short:         "go-freshness voting CLI",
        SilenceUsage:  true,
        SilenceErrors: true,
    }
    // Attach all freshness commands from pkg/cli for reuse in services
    freshcli.AddAll(root)
    return root
}
