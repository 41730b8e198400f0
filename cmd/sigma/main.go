package main

import (
	"os"

	"github.com/spf13/cobra"

	askcmder "github.com/sigmachat/sigma/cmd/sigma/ask"
	servecmder "github.com/sigmachat/sigma/cmd/sigma/serve"
)

const sigmaLongDesc string = `SIGMA relay: a streaming chat gateway in front of a chain of LLM providers.

Run the gateway with "sigma serve", then talk to it with "sigma ask".`

const sigmaShortDesc string = "SIGMA streaming chat gateway"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "sigma",
		Short:        sigmaShortDesc,
		Long:         sigmaLongDesc,
		SilenceUsage: true,
	}

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(askcmder.NewAskCmd())

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
