package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/wastewatch/wastewatch/pkg/pricing"
	"github.com/wastewatch/wastewatch/pkg/scenarios"
	"github.com/wastewatch/wastewatch/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build and catalog identity",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wastewatch %s\n", version.Full())
		fmt.Printf("  go        %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		fmt.Printf("  catalog   %s\n", pricing.CatalogVersion)
		fmt.Printf("  scenarios %d across %d resource types\n", scenarios.Count(), len(scenarios.Types()))
	},
}
