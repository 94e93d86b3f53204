package commands

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	awspricing "github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wastewatch/wastewatch/pkg/cloud/aws"
	"github.com/wastewatch/wastewatch/pkg/pricing"
)

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Inspect or verify the price catalog",
	Long: `The scan path prices findings from a static catalog and never
calls a price API. These subcommands look inside that catalog and check it
against the provider's live feed.`,
}

var pricingShowCmd = &cobra.Command{
	Use:   "show [region]",
	Short: "Print representative catalog rates for a region",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPricingShow,
}

var pricingSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Check the static catalog against the live price feed",
	Long: `Probes a representative set of SKUs on the provider's price feed
and reports every rate that drifted more than a percent from the static
catalog. Needs pricing:GetProducts permission.`,
	RunE: runPricingSync,
}

func init() {
	pricingCmd.AddCommand(pricingShowCmd)
	pricingCmd.AddCommand(pricingSyncCmd)
}

func runPricingShow(cmd *cobra.Command, args []string) error {
	region := viper.GetString("region")
	if len(args) == 1 {
		region = args[0]
	}
	if region == "" {
		region = "us-east-1"
	}

	catalog := pricing.New()
	p := catalog.Region(region)

	fmt.Printf("catalog %s  region %s  (USD per month)\n\n", catalog.Version(), region)

	t3, _ := p.InstanceMonthly("t3.micro")
	m5, _ := p.InstanceMonthly("m5.large")
	db, _ := p.DBInstanceMonthly("db.t3.medium", false)

	rows := []struct {
		name string
		usd  float64
	}{
		{"volume gp2, per GiB", p.VolumeGBRate("gp2")},
		{"volume gp3, per GiB", p.VolumeGBRate("gp3")},
		{"volume io1, per GiB", p.VolumeGBRate("io1")},
		{"snapshot, per GiB", p.SnapshotMonthly(1)},
		{"public ip, idle", p.PublicIPMonthly()},
		{"nat gateway", p.NATGatewayMonthly()},
		{"load balancer, application", p.LoadBalancerMonthly("application")},
		{"load balancer, network", p.LoadBalancerMonthly("network")},
		{"instance t3.micro", t3},
		{"instance m5.large", m5},
		{"db instance db.t3.medium", db},
		{"stream shard", p.StreamShardMonthly()},
		{"eks cluster", p.EKSClusterMonthly()},
		{"hosted zone", p.HostedZoneMonthly()},
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t$%s\n", r.name, strconv.FormatFloat(r.usd, 'f', -1, 64))
	}
	return tw.Flush()
}

func runPricingSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger(false)

	adapter, err := aws.New(ctx, aws.Options{
		Region:      viper.GetString("region"),
		Profile:     viper.GetString("profile"),
		EndpointURL: viper.GetString("endpoint-url"),
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("aws session: %w", err)
	}

	// The price feed only answers in us-east-1, whatever the session region.
	cfg := adapter.Config()
	cfg.Region = "us-east-1"

	drifts, err := pricing.NewSyncer(awspricing.NewFromConfig(cfg), logger).Sync(ctx)
	if err != nil {
		return err
	}

	catalog := pricing.New()
	if len(drifts) == 0 {
		fmt.Printf("catalog %s matches the live feed\n", catalog.Version())
		return nil
	}

	fmt.Printf("catalog %s: %d rate(s) drifted\n\n", catalog.Version(), len(drifts))
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RATE\tSTATIC\tLIVE\tDRIFT")
	for _, d := range drifts {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.1f%%\n", d.Key, d.Static, d.Live, d.Pct)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Println("\nupdate the static tables and cut a new catalog version to absorb the drift")
	return nil
}
