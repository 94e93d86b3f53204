package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wastewatch/wastewatch/internal/ui"
	"github.com/wastewatch/wastewatch/pkg/cloud/aws"
	"github.com/wastewatch/wastewatch/pkg/cloud/k8s"
	"github.com/wastewatch/wastewatch/pkg/engine"
	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/iac"
	"github.com/wastewatch/wastewatch/pkg/policy"
	"github.com/wastewatch/wastewatch/pkg/pricing"
	"github.com/wastewatch/wastewatch/pkg/report"
	"github.com/wastewatch/wastewatch/pkg/rules"
	"github.com/wastewatch/wastewatch/pkg/scenarios"
	"github.com/wastewatch/wastewatch/pkg/storage"
	"github.com/wastewatch/wastewatch/pkg/telemetry"
	"github.com/wastewatch/wastewatch/pkg/version"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the account for waste",
	Long: `Runs the full detection pipeline: validate credentials, resolve
regions, collect inventory, evaluate every scenario, price and grade the
findings, report.

Example:
  wastewatch scan --tui
  wastewatch scan --regions us-east-1,eu-west-1 --format json -o waste.json
  wastewatch scan --types volume,snapshot --rules thresholds.yaml`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringSlice("regions", nil, "regions to scan (default: every enabled region)")
	scanCmd.Flags().StringSlice("types", nil, "resource types to scan (default: all)")
	scanCmd.Flags().String("rules", "", "YAML file with threshold overrides")
	scanCmd.Flags().String("policy", "", "policy file (.yaml or .hcl) applied to findings")
	scanCmd.Flags().String("tfstate", "", "terraform state file used to mark repo-managed resources")
	scanCmd.Flags().String("format", "table", "report format: json, csv, table or html")
	scanCmd.Flags().StringP("output", "o", "", "write the report to a file instead of stdout")
	scanCmd.Flags().String("archive", "", "copy the JSON report to a directory or s3://bucket/prefix")
	scanCmd.Flags().Bool("tui", false, "browse the findings interactively")
	scanCmd.Flags().Int("concurrency", 0, "regions scanned in parallel (0: engine default)")
	scanCmd.Flags().Duration("region-timeout", 0, "time budget per region (0: engine default)")
	scanCmd.Flags().Bool("no-provenance", false, "skip event-history digests (faster, weaker age evidence)")
	scanCmd.Flags().String("kubeconfig", "", "kubeconfig granting a live view into one EKS cluster")
	scanCmd.Flags().String("kube-context", "", "kubeconfig context to use (default: the file's current one)")
	scanCmd.Flags().String("kube-cluster", "", "EKS cluster the kubeconfig speaks for (default: the region's only one)")
	scanCmd.Flags().Float64("discount", 0, "flat price multiplier for negotiated rates")
	scanCmd.Flags().Bool("calibrate", false, "derive the discount from the last week of billing")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json", "csv", "table", "html":
	default:
		return fmt.Errorf("unknown format %q: want json, csv, table or html", format)
	}

	typeNames, _ := cmd.Flags().GetStringSlice("types")
	types, err := parseTypes(typeNames)
	if err != nil {
		return err
	}

	var state *iac.State
	if path, _ := cmd.Flags().GetString("tfstate"); path != "" {
		state, err = iac.LoadStateFile(path)
		if err != nil {
			return fmt.Errorf("load terraform state: %w", err)
		}
	}

	tuiMode, _ := cmd.Flags().GetBool("tui")
	logger := newLogger(tuiMode)

	shutdown, err := telemetry.Init(ctx, version.AppName, version.Version, "")
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	} else {
		defer shutdown(context.Background())
	}

	var enricher aws.ClusterEnricher
	kubeCluster, _ := cmd.Flags().GetString("kube-cluster")
	if kubeconfig, _ := cmd.Flags().GetString("kubeconfig"); kubeconfig != "" {
		kubeContext, _ := cmd.Flags().GetString("kube-context")
		enricher, err = k8s.FromKubeconfig(kubeconfig, kubeContext, k8s.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("cluster access: %w", err)
		}
	}

	noProvenance, _ := cmd.Flags().GetBool("no-provenance")
	adapter, err := aws.New(ctx, aws.Options{
		Region:            viper.GetString("region"),
		Profile:           viper.GetString("profile"),
		EndpointURL:       viper.GetString("endpoint-url"),
		DisableProvenance: noProvenance,
		ClusterEnricher:   enricher,
		ClusterName:       kubeCluster,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("aws session: %w", err)
	}

	set := rules.Defaults()
	if path, _ := cmd.Flags().GetString("rules"); path != "" {
		overrides, err := rules.LoadFile(path)
		if err != nil {
			return err
		}
		merged, warnings, err := rules.Merge(set, overrides)
		if err != nil {
			return err
		}
		for _, w := range warnings {
			logger.Warn("rules override ignored", "detail", w)
		}
		set = merged
	}

	catalog := pricing.New()
	discount, _ := cmd.Flags().GetFloat64("discount")
	calibrate, _ := cmd.Flags().GetBool("calibrate")
	switch {
	case discount > 0:
		catalog.SetDiscount(discount)
	case calibrate:
		cal := pricing.NewCalibrator(costexplorer.NewFromConfig(adapter.Config()), logger, cacheDir(), 0)
		catalog.SetDiscount(cal.Factor(ctx))
	}

	opts := []engine.Option{engine.WithLogger(logger)}
	if n, _ := cmd.Flags().GetInt("concurrency"); n > 0 {
		opts = append(opts, engine.WithConcurrency(n))
	}
	if d, _ := cmd.Flags().GetDuration("region-timeout"); d > 0 {
		opts = append(opts, engine.WithRegionTimeout(d))
	}
	if path, _ := cmd.Flags().GetString("policy"); path != "" {
		pol, err := policy.Load(path)
		if err != nil {
			return err
		}
		opts = append(opts, engine.WithPolicy(pol))
	}

	eng := engine.New(adapter, &set, catalog, opts...)

	regions, _ := cmd.Flags().GetStringSlice("regions")
	req := engine.Request{Regions: regions, Types: types}

	if tuiMode {
		return browseFindings(ctx, cmd, eng, adapter, req, state)
	}

	res, err := eng.Scan(ctx, req)
	if err != nil {
		return err
	}
	if state != nil {
		n := iac.Annotate(res.Findings, state)
		logger.Info("cross-referenced terraform state", "managed", n, "indexed_ids", state.Len())
	}
	if err := writeReport(cmd, res); err != nil {
		return err
	}
	return archiveReport(ctx, cmd, adapter, res)
}

// browseFindings runs the scan behind the TUI spinner and hands the result
// to the findings browser. The report, if requested, is written after the
// screen is released, minus whatever the user ignored during the session.
func browseFindings(ctx context.Context, cmd *cobra.Command, eng *engine.Engine, adapter *aws.Adapter, req engine.Request, state *iac.State) error {
	model := ui.New(func() (*engine.Result, error) {
		res, err := eng.Scan(ctx, req)
		if err == nil && state != nil {
			iac.Annotate(res.Findings, state)
		}
		return res, err
	})
	res, err := ui.Run(model)
	if err != nil {
		return err
	}
	if res == nil {
		// Aborted before the scan finished.
		return nil
	}

	if hidden, err := ui.LoadIgnored(ui.DefaultIgnoreFile); err == nil && len(hidden) > 0 {
		kept := make([]finding.Finding, 0, len(res.Findings))
		for _, f := range res.Findings {
			if !hidden[f.ResourceID] {
				kept = append(kept, f)
			}
		}
		res.Findings = kept
	}

	if output, _ := cmd.Flags().GetString("output"); output != "" {
		if err := writeReport(cmd, res); err != nil {
			return err
		}
	}
	if err := archiveReport(ctx, cmd, adapter, res); err != nil {
		return err
	}
	fmt.Println(ui.ExitSummary(res))
	return nil
}

// archiveReport copies the canonical JSON document to the archive location,
// if one was requested. The archive always stores JSON regardless of the
// display format, so past runs stay machine-readable.
func archiveReport(ctx context.Context, cmd *cobra.Command, adapter *aws.Adapter, res *engine.Result) error {
	dest, _ := cmd.Flags().GetString("archive")
	if dest == "" {
		return nil
	}
	store, err := storage.FromLocation(dest, adapter.Config())
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := report.WriteJSON(&buf, res); err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}
	key := storage.ReportKey(res.Account, res.StartedAt)
	if err := store.Put(ctx, key, buf.Bytes()); err != nil {
		return fmt.Errorf("archive report: %w", err)
	}
	fmt.Fprintf(os.Stderr, "report archived as %s\n", key)
	return nil
}

func writeReport(cmd *cobra.Command, res *engine.Result) error {
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")

	w := io.Writer(os.Stdout)
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer f.Close()
		w = f
	}

	var err error
	switch format {
	case "json":
		err = report.WriteJSON(w, res)
	case "csv":
		err = report.WriteCSV(w, res)
	case "html":
		err = report.WriteHTML(w, res)
	default:
		err = report.WriteTable(w, res)
	}
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if output != "" {
		fmt.Fprintf(os.Stderr, "report written to %s\n", output)
	}
	return nil
}

// parseTypes validates the --types flag against the registered catalog so a
// typo fails before any network call.
func parseTypes(names []string) ([]finding.ResourceType, error) {
	if len(names) == 0 {
		return nil, nil
	}
	known := make(map[finding.ResourceType]bool)
	for _, rt := range scenarios.Types() {
		known[rt] = true
	}
	types := make([]finding.ResourceType, 0, len(names))
	for _, n := range names {
		rt := finding.ResourceType(strings.TrimSpace(n))
		if !known[rt] {
			return nil, fmt.Errorf("unknown resource type %q (run `wastewatch rules` for the list)", n)
		}
		types = append(types, rt)
	}
	return types, nil
}

func cacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return os.TempDir()
	}
	return filepath.Join(base, "wastewatch")
}
