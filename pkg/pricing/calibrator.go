package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
)

// CostUsageAPI is the slice of the billing client the calibrator needs.
type CostUsageAPI interface {
	GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
}

type discountCache struct {
	Factor    float64 `json:"factor"`
	Timestamp int64   `json:"timestamp"`
}

// Calibrator derives a discount factor from the account's real billing:
// amortized over unblended spend for compute during the last week. Accounts
// on savings plans or reserved capacity land well under 1.0, which keeps
// estimates honest. Every path fails open to list price.
type Calibrator struct {
	logger    *slog.Logger
	api       CostUsageAPI
	cachePath string
	override  float64
}

// NewCalibrator builds a calibrator against the given billing client. A
// positive override short-circuits the API when calibration fails.
func NewCalibrator(api CostUsageAPI, logger *slog.Logger, cacheDir string, override float64) *Calibrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cacheDir == "" {
		cacheDir = os.TempDir()
	}
	return &Calibrator{
		logger:    logger,
		api:       api,
		cachePath: filepath.Join(cacheDir, "discounts.json"),
		override:  override,
	}
}

// Factor returns the calibration factor, from cache when fresh.
func (c *Calibrator) Factor(ctx context.Context) float64 {
	if factor, ok := c.loadCache(); ok {
		return factor
	}

	factor, err := c.fetch(ctx)
	if err != nil {
		if c.override > 0 {
			c.logger.Warn("billing calibration failed, using manual override",
				"error", err, "override", c.override)
			return c.override
		}
		c.logger.Warn("billing calibration failed, using list prices", "error", err)
		return 1.0
	}

	c.saveCache(factor)
	return factor
}

func (c *Calibrator) loadCache() (float64, bool) {
	data, err := os.ReadFile(c.cachePath)
	if err != nil {
		return 1.0, false
	}
	var cache discountCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return 1.0, false
	}
	if time.Since(time.Unix(cache.Timestamp, 0)) > 24*time.Hour {
		return 1.0, false
	}
	return cache.Factor, true
}

func (c *Calibrator) saveCache(factor float64) {
	data, _ := json.MarshalIndent(discountCache{
		Factor:    factor,
		Timestamp: time.Now().Unix(),
	}, "", "  ")
	os.MkdirAll(filepath.Dir(c.cachePath), 0755)
	os.WriteFile(c.cachePath, data, 0644)
}

func (c *Calibrator) fetch(ctx context.Context) (float64, error) {
	if c.api == nil {
		return 1.0, fmt.Errorf("no billing client configured")
	}

	end := time.Now().Format("2006-01-02")
	start := time.Now().AddDate(0, 0, -7).Format("2006-01-02")

	out, err := c.api.GetCostAndUsage(ctx, &costexplorer.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(start),
			End:   aws.String(end),
		},
		Granularity: cetypes.GranularityDaily,
		Metrics:     []string{"AmortizedCost", "UnblendedCost"},
		Filter: &cetypes.Expression{
			Dimensions: &cetypes.DimensionValues{
				Key:    cetypes.DimensionService,
				Values: []string{"Amazon Elastic Compute Cloud - Compute"},
			},
		},
	})
	if err != nil {
		return 1.0, err
	}

	var amortized, unblended float64
	for _, byTime := range out.ResultsByTime {
		if amt, ok := byTime.Total["AmortizedCost"]; ok && amt.Amount != nil {
			v, _ := strconv.ParseFloat(*amt.Amount, 64)
			amortized += v
		}
		if amt, ok := byTime.Total["UnblendedCost"]; ok && amt.Amount != nil {
			v, _ := strconv.ParseFloat(*amt.Amount, 64)
			unblended += v
		}
	}

	if unblended == 0 {
		return 1.0, nil
	}
	factor := amortized / unblended
	if factor > 1.5 || factor < 0.1 {
		// Suspicious ratio, do not trust it.
		return 1.0, nil
	}

	c.logger.Info("calibrated discount factor", "factor", factor, "window_days", 7)
	return factor, nil
}
