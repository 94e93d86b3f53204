package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"
)

// GetProductsAPI is the slice of the price-feed client the syncer needs.
type GetProductsAPI interface {
	GetProducts(ctx context.Context, params *pricing.GetProductsInput, optFns ...func(*pricing.Options)) (*pricing.GetProductsOutput, error)
}

// Drift is one divergence between the static catalog and the live feed.
type Drift struct {
	Key    string  `json:"key"`
	Static float64 `json:"static"`
	Live   float64 `json:"live"`
	Pct    float64 `json:"pct"`
}

// Syncer compares the static catalog against the provider's price feed.
// It backs the `pricing sync` maintenance command; the scan path never
// touches the network for prices.
type Syncer struct {
	logger *slog.Logger
	api    GetProductsAPI
	region string
}

func NewSyncer(api GetProductsAPI, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	// The price feed only answers in us-east-1; probes ask for that
	// region's rates, which is also the catalog baseline.
	return &Syncer{logger: logger, api: api, region: "us-east-1"}
}

// Sync probes a representative set of SKUs and reports drift over 1%.
func (s *Syncer) Sync(ctx context.Context) ([]Drift, error) {
	var drifts []Drift

	probe := func(key string, static float64, fetch func() (float64, error)) {
		live, err := fetch()
		if err != nil {
			s.logger.Warn("price probe failed", "key", key, "error", err)
			return
		}
		pct := 0.0
		if static > 0 {
			pct = math.Abs(live-static) / static * 100
		}
		s.logger.Debug("price probe", "key", key, "static", static, "live", live)
		if pct > 1.0 {
			drifts = append(drifts, Drift{Key: key, Static: static, Live: live, Pct: pct})
		}
	}

	for _, volType := range []string{"gp2", "gp3", "st1", "sc1"} {
		vt := volType
		probe("volume/"+vt, volumeGBRate[vt], func() (float64, error) {
			return s.fetchVolumeRate(ctx, vt)
		})
	}
	for _, shape := range []string{"t3.micro", "m5.large", "c5.large", "r5.large"} {
		sh := shape
		probe("instance/"+sh, instanceHourly[sh], func() (float64, error) {
			return s.fetchInstanceRate(ctx, sh)
		})
	}
	probe("nat_gateway/hourly", natGatewayHourly, func() (float64, error) {
		return s.fetchNATRate(ctx)
	})

	return drifts, nil
}

func (s *Syncer) fetchVolumeRate(ctx context.Context, volType string) (float64, error) {
	var volTypeVal string
	switch volType {
	case "gp2":
		volTypeVal = "General Purpose"
	case "gp3":
		volTypeVal = "General Purpose SSD (gp3)"
	case "io1", "io2":
		volTypeVal = "Provisioned IOPS SSD"
	case "st1":
		volTypeVal = "Throughput Optimized HDD"
	case "sc1":
		volTypeVal = "Cold HDD"
	case "standard":
		volTypeVal = "Magnetic"
	default:
		return 0, fmt.Errorf("unknown volume type %q", volType)
	}

	return s.getFirstPrice(ctx, []pricingtypes.Filter{
		termMatch("productFamily", "Storage"),
		termMatch("serviceCode", "AmazonEC2"),
		termMatch("regionCode", s.region),
		termMatch("volumeType", volTypeVal),
	})
}

func (s *Syncer) fetchInstanceRate(ctx context.Context, instanceType string) (float64, error) {
	return s.getFirstPrice(ctx, []pricingtypes.Filter{
		termMatch("productFamily", "Compute Instance"),
		termMatch("serviceCode", "AmazonEC2"),
		termMatch("regionCode", s.region),
		termMatch("instanceType", instanceType),
		termMatch("tenancy", "Shared"),
		termMatch("operatingSystem", "Linux"),
		termMatch("preInstalledSw", "NA"),
		termMatch("capacitystatus", "Used"),
	})
}

func (s *Syncer) fetchNATRate(ctx context.Context) (float64, error) {
	return s.getFirstPrice(ctx, []pricingtypes.Filter{
		termMatch("serviceCode", "AmazonEC2"),
		termMatch("regionCode", s.region),
		termMatch("productFamily", "NAT Gateway"),
	})
}

func termMatch(field, value string) pricingtypes.Filter {
	return pricingtypes.Filter{
		Type:  pricingtypes.FilterTypeTermMatch,
		Field: aws.String(field),
		Value: aws.String(value),
	}
}

func (s *Syncer) getFirstPrice(ctx context.Context, filters []pricingtypes.Filter) (float64, error) {
	out, err := s.api.GetProducts(ctx, &pricing.GetProductsInput{
		ServiceCode: aws.String("AmazonEC2"),
		Filters:     filters,
		MaxResults:  aws.Int32(1),
	})
	if err != nil {
		return 0, err
	}
	if len(out.PriceList) == 0 {
		return 0, fmt.Errorf("no products matched")
	}
	return parsePriceList(out.PriceList[0])
}

// parsePriceList digs the USD rate out of a price-feed product document:
// terms.OnDemand.<sku>.priceDimensions.<dim>.pricePerUnit.USD.
func parsePriceList(doc string) (float64, error) {
	type priceDimension struct {
		PricePerUnit map[string]string `json:"pricePerUnit"`
	}
	type term struct {
		PriceDimensions map[string]priceDimension `json:"priceDimensions"`
	}
	type product struct {
		Terms map[string]map[string]term `json:"terms"`
	}

	var p product
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return 0, err
	}
	for _, t := range p.Terms["OnDemand"] {
		for _, dim := range t.PriceDimensions {
			if usd, ok := dim.PricePerUnit["USD"]; ok {
				if v, err := strconv.ParseFloat(usd, 64); err == nil && v > 0 {
					return v, nil
				}
			}
		}
	}
	return 0, fmt.Errorf("no USD rate in product document")
}
