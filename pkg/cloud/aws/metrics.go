package aws

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/wastewatch/wastewatch/pkg/cloud"
	"github.com/wastewatch/wastewatch/pkg/metricops"
)

type cloudwatchAPI interface {
	GetMetricData(ctx context.Context, params *cloudwatch.GetMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error)
}

// metricSource answers metric queries for one region and memoizes every
// answer for the lifetime of the scan, so scenarios that want the same
// series cost one API call between them.
type metricSource struct {
	api    cloudwatchAPI
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]metricops.Sample
}

func newMetricSource(api cloudwatchAPI, logger *slog.Logger) *metricSource {
	return &metricSource{
		api:    api,
		logger: logger,
		cache:  make(map[string]metricops.Sample),
	}
}

// Metrics returns the memoizing telemetry source for a region, creating it
// on first use.
func (a *Adapter) Metrics(region string) cloud.MetricSource {
	a.mu.Lock()
	defer a.mu.Unlock()
	if src, ok := a.metrics[region]; ok {
		return src
	}
	src := newMetricSource(
		cloudwatch.NewFromConfig(a.regionCfg(region)),
		a.logger.With("region", region),
	)
	a.metrics[region] = src
	return src
}

// Metric fetches one series via GetMetricData. Errors come back classified;
// an answered-but-empty series comes back with Missing set, which is not
// the same thing as a series of zeros.
func (m *metricSource) Metric(ctx context.Context, q cloud.MetricQuery) (metricops.Sample, error) {
	key := q.CacheKey()
	m.mu.Lock()
	if s, ok := m.cache[key]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	sample, err := m.fetch(ctx, q)
	if err != nil {
		return metricops.Sample{}, err
	}

	m.mu.Lock()
	m.cache[key] = sample
	m.mu.Unlock()
	return sample, nil
}

func (m *metricSource) fetch(ctx context.Context, q cloud.MetricQuery) (metricops.Sample, error) {
	period := int32(q.Period / time.Second)
	if period <= 0 {
		period = 3600
	}

	// Sorted dimensions keep request shape deterministic for tests.
	keys := make([]string, 0, len(q.Dimensions))
	for k := range q.Dimensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	dims := make([]cwtypes.Dimension, 0, len(keys))
	for _, k := range keys {
		dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(q.Dimensions[k])})
	}

	input := &cloudwatch.GetMetricDataInput{
		StartTime: aws.Time(q.Start),
		EndTime:   aws.Time(q.End),
		ScanBy:    cwtypes.ScanByTimestampAscending,
		MetricDataQueries: []cwtypes.MetricDataQuery{{
			Id: aws.String("m0"),
			MetricStat: &cwtypes.MetricStat{
				Metric: &cwtypes.Metric{
					Namespace:  aws.String(q.Namespace),
					MetricName: aws.String(q.Name),
					Dimensions: dims,
				},
				Period: aws.Int32(period),
				Stat:   aws.String(q.Stat),
			},
		}},
	}

	var points []metricops.Point
	paginator := cloudwatch.NewGetMetricDataPaginator(m.api, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return metricops.Sample{}, cloud.Classify("cloudwatch.GetMetricData", err)
		}
		for _, result := range page.MetricDataResults {
			for i := range result.Values {
				if i >= len(result.Timestamps) {
					break
				}
				points = append(points, metricops.Point{
					Time:  result.Timestamps[i],
					Value: result.Values[i],
				})
			}
		}
	}

	sample := metricops.Sample{
		Metric:  q.Namespace + "/" + q.Name,
		Stat:    q.Stat,
		Points:  points,
		Missing: len(points) == 0,
	}
	m.logger.Debug("metric fetched",
		"metric", sample.Metric, "stat", q.Stat, "points", len(points))
	return sample, nil
}
