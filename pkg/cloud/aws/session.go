// Package aws implements the cloud.Adapter contract against AWS. Each
// resource category has its own collector working through a narrow client
// interface, so every collector is mockable without the network.
package aws

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/wastewatch/wastewatch/pkg/cloud"
	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/inventory"
	"github.com/wastewatch/wastewatch/pkg/version"
)

// Options configures the adapter. Zero values mean: default credential
// chain, us-east-1 as the home region, 60 second call timeout, 3 attempts.
type Options struct {
	Region          string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// EndpointURL overrides every service endpoint (LocalStack, proxies).
	// AWS_ENDPOINT_URL works too, matching the SDK convention.
	EndpointURL string

	// Timeout bounds each HTTP call, connect and read included.
	Timeout time.Duration

	// MaxAttempts caps SDK retries per operation.
	MaxAttempts int

	// DisableProvenance skips the event-history digests (CloudTrail),
	// which cost the most API budget per region.
	DisableProvenance bool

	// ClusterEnricher overlays live node and workload counts on collected
	// EKS inventory. Nil leaves the clusters' unknown sentinels in place.
	ClusterEnricher ClusterEnricher

	// ClusterName names the EKS cluster the enricher's credentials speak
	// for. Empty means the only cluster in the region, when there is one.
	ClusterName string

	Logger *slog.Logger
}

// ClusterEnricher is the live-cluster view the EKS collector can consult.
// The informer-backed implementation lives in pkg/cloud/k8s.
type ClusterEnricher interface {
	Enrich(ctx context.Context, inv *inventory.Inventory, clusterName string) error
}

// Adapter is the AWS implementation of cloud.Adapter.
type Adapter struct {
	cfg           aws.Config
	logger        *slog.Logger
	sts           stsAPI
	provenance    bool
	enricher      ClusterEnricher
	enrichCluster string

	mu      sync.Mutex
	metrics map[string]*metricSource
}

type stsAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// New builds an authenticated adapter. Credentials are not verified here;
// call ValidateCredentials before scanning.
func New(ctx context.Context, opts Options) (*Adapter, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	attempts := opts.MaxAttempts
	if attempts == 0 {
		attempts = 3
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithRetryMaxAttempts(attempts),
		config.WithRetryMode(aws.RetryModeAdaptive),
		config.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken)))
	}

	endpoint := opts.EndpointURL
	if endpoint == "" {
		endpoint = os.Getenv("AWS_ENDPOINT_URL")
	}
	if endpoint != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(endpoint))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	// Stamp every request so the calls are attributable in CloudTrail.
	ua := fmt.Sprintf("wastewatch/%s", version.Version)
	cfg.APIOptions = append(cfg.APIOptions, func(stack *middleware.Stack) error {
		return stack.Build.Add(middleware.BuildMiddlewareFunc("WasteWatchUA", func(ctx context.Context, input middleware.BuildInput, next middleware.BuildHandler) (
			middleware.BuildOutput, middleware.Metadata, error,
		) {
			if req, ok := input.Request.(*smithyhttp.Request); ok {
				current := req.Header.Get("User-Agent")
				if current == "" {
					req.Header.Set("User-Agent", ua)
				} else {
					req.Header.Set("User-Agent", current+" "+ua)
				}
			}
			return next.HandleBuild(ctx, input)
		}), middleware.After)
	})

	return &Adapter{
		cfg:           cfg,
		logger:        logger,
		sts:           sts.NewFromConfig(cfg),
		provenance:    !opts.DisableProvenance,
		enricher:      opts.ClusterEnricher,
		enrichCluster: opts.ClusterName,
		metrics:       make(map[string]*metricSource),
	}, nil
}

func (a *Adapter) Name() string { return "aws" }

// Config hands out a copy of the underlying SDK config so callers can build
// clients for services the adapter does not wrap (billing, price feed).
func (a *Adapter) Config() aws.Config { return a.cfg.Copy() }

// ValidateCredentials proves the keys work and returns who they belong to.
// Failures come back classified: a bad key id, a bad secret, expired
// session credentials, and an unreachable endpoint all read differently.
func (a *Adapter) ValidateCredentials(ctx context.Context) (*cloud.Identity, error) {
	out, err := a.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, cloud.Classify("sts.GetCallerIdentity", err)
	}
	id := &cloud.Identity{}
	if out.Account != nil {
		id.Account = *out.Account
	}
	if out.Arn != nil {
		id.ARN = *out.Arn
	}
	if out.UserId != nil {
		id.UserID = *out.UserId
	}
	a.logger.Debug("credentials validated", "account", id.Account, "arn", id.ARN)
	return id, nil
}

// ListRegions returns the regions enabled for this account, sorted.
func (a *Adapter) ListRegions(ctx context.Context) ([]string, error) {
	svc := ec2.NewFromConfig(a.cfg)
	out, err := svc.DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return nil, cloud.Classify("ec2.DescribeRegions", err)
	}
	regions := make([]string, 0, len(out.Regions))
	for _, r := range out.Regions {
		if r.RegionName != nil {
			regions = append(regions, *r.RegionName)
		}
	}
	sort.Strings(regions)
	return regions, nil
}

// regionCfg returns a config copy pinned to another region. The sentinel
// global region maps to the home region: global services accept any
// endpoint and the home one is already warm.
func (a *Adapter) regionCfg(region string) aws.Config {
	cfg := a.cfg.Copy()
	if region != finding.RegionGlobal {
		cfg.Region = region
	}
	return cfg
}
