package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	kinesistypes "github.com/aws/aws-sdk-go-v2/service/kinesis/types"

	"github.com/wastewatch/wastewatch/pkg/cloud"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

type kinesisAPI interface {
	ListStreams(ctx context.Context, params *kinesis.ListStreamsInput, optFns ...func(*kinesis.Options)) (*kinesis.ListStreamsOutput, error)
	DescribeStreamSummary(ctx context.Context, params *kinesis.DescribeStreamSummaryInput, optFns ...func(*kinesis.Options)) (*kinesis.DescribeStreamSummaryOutput, error)
	ListTagsForStream(ctx context.Context, params *kinesis.ListTagsForStreamInput, optFns ...func(*kinesis.Options)) (*kinesis.ListTagsForStreamOutput, error)
}

type streamCollector struct {
	api    kinesisAPI
	region string
}

func newStreamCollector(api kinesisAPI, region string) *streamCollector {
	return &streamCollector{api: api, region: region}
}

func (c *streamCollector) Streams(ctx context.Context) ([]inventory.Stream, error) {
	var streams []inventory.Stream
	paginator := kinesis.NewListStreamsPaginator(c.api, &kinesis.ListStreamsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("kinesis.ListStreams", err)
		}
		for _, name := range page.StreamNames {
			summary, err := c.api.DescribeStreamSummary(ctx, &kinesis.DescribeStreamSummaryInput{StreamName: aws.String(name)})
			if err != nil {
				return nil, cloud.Classify("kinesis.DescribeStreamSummary", err)
			}
			desc := summary.StreamDescriptionSummary
			if desc == nil || desc.StreamStatus == kinesistypes.StreamStatusDeleting {
				continue
			}

			tags, err := c.api.ListTagsForStream(ctx, &kinesis.ListTagsForStreamInput{StreamName: aws.String(name)})
			if err != nil {
				return nil, cloud.Classify("kinesis.ListTagsForStream", err)
			}

			streams = append(streams, inventory.Stream{
				Meta: inventory.Meta{
					ID:        name,
					Name:      name,
					Region:    c.region,
					CreatedAt: aws.ToTime(desc.StreamCreationTimestamp),
					Tags:      parseKinesisTags(tags.Tags),
				},
				Status:         string(desc.StreamStatus),
				ShardCount:     int(aws.ToInt32(desc.OpenShardCount)),
				RetentionHours: int(aws.ToInt32(desc.RetentionPeriodHours)),
				ConsumerCount:  int(aws.ToInt32(desc.ConsumerCount)),
			})
		}
	}
	return streams, nil
}

func parseKinesisTags(tags []kinesistypes.Tag) map[string]string {
	out := make(map[string]string)
	for _, t := range tags {
		if t.Key != nil && t.Value != nil {
			out[*t.Key] = *t.Value
		}
	}
	return out
}
