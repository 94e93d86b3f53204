package aws

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"

	"github.com/wastewatch/wastewatch/pkg/cloud"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

type ecrAPI interface {
	DescribeRepositories(ctx context.Context, params *ecr.DescribeRepositoriesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error)
	DescribeImages(ctx context.Context, params *ecr.DescribeImagesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error)
	GetLifecyclePolicy(ctx context.Context, params *ecr.GetLifecyclePolicyInput, optFns ...func(*ecr.Options)) (*ecr.GetLifecyclePolicyOutput, error)
	ListTagsForResource(ctx context.Context, params *ecr.ListTagsForResourceInput, optFns ...func(*ecr.Options)) (*ecr.ListTagsForResourceOutput, error)
}

type repoCollector struct {
	api    ecrAPI
	region string
}

func newRepoCollector(api ecrAPI, region string) *repoCollector {
	return &repoCollector{api: api, region: region}
}

func (c *repoCollector) Repos(ctx context.Context) ([]inventory.Repo, error) {
	var repos []inventory.Repo
	paginator := ecr.NewDescribeRepositoriesPaginator(c.api, &ecr.DescribeRepositoriesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("ecr.DescribeRepositories", err)
		}
		for _, repo := range page.Repositories {
			name := aws.ToString(repo.RepositoryName)
			item := inventory.Repo{
				Meta: inventory.Meta{
					ID:        name,
					Name:      name,
					Region:    c.region,
					CreatedAt: aws.ToTime(repo.CreatedAt),
				},
			}

			images := ecr.NewDescribeImagesPaginator(c.api, &ecr.DescribeImagesInput{RepositoryName: repo.RepositoryName})
			for images.HasMorePages() {
				imgPage, err := images.NextPage(ctx)
				if err != nil {
					return nil, cloud.Classify("ecr.DescribeImages", err)
				}
				for _, img := range imgPage.ImageDetails {
					size := aws.ToInt64(img.ImageSizeInBytes)
					item.ImageCount++
					item.TotalSizeBytes += size
					if len(img.ImageTags) == 0 {
						item.UntaggedCount++
						item.UntaggedBytes += size
					}
					if pushed := aws.ToTime(img.ImagePushedAt); pushed.After(item.LastPush) {
						item.LastPush = pushed
					}
				}
			}

			_, err := c.api.GetLifecyclePolicy(ctx, &ecr.GetLifecyclePolicyInput{RepositoryName: repo.RepositoryName})
			var notFound *ecrtypes.LifecyclePolicyNotFoundException
			switch {
			case err == nil:
				item.HasLifecycle = true
			case errors.As(err, &notFound):
			default:
				return nil, cloud.Classify("ecr.GetLifecyclePolicy", err)
			}

			tags, err := c.api.ListTagsForResource(ctx, &ecr.ListTagsForResourceInput{ResourceArn: repo.RepositoryArn})
			if err != nil {
				return nil, cloud.Classify("ecr.ListTagsForResource", err)
			}
			item.Tags = parseECRTags(tags.Tags)

			repos = append(repos, item)
		}
	}
	return repos, nil
}

func parseECRTags(tags []ecrtypes.Tag) map[string]string {
	out := make(map[string]string)
	for _, t := range tags {
		if t.Key != nil && t.Value != nil {
			out[*t.Key] = *t.Value
		}
	}
	return out
}
