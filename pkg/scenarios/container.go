package scenarios

import (
	"context"
	"fmt"

	"github.com/wastewatch/wastewatch/pkg/finding"
)

func init() {
	Register(Scenario{
		ID:           "untagged_images",
		ResourceType: finding.TypeContainerRepo,
		Kind:         finding.CostAbsolute,
		Doc:          "Untagged image layers nothing can pull by name",
		Detect:       detectUntaggedImages,
	})
	Register(Scenario{
		ID:           "stale_repository",
		ResourceType: finding.TypeContainerRepo,
		Kind:         finding.CostAbsolute,
		Doc:          "Repository nobody has pushed to in months",
		Detect:       detectStaleRepos,
	})
	Register(Scenario{
		ID:           "repo_no_lifecycle_policy",
		ResourceType: finding.TypeContainerRepo,
		Kind:         finding.CostSavings,
		Doc:          "Untagged layers pile up with no lifecycle policy to expire them",
		Detect:       detectRepoNoLifecycle,
	})
	Register(Scenario{
		ID:           "empty_cluster",
		ResourceType: finding.TypeContainerService,
		Kind:         finding.CostAbsolute,
		Doc:          "Container cluster with no services, tasks, or instances",
		Detect:       detectEmptyClusters,
	})
	Register(Scenario{
		ID:           "zero_task_service",
		ResourceType: finding.TypeContainerService,
		Kind:         finding.CostAbsolute,
		Doc:          "Service running zero tasks",
		Detect:       detectZeroTaskServices,
	})
}

func repoGB(bytes int64) float64 {
	return float64(bytes) / (1 << 30)
}

func detectUntaggedImages(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, repo := range sc.Inventory.Repos {
		if repo.UntaggedCount == 0 {
			continue
		}
		f := sc.newFinding(finding.TypeContainerRepo, repo.Meta, "untagged_images",
			fmt.Sprintf("%d of %d images are untagged layers nothing can pull by name",
				repo.UntaggedCount, repo.ImageCount),
			sc.Pricer.RepoStorageMonthly(repoGB(repo.UntaggedBytes)), finding.CostAbsolute)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetSignal("untagged_images", float64(repo.UntaggedCount))
		f.Metadata.SetSignal("untagged_gb", repoGB(repo.UntaggedBytes))
		out = append(out, f)
	}
	return out
}

func detectStaleRepos(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.ContainerRepo
	ladder := sc.Rules.LadderFor(finding.TypeContainerRepo)
	var out []finding.Finding
	for _, repo := range sc.Inventory.Repos {
		if repo.LastPush.IsZero() || repo.ImageCount == 0 {
			continue
		}
		staleDays := finding.AgeDays(repo.LastPush, sc.Now)
		if staleDays <= r.StaleDays {
			continue
		}
		f := sc.newFinding(finding.TypeContainerRepo, repo.Meta, "stale_repository",
			fmt.Sprintf("last push was %d days ago; %d images kept warm for nobody", staleDays, repo.ImageCount),
			sc.Pricer.RepoStorageMonthly(repoGB(repo.TotalSizeBytes)), finding.CostAbsolute)
		raise(&f, ladder.ForAge(staleDays))
		f.Metadata.SetSignal("days_since_push", float64(staleDays))
		f.Metadata.SetSignal("size_gb", repoGB(repo.TotalSizeBytes))
		out = append(out, f)
	}
	return out
}

func detectRepoNoLifecycle(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, repo := range sc.Inventory.Repos {
		if repo.HasLifecycle || repo.UntaggedBytes == 0 {
			continue
		}
		f := sc.newFinding(finding.TypeContainerRepo, repo.Meta, "repo_no_lifecycle_policy",
			fmt.Sprintf("no lifecycle policy; %.1f GB of untagged layers would expire under one", repoGB(repo.UntaggedBytes)),
			sc.Pricer.RepoStorageMonthly(repoGB(repo.UntaggedBytes)), finding.CostSavings)
		raise(&f, finding.ConfidenceMedium)
		out = append(out, f)
	}
	return out
}

func detectEmptyClusters(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, cluster := range sc.Inventory.ContainerClusters {
		if cluster.Status != "ACTIVE" {
			continue
		}
		if cluster.ActiveServices != 0 || cluster.RunningTasks != 0 || cluster.RegisteredInstances != 0 {
			continue
		}
		// The control plane itself is free; the finding is hygiene.
		f := sc.newFinding(finding.TypeContainerService, cluster.Meta, "empty_cluster",
			"active cluster with no services, no tasks, and no registered instances",
			0, finding.CostAbsolute)
		out = append(out, f)
	}
	return out
}

func detectZeroTaskServices(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.ContainerService
	var out []finding.Finding
	for _, cluster := range sc.Inventory.ContainerClusters {
		for _, svc := range cluster.Services {
			if svc.RunningCount != 0 {
				continue
			}
			age := finding.AgeDays(svc.CreatedAt, sc.Now)
			if age < r.ZeroTaskMinDays {
				continue
			}
			reason := fmt.Sprintf("service in cluster %s has run zero tasks", cluster.DisplayName())
			if svc.DesiredCount > 0 {
				reason = fmt.Sprintf("service in cluster %s wants %d tasks but runs none; deploys are failing",
					cluster.DisplayName(), svc.DesiredCount)
			}
			f := sc.newFinding(finding.TypeContainerService, svc.Meta, "zero_task_service",
				reason, 0, finding.CostAbsolute)
			if svc.DesiredCount > 0 {
				raise(&f, finding.ConfidenceMedium)
			}
			f.Metadata.SetDetail("cluster", cluster.DisplayName())
			f.Metadata.SetSignal("desired_count", float64(svc.DesiredCount))
			out = append(out, f)
		}
	}
	return out
}
