package aws

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/wastewatch/wastewatch/pkg/cloud"
	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

type iamAPI interface {
	ListRoles(ctx context.Context, params *iam.ListRolesInput, optFns ...func(*iam.Options)) (*iam.ListRolesOutput, error)
	GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
}

type roleCollector struct {
	api iamAPI
}

func newRoleCollector(api iamAPI) *roleCollector {
	return &roleCollector{api: api}
}

// Roles lists IAM roles with their last-used timestamps. ListRoles omits
// RoleLastUsed and tags, so each role costs one GetRole.
func (c *roleCollector) Roles(ctx context.Context) ([]inventory.Role, error) {
	var roles []inventory.Role
	paginator := iam.NewListRolesPaginator(c.api, &iam.ListRolesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("iam.ListRoles", err)
		}
		for _, listed := range page.Roles {
			name := aws.ToString(listed.RoleName)
			got, err := c.api.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(name)})
			if err != nil {
				return nil, cloud.Classify("iam.GetRole", err)
			}
			role := got.Role
			if role == nil {
				continue
			}
			path := aws.ToString(role.Path)
			item := inventory.Role{
				Meta: inventory.Meta{
					ID:        name,
					Name:      name,
					Region:    finding.RegionGlobal,
					CreatedAt: aws.ToTime(role.CreateDate),
					Tags:      parseIAMTags(role.Tags),
				},
				Path:          path,
				ServiceLinked: strings.HasPrefix(path, "/aws-service-role/"),
			}
			if role.RoleLastUsed != nil {
				item.LastUsed = aws.ToTime(role.RoleLastUsed.LastUsedDate)
			}
			roles = append(roles, item)
		}
	}
	return roles, nil
}

func parseIAMTags(tags []iamtypes.Tag) map[string]string {
	out := make(map[string]string)
	for _, t := range tags {
		if t.Key != nil && t.Value != nil {
			out[*t.Key] = *t.Value
		}
	}
	return out
}
