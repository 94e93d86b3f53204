package aws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	cttypes "github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"

	"github.com/wastewatch/wastewatch/pkg/cloud"
)

type cloudtrailAPI interface {
	LookupEvents(ctx context.Context, params *cloudtrail.LookupEventsInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.LookupEventsOutput, error)
}

// provenanceWindow is how far back the event digest looks. It matches the
// longest confidence ladder rung that depends on event history.
const provenanceWindow = 90 * 24 * time.Hour

// maxTrailPages caps LookupEvents pagination per event name. The API is
// throttled to ~2 calls/s, so a busy account's full history is off the
// table; a capped digest flips to "unknown" rather than blocking the scan.
const maxTrailPages = 20

// trailDigest is what 90 days of management events boil down to: which
// AMIs were launched, when addresses were allocated, and which were ever
// associated.
type trailDigest struct {
	launchedImages map[string]bool
	allocatedAt    map[string]time.Time
	associated     map[string]bool
	truncated      bool
}

type provenanceCollector struct {
	api cloudtrailAPI
	now func() time.Time
}

func newProvenanceCollector(api cloudtrailAPI, now func() time.Time) *provenanceCollector {
	return &provenanceCollector{api: api, now: now}
}

func (c *provenanceCollector) Digest(ctx context.Context) (*trailDigest, error) {
	digest := &trailDigest{
		launchedImages: make(map[string]bool),
		allocatedAt:    make(map[string]time.Time),
		associated:     make(map[string]bool),
	}
	handlers := map[string]func(event cttypes.Event){
		"RunInstances":     digest.noteLaunch,
		"AllocateAddress":  digest.noteAllocation,
		"AssociateAddress": digest.noteAssociation,
	}
	for name, handle := range handlers {
		if err := c.sweep(ctx, name, digest, handle); err != nil {
			return nil, err
		}
	}
	return digest, nil
}

func (c *provenanceCollector) sweep(ctx context.Context, eventName string, digest *trailDigest, handle func(event cttypes.Event)) error {
	end := c.now()
	start := end.Add(-provenanceWindow)
	paginator := cloudtrail.NewLookupEventsPaginator(c.api, &cloudtrail.LookupEventsInput{
		LookupAttributes: []cttypes.LookupAttribute{{
			AttributeKey:   cttypes.LookupAttributeKeyEventName,
			AttributeValue: aws.String(eventName),
		}},
		StartTime:  &start,
		EndTime:    &end,
		MaxResults: aws.Int32(50),
	})
	for page := 0; paginator.HasMorePages(); page++ {
		if page >= maxTrailPages {
			digest.truncated = true
			return nil
		}
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return cloud.Classify("cloudtrail.LookupEvents", err)
		}
		for _, event := range output.Events {
			handle(event)
		}
	}
	return nil
}

// trailPayload covers the slices of the raw event JSON the digest cares
// about. Everything else is ignored.
type trailPayload struct {
	RequestParameters struct {
		AllocationID string `json:"allocationId"`
		InstancesSet struct {
			Items []struct {
				ImageID string `json:"imageId"`
			} `json:"items"`
		} `json:"instancesSet"`
	} `json:"requestParameters"`
	ResponseElements struct {
		AllocationID string `json:"allocationId"`
		InstancesSet struct {
			Items []struct {
				ImageID string `json:"imageId"`
			} `json:"items"`
		} `json:"instancesSet"`
	} `json:"responseElements"`
}

func parseTrailPayload(event cttypes.Event) (trailPayload, bool) {
	var payload trailPayload
	raw := aws.ToString(event.CloudTrailEvent)
	if raw == "" || json.Unmarshal([]byte(raw), &payload) != nil {
		return payload, false
	}
	return payload, true
}

func (d *trailDigest) noteLaunch(event cttypes.Event) {
	payload, ok := parseTrailPayload(event)
	if !ok {
		return
	}
	for _, item := range payload.RequestParameters.InstancesSet.Items {
		if item.ImageID != "" {
			d.launchedImages[item.ImageID] = true
		}
	}
	for _, item := range payload.ResponseElements.InstancesSet.Items {
		if item.ImageID != "" {
			d.launchedImages[item.ImageID] = true
		}
	}
}

func (d *trailDigest) noteAllocation(event cttypes.Event) {
	payload, ok := parseTrailPayload(event)
	if !ok {
		return
	}
	if id := payload.ResponseElements.AllocationID; id != "" {
		d.allocatedAt[id] = aws.ToTime(event.EventTime)
	}
}

func (d *trailDigest) noteAssociation(event cttypes.Event) {
	payload, ok := parseTrailPayload(event)
	if !ok {
		return
	}
	if id := payload.RequestParameters.AllocationID; id != "" {
		d.associated[id] = true
	}
}
