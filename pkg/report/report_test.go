package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/wastewatch/wastewatch/pkg/engine"
	"github.com/wastewatch/wastewatch/pkg/finding"
)

func testResult() *engine.Result {
	return &engine.Result{
		Provider:       "aws",
		Account:        "123456789012",
		CatalogVersion: "2025-08-01",
		StartedAt:      time.Date(2025, time.August, 1, 12, 0, 0, 0, time.UTC),
		Duration:       90 * time.Second,
		ScannedRegions: []string{"us-east-1", "us-east-2"},
		Findings: []finding.Finding{
			{
				ResourceType: finding.TypeNATGateway,
				ResourceID:   "nat-forsaken",
				ResourceName: "nat-forsaken",
				Region:       "us-east-2",
				MonthlyCost:  32.4,
				CostKind:     finding.CostAbsolute,
				Metadata: finding.Evidence{
					OrphanType:         "no_routes",
					Reason:             "no route table routes traffic to this gateway",
					Confidence:         finding.ConfidenceCritical,
					AgeDays:            120,
					AlreadyWasted:      129.6,
					IsDeduplicated:     true,
					DuplicateCount:     2,
					DetectionScenarios: []string{"no_routes", "zero_traffic"},
					AllDetections: []finding.Detection{
						{
							OrphanType:  "no_routes",
							Reason:      "no route table routes traffic to this gateway",
							Confidence:  finding.ConfidenceCritical,
							MonthlyCost: 32.4,
							CostKind:    finding.CostAbsolute,
						},
						{
							OrphanType:  "zero_traffic",
							Reason:      "no bytes processed in 30 days",
							Confidence:  finding.ConfidenceCritical,
							MonthlyCost: 32.4,
							CostKind:    finding.CostAbsolute,
						},
					},
				},
			},
			{
				ResourceType: finding.TypePublicIP,
				ResourceID:   "eipalloc-lonely",
				ResourceName: "eipalloc-lonely",
				Region:       "us-east-1",
				MonthlyCost:  3.6,
				CostKind:     finding.CostAbsolute,
				Tags:         map[string]string{"env": "dev"},
				Metadata: finding.Evidence{
					OrphanType:    "unassociated",
					Reason:        "address is not associated with any resource",
					Confidence:    finding.ConfidenceHigh,
					AgeDays:       10,
					AlreadyWasted: 1.2,
				},
			},
			{
				ResourceType: finding.TypeVolume,
				ResourceID:   "vol-dangling",
				ResourceName: "vol-dangling",
				Region:       "us-east-1",
				MonthlyCost:  40,
				CostKind:     finding.CostAbsolute,
				Metadata: finding.Evidence{
					OrphanType:    "unattached",
					Reason:        "volume is not attached to any instance",
					Confidence:    finding.ConfidenceHigh,
					AgeDays:       45,
					AlreadyWasted: 60,
					Signals:       map[string]float64{"size_gib": 500},
					Detail:        map[string]string{"volume_type": "gp3"},
				},
			},
		},
		RegionErrors: []engine.RegionError{
			{Region: "eu-west-1", Error: "ec2.DescribeVolumes: UnauthorizedOperation"},
		},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(testResult())
	if s.TotalMonthlyCost != 76.00 {
		t.Errorf("TotalMonthlyCost = %.2f, want 76.00", s.TotalMonthlyCost)
	}
	if s.TotalWastedToDate != 190.80 {
		t.Errorf("TotalWastedToDate = %.2f, want 190.80", s.TotalWastedToDate)
	}
	if s.Findings != 3 {
		t.Errorf("Findings = %d, want 3", s.Findings)
	}
	if s.ByConfidence["critical"] != 1 || s.ByConfidence["high"] != 2 {
		t.Errorf("ByConfidence = %v, want critical 1 high 2", s.ByConfidence)
	}
}

func TestDocumentOrdersByCost(t *testing.T) {
	res := testResult()
	doc := NewDocument(res)

	want := []string{"vol-dangling", "nat-forsaken", "eipalloc-lonely"}
	for i, id := range want {
		if doc.Findings[i].ResourceID != id {
			t.Errorf("findings[%d] = %s, want %s", i, doc.Findings[i].ResourceID, id)
		}
	}
	// The result keeps its own (type, region, id) order.
	if res.Findings[0].ResourceID != "nat-forsaken" {
		t.Errorf("input order changed: %s", res.Findings[0].ResourceID)
	}
}

func TestWriteJSONGolden(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, testResult()); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	g := goldie.New(t)
	g.Assert(t, "scan_json", buf.Bytes())
}

func TestWriteCSVGolden(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, testResult()); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	g := goldie.New(t)
	g.Assert(t, "scan_csv", buf.Bytes())
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTable(&buf, testResult()); err != nil {
		t.Fatalf("WriteTable() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"aws account 123456789012",
		"3 findings",
		"$76.00/mo",
		"$190.80 burned to date",
		"confidence: critical 1, high 2",
		"vol-dangling",
		"eu-west-1: ec2.DescribeVolumes: UnauthorizedOperation",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}

	// Cost order: the volume row must come before the address row.
	if strings.Index(out, "vol-dangling") > strings.Index(out, "eipalloc-lonely") {
		t.Error("table rows are not ordered by monthly cost")
	}
}

func TestWriteHTMLEscapesUntrustedFields(t *testing.T) {
	res := testResult()
	res.Findings = []finding.Finding{{
		ResourceType: finding.ResourceType(`volume<script>alert(1)</script>`),
		ResourceID:   `vol-bad"; alert('XSS'); "`,
		Region:       "us-east-1",
		MonthlyCost:  12.5,
		CostKind:     finding.CostAbsolute,
		Metadata: finding.Evidence{
			OrphanType: "unattached",
			Reason:     `<img src=x onerror=alert(2)>`,
			Confidence: finding.ConfidenceHigh,
		},
	}}

	var buf bytes.Buffer
	if err := WriteHTML(&buf, res); err != nil {
		t.Fatalf("WriteHTML() error = %v", err)
	}
	out := buf.String()

	if strings.Contains(out, "<script>alert(1)</script>") {
		t.Error("resource type reached the document unescaped")
	}
	if strings.Contains(out, "<img src=x onerror=alert(2)>") {
		t.Error("reason reached the document unescaped")
	}
	// The chart arrays are JSON-encoded, so angle brackets arrive as \u003c.
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "const labels =") && strings.Contains(line, "<script>") {
			t.Errorf("chart labels carry a raw script tag: %s", line)
		}
	}
}

func TestWriteHTMLEmptyScan(t *testing.T) {
	res := &engine.Result{
		Provider:       "aws",
		Account:        "123456789012",
		CatalogVersion: "2025-08-01",
		StartedAt:      time.Date(2025, time.August, 1, 12, 0, 0, 0, time.UTC),
		ScannedRegions: []string{"us-east-1"},
	}
	var buf bytes.Buffer
	if err := WriteHTML(&buf, res); err != nil {
		t.Fatalf("WriteHTML() error = %v", err)
	}
	if !strings.Contains(buf.String(), "No waste detected.") {
		t.Error("empty scan should render the clean row")
	}
}
