package pricing

import (
	"context"
	"math"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
)

func almost(a, b float64) bool { return math.Abs(a-b) < 0.005 }

func TestFixedRates(t *testing.T) {
	p := New().Region("us-east-1")

	if got := p.PublicIPMonthly(); !almost(got, 3.60) {
		t.Errorf("public IP monthly = %.4f, want 3.60", got)
	}
	if got := p.NATGatewayMonthly(); !almost(got, 32.40) {
		t.Errorf("NAT gateway monthly = %.4f, want 32.40", got)
	}
	if got := p.EKSClusterMonthly(); !almost(got, 72.00) {
		t.Errorf("EKS cluster monthly = %.4f, want 72.00", got)
	}
	if got := p.HostedZoneMonthly(); got != 0.50 {
		t.Errorf("hosted zone monthly = %.2f, want 0.50", got)
	}
	if got := p.WebACLMonthly(3); got != 8.00 {
		t.Errorf("web ACL with 3 rules = %.2f, want 8.00", got)
	}
}

func TestVolumeMonthly(t *testing.T) {
	p := New().Region("us-east-1")

	total, parts := p.VolumeMonthly("gp3", 500, 3000, 125)
	if !almost(total, 40.00) {
		t.Errorf("500 GiB gp3 = %.4f, want 40.00", total)
	}
	if len(parts) != 1 {
		t.Errorf("baseline gp3 should have storage-only breakdown, got %v", parts)
	}

	total, parts = p.VolumeMonthly("gp3", 100, 6000, 250)
	wantIOPS := 3000 * 0.005  // 15.00
	wantTP := 125 * 0.04      // 5.00
	if !almost(parts["iops"], wantIOPS) || !almost(parts["throughput"], wantTP) {
		t.Errorf("gp3 extras breakdown = %v", parts)
	}
	if !almost(total, 8.00+wantIOPS+wantTP) {
		t.Errorf("gp3 with extras = %.4f", total)
	}

	total, parts = p.VolumeMonthly("io1", 100, 2000, 0)
	if !almost(parts["iops"], 130.00) {
		t.Errorf("io1 provisioned IOPS part = %v", parts["iops"])
	}
	if !almost(total, 12.50+130.00) {
		t.Errorf("io1 total = %.4f", total)
	}

	// Unknown types price as gp2 rather than zero.
	total, _ = p.VolumeMonthly("gp9", 100, 0, 0)
	if !almost(total, 10.00) {
		t.Errorf("unknown type total = %.4f, want gp2 rate", total)
	}
}

func TestSnapshotMonthly(t *testing.T) {
	p := New().Region("us-east-1")
	if got := p.SnapshotMonthly(200); !almost(got, 10.00) {
		t.Errorf("200 GiB snapshot = %.4f, want 10.00", got)
	}
}

func TestInstanceMonthlyFallback(t *testing.T) {
	p := New().Region("us-east-1")

	usd, exact := p.InstanceMonthly("m5.large")
	if !exact {
		t.Error("m5.large should be in the table")
	}
	if !almost(usd, 0.096*720) {
		t.Errorf("m5.large monthly = %.4f", usd)
	}

	usd, exact = p.InstanceMonthly("z99.mega")
	if exact {
		t.Error("unknown shape claimed an exact price")
	}
	if !almost(usd, 72.00) {
		t.Errorf("fallback monthly = %.4f, want 72.00", usd)
	}
}

func TestDiscountAppliesToCompute(t *testing.T) {
	c := New()
	c.SetDiscount(0.5)
	p := c.Region("us-east-1")

	usd, _ := p.InstanceMonthly("m5.large")
	if !almost(usd, 0.096*720*0.5) {
		t.Errorf("discounted m5.large = %.4f", usd)
	}
	// Flat infrastructure rates are not negotiated; no discount.
	if got := p.NATGatewayMonthly(); !almost(got, 32.40) {
		t.Errorf("NAT price moved with discount: %.4f", got)
	}
}

func TestRegionFactor(t *testing.T) {
	c := New()
	base := c.Region("us-east-1").NATGatewayMonthly()
	sa := c.Region("sa-east-1").NATGatewayMonthly()
	if sa <= base {
		t.Errorf("sa-east-1 should cost more than us-east-1: %.2f vs %.2f", sa, base)
	}
	unknown := c.Region("xx-wat-7").NATGatewayMonthly()
	if unknown <= base {
		t.Errorf("unknown region should use a conservative factor above baseline")
	}
}

func TestStreamMonthly(t *testing.T) {
	p := New().Region("us-east-1")
	if got := p.StreamMonthly(2, 24); !almost(got, 2*0.015*720) {
		t.Errorf("2-shard stream = %.4f", got)
	}
	base := p.StreamMonthly(2, 24)
	extended := p.StreamMonthly(2, 168)
	if extended <= base {
		t.Error("extended retention should cost more")
	}
}

func TestSmallerShape(t *testing.T) {
	cases := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"m5.xlarge", "m5.large", true},
		{"t3.small", "t3.micro", true},
		{"t3.nano", "", false},
		{"z99.mega", "", false},
	}
	for _, tc := range cases {
		got, ok := SmallerShape(tc.in)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("SmallerShape(%s) = %q,%v want %q,%v", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestParsePriceList(t *testing.T) {
	doc := `{"terms":{"OnDemand":{"SKU1.JRTCKXETXF":{"priceDimensions":{"SKU1.JRTCKXETXF.6YS6EN2CT7":{"pricePerUnit":{"USD":"0.0450000000"}}}}}}}`
	v, err := parsePriceList(doc)
	if err != nil {
		t.Fatalf("parsePriceList: %v", err)
	}
	if !almost(v, 0.045) {
		t.Errorf("parsed %v, want 0.045", v)
	}

	if _, err := parsePriceList(`{"terms":{}}`); err == nil {
		t.Error("expected error for empty terms")
	}
	if _, err := parsePriceList(`not json`); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

type fakeCostAPI struct {
	out *costexplorer.GetCostAndUsageOutput
	err error
}

func (f *fakeCostAPI) GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error) {
	return f.out, f.err
}

func costWindow(amortized, unblended string) *costexplorer.GetCostAndUsageOutput {
	return &costexplorer.GetCostAndUsageOutput{
		ResultsByTime: []cetypes.ResultByTime{{
			Total: map[string]cetypes.MetricValue{
				"AmortizedCost":  {Amount: aws.String(amortized)},
				"UnblendedCost":  {Amount: aws.String(unblended)},
			},
		}},
	}
}

func TestCalibratorFactor(t *testing.T) {
	dir := t.TempDir()

	cal := NewCalibrator(&fakeCostAPI{out: costWindow("70.0", "100.0")}, nil, dir, 0)
	if got := cal.Factor(context.Background()); !almost(got, 0.7) {
		t.Errorf("factor = %v, want 0.7", got)
	}

	// Second read comes from cache even if the API now fails.
	cal2 := NewCalibrator(&fakeCostAPI{err: context.DeadlineExceeded}, nil, dir, 0)
	if got := cal2.Factor(context.Background()); !almost(got, 0.7) {
		t.Errorf("cached factor = %v, want 0.7", got)
	}
}

func TestCalibratorFailsOpen(t *testing.T) {
	cal := NewCalibrator(&fakeCostAPI{err: context.DeadlineExceeded}, nil, t.TempDir(), 0)
	if got := cal.Factor(context.Background()); got != 1.0 {
		t.Errorf("factor on API error = %v, want 1.0", got)
	}

	withOverride := NewCalibrator(&fakeCostAPI{err: context.DeadlineExceeded}, nil, t.TempDir(), 0.6)
	if got := withOverride.Factor(context.Background()); got != 0.6 {
		t.Errorf("override factor = %v, want 0.6", got)
	}
}

func TestCalibratorRejectsSuspiciousRatios(t *testing.T) {
	cal := NewCalibrator(&fakeCostAPI{out: costWindow("5.0", "100.0")}, nil, t.TempDir(), 0)
	if got := cal.Factor(context.Background()); got != 1.0 {
		t.Errorf("factor for 0.05 ratio = %v, want 1.0 (rejected)", got)
	}
}
