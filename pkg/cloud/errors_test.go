package cloud

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/aws/smithy-go"
)

func apiErr(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: "nope"}
}

func TestClassifyAPIErrors(t *testing.T) {
	cases := []struct {
		code string
		want ErrorKind
	}{
		{"InvalidClientTokenId", KindBadAccessKey},
		{"UnrecognizedClientException", KindBadAccessKey},
		{"SignatureDoesNotMatch", KindBadSecret},
		{"AuthFailure", KindBadSecret},
		{"ExpiredToken", KindExpiredCreds},
		{"RequestExpired", KindExpiredCreds},
		{"AccessDenied", KindAuthorization},
		{"UnauthorizedOperation", KindAuthorization},
		{"Throttling", KindThrottle},
		{"RequestLimitExceeded", KindThrottle},
		{"OptInRequired", KindRegionDisabled},
		{"SomethingNovel", KindUnknown},
	}

	for _, tc := range cases {
		err := Classify("sts.GetCallerIdentity", apiErr(tc.code))
		var ce *Error
		if !errors.As(err, &ce) {
			t.Fatalf("%s: Classify did not produce *Error", tc.code)
		}
		if ce.Kind != tc.want {
			t.Errorf("%s classified as %s, want %s", tc.code, ce.Kind, tc.want)
		}
	}
}

func TestClassifyNetworkErrors(t *testing.T) {
	dns := &net.DNSError{Err: "no such host", Name: "ec2.us-east-1.amazonaws.com"}
	if ce := Classify("dial", dns).(*Error); ce.Kind != KindDNS {
		t.Errorf("DNS error classified as %s", ce.Kind)
	}

	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	if ce := Classify("dial", dial).(*Error); ce.Kind != KindConnect {
		t.Errorf("dial error classified as %s", ce.Kind)
	}

	if ce := Classify("collect", context.DeadlineExceeded).(*Error); ce.Kind != KindTimeout {
		t.Errorf("deadline classified as %s", ce.Kind)
	}
}

func TestClassifyPassesThroughCancellation(t *testing.T) {
	err := Classify("collect", context.Canceled)
	if !errors.Is(err, context.Canceled) {
		t.Error("cancellation should stay matchable")
	}
	var ce *Error
	if errors.As(err, &ce) {
		t.Error("cancellation should not be wrapped")
	}
}

func TestClassifyNil(t *testing.T) {
	if Classify("op", nil) != nil {
		t.Error("nil in, nil out")
	}
}

func TestRetryable(t *testing.T) {
	retryable := []ErrorKind{KindThrottle, KindTimeout, KindConnect, KindDNS}
	for _, k := range retryable {
		if !(&Error{Kind: k}).Retryable() {
			t.Errorf("%s should be retryable", k)
		}
	}
	fatal := []ErrorKind{KindBadAccessKey, KindBadSecret, KindAuthorization, KindRegionDisabled}
	for _, k := range fatal {
		if (&Error{Kind: k}).Retryable() {
			t.Errorf("%s should not be retryable", k)
		}
	}
}

func TestIsThrottle(t *testing.T) {
	if !IsThrottle(Classify("op", apiErr("Throttling"))) {
		t.Error("classified throttle not detected")
	}
	if !IsThrottle(apiErr("TooManyRequestsException")) {
		t.Error("raw throttle not detected")
	}
	if IsThrottle(apiErr("AccessDenied")) {
		t.Error("access denied is not throttling")
	}
	if IsThrottle(nil) {
		t.Error("nil is not throttling")
	}
}

func TestMetricQueryCacheKey(t *testing.T) {
	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 30)

	a := MetricQuery{
		Namespace:  "AWS/EC2",
		Name:       "CPUUtilization",
		Dimensions: map[string]string{"InstanceId": "i-1", "Extra": "x"},
		Stat:       "Average",
		Period:     24 * time.Hour,
		Start:      start,
		End:        end,
	}
	b := a
	b.Dimensions = map[string]string{"Extra": "x", "InstanceId": "i-1"}

	if a.CacheKey() != b.CacheKey() {
		t.Error("dimension order changed the cache key")
	}

	c := a
	c.Dimensions = map[string]string{"InstanceId": "i-2", "Extra": "x"}
	if a.CacheKey() == c.CacheKey() {
		t.Error("different dimensions collided")
	}
}
