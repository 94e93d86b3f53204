package cloud

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/aws/smithy-go"
)

// ErrorKind names what actually went wrong talking to a provider. A scan
// aborted by a typoed secret must read differently from one that could not
// resolve DNS.
type ErrorKind string

const (
	KindDNS            ErrorKind = "dns"
	KindConnect        ErrorKind = "connect"
	KindTLS            ErrorKind = "tls"
	KindTimeout        ErrorKind = "timeout"
	KindBadAccessKey   ErrorKind = "bad_access_key_id"
	KindBadSecret      ErrorKind = "bad_secret_key"
	KindExpiredCreds   ErrorKind = "expired_credentials"
	KindAuthorization  ErrorKind = "authorization"
	KindThrottle       ErrorKind = "throttle"
	KindRegionDisabled ErrorKind = "region_disabled"
	KindUnknown        ErrorKind = "unknown"
)

// Error is a classified provider failure.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether backing off and trying again could help.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindThrottle, KindTimeout, KindConnect, KindDNS:
		return true
	}
	return false
}

// KindOf extracts the classified kind through any wrapping.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// IsCredential reports credential failures: wrong key id, wrong secret, or
// an expired session. Nothing downstream can succeed after one of these.
func IsCredential(err error) bool {
	switch KindOf(err) {
	case KindBadAccessKey, KindBadSecret, KindExpiredCreds:
		return true
	}
	return false
}

// IsThrottle detects rate limiting through any wrapping.
func IsThrottle(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == KindThrottle
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return throttleCodes[ae.ErrorCode()]
	}
	return false
}

var throttleCodes = map[string]bool{
	"Throttling":                true,
	"ThrottlingException":       true,
	"ThrottledException":        true,
	"RequestLimitExceeded":      true,
	"RequestThrottled":          true,
	"RequestThrottledException": true,
	"TooManyRequestsException":  true,
	"SlowDown":                  true,
}

// Classify wraps a raw provider error with its kind. Context cancellation
// passes through untouched so callers can keep matching on it.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	return &Error{Kind: classifyKind(err), Op: op, Err: err}
}

func classifyKind(err error) ErrorKind {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch code := ae.ErrorCode(); code {
		case "InvalidClientTokenId", "UnrecognizedClientException", "InvalidAccessKeyId":
			return KindBadAccessKey
		case "SignatureDoesNotMatch", "AuthFailure", "InvalidSignatureException":
			return KindBadSecret
		case "ExpiredToken", "ExpiredTokenException", "RequestExpired", "TokenRefreshRequired":
			return KindExpiredCreds
		case "AccessDenied", "AccessDeniedException", "UnauthorizedOperation", "UnauthorizedAccess", "Client.UnauthorizedOperation":
			return KindAuthorization
		case "OptInRequired", "InvalidRegion":
			return KindRegionDisabled
		default:
			if throttleCodes[code] {
				return KindThrottle
			}
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindDNS
	}

	var certErr x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var recErr tls.RecordHeaderError
	if errors.As(err, &certErr) || errors.As(err, &hostErr) || errors.As(err, &recErr) {
		return KindTLS
	}

	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return KindConnect
		}
		return KindConnect
	}

	return KindUnknown
}
