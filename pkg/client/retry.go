package client

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetriesCount - default retries count.
const RetriesCount = 5

// RequestTimeout - default request timeout, it covers all retries.
const RequestTimeout = 30 * time.Second

// RetryWaitTimeStart - default retry interval.
const RetryWaitTimeStart = 100 * time.Millisecond

// RetryWaitTimeMax - default maximum retry interval, it also limits the Retry-After header.
const RetryWaitTimeMax = 3 * time.Second

// RetryConfig configures Client retries.
type RetryConfig struct {
	Condition           RetryCondition
	Count               int
	TotalRequestTimeout time.Duration
	WaitTimeStart       time.Duration
	WaitTimeMax         time.Duration
}

// RetryCondition defines which responses should retry.
// The response is nil on network errors.
type RetryCondition func(*http.Response, error) bool

// DefaultRetry returns a default RetryConfig.
func DefaultRetry() RetryConfig {
	return RetryConfig{
		TotalRequestTimeout: RequestTimeout,
		Count:               RetriesCount,
		WaitTimeStart:       RetryWaitTimeStart,
		WaitTimeMax:         RetryWaitTimeMax,
		Condition:           DefaultRetryCondition(),
	}
}

// TestingRetry - fast retry for use in tests.
func TestingRetry() RetryConfig {
	v := DefaultRetry()
	v.WaitTimeStart = 1 * time.Millisecond
	v.WaitTimeMax = 1 * time.Millisecond
	return v
}

// NoRetry returns a RetryConfig which sends each request only once.
func NoRetry() RetryConfig {
	v := DefaultRetry()
	v.Count = 0
	v.Condition = nil
	return v
}

// DefaultRetryCondition retries network errors, except an unknown host, and the status codes listed by IsRetryableStatus.
// The request method is not considered, requests with a body are rewound before each retry.
func DefaultRetryCondition() RetryCondition {
	return func(response *http.Response, err error) bool {
		if response == nil || response.StatusCode == 0 {
			switch {
			case err == nil:
				return false
			case strings.Contains(err.Error(), "No address associated with hostname"):
				return false
			case strings.Contains(err.Error(), "no such host"):
				return false
			default:
				return true
			}
		}
		return IsRetryableStatus(response.StatusCode)
	}
}

// IsRetryableStatus returns true for temporary failures: a timeout, a conflict, a lock, rate limiting and 5xx gateway errors.
func IsRetryableStatus(code int) bool {
	switch code {
	case
		http.StatusRequestTimeout,
		http.StatusConflict,
		http.StatusLocked,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// RetryAfter parses the Retry-After header of the response, in seconds or as an HTTP date.
func RetryAfter(response *http.Response, now time.Time) (time.Duration, bool) {
	if response == nil {
		return 0, false
	}
	value := strings.TrimSpace(response.Header.Get("Retry-After"))
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if date, err := http.ParseTime(value); err == nil {
		return max(date.Sub(now), 0), true
	}
	return 0, false
}

// NewBackoff returns an exponential backoff for HTTP retries.
func (c RetryConfig) NewBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.WaitTimeStart
	b.MaxInterval = c.WaitTimeMax
	b.MaxElapsedTime = c.TotalRequestTimeout
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// delay before the next attempt, a longer Retry-After wins, up to WaitTimeMax.
func (c RetryConfig) delay(response *http.Response, backoffDelay time.Duration) time.Duration {
	if after, ok := RetryAfter(response, time.Now()); ok && after > backoffDelay {
		return min(after, max(c.WaitTimeMax, backoffDelay))
	}
	return backoffDelay
}
