// Package provider holds helpers shared by the vendor adapters.
package provider

import (
	"net/http"
	"strconv"
	"time"
)

// RetryAfter extracts the Retry-After delay from an HTTP response, in
// either delta-seconds or HTTP-date form. It returns 0 when absent.
func RetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return max(time.Until(t), 0)
	}
	return 0
}
