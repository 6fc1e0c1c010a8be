package provider

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryAfter(t *testing.T) {
	withHeader := func(v string) *http.Response {
		return &http.Response{Header: http.Header{"Retry-After": []string{v}}}
	}

	assert.Zero(t, RetryAfter(nil))
	assert.Zero(t, RetryAfter(&http.Response{Header: http.Header{}}))
	assert.Equal(t, 12*time.Second, RetryAfter(withHeader("12")))
	assert.Zero(t, RetryAfter(withHeader("soon")))

	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	d := RetryAfter(withHeader(future))
	assert.Greater(t, d, 50*time.Second)
	assert.LessOrEqual(t, d, time.Minute)

	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	assert.Zero(t, RetryAfter(withHeader(past)))
}
