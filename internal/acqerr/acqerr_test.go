// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acqerr

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyHTTPStatus(t *testing.T) {
	cases := map[int]Kind{
		http.StatusTooManyRequests:     RateLimit,
		http.StatusBadRequest:          Permanent,
		http.StatusUnauthorized:        Permanent,
		http.StatusForbidden:           Permanent,
		http.StatusNotFound:            Permanent,
		http.StatusInternalServerError: API,
		http.StatusTeapot:              API,
	}
	for status, want := range cases {
		assert.Equal(t, want, ClassifyHTTPStatus(status))
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, RateLimit.Retryable())
	assert.True(t, Network.Retryable())
	assert.True(t, API.Retryable())
	assert.True(t, CircuitOpen.Retryable())
	assert.False(t, Parse.Retryable())
	assert.False(t, Validation.Retryable())
	assert.False(t, Permanent.Retryable())
}

func TestAcqErrorWrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := New(Network, "openalex", cause)
	assert.ErrorIs(t, err, cause)

	ae, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, Network, ae.Kind)
}

func TestBackoffRespectsCapsAndJitter(t *testing.T) {
	for attempt := 1; attempt <= 8; attempt++ {
		d := Backoff(RateLimit, attempt, 0)
		assert.LessOrEqual(t, d, time.Duration(float64(60*time.Second)*1.25)+time.Millisecond)
	}
	for attempt := 1; attempt <= 40; attempt++ {
		d := Backoff(Network, attempt, 0)
		assert.LessOrEqual(t, d, time.Duration(float64(30*time.Second)*1.25)+time.Millisecond)
	}
}

func TestBackoffHonorsRetryAfter(t *testing.T) {
	d := Backoff(RateLimit, 1, 10*time.Second)
	assert.GreaterOrEqual(t, d, time.Duration(float64(10*time.Second)*0.75))
}

func TestBackoffNonRetryableIsZero(t *testing.T) {
	assert.Equal(t, time.Duration(0), Backoff(Permanent, 1, 0))
	assert.Equal(t, time.Duration(0), Backoff(Parse, 1, 0))
}
