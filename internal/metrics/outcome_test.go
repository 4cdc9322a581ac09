package metrics_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/throttlebench/internal/metrics"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		status int
		err    error
		want   metrics.Kind
	}{
		{200, nil, metrics.KindSuccess},
		{204, nil, metrics.KindSuccess},
		{299, nil, metrics.KindSuccess},
		{429, nil, metrics.KindRateLimited},
		{400, nil, metrics.KindClientError},
		{404, nil, metrics.KindClientError},
		{302, nil, metrics.KindClientError},
		{101, nil, metrics.KindClientError},
		{500, nil, metrics.KindServerError},
		{503, nil, metrics.KindServerError},
		{600, nil, metrics.KindServerError},
		{200, errors.New("boom"), metrics.KindNetworkError},
		{0, context.DeadlineExceeded, metrics.KindNetworkError},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("%d/%v", tt.status, tt.err), func(t *testing.T) {
			assert.Equal(t, tt.want, metrics.Classify(tt.status, tt.err))
		})
	}
}

func TestKindText(t *testing.T) {
	for _, k := range metrics.Kinds {
		text, err := k.MarshalText()
		require.NoError(t, err)

		var decoded metrics.Kind
		require.NoError(t, decoded.UnmarshalText(text))
		assert.Equal(t, k, decoded)
	}

	_, err := metrics.Kind(42).MarshalText()
	assert.Error(t, err)

	var k metrics.Kind
	assert.Error(t, k.UnmarshalText([]byte("teapot")))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestErrorReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), metrics.ReasonTimeout},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutErr{}}, metrics.ReasonTimeout},
		{"canceled", context.Canceled, metrics.ReasonCanceled},
		{"dns", &net.DNSError{Err: "no such host", Name: "nope.invalid"}, metrics.ReasonDNS},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, metrics.ReasonConnectionRefused},
		{"reset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, metrics.ReasonConnectionReset},
		{"message only", errors.New("write: broken pipe"), metrics.ReasonConnectionReset},
		{"other", errors.New("tls: bad certificate"), metrics.ReasonOther},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, metrics.ErrorReason(tt.err))
		})
	}
}

func TestFriendlyReason(t *testing.T) {
	assert.Equal(t, "Connection refused", metrics.FriendlyReason(metrics.ReasonConnectionRefused))
	assert.Equal(t, "Unknown error", metrics.FriendlyReason(" "))
	assert.Equal(t, "custom", metrics.FriendlyReason("custom"))
}

func TestWorkerResultRecord(t *testing.T) {
	w := metrics.NewWorkerResult(2, 3)
	w.Record(metrics.Outcome{Kind: metrics.KindSuccess})
	w.Record(metrics.Outcome{Kind: metrics.KindRateLimited})
	w.Record(metrics.Outcome{Kind: metrics.Kind(99)})

	assert.EqualValues(t, 3, w.Total())
	assert.EqualValues(t, 1, w.Count(metrics.KindSuccess))
	assert.EqualValues(t, 1, w.Count(metrics.KindNetworkError))
	assert.Equal(t, metrics.KindNetworkError, w.Outcomes[2].Kind)
	assert.Zero(t, w.Active())

	var nilResult *metrics.WorkerResult
	assert.Zero(t, nilResult.Total())
}

func TestSortStatusCodes(t *testing.T) {
	rows := metrics.SortStatusCodes(map[int]int64{200: 5, 429: 7, 503: 5, 0: 1})

	require.Len(t, rows, 4)
	assert.Equal(t, metrics.StatusCount{Code: 429, Count: 7}, rows[0])
	assert.Equal(t, metrics.StatusCount{Code: 200, Count: 5}, rows[1])
	assert.Equal(t, metrics.StatusCount{Code: 503, Count: 5}, rows[2])
	assert.Equal(t, metrics.StatusCount{Code: 0, Count: 1}, rows[3])
	assert.Nil(t, metrics.SortStatusCodes(nil))
}

func TestSortReasons(t *testing.T) {
	rows := metrics.SortReasons(map[string]int64{"timeout": 2, "dns": 2, "other": 9})

	require.Len(t, rows, 3)
	assert.Equal(t, "other", rows[0].Reason)
	assert.Equal(t, "dns", rows[1].Reason)
	assert.Equal(t, "timeout", rows[2].Reason)
}

func TestLiveProgress(t *testing.T) {
	views := []*metrics.Live{metrics.NewLive(), metrics.NewLive(), nil}

	var wg sync.WaitGroup
	for i, v := range views[:2] {
		wg.Add(1)
		go func(i int, v *metrics.Live) {
			defer wg.Done()
			for n := 0; n < 100; n++ {
				kind := metrics.KindSuccess
				if n%10 == 0 {
					kind = metrics.KindRateLimited
				}
				if n%25 == 0 {
					kind = metrics.KindServerError
				}
				v.Observe(metrics.Outcome{Kind: kind, Latency: time.Duration(n+1) * time.Millisecond})
			}
		}(i, v)
	}
	wg.Wait()

	p := metrics.MergeProgress(views)
	assert.EqualValues(t, 200, p.Total)
	assert.Equal(t, p.Total, p.Success+p.RateLimited+p.Errors)
	assert.EqualValues(t, 8, p.Errors)
	assert.Greater(t, p.P99, 90*time.Millisecond)
	assert.LessOrEqual(t, p.P99, 101*time.Millisecond)
}
