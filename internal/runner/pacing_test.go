package runner

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/throttlebench/internal/metrics"
)

func TestAllocate(t *testing.T) {
	tests := []struct {
		total, units int
		want         []int
	}{
		{10, 4, []int{3, 3, 2, 2}},
		{8, 4, []int{2, 2, 2, 2}},
		{3, 8, []int{1, 1, 1}},
		{1, 1, []int{1}},
		{7, 1, []int{7}},
		{0, 4, nil},
	}
	for _, tt := range tests {
		got := allocate(tt.total, tt.units)
		assert.Equal(t, tt.want, got, "allocate(%d, %d)", tt.total, tt.units)

		sum := 0
		for _, n := range got {
			sum += n
			assert.LessOrEqual(t, n, (tt.total+len(got)-1)/len(got))
		}
		assert.Equal(t, tt.total, sum)
	}
}

func TestClassPickerWeights(t *testing.T) {
	picker := newClassPicker([]Target{
		{Class: metrics.ClassLight, URL: "http://l", Weight: 70},
		{Class: metrics.ClassHeavy, URL: "http://h", Weight: 30},
		{Class: "unused", URL: "http://u", Weight: 0},
	})
	rng := rand.New(rand.NewSource(1))

	counts := map[metrics.Class]int{}
	for i := 0; i < 20000; i++ {
		counts[picker.pick(rng).Class]++
	}
	assert.InDelta(t, 14000, counts[metrics.ClassLight], 600)
	assert.InDelta(t, 6000, counts[metrics.ClassHeavy], 600)
	assert.Zero(t, counts["unused"])
}

func TestClassPickerSingleTarget(t *testing.T) {
	picker := newClassPicker([]Target{{Class: metrics.ClassHeavy, URL: "http://h", Weight: 5}})
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		require.Equal(t, metrics.ClassHeavy, picker.pick(rng).Class)
	}
}

func TestThinkTime(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	min, max := 50*time.Millisecond, 200*time.Millisecond
	sawLow, sawHigh := false, false
	for i := 0; i < 5000; i++ {
		d := thinkTime(rng, min, max)
		require.GreaterOrEqual(t, d, min)
		require.LessOrEqual(t, d, max)
		sawLow = sawLow || d < 80*time.Millisecond
		sawHigh = sawHigh || d > 170*time.Millisecond
	}
	assert.True(t, sawLow && sawHigh, "draws should cover the range")

	assert.Equal(t, min, thinkTime(rng, min, min))
	assert.Equal(t, min, thinkTime(rng, min, 0))
	assert.Zero(t, thinkTime(rng, 0, 0))
}

func TestThinkTimeSeeded(t *testing.T) {
	a := rand.New(rand.NewSource(42))
	b := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		assert.Equal(t, thinkTime(a, 0, time.Second), thinkTime(b, 0, time.Second))
	}
}

func TestRampOffset(t *testing.T) {
	assert.Zero(t, rampOffset(time.Second, 0, 4))
	assert.Equal(t, 250*time.Millisecond, rampOffset(time.Second, 1, 4))
	assert.Equal(t, 750*time.Millisecond, rampOffset(time.Second, 3, 4))
	assert.Zero(t, rampOffset(0, 3, 4))
	assert.Zero(t, rampOffset(time.Second, 3, 0))
}

func TestSleep(t *testing.T) {
	assert.True(t, sleep(context.Background(), 0))
	assert.True(t, sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleep(ctx, time.Hour))
	assert.False(t, sleep(ctx, 0))

	assert.True(t, sleepUntil(context.Background(), time.Now().Add(-time.Second)))
}

func TestOptionsValidate(t *testing.T) {
	valid := Options{
		Targets:     []Target{{Class: metrics.ClassLight, URL: "http://l", Weight: 1}},
		Concurrency: 1,
		Duration:    time.Second,
		NewExecutor: func(int) (Executor, error) { return nil, nil },
	}
	require.NoError(t, valid.validate())

	tests := map[string]func(o *Options){
		"concurrency": func(o *Options) { o.Concurrency = 0 },
		"duration":    func(o *Options) { o.Duration = 0 },
		"factory":     func(o *Options) { o.NewExecutor = nil },
		"targets":     func(o *Options) { o.Targets = nil },
		"weight":      func(o *Options) { o.Targets[0].Weight = 0 },
		"url":         func(o *Options) { o.Targets[0].URL = " " },
		"rate":        func(o *Options) { o.RatePerSecond = -1 },
		"ramp":        func(o *Options) { o.RampUp = -time.Second },
	}
	for name, mutate := range tests {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			o := valid
			o.Targets = append([]Target(nil), valid.Targets...)
			mutate(&o)
			assert.Error(t, o.validate())
		})
	}
}

func TestOptionsNormalize(t *testing.T) {
	o := Options{Concurrency: 2, Units: 16, ThinkTimeMin: time.Second, ThinkTimeMax: time.Millisecond}
	o.normalize()

	assert.Equal(t, 2, o.Units)
	assert.Equal(t, time.Second, o.ThinkTimeMax)
	assert.Equal(t, DefaultRestartBackoff, o.RestartBackoff)
	assert.NotZero(t, o.Seed)
	assert.NotNil(t, o.Logger)
	assert.NotEmpty(t, o.NewUserID())
	assert.Nil(t, o.LimiterFactory(0))
	assert.NotNil(t, o.LimiterFactory(5))
}
