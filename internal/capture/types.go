// Package capture defines core types shared across the screenshot pipeline.
package capture

import (
	"fmt"
	"time"
)

// Operational defaults applied when an Options field is left unset.
const (
	defaultMaxAttempts       = 3
	defaultInitialTimeout    = 30 * time.Second
	defaultTimeoutMultiplier = 2.0
	defaultFailureThreshold  = 5
	defaultResetTimeout      = time.Minute
)

// Item is one pending capture task tracked by the run queue. Index is the
// position of the URL in the submitted batch and survives requeues so
// artifact names stay stable across retries.
type Item struct {
	URL      string
	Index    int
	Attempts int
	Timeout  time.Duration
}

// Shot is the raw result of rendering a single page.
type Shot struct {
	Bytes      []byte
	StatusCode int
	FinalURL   string
}

// Artifact describes one stored capture object.
type Artifact struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Summary reports the outcome of a finished run.
type Summary struct {
	Artifacts []Artifact
	Completed int
	Abandoned int
	Total     int
}

// Options holds every knob that influences a capture run: the retry budget,
// the per-attempt navigation timeout and its growth factor, the politeness
// pause between captures, and the circuit breaker thresholds.
type Options struct {
	MaxAttempts       int
	InitialTimeout    time.Duration
	TimeoutMultiplier float64
	BaseDelay         time.Duration
	Jitter            time.Duration
	FailureThreshold  int
	ResetTimeout      time.Duration
}

// withDefaults fills unset fields. BaseDelay and Jitter are left alone so a
// zero value keeps the politeness pause disabled.
func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.InitialTimeout <= 0 {
		o.InitialTimeout = defaultInitialTimeout
	}
	if o.TimeoutMultiplier <= 0 {
		o.TimeoutMultiplier = defaultTimeoutMultiplier
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = defaultFailureThreshold
	}
	if o.ResetTimeout <= 0 {
		o.ResetTimeout = defaultResetTimeout
	}
	return o
}

// Validate checks for obviously bad option combinations.
func (o Options) Validate() error {
	if o.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be > 0")
	}
	if o.InitialTimeout <= 0 {
		return fmt.Errorf("initial timeout must be > 0")
	}
	if o.TimeoutMultiplier < 1 {
		return fmt.Errorf("timeout multiplier must be >= 1")
	}
	if o.BaseDelay < 0 {
		return fmt.Errorf("base delay must be >= 0")
	}
	if o.Jitter < 0 {
		return fmt.Errorf("jitter must be >= 0")
	}
	if o.FailureThreshold <= 0 {
		return fmt.Errorf("failure threshold must be > 0")
	}
	if o.ResetTimeout <= 0 {
		return fmt.Errorf("reset timeout must be > 0")
	}
	return nil
}
