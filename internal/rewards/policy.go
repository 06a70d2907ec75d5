package rewards

import (
	"errors"
	"math"
	"time"
)

// Policy defines how failed reward deliveries are retried.
type Policy struct {
	MaxRetries        int           // retries after the first attempt (0 = none)
	InitialDelay      time.Duration // delay before the first retry
	MaxDelay          time.Duration // cap between retries
	BackoffMultiplier float64
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        3,
		InitialDelay:      200 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Delay returns the wait before retry number retry (0-based).
func (p Policy) Delay(retry int) time.Duration {
	if retry <= 0 {
		return p.InitialDelay
	}
	delay := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(retry))
	if time.Duration(delay) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

func (p Policy) ShouldRetry(retry int) bool {
	return retry < p.MaxRetries
}

func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return errors.New("MaxRetries must be non-negative")
	}
	if p.InitialDelay <= 0 {
		return errors.New("InitialDelay must be positive")
	}
	if p.MaxDelay <= 0 {
		return errors.New("MaxDelay must be positive")
	}
	if p.BackoffMultiplier <= 0 {
		return errors.New("BackoffMultiplier must be positive")
	}
	if p.InitialDelay > p.MaxDelay {
		return errors.New("InitialDelay cannot be greater than MaxDelay")
	}
	return nil
}
