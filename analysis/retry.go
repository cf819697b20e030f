package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// RetryPolicy is a fixed-delay retry ceiling for one request.
type RetryPolicy struct {
	MaxAttempts    int           `json:"max_attempts"`
	Delay          time.Duration `json:"delay"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// DefaultRetryPolicy returns 5 attempts, 3s apart, each bounded by 5 minutes.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    5,
		Delay:          3 * time.Second,
		RequestTimeout: 5 * time.Minute,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.RequestTimeout <= 0 {
		p.RequestTimeout = d.RequestTimeout
	}
	return p
}

// RetryResult describes how a retried call went.
type RetryResult struct {
	Attempts      int
	TotalDuration time.Duration
	RetryReasons  []string
}

// Retrier runs requests under a RetryPolicy, optionally paced by a rate limiter.
type Retrier struct {
	Policy  RetryPolicy
	Limiter *rate.Limiter
	// Sleep waits between attempts; nil means time.Sleep.
	Sleep func(time.Duration)
}

// CallWithRetry sends req with the given policy and no pacing.
func CallWithRetry(ctx context.Context, inf Inferencer, req Request, policy RetryPolicy) (Response, RetryResult, error) {
	return Retrier{Policy: policy}.Do(ctx, inf, req)
}

// Do sends req until it succeeds, fails terminally or the attempt ceiling is reached.
// Once issued, a request is detached from ctx cancellation and bounded only by RequestTimeout.
func (r Retrier) Do(ctx context.Context, inf Inferencer, req Request) (Response, RetryResult, error) {
	var res RetryResult
	if ctx == nil {
		return Response{}, res, errors.New("Retrier.Do: nil context")
	}
	if inf == nil {
		return Response{}, res, errors.New("Retrier.Do: nil inferencer")
	}

	p := r.Policy.withDefaults()
	sleep := r.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	base := context.WithoutCancel(ctx)
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		res.Attempts = attempt
		if r.Limiter != nil {
			if err := r.Limiter.Wait(base); err != nil {
				return Response{}, res, fmt.Errorf("Retrier.Do: rate limiter: %w", err)
			}
		}

		resp, err := r.attempt(base, inf, req, p.RequestTimeout)
		if err == nil {
			res.TotalDuration = time.Since(start)
			return resp, res, nil
		}
		lastErr = err
		res.RetryReasons = append(res.RetryReasons, err.Error())

		if !IsRetryable(err) {
			res.TotalDuration = time.Since(start)
			return Response{}, res, err
		}
		if attempt < p.MaxAttempts {
			log.Warn().Err(err).
				Str("model", req.Model).
				Int("attempt", attempt).
				Int("max_attempts", p.MaxAttempts).
				Dur("delay", p.Delay).
				Msg("inference attempt failed, retrying")
			sleep(p.Delay)
		}
	}

	res.TotalDuration = time.Since(start)
	return Response{}, res, fmt.Errorf("failed after %d attempts: %w", res.Attempts, lastErr)
}

func (r Retrier) attempt(base context.Context, inf Inferencer, req Request, timeout time.Duration) (Response, error) {
	ctx, cancel := context.WithTimeout(base, timeout)
	defer cancel()

	resp, err := inf.Infer(ctx, req)
	if err != nil {
		return Response{}, err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return Response{}, &ServiceError{Message: "no text in response", Retryable: true, Err: ErrEmptyResponse}
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	return resp, nil
}
