package config

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const maxRetryDelay = 30 * time.Second

// retryDelay doubles from 2s and caps at 30s.
func retryDelay(attempt int) time.Duration {
	return min(time.Second*time.Duration(1<<min(attempt, 5)), maxRetryDelay)
}

// retry calls connect until it succeeds or ctx ends. Failures are logged
// with fields plus the attempt number and delay.
func retry(ctx context.Context, what string, fields logrus.Fields, connect func(ctx context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := connect(ctx)
		if err == nil {
			logg.WithFields(fields).WithField("attempt", attempt).Info(what + " ready")
			return nil
		}
		delay := retryDelay(attempt)
		logg.WithFields(fields).WithFields(logrus.Fields{
			"attempt": attempt,
			"retry":   delay.String(),
		}).Warn(what + " unavailable: " + err.Error())

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
