package alerts

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/omni/gmp-mock-api/logging"
)

type Alert struct {
	Labels prometheus.Labels
	Value  float64
}

type Job struct {
	logger   logging.Logger
	Metric   *prometheus.GaugeVec
	Interval time.Duration
	Timeout  time.Duration
	Func     func(ctx context.Context) ([]Alert, error)
}

func (j *Job) Start(ctx context.Context) {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		j.RunOnce(ctx)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce refreshes the alert gauge, previous values are dropped only after a successful run.
func (j *Job) RunOnce(ctx context.Context) {
	timeoutCtx, cancel := context.WithTimeout(ctx, j.Timeout)
	defer cancel()

	start := time.Now()
	alerts, err := j.Func(timeoutCtx)
	if err != nil {
		j.logger.WithError(err).Error("failed to process alert job")
		return
	}
	j.Metric.Reset()
	if len(alerts) == 0 {
		j.logger.WithField("duration", time.Since(start)).Debug("no alerts has been found")
		return
	}
	j.logger.WithFields(logrus.Fields{
		"count":    len(alerts),
		"duration": time.Since(start),
	}).Warn("found some possible alerts")
	for _, alert := range alerts {
		j.Metric.With(alert.Labels).Set(alert.Value)
	}
}
