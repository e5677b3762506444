package metrics

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const statusQueryTimeout = 5 * time.Second

var simulationStatuses = []string{"pending", "running", "done", "error"}

// simulationStatusCollector reports stored simulations per lifecycle status at scrape time.
type simulationStatusCollector struct {
	db     *sql.DB
	logger *zap.Logger
	desc   *prometheus.Desc
}

func newSimulationStatusCollector(db *sql.DB, logger *zap.Logger) *simulationStatusCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &simulationStatusCollector{
		db:     db,
		logger: logger,
		desc: prometheus.NewDesc(
			metricPrefix+"simulations",
			"Stored simulations by status",
			[]string{"status"}, nil,
		),
	}
}

func (c *simulationStatusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *simulationStatusCollector) Collect(ch chan<- prometheus.Metric) {
	counts, err := c.counts()
	if err != nil {
		c.logger.Warn("simulation status query failed", zap.Error(err))
		return
	}
	for _, status := range simulationStatuses {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, counts[status], status)
	}
}

func (c *simulationStatusCollector) counts() (map[string]float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), statusQueryTimeout)
	defer cancel()
	rows, err := c.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM simulations GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]float64, len(simulationStatuses))
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = float64(n)
	}
	return out, rows.Err()
}
