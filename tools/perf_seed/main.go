package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"derivatio-energy/internal/auth"
	"derivatio-energy/internal/calendar"
	consumption "derivatio-energy/internal/consumption/domain"
	consumptionrepo "derivatio-energy/internal/consumption/infrastructure/postgres"
	"derivatio-energy/internal/loadshift"
	masterdata "derivatio-energy/internal/masterdata/domain"
	masterdatarepo "derivatio-energy/internal/masterdata/infrastructure/postgres"
	"derivatio-energy/internal/observability/logging"
	simapp "derivatio-energy/internal/simulation/application"
)

type seedConfig struct {
	dsn            string
	baseURL        string
	token          string
	organizationID string
	operator       string
	propertyCount  int
	subscriptionKW float64
	startDate      string
	days           int
	runSimulations bool
}

func main() {
	if err := newSeedCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newSeedCmd() *cobra.Command {
	cfg := seedConfig{}
	cmd := &cobra.Command{
		Use:          "perf_seed",
		Short:        "Seed properties with hourly consumption and optionally trigger simulations",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(envOrDefault("LOG_LEVEL", "info"))
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return run(cmd.Context(), cfg, logger)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.dsn, "pg-dsn", envOrDefault("PG_DSN", os.Getenv("DATABASE_URL")), "Postgres DSN")
	f.StringVar(&cfg.baseURL, "base-url", os.Getenv("BASE_URL"), "API base URL used when triggering simulations")
	f.StringVar(&cfg.token, "token", os.Getenv("API_TOKEN"), "bearer token for the API")
	f.StringVar(&cfg.organizationID, "organization-id", os.Getenv("ORGANIZATION_ID"), "organization to seed into (new uuid when empty)")
	f.StringVar(&cfg.operator, "operator", "ellevio", "grid operator of the seeded properties")
	f.IntVar(&cfg.propertyCount, "property-count", 10, "number of properties to seed")
	f.Float64Var(&cfg.subscriptionKW, "subscription-kw", 120, "subscription kW of each property")
	f.StringVar(&cfg.startDate, "start-date", "", "first day (YYYY-MM-DD), defaults to the first of last month")
	f.IntVar(&cfg.days, "days", 31, "number of days to seed")
	f.BoolVar(&cfg.runSimulations, "run-simulations", false, "POST a stored simulation per property after seeding")
	return cmd
}

func run(ctx context.Context, cfg seedConfig, logger *zap.Logger) error {
	if cfg.dsn == "" {
		return fmt.Errorf("PG_DSN or DATABASE_URL is required")
	}
	if cfg.propertyCount <= 0 || cfg.days <= 0 {
		return fmt.Errorf("property-count and days must be > 0")
	}
	start, err := parseStartDate(cfg.startDate, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("invalid start-date: %w", err)
	}
	if cfg.organizationID == "" {
		cfg.organizationID = uuid.NewString()
	}

	db, err := sql.Open("pgx", cfg.dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx,
		`INSERT INTO organizations (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		cfg.organizationID, "perf organization"); err != nil {
		return fmt.Errorf("seed organization: %w", err)
	}

	properties := masterdatarepo.NewPropertyRepository(db)
	fleets := masterdatarepo.NewFleetRepository(db)
	readings, err := consumptionrepo.NewRepository(db, auth.AllowAll{})
	if err != nil {
		return err
	}

	ids := make([]string, 0, cfg.propertyCount)
	for i := 1; i <= cfg.propertyCount; i++ {
		prop := &masterdata.Property{
			ID:             uuid.NewString(),
			OrganizationID: cfg.organizationID,
			Name:           fmt.Sprintf("perf-property-%04d", i),
			GridOperator:   cfg.operator,
			GridArea:       "SE3",
			SubscriptionKW: cfg.subscriptionKW,
		}
		if err := properties.Save(ctx, prop); err != nil {
			return fmt.Errorf("seed property: %w", err)
		}
		fleet := &masterdata.Fleet{
			ID:              uuid.NewString(),
			PropertyID:      prop.ID,
			Name:            "pool",
			VehicleCount:    (i % 5) + 1,
			ChargerKW:       11,
			ArrivalHour:     masterdata.DefaultArrivalHour,
			DepartureHour:   masterdata.DefaultDepartureHour,
			AvgSOCOnArrival: masterdata.DefaultSOCOnArrival,
			BatteryKWh:      masterdata.DefaultBatteryKWh,
		}
		if err := fleets.Save(ctx, fleet); err != nil {
			return fmt.Errorf("seed fleet: %w", err)
		}
		if err := readings.SaveBatch(ctx, buildReadings(prop.ID, cfg.subscriptionKW, i, start, cfg.days)); err != nil {
			return fmt.Errorf("seed consumption: %w", err)
		}
		ids = append(ids, prop.ID)
		logger.Info("seeded property",
			zap.String("property_id", prop.ID),
			zap.Int("index", i),
			zap.Int("total", cfg.propertyCount),
		)
	}

	if cfg.runSimulations {
		if cfg.baseURL == "" {
			return fmt.Errorf("base-url is required when run-simulations is enabled")
		}
		period := calendar.DateOf(start)
		created, err := triggerSimulations(ctx, cfg, ids, period, period.AddDays(cfg.days-1))
		if err != nil {
			return err
		}
		for _, id := range created {
			fmt.Println(id)
		}
	}
	logger.Info("perf seed completed", zap.String("organization_id", cfg.organizationID), zap.Int("properties", len(ids)))
	return nil
}

// buildReadings produces an office-shaped hourly series with a per-property scale and a small daily drift.
func buildReadings(propertyID string, subscriptionKW float64, index int, start time.Time, days int) []consumption.Record {
	scale := 0.6 + 0.05*float64(index%8)
	out := make([]consumption.Record, 0, days*24)
	for h := 0; h < days*24; h++ {
		ts := start.Add(time.Duration(h) * time.Hour)
		drift := 1 + 0.1*math.Sin(float64(h/24)/3)
		kwh := loadshift.SyntheticBaseKW(ts.Hour(), subscriptionKW) * scale * drift
		out = append(out, consumption.Record{
			PropertyID: propertyID,
			Timestamp:  ts,
			KWh:        math.Round(kwh*1000) / 1000,
			Source:     consumption.SourceMeter,
		})
	}
	return out
}

func triggerSimulations(ctx context.Context, cfg seedConfig, propertyIDs []string, from, to calendar.Date) ([]string, error) {
	client := &http.Client{Timeout: 60 * time.Second}
	baseURL := strings.TrimRight(cfg.baseURL, "/")
	ids := make([]string, 0, len(propertyIDs))
	for _, propertyID := range propertyIDs {
		payload, _ := json.Marshal(simapp.Request{PropertyID: propertyID, PeriodStart: from, PeriodEnd: to})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/v1/simulations", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if cfg.token != "" {
			req.Header.Set("Authorization", "Bearer "+cfg.token)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		var body struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		if resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("simulation failed for %s: http %d", propertyID, resp.StatusCode)
		}
		err = json.NewDecoder(resp.Body).Decode(&body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, err
		}
		if body.ID == "" {
			return nil, fmt.Errorf("empty simulation id for %s", propertyID)
		}
		ids = append(ids, body.ID)
	}
	return ids, nil
}

func parseStartDate(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return calendar.MonthOf(now).Prev().Start(time.UTC), nil
	}
	d, err := calendar.ParseDate(value)
	if err != nil {
		return time.Time{}, err
	}
	return d.In(time.UTC), nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
