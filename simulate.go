package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"derivatio-energy/internal/auth"
	"derivatio-energy/internal/config"
	consumption "derivatio-energy/internal/consumption/domain"
	consumptionmemory "derivatio-energy/internal/consumption/infrastructure/memory"
	"derivatio-energy/internal/engine"
	masterdataapp "derivatio-energy/internal/masterdata/application"
	masterdata "derivatio-energy/internal/masterdata/domain"
	masterdatamemory "derivatio-energy/internal/masterdata/infrastructure/memory"
	"derivatio-energy/internal/observability/logging"
	simapp "derivatio-energy/internal/simulation/application"
	simmemory "derivatio-energy/internal/simulation/infrastructure/memory"
	tariffapp "derivatio-energy/internal/tariff/application"
	tariff "derivatio-energy/internal/tariff/domain"
	tariffmemory "derivatio-energy/internal/tariff/infrastructure/memory"
)

const offlineOrganization = "offline"

// offlineInput is the document read by the simulate command.
type offlineInput struct {
	Property struct {
		ID             string            `yaml:"id"`
		Name           string            `yaml:"name"`
		GridOperator   string            `yaml:"grid_operator"`
		GridArea       string            `yaml:"grid_area"`
		SubscriptionKW float64           `yaml:"subscription_kw"`
		Fleet          *masterdata.Fleet `yaml:"fleet"`
	} `yaml:"property"`
	Tariffs  []tariff.GridTariff `yaml:"tariffs"`
	Readings []struct {
		Timestamp time.Time `yaml:"timestamp"`
		KWh       float64   `yaml:"kwh"`
		KWPeak    *float64  `yaml:"kw_peak"`
	} `yaml:"readings"`
	Request simapp.Request `yaml:"request"`
}

func newSimulateCmd() *cobra.Command {
	var (
		inputPath string
		hourly    bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run one simulation offline from a YAML document and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts, err := cfg.EngineOptions()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			data, err := os.ReadFile(inputPath)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			var in offlineInput
			if err := yaml.Unmarshal(data, &in); err != nil {
				return fmt.Errorf("parse input: %w", err)
			}
			if hourly {
				in.Request.IncludeHourly = true
			}
			return runOffline(cmd.Context(), in, opts, logger, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "path to the simulation document")
	cmd.Flags().BoolVar(&hourly, "hourly", false, "include the hourly series in the output")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// runOffline seeds in-memory stores from the document and prints the preview result.
func runOffline(ctx context.Context, in offlineInput, opts engine.Options, logger *zap.Logger, out io.Writer) error {
	prop := masterdata.Property{
		ID:             in.Property.ID,
		OrganizationID: offlineOrganization,
		Name:           in.Property.Name,
		GridOperator:   in.Property.GridOperator,
		GridArea:       in.Property.GridArea,
		SubscriptionKW: in.Property.SubscriptionKW,
	}
	if prop.Name == "" {
		prop.Name = prop.ID
	}
	properties := masterdatamemory.NewPropertyRepository()
	if err := properties.Save(ctx, &prop); err != nil {
		return err
	}
	fleets := masterdatamemory.NewFleetRepository()
	if in.Property.Fleet != nil {
		fleet := *in.Property.Fleet
		fleet.PropertyID = prop.ID
		if err := fleets.Save(ctx, &fleet); err != nil {
			return err
		}
	}
	propertyService, err := masterdataapp.NewPropertyService(properties, fleets)
	if err != nil {
		return err
	}

	readings := consumptionmemory.NewStore(auth.AllowAll{})
	records := make([]consumption.Record, 0, len(in.Readings))
	for _, r := range in.Readings {
		records = append(records, consumption.Record{
			PropertyID: prop.ID,
			Timestamp:  r.Timestamp,
			KWh:        r.KWh,
			KWPeak:     r.KWPeak,
			Source:     consumption.SourceMeter,
		})
	}
	if err := readings.SaveBatch(ctx, records); err != nil {
		return err
	}

	resolver, err := tariffapp.NewResolver(tariffmemory.NewCatalog(in.Tariffs...), logger)
	if err != nil {
		return err
	}
	svc, err := simapp.NewService(simmemory.NewRepository(), propertyService, readings, resolver, opts,
		simapp.WithLogger(logger),
		simapp.WithAccessChecker(auth.AllowAll{}),
	)
	if err != nil {
		return err
	}

	req := in.Request
	if req.PropertyID == "" {
		req.PropertyID = prop.ID
	}
	res, err := svc.Run(ctx, offlineOrganization, req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
