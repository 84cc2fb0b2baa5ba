// Package main provides the energy management daemon's entry point and CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devskill-org/ems/backend"
	"github.com/devskill-org/ems/backend/eos"
	"github.com/devskill-org/ems/backend/evopt"
	"github.com/devskill-org/ems/config"
	"github.com/devskill-org/ems/ctrl"
	"github.com/devskill-org/ems/httpapi"
	"github.com/devskill-org/ems/mqttio"
	"github.com/devskill-org/ems/orchestrator"
	"github.com/devskill-org/ems/persistence"
	"github.com/devskill-org/ems/ports/evcharger"
	"github.com/devskill-org/ems/ports/forecast"
	"github.com/devskill-org/ems/ports/inverter/fronius"
	sigport "github.com/devskill-org/ems/ports/inverter/sigenergy"
	"github.com/devskill-org/ems/ports/load"
	"github.com/devskill-org/ems/ports/price"
	"github.com/devskill-org/ems/sigenergy"
)

func main() {
	var (
		configFile = flag.String("config", "config.json", "Configuration file path")
		envFile    = flag.String("env", ".env", "Environment file for secrets")
		info       = flag.Bool("info", false, "Show Plant Information")
		help       = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	cfg, err := config.LoadConfig(*configFile, *envFile)
	if err != nil {
		fmt.Println("Error loading configuration:", err)
		os.Exit(1)
	}

	if *info {
		if err := sigenergy.ShowPlantInfo(cfg.PlantModbusAddress); err != nil {
			fmt.Println("Error:", err)
			os.Exit(1)
		}
		return
	}

	logger := log.New(os.Stdout, "[ems] ", log.LstdFlags)

	zone, err := time.LoadLocation(cfg.Location)
	if err != nil {
		logger.Printf("unknown location %q, defaulting to UTC: %v", cfg.Location, err)
		zone = time.UTC
	}

	priceCache, err := persistence.Open(cfg.PriceHistoryDSN)
	if err != nil {
		logger.Printf("price-history cache disabled: %v", err)
		priceCache = nil
	}
	defer priceCache.Close()

	orch := buildOrchestrator(cfg, zone, logger, priceCache)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MQTTBrokerURL != "" {
		mqttClient := mqttio.New(cfg.MQTTBrokerURL, cfg.MQTTUsername, cfg.MQTTPassword, cfg.MQTTClientID, cfg.MQTTTopicRoot, orch)
		if err := mqttClient.Connect(ctx); err != nil {
			logger.Printf("mqtt connect failed, continuing without it: %v", err)
		} else {
			defer mqttClient.Disconnect()
		}
	}

	httpServer := httpapi.New(orch, cfg.HTTPPort)
	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Printf("http api failed to start: %v", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	orch.Start()
	logger.Printf("orchestrator started, update interval %s. Press Ctrl+C to stop...", cfg.UpdateInterval)

	<-sigChan
	logger.Printf("shutdown signal received, stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if httpServer != nil {
		httpServer.Stop(shutdownCtx) //nolint:errcheck
	}
	orch.Stop()

	logger.Printf("stopped successfully")
}

func buildOrchestrator(cfg *config.Config, zone *time.Location, logger *log.Logger, priceCache *persistence.Store) *orchestrator.Orchestrator {
	priceLogger := log.New(os.Stdout, "[price] ", log.LstdFlags)
	pricePort := &price.Port{
		SecurityToken:          cfg.SecurityToken,
		URLFormat:              cfg.URLFormat,
		Zone:                   zone,
		Logger:                 priceLogger,
		ImportPriceOperatorFee: cfg.ImportPriceOperatorFee,
		DeliveryFee:            cfg.ImportPriceDeliveryFee,
		ExportPriceOperatorFee: cfg.ExportPriceOperatorFee,
		FlatFeedinTariff:       cfg.FlatFeedinTariff,
		Cache:                  priceCache,
	}
	if err := pricePort.Refresh(); err != nil {
		logger.Printf("initial price refresh failed: %v", err)
	}

	forecastPort := forecast.New(cfg.Latitude, cfg.Longitude, cfg.PanelCapacityW, cfg.UserAgent, zone, log.New(os.Stdout, "[forecast] ", log.LstdFlags))
	if err := forecastPort.Refresh(); err != nil {
		logger.Printf("initial forecast refresh failed: %v", err)
	}

	loadPort := &load.Port{DailyAverageW: cfg.HouseholdDailyAverageW, Zone: zone}

	batterySpec := ctrl.BatterySpec{
		CapacityWh:   cfg.BatteryCapacityWh,
		ChargeEff:    cfg.BatteryChargeEff,
		DischargeEff: cfg.BatteryDischargeEff,
		MaxChargeW:   cfg.BatteryMaxChargeW,
		MinSoCPct:    cfg.BatteryMinSoCPct,
		MaxSoCPct:    cfg.BatteryMaxSoCPct,
	}

	var inv interface {
		ctrl.Inverter
		orchestrator.ThermalInverter
	}
	var batterySource ctrl.BatterySource
	var limitsSource orchestrator.LimitsSource

	switch cfg.InverterDriver {
	case "fronius":
		inv = &fronius.Port{BaseURL: cfg.FroniusBaseURL}
	default:
		sigPort := &sigport.Port{Address: cfg.PlantModbusAddress, Config: batterySpec}
		inv = sigPort
		batterySource = sigPort
		limitsSource = sigPort
	}
	if batterySource == nil {
		batterySource = staticBatterySource{spec: batterySpec}
	}

	var evSource orchestrator.EVSource
	if cfg.EVCCBaseURL != "" {
		evSource = evcharger.New(cfg.EVCCBaseURL)
	}

	var be backend.Backend
	if cfg.BackendKind == "evopt" {
		be = evopt.New(cfg.BackendBaseURL, cfg.EVoptTimeFrameBase, zone, log.New(os.Stdout, "[evopt] ", log.LstdFlags))
	} else {
		be = eos.New(cfg.BackendBaseURL, zone, log.New(os.Stdout, "[eos] ", log.LstdFlags))
	}

	return orchestrator.New(
		orchestrator.Config{
			UpdateInterval:      cfg.UpdateInterval,
			OptimizeTimeout:     cfg.OptimizeTimeout,
			Zone:                zone,
			InverterMaxW:        cfg.InverterMaxW,
			NegativePriceSwitch: cfg.NegativePriceSwitch,
			Resolution:          ctrl.ResolutionHourly,
		},
		orchestrator.Ports{
			Forecast: forecastPort,
			Price:    pricePort,
			Load:     loadPort,
			Battery:  batterySource,
			EV:       evSource,
			Limits:   limitsSource,
			Inverter: inv,
		},
		be,
		logger,
	)
}

// staticBatterySource is used when the inverter driver cannot itself serve
// live battery telemetry (the fronius scaffold); it reports the configured
// spec with SoC at its initial value.
type staticBatterySource struct{ spec ctrl.BatterySpec }

func (s staticBatterySource) StaticSpec() ctrl.BatterySpec { return s.spec }
func (s staticBatterySource) CurrentSoCPct() float64       { return s.spec.InitialSoCPct }

func showHelp() {
	fmt.Println("Energy Management System (EMS) - orchestrates battery/inverter control from solar forecasts and day-ahead prices")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Periodically requests a day-ahead optimization plan from a pluggable optimizer backend")
	fmt.Println("  (EOS or evopt), interprets its response into inverter commands through a control state")
	fmt.Println("  machine, and publishes status over HTTP and MQTT.")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  ems [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  ems --config=config.json")
	fmt.Println("  ems -info")
	fmt.Println("  ems -help")
}
