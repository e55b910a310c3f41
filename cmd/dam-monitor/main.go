package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/i474232898/dam-monitoring/internal/alerts"
	httpapi "github.com/i474232898/dam-monitoring/internal/api/http"
	"github.com/i474232898/dam-monitoring/internal/archive"
	"github.com/i474232898/dam-monitoring/internal/config"
	"github.com/i474232898/dam-monitoring/internal/dam"
	"github.com/i474232898/dam-monitoring/internal/geo"
	"github.com/i474232898/dam-monitoring/internal/metrics"
	"github.com/i474232898/dam-monitoring/internal/mqttbus"
	"github.com/i474232898/dam-monitoring/internal/prediction"
	"github.com/i474232898/dam-monitoring/internal/scheduler"
	"github.com/i474232898/dam-monitoring/internal/store"
	"github.com/i474232898/dam-monitoring/internal/zone"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Reading store.
	var damStore dam.Store
	switch cfg.StoreBackend {
	case "postgres":
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL, cfg.StoreMaxReadings)
		if err != nil {
			log.Fatalf("failed to open postgres store: %v", err)
		}
		defer pg.Close()
		damStore = pg
	default:
		damStore = store.NewMemoryStore(cfg.StoreMaxReadings)
	}
	if err := store.SeedIfEmpty(ctx, damStore, cfg.SeedReadings); err != nil {
		log.Fatalf("failed to seed dams: %v", err)
	}

	// Prediction gateway with resilience (backoff + circuit breaker).
	gateway := prediction.NewClient(prediction.Config{
		BaseURL:       cfg.PredictionBaseURL,
		Timeout:       cfg.PredictionTimeout,
		HealthTimeout: cfg.PredictionHealthTimeout,
		MaxRetries:    cfg.PredictionMaxRetries,
		HTTPClient:    &http.Client{},
		Observer:      m,
	})

	// Status change sinks. Optional ones are enabled by configuration.
	sinks := alerts.Fanout{alerts.LogSink{}}

	var mqttClient mqtt.Client
	if cfg.MQTTBrokerURL != "" {
		client, err := mqttbus.Connect(ctx, mqttbus.Config{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
		})
		if err != nil {
			log.Printf("ERROR: mqtt disabled: %v", err)
		} else {
			mqttClient = client
			sinks = append(sinks, mqttbus.NewAlertPublisher(client, cfg.MQTTAlertsTopic))
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		k, err := alerts.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaAlertsTopic)
		if err != nil {
			log.Printf("ERROR: kafka alerts disabled: %v", err)
		} else {
			defer k.Close()
			sinks = append(sinks, k)
		}
	}

	var readingArchive dam.ReadingArchive
	if cfg.InfluxURL != "" {
		a, err := archive.NewInflux(archive.InfluxConfig{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		})
		if err != nil {
			log.Printf("ERROR: influx archive disabled: %v", err)
		} else {
			defer a.Close()
			readingArchive = a
		}
	}

	// Core service orchestrating store, classifier and gateway.
	damService := dam.NewService(damStore, gateway, dam.Options{
		Mode:             cfg.CommitMode,
		Window:           cfg.PredictionWindow,
		StrictReadings:   cfg.StrictReadings,
		StrictThresholds: cfg.StrictThresholds,
		Alerts:           sinks,
		Archive:          readingArchive,
		Recorder:         m,
	})

	if all, err := damService.List(ctx); err == nil {
		for _, d := range all {
			m.SetDamStatus(d.ID, d.Status)
		}
	}

	if cfg.GeocoderAPIKey != "" {
		go func() {
			if err := geo.Backfill(ctx, geo.NewResolver(cfg.GeocoderAPIKey), damService); err != nil {
				log.Printf("ERROR: geocode backfill: %v", err)
			}
		}()
	}

	// Field telemetry over MQTT goes through the same ingestion flow as HTTP.
	if mqttClient != nil {
		sub := mqttbus.NewReadingSubscriber(mqttClient, cfg.MQTTReadingsTopic, damService)
		if err := sub.Subscribe(); err != nil {
			log.Printf("ERROR: mqtt telemetry disabled: %v", err)
		}
	}

	zones := zone.NewService()
	zones.Seed()

	// Scheduler that periodically probes the prediction service.
	sched := scheduler.New(cfg.HealthProbeInterval, gateway, m)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "dam-monitoring",
		DisableStartupMessage: true,
		// Route params outlive the request as metric labels and log fields.
		Immutable:             true,
		ReadTimeout:           10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(m.Middleware())

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"message": "Backend server is running!"})
	})

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "dam-monitoring",
		})
	})

	app.Get("/metrics", m.Handler())

	// API routes.
	httpapi.RegisterRoutes(app, httpapi.Deps{
		Dams:    damService,
		Zones:   zones,
		Gateway: gateway,
		Auth: httpapi.AuthConfig{
			Secret:     cfg.JWTSecret,
			Production: cfg.IsProduction(),
		},
	})

	go func() {
		log.Printf("INFO: server is running on port %s", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
