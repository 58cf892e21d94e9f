package main

import (
	"context"
	"errors"
	"os"
	"time"

	"gagyebu/internal/amqp"
	"gagyebu/internal/cli"
	"gagyebu/internal/config"
	"gagyebu/internal/export"
	"gagyebu/internal/log"
	"gagyebu/internal/remote/httpapi"
	"gagyebu/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	logger.Info("Starting gagyebu-worker")
	cfg := cli.LoadAndValidateConfig(logger)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	client, err := httpapi.New(cfg.APIURL, httpapi.WithTimeout(cfg.RequestTimeout), httpapi.WithLogger(logger))
	if err != nil {
		logger.Error("Failed to create record API client", log.FieldError, err, "api_url", cfg.APIURL)
		os.Exit(1)
	}

	sinks, err := buildSinks(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize export sinks", log.FieldError, err)
		os.Exit(1)
	}
	exporter := export.NewExporter(client, logger, sinks...)
	logger.Info("Export sinks ready", "sinks", exporter.Sinks())

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	syncWorker := worker.NewSyncWorker(exporter, cfg.Location(), logger)

	// Catch up on anything missed while the worker was down.
	if err := syncWorker.StartupSync(ctx); err != nil {
		logger.Error("Startup sync failed", log.FieldError, err)
	}

	if err := amqpClient.Consume(ctx, cfg.AMQPPrefetch, syncWorker.HandleRecordChange); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}

func buildSinks(ctx context.Context, cfg *config.Config, logger *log.Logger) ([]export.Sink, error) {
	var sinks []export.Sink
	if cfg.HasSink(config.SinkLog) {
		sinks = append(sinks, export.NewLogSink(logger))
	}
	if cfg.HasSink(config.SinkSheets) {
		s, err := export.NewSheetsSink(ctx, export.SheetsConfig{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		}, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.HasSink(config.SinkS3) {
		s, err := export.NewS3Sink(ctx, export.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		}, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}
