package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Nephrolytics-ai/vibe-relayer/pkg/config"
	"github.com/Nephrolytics-ai/vibe-relayer/pkg/llms/gemini"
	"github.com/Nephrolytics-ai/vibe-relayer/pkg/logging"
	"github.com/Nephrolytics-ai/vibe-relayer/pkg/pipeline"
	"github.com/Nephrolytics-ai/vibe-relayer/pkg/prompt"
	"github.com/Nephrolytics-ai/vibe-relayer/pkg/relay"
	"github.com/Nephrolytics-ai/vibe-relayer/pkg/server"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	envFile := flag.String("env-file", ".env", "path to a dotenv file")
	flag.Parse()

	ctx := context.Background()
	log := logging.NewLogger(ctx)

	envFileRequired := isFlagSet("env-file")
	if err := config.LoadEnvFile(*envFile, envFileRequired); err != nil {
		log.Fatalf("error: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	if err := logging.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("configuring logging: %v", err)
	}
	log = logging.NewLogger(ctx)
	if !strings.EqualFold(cfg.Log.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	composer := prompt.NewComposer(
		prompt.WithLocation(cfg.Location()),
		prompt.WithSignOff(cfg.Report.SignOff),
		prompt.WithGlossary(cfg.Report.Glossary),
	)

	generator, err := gemini.NewReportGenerator(ctx, cfg.GeneratorOptions()...)
	if err != nil {
		log.Fatalf("creating report generator: %v", err)
	}

	dispatcher, err := relay.NewWebhookDispatcher(cfg.Slack.WebhookURL, relay.WithTimeout(cfg.DeliveryTimeout()))
	if err != nil {
		log.Fatalf("creating webhook dispatcher: %v", err)
	}

	runner, err := pipeline.New(
		composer,
		generator,
		dispatcher,
		pipeline.WithInferenceTimeout(cfg.InferenceTimeout()),
		pipeline.WithDeliveryTimeout(cfg.DeliveryTimeout()),
		pipeline.WithStrictSections(cfg.Report.RequireSections),
	)
	if err != nil {
		log.Fatalf("creating pipeline: %v", err)
	}

	router := server.NewRouter(runner, generator, server.WithMaxUploadBytes(cfg.Server.MaxUploadBytes))
	srv := server.NewHTTPServer(cfg.Server.HTTPAddr, router, cfg.InferenceTimeout()+cfg.DeliveryTimeout())

	go func() {
		log.Infof(
			"relayer_started addr=%s model=%s timezone=%s strict_sections=%t",
			cfg.Server.HTTPAddr,
			generator.ModelName(),
			cfg.Location(),
			cfg.Report.RequireSections,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("forced shutdown: %v", err)
	}
	log.Info("server exited")
}

func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
