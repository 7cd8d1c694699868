package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/eddielth/mesh-trans/config"
	"github.com/eddielth/mesh-trans/logger"
	"github.com/eddielth/mesh-trans/metrics"
	"github.com/eddielth/mesh-trans/mqtt"
	"github.com/eddielth/mesh-trans/nodes"
	"github.com/eddielth/mesh-trans/storage"
	"github.com/eddielth/mesh-trans/transformer"
	"github.com/eddielth/mesh-trans/validator"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to the YAML config file")
	pflag.Parse()

	if err := run(*configPath); err != nil {
		logger.Error("%v", err)
		logger.Close()
		os.Exit(1)
	}
}

func run(configPath string) error {
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := validator.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := logger.InitFromConfig(cfg.Logger.Level, cfg.Logger.FilePath, cfg.Logger.MaxSize, cfg.Logger.MaxBackups, cfg.Logger.Console); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	directory, err := nodes.FromConfig(cfg.Nodes)
	if err != nil {
		return fmt.Errorf("failed to load node names: %w", err)
	}
	logger.Info("loaded %d node names", directory.Len())

	scripts, err := transformer.NewScriptManager(cfg.Scripts)
	if err != nil {
		return fmt.Errorf("failed to initialize scripts: %w", err)
	}
	classifier := transformer.NewClassifier(directory, transformer.WithScripts(scripts))

	storageManager, err := storage.NewManagerFromConfig(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer storageManager.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pipelineMetrics := metrics.New(reg)

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Listen, pipelineMetrics)
		metricsServer.Start(func(err error) {
			logger.Error("metrics server stopped: %v", err)
		})
		logger.Info("serving metrics on %s/metrics", cfg.Metrics.Listen)
	}

	mqttManager, err := mqtt.NewManager(cfg.MQTT, classifier, storageManager, pipelineMetrics)
	if err != nil {
		return err
	}
	if err := mqttManager.Start(); err != nil {
		return err
	}

	err = loader.Watch(func(newCfg *config.Config) error {
		logger.Info("applying new configuration...")

		for msgType, scriptCfg := range newCfg.Scripts {
			if err := scripts.Reload(msgType, scriptCfg); err != nil {
				// keep going with the other scripts
				logger.Error("failed to reload script %s: %v", msgType, err)
			}
		}

		if !reflect.DeepEqual(newCfg.Nodes, cfg.Nodes) {
			logger.Warn("node name changes take effect after restart")
		}
		if !reflect.DeepEqual(newCfg.MQTT, cfg.MQTT) || !reflect.DeepEqual(newCfg.Storage, cfg.Storage) {
			logger.Warn("MQTT and storage changes take effect after restart")
		}
		return nil
	}, func(err error) {
		logger.Error("%v", err)
	})
	if err != nil {
		// not fatal
		logger.Warn("failed to watch config file: %v", err)
	} else {
		logger.Info("watching config file %s", configPath)
	}

	logger.Info("mesh-trans started, waiting for mesh messages...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	mqttManager.Stop()
	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown: %v", err)
		}
	}
	logger.Info("service stopped")
	return nil
}
