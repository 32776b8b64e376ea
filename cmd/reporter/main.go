package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"glucolog/reporter"
	"glucolog/reporter/defs"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var configFile string

func init() {
	flag.StringVar(&configFile, "f", "config.yaml", "config file")
}

func main() {
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	if err := run(context.Background(), configFile, logger); err != nil {
		logger.Fatal("unable to generate report", zap.Error(err))
	}
}

// run loads the config and processes one batch.
func run(ctx context.Context, path string, logger *zap.Logger) error {
	config := defs.DefaultConfig()
	config.Logger = logger

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to read config: %w", err)
	}

	if err = yaml.Unmarshal(file, &config); err != nil {
		return fmt.Errorf("unable to parse config: %w", err)
	}

	logger.Debug("loaded config file", zap.String("file", path))

	r, err := reporter.New(ctx, config)
	if err != nil {
		return err
	}
	defer r.Close(ctx)

	if err := r.Process(ctx); err != nil {
		return err
	}
	logger.Info("generated report", zap.String("file", config.Paths.Report))
	return nil
}
