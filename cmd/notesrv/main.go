package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"glucolog/reporter"
	"glucolog/reporter/defs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var configFile string

func init() {
	flag.StringVar(&configFile, "f", "config.yaml", "config file")
	flag.Parse()
}

func main() {
	logger, _ := zap.NewDevelopment()
	config := defs.DefaultConfig()
	config.Logger = logger

	file, err := os.ReadFile(configFile)
	if err != nil {
		panic(err)
	}

	if err = yaml.Unmarshal(file, &config); err != nil {
		panic(err)
	}

	logger.Debug("loaded config file", zap.String("file", configFile))

	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := reporter.New(ctx, config)
	if err != nil {
		panic(err)
	}
	defer r.Close(context.Background())

	if err := r.Server().ListenAndServe(ctx, config.HTTP.Address); err != nil {
		logger.Error("http server stopped", zap.Error(err))
	}
}
