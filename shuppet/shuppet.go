package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"glucolog/reporter/defs"

	"gopkg.in/yaml.v2"
)

func main() {
	defaults := defs.DefaultConfig()

	storage := flag.String("storage", defaults.Storage, "storage backend, file or mongo")

	dexcomAccount := flag.String("dexcom-account", "", "dexcom account")
	dexcomPassword := flag.String("dexcom-password", "", "dexcom password")

	threshold := flag.Float64("glucose-threshold", defaults.Glucose.Threshold, "threshold for high glucose periods")
	pointsMedium := flag.Float64("points-medium", defaults.Glucose.PointsMedium, "daily points marked as medium")
	pointsHigh := flag.Float64("points-high", defaults.Glucose.PointsHigh, "daily points marked as high")
	glucoseLow := flag.Float64("glucose-low", defaults.Glucose.Low, "lower bound for glucose")
	glucoseHigh := flag.Float64("glucose-high", defaults.Glucose.High, "upper bound for glucose")

	mongoUsername := flag.String("mongo-username", "admin", "mongo username")
	mongoPassword := flag.String("mongo-password", "password", "mongo password")

	address := flag.String("address", defaults.HTTP.Address, "http listen address")
	timezone := flag.String("timezone", "Europe/Warsaw", "timezone of the meter exports")

	flag.Parse()

	cfg := defaults
	cfg.Storage = *storage
	cfg.Dexcom = defs.DexcomConfig{
		Account:  *dexcomAccount,
		Password: *dexcomPassword,
	}
	cfg.Glucose = defs.GlucoseConfig{
		Threshold:    *threshold,
		PointsMedium: *pointsMedium,
		PointsHigh:   *pointsHigh,
		Low:          *glucoseLow,
		High:         *glucoseHigh,
	}
	cfg.Mongo = defs.MongoConfig{
		URI:      "mongodb://mongo:27017",
		Username: *mongoUsername,
		Password: *mongoPassword,
		Database: defs.DefaultDB,
	}
	cfg.HTTP.Address = *address
	cfg.Timezone = *timezone

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		log.Fatal(err)
	}

	err = os.WriteFile("docker-config.yaml", data, 0666)
	if err != nil {
		log.Fatal(err)
	}

	envVars := map[string]string{
		"MONGO_USERNAME": *mongoUsername,
		"MONGO_PASSWORD": *mongoPassword,
	}
	envString := ""
	for k, v := range envVars {
		envString += fmt.Sprintln(k + "=" + v)
	}

	err = os.WriteFile("glucolog.env", []byte(envString), 0666)
	if err != nil {
		log.Fatal(err)
	}
}
