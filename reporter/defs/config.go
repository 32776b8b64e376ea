package defs

import (
	"time"

	"go.uber.org/zap"
)

const DefaultDB = "glucolog"

// Intervals.
const (
	TimeoutInterval  = 2 * time.Second
	ShutdownInterval = 5 * time.Second
)

// Storage backends.
const (
	FileStorage  = "file"
	MongoStorage = "mongo"
)

type Config struct {
	Glucose  GlucoseConfig `yaml:"glucose"`
	Paths    PathsConfig   `yaml:"paths"`
	Storage  string        `yaml:"storage"`
	Mongo    MongoConfig   `yaml:"mongo"`
	Dexcom   DexcomConfig  `yaml:"dexcom"`
	HTTP     HTTPConfig    `yaml:"http"`
	Timezone string        `yaml:"timezone"`
	Logger   *zap.Logger   `yaml:"_,omitempty"`
}

// GlucoseConfig holds every glucose related threshold. Threshold is the only
// value the period analyzer reads; PointsMedium and PointsHigh band a day's
// total points for display, Low and High bound the time in range.
type GlucoseConfig struct {
	Threshold    float64 `yaml:"threshold"`
	PointsMedium float64 `yaml:"pointsMedium"`
	PointsHigh   float64 `yaml:"pointsHigh"`
	Low          float64 `yaml:"low"`
	High         float64 `yaml:"high"`
}

type PathsConfig struct {
	Source    string `yaml:"source"`
	Processed string `yaml:"processed"`
	User      string `yaml:"user"`
	Report    string `yaml:"report"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type DexcomConfig struct {
	Account  string `yaml:"account"`
	Password string `yaml:"password"`
}

type HTTPConfig struct {
	Address string `yaml:"address"`
}

// DefaultConfig mirrors the values the reporter shipped with.
func DefaultConfig() Config {
	return Config{
		Glucose: GlucoseConfig{
			Threshold:    140,
			PointsMedium: 1000,
			PointsHigh:   3000,
			Low:          70,
			High:         180,
		},
		Paths: PathsConfig{
			Source:    "data/source",
			Processed: "data/processed",
			User:      "data/user",
			Report:    "glucose_report.html",
		},
		Storage: FileStorage,
		HTTP:    HTTPConfig{Address: ":5000"},
	}
}

// Location resolves the configured timezone, falling back to time.Local.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}
