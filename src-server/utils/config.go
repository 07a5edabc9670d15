package utils

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

type Config struct {
	port   string
	dbPath string

	location *time.Location

	metricCollectionInterval time.Duration
	deliverySweepSpec        string
	expansionLimit           int

	hostname string
}

func NewConfig() *Config {
	return &Config{
		port: func() string {
			port := os.Getenv("PORT")
			if port == "" {
				port = "8080"
			}
			slog.Debug("env", "PORT", port)
			return port
		}(),

		dbPath: func() string {
			dbPath := os.Getenv("DB_PATH")
			if dbPath == "" {
				dbPath = "./sqlite.db"
			}
			slog.Debug("env", "DB_PATH", dbPath)
			return dbPath
		}(),

		location: func() *time.Location {
			timezoneStr := os.Getenv("TIMEZONE")
			var loc *time.Location
			var err error
			switch timezoneStr {
			case "":
				slog.Warn("TIMEZONE is not set, using UTC")
				loc = time.UTC
			default:
				loc, err = time.LoadLocation(timezoneStr)
				if err != nil {
					slog.Error("invalid TIMEZONE", "error", err)
					os.Exit(1)
				}
				slog.Debug("env", "TIMEZONE", timezoneStr)
			}
			return loc
		}(),

		metricCollectionInterval: func() time.Duration {
			intervalStr := os.Getenv("METRIC_COLLECTION_INTERVAL")
			if intervalStr == "" {
				intervalStr = "60s"
			}
			interval, err := time.ParseDuration(intervalStr)
			if err != nil {
				slog.Error("invalid METRIC_COLLECTION_INTERVAL", "error", err)
				os.Exit(1)
			}
			slog.Debug("env", "METRIC_COLLECTION_INTERVAL", interval)
			return interval
		}(),

		deliverySweepSpec: func() string {
			spec := os.Getenv("DELIVERY_SWEEP_CRON")
			if spec == "" {
				spec = "@every 30s"
			}
			slog.Debug("env", "DELIVERY_SWEEP_CRON", spec)
			return spec
		}(),

		expansionLimit: func() int {
			limitStr := os.Getenv("EXPANSION_LIMIT")
			if limitStr == "" {
				limitStr = "1000"
			}
			limit, err := strconv.Atoi(limitStr)
			if err != nil || limit < 1 {
				slog.Error("invalid EXPANSION_LIMIT", "value", limitStr)
				os.Exit(1)
			}
			slog.Debug("env", "EXPANSION_LIMIT", limit)
			return limit
		}(),

		hostname: func() string {
			hostname := os.Getenv("HOSTNAME")
			if hostname == "" {
				hostname = "localhost"
			}
			slog.Debug("env", "HOSTNAME", hostname)
			return hostname
		}(),
	}
}

func (c *Config) GetPort() string                             { return c.port }
func (c *Config) GetDBPath() string                           { return c.dbPath }
func (c *Config) GetLocation() *time.Location                 { return c.location }
func (c *Config) GetMetricCollectionInterval() time.Duration  { return c.metricCollectionInterval }
func (c *Config) GetDeliverySweepSpec() string                { return c.deliverySweepSpec }
func (c *Config) GetExpansionLimit() int                      { return c.expansionLimit }
func (c *Config) GetHostname() string                         { return c.hostname }
