package utils

import (
	"os"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	DbConnectionOptions string
	LogLevel            string
	SentryDsn           string
}

func GetConfig() *AppConfig {
	godotenv.Load(".env")

	var appConfig = AppConfig{
		DbConnectionOptions: "host=localhost port=5432 dbname=pgsession sslmode=disable",
		LogLevel:            "warning",
	}

	if dbConnectionOptions := os.Getenv("DB_CONNECTION_OPTIONS"); len(dbConnectionOptions) > 0 {
		appConfig.DbConnectionOptions = dbConnectionOptions
	}

	if logLevel := os.Getenv("LOG_LEVEL"); len(logLevel) > 0 {
		appConfig.LogLevel = logLevel
	}

	if sentryDsn := os.Getenv("SENTRY_DSN"); len(sentryDsn) > 0 {
		appConfig.SentryDsn = sentryDsn
	}

	return &appConfig
}
