package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	portEnvVar     = "PORT"
	appNameVar     = "APP_NAME"
	folderEnvVar   = "DATA_FOLDER"
	baseURLVar     = "API_BASE_URL"
	logLevelEnvVar = "LOG_LEVEL"
)

type EnvVars struct{ source }

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.get(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.get(appNameVar, "Session Client")
}

// GetAPIBaseURL returns the base URL of the remote auth API (e.g., "https://api.example.com")
func (e EnvVars) GetAPIBaseURL() string {
	return strings.TrimRight(e.get(baseURLVar, "http://localhost:8080"), "/")
}

func (e EnvVars) GetDataFolder() string {
	return e.get(folderEnvVar, "./data")
}

func (e EnvVars) GetLogLevel() string {
	return e.get(logLevelEnvVar, "info")
}

func (e EnvVars) GetEnv() string {
	return e.get("ENV", "DEV")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// source resolves a key from the environment first, then the optional config file
type source struct {
	file map[string]string
}

func (s source) get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value, ok := s.file[key]; ok && value != "" {
		return value
	}
	return defaultValue
}

func (s source) getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := s.get(key, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return defaultValue
	}
	return d
}

func (s source) getInt(key string, defaultValue int) int {
	raw := s.get(key, "")
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return defaultValue
	}
	return n
}
