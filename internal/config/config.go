package config

import "time"

type Config interface {
	EnvConfig
	SessionConfig
	DevServerConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetAPIBaseURL() string
	GetDataFolder() string
	GetLogLevel() string
	GetEnv() string
}

type SessionConfig interface {
	GetExpiryBuffer() time.Duration
	GetExpiryCheckInterval() time.Duration
	GetLogoutTimeout() time.Duration
	GetHTTPTimeout() time.Duration
	GetRenewRetries() int
	GetRenewRetryDelay() time.Duration
	GetActivityLogLimit() int
}

type DevServerConfig interface {
	GetAccessTokenTTL() time.Duration
	GetRenewalTokenTTL() time.Duration
	GetSigningSecret() string
	GetRenewalTokenLength() int
}

type mainConfig struct {
	EnvVars
	Session
	DevServer
}

// New returns a Config backed by environment variables only
func New() Config {
	return mainConfig{}
}

// Load returns a Config backed by environment variables, falling back to the
// YAML file at path. An empty path behaves like New.
func Load(path string) (Config, error) {
	if path == "" {
		return New(), nil
	}
	values, err := readFile(path)
	if err != nil {
		return nil, err
	}
	src := source{file: values}
	return mainConfig{
		EnvVars:   EnvVars{src},
		Session:   Session{src},
		DevServer: DevServer{src},
	}, nil
}
