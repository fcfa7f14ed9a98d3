package config

import "time"

type Session struct{ source }

var _ SessionConfig = Session{}

// GetExpiryBuffer is how long before the hard expiry a credential is treated as expired
func (s Session) GetExpiryBuffer() time.Duration {
	return s.getDuration("EXPIRY_BUFFER", 2*time.Minute)
}

func (s Session) GetExpiryCheckInterval() time.Duration {
	return s.getDuration("EXPIRY_CHECK_INTERVAL", time.Minute)
}

// GetLogoutTimeout bounds the best-effort remote revoke on logout
func (s Session) GetLogoutTimeout() time.Duration {
	return s.getDuration("LOGOUT_TIMEOUT", 5*time.Second)
}

func (s Session) GetHTTPTimeout() time.Duration {
	return s.getDuration("HTTP_TIMEOUT", 30*time.Second)
}

// GetRenewRetries is the number of extra attempts after a renewal network failure.
// Zero keeps renewal terminal on any failure.
func (s Session) GetRenewRetries() int {
	return s.getInt("RENEW_RETRIES", 0)
}

func (s Session) GetRenewRetryDelay() time.Duration {
	return s.getDuration("RENEW_RETRY_DELAY", 500*time.Millisecond)
}

func (s Session) GetActivityLogLimit() int {
	return s.getInt("ACTIVITY_LOG_LIMIT", 50)
}
