package config

import "time"

type DevServer struct{ source }

var _ DevServerConfig = DevServer{}

func (d DevServer) GetAccessTokenTTL() time.Duration {
	return d.getDuration("ACCESS_TOKEN_TTL", 15*time.Minute)
}

func (d DevServer) GetRenewalTokenTTL() time.Duration {
	return d.getDuration("RENEWAL_TOKEN_TTL", 7*24*time.Hour) // 7 days
}

func (d DevServer) GetSigningSecret() string {
	return d.get("SIGNING_SECRET", "dev-signing-secret")
}

func (d DevServer) GetRenewalTokenLength() int {
	return 32 // 32 bytes = 256 bits
}
