package devserver

import "sync/atomic"

// Stats counts calls handled by the server
type Stats struct {
	Logins          int64
	LoginFailures   int64
	Renewals        int64
	RenewalFailures int64
	Logouts         int64
	APIRequests     int64 // authenticated requests that passed RequireAuth
}

type counters struct {
	logins          atomic.Int64
	loginFailures   atomic.Int64
	renewals        atomic.Int64
	renewalFailures atomic.Int64
	logouts         atomic.Int64
	apiRequests     atomic.Int64
}

func (s *Server) Stats() Stats {
	return Stats{
		Logins:          s.stats.logins.Load(),
		LoginFailures:   s.stats.loginFailures.Load(),
		Renewals:        s.stats.renewals.Load(),
		RenewalFailures: s.stats.renewalFailures.Load(),
		Logouts:         s.stats.logouts.Load(),
		APIRequests:     s.stats.apiRequests.Load(),
	}
}
