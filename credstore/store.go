package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-client/authmodel"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultExpiryBuffer treats a credential as expired this long before its hard
// expiry, so a token that passes the check does not lapse mid-request.
const DefaultExpiryBuffer = 2 * time.Minute

// Snapshot is what Load recovers from storage
type Snapshot struct {
	Credential authmodel.Credential
	Identity   authmodel.Identity
}

// Store is the credential store on top of a KV backend
type Store struct {
	kv          KV
	log         zerolog.Logger
	nowTime     func() time.Time
	activityMux sync.Mutex
}

// StoreOption defines a function type to modify the Store instance.
type StoreOption func(*Store)

func WithLogger(l zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.log = l
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

func New(kv KV, options ...StoreOption) *Store {
	s := &Store{
		kv:      kv,
		log:     log.Logger,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	s.log = s.log.With().Str("component", "credstore").Logger()
	return s
}

// Save writes the credential and identity in one atomic backend write. When
// the credential has no renewal token the stale renewal key is deleted after
// the write.
func (s *Store) Save(ctx context.Context, cred authmodel.Credential, identity authmodel.Identity) error {
	if cred.AccessToken == "" {
		return fmt.Errorf("credstore: save: access token is required")
	}
	if cred.ExpiresAt.IsZero() {
		return fmt.Errorf("credstore: save: expiry is required")
	}

	identityJSON, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("credstore: save: encode identity: %w", err)
	}

	values := map[string]string{
		KeyIdentity:    string(identityJSON),
		KeyAccessToken: cred.AccessToken,
		KeyExpiresAt:   cred.ExpiresAt.UTC().Format(time.RFC3339Nano),
	}
	if cred.RenewalToken != "" {
		values[KeyRenewalToken] = cred.RenewalToken
	}
	if err := s.kv.SetMany(ctx, values); err != nil {
		return fmt.Errorf("credstore: save: %w", err)
	}
	if cred.RenewalToken == "" {
		if err := s.kv.Delete(ctx, KeyRenewalToken); err != nil {
			return fmt.Errorf("credstore: save: drop renewal token: %w", err)
		}
	}
	return nil
}

// Load returns the persisted session, or nil when any required field is
// missing or unparsable. Backend failures are logged and reported as nil.
func (s *Store) Load(ctx context.Context) *Snapshot {
	accessToken, ok := s.get(ctx, KeyAccessToken)
	if !ok || accessToken == "" {
		return nil
	}

	expiresAt, ok := s.expiresAt(ctx)
	if !ok {
		return nil
	}

	identityJSON, ok := s.get(ctx, KeyIdentity)
	if !ok {
		return nil
	}
	var identity authmodel.Identity
	if err := json.Unmarshal([]byte(identityJSON), &identity); err != nil {
		s.log.Warn().Err(err).Msg("discarding unparsable stored identity")
		return nil
	}
	if !identity.Valid() {
		return nil
	}
	identity.Role = authmodel.ParseRole(string(identity.Role))

	renewalToken, _ := s.get(ctx, KeyRenewalToken)

	return &Snapshot{
		Credential: authmodel.Credential{
			AccessToken:  accessToken,
			RenewalToken: renewalToken,
			ExpiresAt:    expiresAt,
		},
		Identity: identity,
	}
}

// Clear removes every persisted key, including the activity log. Clearing an
// empty store is not an error.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, AllKeys...); err != nil {
		return fmt.Errorf("credstore: clear: %w", err)
	}
	return nil
}

// IsExpired reports whether now+buffer has reached the stored expiry. A
// missing or unparsable expiry counts as expired.
func (s *Store) IsExpired(ctx context.Context, buffer time.Duration) bool {
	expiresAt, ok := s.expiresAt(ctx)
	if !ok {
		return true
	}
	return !s.nowTime().Add(buffer).Before(expiresAt)
}

// AppendActivity adds entry to the activity log, keeping the newest limit entries
func (s *Store) AppendActivity(ctx context.Context, entry authmodel.ActivityEntry, limit int) error {
	s.activityMux.Lock()
	defer s.activityMux.Unlock()

	entries := s.Activity(ctx)
	entries = append(entries, entry)
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("credstore: encode activity: %w", err)
	}
	if err := s.kv.SetMany(ctx, map[string]string{KeyActivityLog: string(data)}); err != nil {
		return fmt.Errorf("credstore: append activity: %w", err)
	}
	return nil
}

// Activity returns the activity log, oldest first. A corrupt log reads as empty.
func (s *Store) Activity(ctx context.Context) []authmodel.ActivityEntry {
	raw, ok := s.get(ctx, KeyActivityLog)
	if !ok || raw == "" {
		return nil
	}
	var entries []authmodel.ActivityEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		s.log.Warn().Err(err).Msg("resetting unparsable activity log")
		return nil
	}
	return entries
}

func (s *Store) expiresAt(ctx context.Context) (time.Time, bool) {
	raw, ok := s.get(ctx, KeyExpiresAt)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		s.log.Warn().Err(err).Msg("unparsable stored expiry")
		return time.Time{}, false
	}
	return t, true
}

func (s *Store) get(ctx context.Context, key string) (string, bool) {
	v, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("credential store read failed")
		return "", false
	}
	return v, ok
}
