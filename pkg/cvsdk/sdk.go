package cvsdk

import (
	"time"

	"github.com/conveyordev/conveyor/pkg/backend"
	"github.com/conveyordev/conveyor/pkg/cvlog"
	"github.com/conveyordev/conveyor/pkg/kv"
	"github.com/conveyordev/conveyor/pkg/orchestrate"
)

// SDK bundles a configured backend client with the resolved credentials
// so commands don't wire keyring + client + headers themselves.
type SDK struct {
	Client  *backend.Client
	BaseURL string
	APIKey  string
	Config  *Config

	log *cvlog.Logger
}

// New resolves credentials (explicit config first, then the OS keyring)
// and returns an initialized SDK.
func New(cfg *Config, log *cvlog.Logger) (*SDK, error) {
	if log == nil {
		log = cvlog.Discard()
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		if stored, err := LoadAPIKey(cfg.BaseURL); err == nil {
			apiKey = stored
		}
	}

	if apiKey != "" && IsJWT(apiKey) {
		if expired, err := IsTokenExpired(apiKey, 30*time.Second); err == nil && expired {
			log.Warn("stored credential is expired, run 'conveyorctl auth login'", "server", cfg.BaseURL)
		}
	}

	client, err := backend.NewClient(backend.ClientConfig{
		BaseURL:  cfg.BaseURL,
		APIKey:   apiKey,
		WorkPool: cfg.WorkPool,
	})
	if err != nil {
		return nil, err
	}

	return &SDK{
		Client:  client,
		BaseURL: client.BaseURL(),
		APIKey:  apiKey,
		Config:  cfg,
		log:     log,
	}, nil
}

// PollInterval returns the configured poll interval, or the library
// default when unset.
func (s *SDK) PollInterval() time.Duration {
	if s.Config != nil && s.Config.PollInterval > 0 {
		return s.Config.PollInterval
	}
	return orchestrate.DefaultPollInterval
}

// StateStore connects to the configured journal backend. Returns
// (nil, nil) when no state endpoint is configured.
func (s *SDK) StateStore() (kv.Store, error) {
	if s.Config == nil || s.Config.StateAddr == "" {
		return nil, nil
	}
	return kv.NewRedisStore(kv.RedisConfig{Addr: s.Config.StateAddr})
}

// Journal builds a run journal over the configured state store. Returns
// (nil, nil) when journaling is not configured; a nil journal disables
// persistence. The journal owns the store: Journal.Close releases it.
func (s *SDK) Journal() (*orchestrate.Journal, error) {
	store, err := s.StateStore()
	if err != nil || store == nil {
		return nil, err
	}
	return orchestrate.NewJournal(store, ""), nil
}

// ClearCredentials removes the stored API key for the SDK's base URL from
// the keyring and resets the in-memory copy.
func (s *SDK) ClearCredentials() {
	if s == nil || s.BaseURL == "" {
		return
	}
	_ = DeleteAPIKey(s.BaseURL)
	s.APIKey = ""
}
