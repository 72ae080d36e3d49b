package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/quartzid/quartz/internal/idp/federation"
)

type Config struct {
	Issuer         string `env:"IDP_ISSUER" envDefault:"quartz-idp"`
	BootstrapToken string `env:"IDP_BOOTSTRAP_TOKEN"` // if unset, /v1/bootstrap is disabled

	DatabaseFile  string `env:"IDP_DATABASE_FILE" envDefault:"idp.db"`
	PepperFile    string `env:"IDP_PEPPER_FILE" envDefault:"pepper"`
	MasterKeyPath string `env:"IDP_MASTER_KEY_PATH"` // falls back to IDP_MASTER_KEY env var

	RSABits int `env:"IDP_RSA_BITS" envDefault:"2048"`

	AccessTokenTTL time.Duration `env:"IDP_ACCESS_TOKEN_TTL" envDefault:"1h"`
	IDTokenTTL     time.Duration `env:"IDP_ID_TOKEN_TTL" envDefault:"1h"`
	AuthCodeTTL    time.Duration `env:"IDP_AUTH_CODE_TTL" envDefault:"5m"`
	ChallengeTTL   time.Duration `env:"IDP_CHALLENGE_TTL" envDefault:"2m"`

	Env       string `env:"ENV" envDefault:"dev"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Port                 int           `env:"PORT" envDefault:"8080"`
	ShutdownGracePeriod  time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL" envDefault:"1h"`

	// FederationProviders lists upstream OIDC provider names. Each named
	// provider reads its own IDP_FEDERATION_<NAME>_* variables.
	FederationProviders []string `env:"IDP_FEDERATION_PROVIDERS"`

	federationConfigs map[string]federation.ProviderConfig
}

// LoadConfig parses configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.federationConfigs = make(map[string]federation.ProviderConfig)
	for _, name := range cfg.FederationProviders {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		pc, err := loadProviderConfig(name)
		if err != nil {
			return Config{}, err
		}
		cfg.federationConfigs[name] = pc
	}

	return cfg, nil
}

// FederationConfigs returns the per-provider upstream OIDC configuration.
func (c Config) FederationConfigs() map[string]federation.ProviderConfig {
	return c.federationConfigs
}

func loadProviderConfig(name string) (federation.ProviderConfig, error) {
	prefix := "IDP_FEDERATION_" + strings.ToUpper(name) + "_"

	pc := federation.ProviderConfig{
		Issuer:       os.Getenv(prefix + "ISSUER"),
		ClientID:     os.Getenv(prefix + "CLIENT_ID"),
		ClientSecret: os.Getenv(prefix + "CLIENT_SECRET"),
		RedirectURL:  os.Getenv(prefix + "REDIRECT_URL"),
	}
	if scopes := os.Getenv(prefix + "SCOPES"); scopes != "" {
		pc.Scopes = strings.Fields(scopes)
	}

	if pc.Issuer == "" || pc.ClientID == "" {
		return federation.ProviderConfig{}, fmt.Errorf("federation provider %s: %sISSUER and %sCLIENT_ID are required", name, prefix, prefix)
	}
	return pc, nil
}
