// Package config holds the slotmarket daemon's runtime settings.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/slotmarket/pkg/purchase"
)

const (
	defaultListenAddr          = ":9090"
	defaultGRPCListenAddr      = ":7070"
	defaultAllowedOrigin       = "http://localhost:8000"
	defaultSessionIssuer       = "tauth"
	defaultSessionCookie       = "app_session"
	defaultDatabaseURL         = "sqlite:///tmp/slotmarket.db"
	defaultReceiptPollInterval = time.Second
	defaultRPCTimeout          = 10 * time.Second

	// JournalDriverGORM stores the journal through gorm (postgres or sqlite).
	JournalDriverGORM = "gorm"
	// JournalDriverPGX stores the journal through a pgx pool; postgres only.
	JournalDriverPGX = "pgx"
)

// Config aggregates runtime settings for slotmarketd.
type Config struct {
	ListenAddr          string
	GRPCListenAddr      string
	RPCURL              string
	ChainID             uint64
	MarketplaceAddress  string
	TokenAddress        string
	WalletPrivateKey    string
	PromoSignerURL      string
	GalleryURL          string
	DatabaseURL         string
	JournalDriver       string
	AllowedOrigins      []string
	SessionSigningKey   string
	SessionIssuer       string
	SessionCookieName   string
	PromoDebounce       time.Duration
	SettleDelay         time.Duration
	BalancePollInterval time.Duration
	SupplyPollInterval  time.Duration
	ReceiptPollInterval time.Duration
	RPCTimeout          time.Duration
}

// Validate applies defaults and ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.GRPCListenAddr = defaultIfEmpty(cfg.GRPCListenAddr, defaultGRPCListenAddr)
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.JournalDriver = strings.ToLower(defaultIfEmpty(cfg.JournalDriver, JournalDriverGORM))
	cfg.SessionIssuer = defaultIfEmpty(cfg.SessionIssuer, defaultSessionIssuer)
	cfg.SessionCookieName = defaultIfEmpty(cfg.SessionCookieName, defaultSessionCookie)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	cfg.PromoDebounce = defaultIfNotPositive(cfg.PromoDebounce, purchase.DefaultPromoDebounce)
	cfg.SettleDelay = defaultIfNotPositive(cfg.SettleDelay, purchase.DefaultSettleDelay)
	cfg.BalancePollInterval = defaultIfNotPositive(cfg.BalancePollInterval, purchase.DefaultBalancePollInterval)
	cfg.SupplyPollInterval = defaultIfNotPositive(cfg.SupplyPollInterval, purchase.DefaultSupplyPollInterval)
	cfg.ReceiptPollInterval = defaultIfNotPositive(cfg.ReceiptPollInterval, defaultReceiptPollInterval)
	cfg.RPCTimeout = defaultIfNotPositive(cfg.RPCTimeout, defaultRPCTimeout)

	if strings.TrimSpace(cfg.RPCURL) == "" {
		return fmt.Errorf("rpc url is required")
	}
	if cfg.ChainID == 0 {
		return fmt.Errorf("chain id is required")
	}
	if _, err := purchase.NewAddress(cfg.MarketplaceAddress); err != nil {
		return fmt.Errorf("marketplace address: %w", err)
	}
	if _, err := purchase.NewAddress(cfg.TokenAddress); err != nil {
		return fmt.Errorf("token address: %w", err)
	}
	if strings.TrimSpace(cfg.WalletPrivateKey) == "" {
		return fmt.Errorf("wallet private key is required")
	}
	if strings.TrimSpace(cfg.PromoSignerURL) == "" {
		return fmt.Errorf("promo signer url is required")
	}
	if len(cfg.SessionSigningKey) == 0 {
		return fmt.Errorf("session signing key is required")
	}
	switch cfg.JournalDriver {
	case JournalDriverGORM:
	case JournalDriverPGX:
		if !IsPostgresURL(cfg.DatabaseURL) {
			return fmt.Errorf("journal driver %q requires a postgres database url", JournalDriverPGX)
		}
	default:
		return fmt.Errorf("unsupported journal driver %q", cfg.JournalDriver)
	}
	return nil
}

// IsPostgresURL reports whether dsn names a postgres database.
func IsPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func defaultIfNotPositive(value time.Duration, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
