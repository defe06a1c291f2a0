package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MarkoPoloResearchLab/slotmarket/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	flagListenAddr          = "listen-addr"
	flagGRPCListenAddr      = "grpc-listen-addr"
	flagRPCURL              = "rpc-url"
	flagChainID             = "chain-id"
	flagMarketplaceAddress  = "marketplace-address"
	flagTokenAddress        = "token-address"
	flagWalletPrivateKey    = "wallet-private-key"
	flagPromoSignerURL      = "promo-signer-url"
	flagGalleryURL          = "gallery-url"
	flagDatabaseURL         = "database-url"
	flagJournalDriver       = "journal-driver"
	flagAllowedOrigins      = "allowed-origins"
	flagSessionSigningKey   = "session-signing-key"
	flagSessionIssuer       = "session-issuer"
	flagSessionCookieName   = "session-cookie-name"
	flagPromoDebounce       = "promo-debounce"
	flagSettleDelay         = "settle-delay"
	flagBalancePollInterval = "balance-poll-interval"
	flagSupplyPollInterval  = "supply-poll-interval"
	flagReceiptPollInterval = "receipt-poll-interval"
	flagRPCTimeout          = "rpc-timeout"
	envPrefix               = "SLOTMARKET"
)

var requiredFlags = []string{
	flagRPCURL,
	flagChainID,
	flagMarketplaceAddress,
	flagTokenAddress,
	flagWalletPrivateKey,
	flagPromoSignerURL,
	flagSessionSigningKey,
}

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "slotmarketd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := config.Config{}
	cmd := &cobra.Command{
		Use:           "slotmarketd",
		Short:         "Slot purchase sessions over an EVM marketplace",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, &cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	cmd.Flags().String(flagListenAddr, "", "HTTP listen address (default :9090)")
	cmd.Flags().String(flagGRPCListenAddr, "", "gRPC health listen address (default :7070)")
	cmd.Flags().String(flagRPCURL, "", "EVM JSON-RPC endpoint (required)")
	cmd.Flags().Uint64(flagChainID, 0, "expected chain id (required)")
	cmd.Flags().String(flagMarketplaceAddress, "", "marketplace contract address (required)")
	cmd.Flags().String(flagTokenAddress, "", "payment token contract address (required)")
	cmd.Flags().String(flagWalletPrivateKey, "", "hex private key of the purchasing wallet (required)")
	cmd.Flags().String(flagPromoSignerURL, "", "base URL of the promo signing service (required)")
	cmd.Flags().String(flagGalleryURL, "", "base URL of the gallery service")
	cmd.Flags().String(flagDatabaseURL, "", "journal database URL (postgres:// or sqlite://)")
	cmd.Flags().String(flagJournalDriver, "", "journal store driver: gorm (default) or pgx (postgres only)")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagSessionSigningKey, "", "TAuth session signing key (required)")
	cmd.Flags().String(flagSessionIssuer, "", "expected session issuer (default tauth)")
	cmd.Flags().String(flagSessionCookieName, "", "session cookie name (default app_session)")
	cmd.Flags().Duration(flagPromoDebounce, 0, "quiet period before a promo code is validated")
	cmd.Flags().Duration(flagSettleDelay, 0, "delay before inventory is re-read after a purchase")
	cmd.Flags().Duration(flagBalancePollInterval, 0, "balance and allowance refresh interval")
	cmd.Flags().Duration(flagSupplyPollInterval, 0, "total supply watcher interval")
	cmd.Flags().Duration(flagReceiptPollInterval, 0, "transaction receipt poll interval")
	cmd.Flags().Duration(flagRPCTimeout, 0, "per-call JSON-RPC timeout")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *config.Config) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if bindErr == nil {
			bindErr = v.BindPFlag(flag.Name, flag)
		}
	})
	if bindErr != nil {
		return bindErr
	}

	for _, flagName := range requiredFlags {
		if !v.IsSet(flagName) {
			return fmt.Errorf("%s is required", flagName)
		}
	}

	cfg.ListenAddr = strings.TrimSpace(v.GetString(flagListenAddr))
	cfg.GRPCListenAddr = strings.TrimSpace(v.GetString(flagGRPCListenAddr))
	cfg.RPCURL = strings.TrimSpace(v.GetString(flagRPCURL))
	cfg.ChainID = v.GetUint64(flagChainID)
	cfg.MarketplaceAddress = strings.TrimSpace(v.GetString(flagMarketplaceAddress))
	cfg.TokenAddress = strings.TrimSpace(v.GetString(flagTokenAddress))
	cfg.WalletPrivateKey = strings.TrimSpace(v.GetString(flagWalletPrivateKey))
	cfg.PromoSignerURL = strings.TrimSpace(v.GetString(flagPromoSignerURL))
	cfg.GalleryURL = strings.TrimSpace(v.GetString(flagGalleryURL))
	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.JournalDriver = strings.TrimSpace(v.GetString(flagJournalDriver))
	cfg.AllowedOrigins = config.ParseAllowedOrigins(v.GetString(flagAllowedOrigins))
	cfg.SessionSigningKey = v.GetString(flagSessionSigningKey)
	cfg.SessionIssuer = strings.TrimSpace(v.GetString(flagSessionIssuer))
	cfg.SessionCookieName = strings.TrimSpace(v.GetString(flagSessionCookieName))
	cfg.PromoDebounce = v.GetDuration(flagPromoDebounce)
	cfg.SettleDelay = v.GetDuration(flagSettleDelay)
	cfg.BalancePollInterval = v.GetDuration(flagBalancePollInterval)
	cfg.SupplyPollInterval = v.GetDuration(flagSupplyPollInterval)
	cfg.ReceiptPollInterval = v.GetDuration(flagReceiptPollInterval)
	cfg.RPCTimeout = v.GetDuration(flagRPCTimeout)

	return cfg.Validate()
}
