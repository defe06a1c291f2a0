package main

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/MarkoPoloResearchLab/slotmarket/internal/chain"
	"github.com/MarkoPoloResearchLab/slotmarket/internal/config"
	"github.com/MarkoPoloResearchLab/slotmarket/internal/gallery"
	"github.com/MarkoPoloResearchLab/slotmarket/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/slotmarket/internal/httpapi"
	"github.com/MarkoPoloResearchLab/slotmarket/internal/journal"
	"github.com/MarkoPoloResearchLab/slotmarket/internal/promosigner"
	"github.com/MarkoPoloResearchLab/slotmarket/pkg/purchase"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func run(ctx context.Context, cfg config.Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, cleanup, err := openJournal(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	operationLogger, err := journal.NewLogger(logger, journal.WithStore(store))
	if err != nil {
		return fmt.Errorf("journal init: %w", err)
	}

	connection, err := chain.Connect(ctx, chain.DialRPC(cfg.RPCURL))
	if err != nil {
		return fmt.Errorf("rpc connect: %w", err)
	}
	defer connection.Close()

	signer, err := chain.NewKeySigner(cfg.WalletPrivateKey)
	if err != nil {
		return err
	}
	marketplace, err := purchase.NewAddress(cfg.MarketplaceAddress)
	if err != nil {
		return fmt.Errorf("marketplace address: %w", err)
	}
	token, err := purchase.NewAddress(cfg.TokenAddress)
	if err != nil {
		return fmt.Errorf("token address: %w", err)
	}
	gateway, err := chain.NewGateway(connection, signer, marketplace, token,
		chain.WithReceiptPollInterval(cfg.ReceiptPollInterval),
		chain.WithCallTimeout(cfg.RPCTimeout),
	)
	if err != nil {
		return fmt.Errorf("gateway init: %w", err)
	}
	session, err := chain.NewSession(connection, signer, cfg.ChainID)
	if err != nil {
		return fmt.Errorf("session init: %w", err)
	}
	if session.IsWrongNetwork() {
		logger.Warn("rpc endpoint serves an unexpected chain",
			zap.Uint64("expected_chain_id", cfg.ChainID),
			zap.Uint64("chain_id", session.ChainID()),
		)
	}

	promoSigner, err := promosigner.New(cfg.PromoSignerURL)
	if err != nil {
		return fmt.Errorf("promo signer init: %w", err)
	}
	galleryClient := gallery.New(cfg.GalleryURL, gallery.WithLogger(logger))

	registry, err := httpapi.NewRegistry(func(property purchase.Address) (*purchase.Orchestrator, error) {
		return purchase.NewOrchestrator(property, gateway, session, promoSigner,
			purchase.WithGallery(galleryClient),
			purchase.WithOperationLogger(operationLogger),
			purchase.WithPromoDebounce(cfg.PromoDebounce),
			purchase.WithSettleDelay(cfg.SettleDelay),
			purchase.WithBalancePollInterval(cfg.BalancePollInterval),
			purchase.WithSupplyPollInterval(cfg.SupplyPollInterval),
		)
	})
	if err != nil {
		return err
	}
	defer registry.CloseAll()

	apiConfig := httpapi.Config{AllowedOrigins: cfg.AllowedOrigins, RequestTimeout: cfg.RPCTimeout}
	handler, err := httpapi.NewHandler(logger, registry, session, store, apiConfig)
	if err != nil {
		return fmt.Errorf("handler init: %w", err)
	}
	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return fmt.Errorf("session validator init: %w", err)
	}
	router := httpapi.NewRouter(apiConfig, handler, validator)

	healthServer, err := grpcserver.NewHealthServer(connection, logger, 0)
	if err != nil {
		return fmt.Errorf("health server init: %w", err)
	}
	grpcServer := grpc.NewServer()
	healthServer.Register(grpcServer)
	listener, err := net.Listen("tcp", cfg.GRPCListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return httpapi.Serve(groupCtx, cfg.ListenAddr, router, logger)
	})
	group.Go(func() error {
		healthServer.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		logger.Info("gRPC health server starting", zap.String("listen_addr", cfg.GRPCListenAddr))
		serveErr := grpcServer.Serve(listener)
		if errors.Is(serveErr, grpc.ErrServerStopped) {
			return nil
		}
		return serveErr
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown requested")
		grpcServer.GracefulStop()
		return nil
	})
	return group.Wait()
}
