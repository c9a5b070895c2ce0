package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cartridge/rrc-policy/internal/config"
	httpServer "github.com/cartridge/rrc-policy/internal/http"
	"github.com/cartridge/rrc-policy/internal/policy"
	"github.com/cartridge/rrc-policy/internal/rpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the policy over HTTP and gRPC",
	Long: `Serves reset and get_action over HTTP (/api/v1) and gRPC
(rrcpolicy.v1.Policy). Either transport is disabled by setting its address
to an empty string. All requests share one policy and are served one at a
time.`,
	RunE: runServe,
}

func init() {
	d := config.Default().Server
	serveCmd.Flags().String("http-addr", d.HTTPAddr, "HTTP listen address (empty disables)")
	serveCmd.Flags().String("grpc-addr", d.GRPCAddr, "gRPC listen address (empty disables)")
	_ = v.BindPFlag("server.http_addr", serveCmd.Flags().Lookup("http-addr"))
	_ = v.BindPFlag("server.grpc_addr", serveCmd.Flags().Lookup("grpc-addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	p, cleanup, err := buildPolicy(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	collector, closeEvents, err := newCollector(cfg, logger)
	if err != nil {
		return err
	}
	defer closeEvents()

	shared := policy.NewSynchronized(p)
	errs := make(chan error, 2)

	var srv *http.Server
	if cfg.Server.HTTPAddr != "" {
		h := httpServer.NewServer(shared, collector, logger)
		srv = &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           h.Routes(),
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
			ReadTimeout:       cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
		}
		go func() {
			logger.Info().Str("addr", cfg.Server.HTTPAddr).Msg("Policy HTTP server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- err
			}
		}()
	}

	var grpcSrv *rpc.Server
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return err
		}
		grpcSrv = rpc.NewServer(shared, collector, logger)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				errs <- err
			}
		}()
	}

	if srv == nil && grpcSrv == nil {
		return errors.New("both server.http_addr and server.grpc_addr are empty")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	var serveErr error
	select {
	case <-sig:
		logger.Info().Msg("Shutdown signal received")
	case serveErr = <-errs:
		logger.Error().Err(serveErr).Msg("Server failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}
	}
	if grpcSrv != nil {
		grpcSrv.Shutdown(ctx)
	}
	logger.Info().Msg("Policy server stopped")
	return serveErr
}
