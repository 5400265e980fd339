package server

import (
	"context"
	"net"
	"time"

	"github.com/openkcm/common-sdk/pkg/commongrpc"
	"github.com/openkcm/common-sdk/pkg/health"
	"github.com/samber/oops"

	slogctx "github.com/veqryn/slog-context"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/openkcm/openid-provider/internal/config"
)

func StartGRPCServer(ctx context.Context, cfg *config.Config) error {
	grpcServer := commongrpc.NewServer(ctx, &cfg.GRPC.GRPCServer)

	healthpb.RegisterHealthServer(grpcServer, &health.GRPCServer{})

	listener, err := new(net.ListenConfig).Listen(ctx, "tcp", cfg.GRPC.Address)
	if err != nil {
		return oops.In("gRPC Server").
			WithContext(ctx).
			Wrapf(err, "creating listener")
	}

	go func() {
		slogctx.Info(ctx, "Starting GRPC server", "address", cfg.GRPC.Address)

		if err := grpcServer.Serve(listener); err != nil {
			slogctx.Error(ctx, "Failed to serve gRPC endpoint", "error", err)
		}

		slogctx.Info(ctx, "Stopped gRPC server")
	}()

	<-ctx.Done()

	stopWithTimeout(ctx, grpcServer, cfg.GRPC.ShutdownTimeout)

	return nil
}

type stoppable interface {
	GracefulStop()
	Stop()
}

// stopWithTimeout stops srv gracefully and falls back to a hard stop once
// timeout has passed.
func stopWithTimeout(ctx context.Context, srv stoppable, timeout time.Duration) {
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-stopped:
		slogctx.Info(ctx, "Completed graceful shutdown of gRPC server")
	case <-timer.C:
		slogctx.Warn(ctx, "Graceful shutdown of gRPC server timed out, forcing stop", "timeout", timeout)
		srv.Stop()
		<-stopped
	}
}
