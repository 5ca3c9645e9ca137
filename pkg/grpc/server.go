package grpc

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// Server 包裝 grpc.Server，預設掛上 health 與 reflection
type Server struct {
	addr   string
	lis    net.Listener
	Server *grpc.Server
	health *health.Server
	log    zerolog.Logger
}

// NewServer 建立 gRPC Server
//
// 參數:
//
//	addr: 監聽地址 (e.g., ":50051")
//	log: 存取紀錄與 panic 使用的 logger
//	opts: 額外的 grpc.ServerOption
func NewServer(addr string, log zerolog.Logger, opts ...grpc.ServerOption) *Server {
	defaultOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(RecoveryInterceptor(log), LoggingInterceptor(log)),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			// 配合 Pool 的 client keepalive (每 10 秒 ping 一次)
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	s := grpc.NewServer(append(defaultOpts, opts...)...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s) // 方便 grpcurl 等工具列出服務
	return &Server{
		addr:   addr,
		Server: s,
		health: hs,
		log:    log,
	}
}

// SetServing 設定服務的健康狀態，service 為空字串代表整體狀態
func (s *Server) SetServing(service string, serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, st)
}

// Start 監聽並阻塞直到 Stop
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Serve 在指定 listener 上服務 (測試使用 bufconn)
func (s *Server) Serve(lis net.Listener) error {
	s.lis = lis
	s.log.Info().Str("addr", lis.Addr().String()).Msg("grpc server listening")
	return s.Server.Serve(lis)
}

// Stop 先將健康狀態設為 NOT_SERVING，再等待進行中的 RPC 完成
// ctx 到期時強制關閉
func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.Server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.Server.Stop()
	}
}

// LoggingInterceptor 記錄每個 unary RPC 的方法、狀態碼與耗時
func LoggingInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		ev := log.Debug()
		if code == codes.Internal || code == codes.Unknown {
			ev = log.Error().Err(err)
		}
		ev.Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("duration", time.Since(start)).
			Msg("grpc request")
		return resp, err
	}
}

// RecoveryInterceptor 將 handler 的 panic 轉成 codes.Internal
func RecoveryInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if p := recover(); p != nil {
				log.Error().Interface("panic", p).Str("method", info.FullMethod).Msg("grpc handler panic")
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
