package interceptor

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/patric-chuzhbe/smartmark/internal/logger"
)

// shouldLog treats a nil allow list as "every method".
func shouldLog(allowed map[string]struct{}, method string) bool {
	if allowed == nil {
		return true
	}
	_, ok := allowed[method]
	return ok
}

func allowList(methods []string) map[string]struct{} {
	if methods == nil {
		return nil
	}
	return methodSet(methods)
}

// UnaryLoggingInterceptor logs each incoming unary gRPC request with method and duration.
func UnaryLoggingInterceptor(allowedMethods []string) grpc.UnaryServerInterceptor {
	allowed := allowList(allowedMethods)

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		if !shouldLog(allowed, info.FullMethod) {
			return handler(ctx, req)
		}

		start := time.Now()

		resp, err = handler(ctx, req)

		st, _ := status.FromError(err)
		logger.Log.Infoln(
			"gRPC request",
			"method", info.FullMethod,
			"duration", time.Since(start),
			"code", st.Code().String(),
			"message", st.Message(),
		)

		return resp, err
	}
}

// StreamLoggingInterceptor logs each stream when it ends.
func StreamLoggingInterceptor(allowedMethods []string) grpc.StreamServerInterceptor {
	allowed := allowList(allowedMethods)

	return func(
		srv interface{},
		stream grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if !shouldLog(allowed, info.FullMethod) {
			return handler(srv, stream)
		}

		start := time.Now()

		err := handler(srv, stream)

		st, _ := status.FromError(err)
		logger.Log.Infoln(
			"gRPC stream",
			"method", info.FullMethod,
			"duration", time.Since(start),
			"code", st.Code().String(),
			"message", st.Message(),
		)

		return err
	}
}
