package interceptor

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/patric-chuzhbe/smartmark/internal/auth"
	"github.com/patric-chuzhbe/smartmark/internal/logger"
	"github.com/patric-chuzhbe/smartmark/internal/user"
)

// UserResolver turns a session token into a user.
type UserResolver interface {
	ResolveUser(ctx context.Context, tokenString string) (*user.User, error)
}

type AuthInterceptor struct {
	resolver UserResolver
}

func NewAuthInterceptor(resolver UserResolver) *AuthInterceptor {
	return &AuthInterceptor{resolver: resolver}
}

func methodSet(methods []string) map[string]struct{} {
	result := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		result[m] = struct{}{}
	}
	return result
}

// authenticate resolves the "authorization" metadata into a user stored in ctx.
func (a *AuthInterceptor) authenticate(ctx context.Context) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}

	authHeader := md.Get("authorization")
	if len(authHeader) == 0 || auth.StripBearer(authHeader[0]) == "" {
		return nil, status.Error(codes.Unauthenticated, "missing authorization token")
	}

	usr, err := a.resolver.ResolveUser(ctx, auth.StripBearer(authHeader[0]))
	if errors.Is(err, auth.ErrInvalidToken) {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	if err != nil {
		logger.Log.Debugln("Error calling the `a.resolver.ResolveUser()`: ", zap.Error(err))
		return nil, status.Errorf(codes.Internal, "could not resolve user")
	}

	return auth.WithUser(ctx, usr), nil
}

// UnaryAuthInterceptor rejects unauthenticated calls to protectedMethods and
// attaches the user to the context of authenticated ones.
func (a *AuthInterceptor) UnaryAuthInterceptor(protectedMethods []string) grpc.UnaryServerInterceptor {
	protected := methodSet(protectedMethods)

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if _, ok := protected[info.FullMethod]; !ok {
			return handler(ctx, req)
		}

		ctxWithUser, err := a.authenticate(ctx)
		if err != nil {
			return nil, err
		}

		return handler(ctxWithUser, req)
	}
}

type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context {
	return s.ctx
}

// StreamAuthInterceptor is the streaming counterpart of UnaryAuthInterceptor.
func (a *AuthInterceptor) StreamAuthInterceptor(protectedMethods []string) grpc.StreamServerInterceptor {
	protected := methodSet(protectedMethods)

	return func(
		srv interface{},
		stream grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if _, ok := protected[info.FullMethod]; !ok {
			return handler(srv, stream)
		}

		ctxWithUser, err := a.authenticate(stream.Context())
		if err != nil {
			return err
		}

		return handler(srv, &authenticatedStream{ServerStream: stream, ctx: ctxWithUser})
	}
}
