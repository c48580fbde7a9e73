// Package grpcserver exposes the bookmark operations over gRPC, with a JSON
// codec and a server-streaming change feed.
package grpcserver

import (
	"net"

	"google.golang.org/grpc"

	"github.com/patric-chuzhbe/smartmark/internal/grpcserver/interceptor"
)

var protectedMethods = []string{
	MethodListBookmarks,
	MethodAddBookmark,
	MethodDeleteBookmark,
	MethodWatchBookmarks,
}

// NewGRPCServer listens on addr and registers handler behind logging and
// authentication interceptors.
func NewGRPCServer(
	addr string,
	handler *BookmarkHandler,
	resolver interceptor.UserResolver,
) (*grpc.Server, net.Listener, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	authInterceptor := interceptor.NewAuthInterceptor(resolver)

	server := grpc.NewServer(
		grpc.ForceServerCodec(Codec{}),
		grpc.ChainUnaryInterceptor(
			interceptor.UnaryLoggingInterceptor(nil),
			authInterceptor.UnaryAuthInterceptor(protectedMethods),
		),
		grpc.ChainStreamInterceptor(
			interceptor.StreamLoggingInterceptor(nil),
			authInterceptor.StreamAuthInterceptor(protectedMethods),
		),
	)
	RegisterBookmarkServiceServer(server, handler)

	return server, lis, nil
}
