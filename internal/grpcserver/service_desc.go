package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/patric-chuzhbe/smartmark/internal/models"
)

const serviceName = "smartmark.BookmarkService"

// Full method names, as seen by interceptors.
const (
	MethodPing           = "/" + serviceName + "/Ping"
	MethodListBookmarks  = "/" + serviceName + "/ListBookmarks"
	MethodAddBookmark    = "/" + serviceName + "/AddBookmark"
	MethodDeleteBookmark = "/" + serviceName + "/DeleteBookmark"
	MethodWatchBookmarks = "/" + serviceName + "/WatchBookmarks"
)

type ListBookmarksRequest struct{}

type ListBookmarksResponse struct {
	Bookmarks models.Bookmarks `json:"bookmarks"`
}

type WatchBookmarksRequest struct{}

// BookmarkServiceServer is implemented by BookmarkHandler.
type BookmarkServiceServer interface {
	Ping(ctx context.Context, req *emptypb.Empty) (*emptypb.Empty, error)
	ListBookmarks(ctx context.Context, req *ListBookmarksRequest) (*ListBookmarksResponse, error)
	AddBookmark(ctx context.Context, req *models.AddBookmarkRequest) (*models.Bookmark, error)
	DeleteBookmark(ctx context.Context, req *models.DeleteBookmarkRequest) (*emptypb.Empty, error)
	WatchBookmarks(req *WatchBookmarksRequest, stream BookmarkServiceWatchBookmarksServer) error
}

// BookmarkServiceWatchBookmarksServer is the server side of the change stream.
type BookmarkServiceWatchBookmarksServer interface {
	Send(event *models.ChangeEvent) error
	grpc.ServerStream
}

type watchBookmarksServer struct {
	grpc.ServerStream
}

func (s *watchBookmarksServer) Send(event *models.ChangeEvent) error {
	return s.ServerStream.SendMsg(event)
}

func unaryHandler[Req any, Resp any](
	fullMethod string,
	call func(srv BookmarkServiceServer, ctx context.Context, req *Req) (*Resp, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}

		server := srv.(BookmarkServiceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchBookmarksHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchBookmarksRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	return srv.(BookmarkServiceServer).WatchBookmarks(in, &watchBookmarksServer{stream})
}

// BookmarkServiceDesc describes the service for grpc.Server.RegisterService.
var BookmarkServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*BookmarkServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Ping",
			Handler: unaryHandler(MethodPing, func(srv BookmarkServiceServer, ctx context.Context, req *emptypb.Empty) (*emptypb.Empty, error) {
				return srv.Ping(ctx, req)
			}),
		},
		{
			MethodName: "ListBookmarks",
			Handler: unaryHandler(MethodListBookmarks, func(srv BookmarkServiceServer, ctx context.Context, req *ListBookmarksRequest) (*ListBookmarksResponse, error) {
				return srv.ListBookmarks(ctx, req)
			}),
		},
		{
			MethodName: "AddBookmark",
			Handler: unaryHandler(MethodAddBookmark, func(srv BookmarkServiceServer, ctx context.Context, req *models.AddBookmarkRequest) (*models.Bookmark, error) {
				return srv.AddBookmark(ctx, req)
			}),
		},
		{
			MethodName: "DeleteBookmark",
			Handler: unaryHandler(MethodDeleteBookmark, func(srv BookmarkServiceServer, ctx context.Context, req *models.DeleteBookmarkRequest) (*emptypb.Empty, error) {
				return srv.DeleteBookmark(ctx, req)
			}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchBookmarks",
			Handler:       watchBookmarksHandler,
			ServerStreams: true,
		},
	},
}

// RegisterBookmarkServiceServer registers srv on s.
func RegisterBookmarkServiceServer(s grpc.ServiceRegistrar, srv BookmarkServiceServer) {
	s.RegisterService(&BookmarkServiceDesc, srv)
}

// BookmarkServiceClient calls the service over a connection that uses Codec.
type BookmarkServiceClient struct {
	conn grpc.ClientConnInterface
}

func NewBookmarkServiceClient(conn grpc.ClientConnInterface) *BookmarkServiceClient {
	return &BookmarkServiceClient{conn: conn}
}

func (c *BookmarkServiceClient) callOptions(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
}

func (c *BookmarkServiceClient) Ping(ctx context.Context, opts ...grpc.CallOption) error {
	return c.conn.Invoke(ctx, MethodPing, &emptypb.Empty{}, &emptypb.Empty{}, c.callOptions(opts)...)
}

func (c *BookmarkServiceClient) ListBookmarks(ctx context.Context, opts ...grpc.CallOption) (models.Bookmarks, error) {
	out := &ListBookmarksResponse{}
	if err := c.conn.Invoke(ctx, MethodListBookmarks, &ListBookmarksRequest{}, out, c.callOptions(opts)...); err != nil {
		return nil, err
	}

	return out.Bookmarks, nil
}

func (c *BookmarkServiceClient) AddBookmark(ctx context.Context, req *models.AddBookmarkRequest, opts ...grpc.CallOption) (*models.Bookmark, error) {
	out := &models.Bookmark{}
	if err := c.conn.Invoke(ctx, MethodAddBookmark, req, out, c.callOptions(opts)...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *BookmarkServiceClient) DeleteBookmark(ctx context.Context, id string, opts ...grpc.CallOption) error {
	return c.conn.Invoke(ctx, MethodDeleteBookmark, &models.DeleteBookmarkRequest{ID: id}, &emptypb.Empty{}, c.callOptions(opts)...)
}

// WatchBookmarks opens the change stream; recv blocks for the next event.
func (c *BookmarkServiceClient) WatchBookmarks(ctx context.Context, opts ...grpc.CallOption) (recv func() (*models.ChangeEvent, error), err error) {
	stream, err := c.conn.NewStream(ctx, &BookmarkServiceDesc.Streams[0], MethodWatchBookmarks, c.callOptions(opts)...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&WatchBookmarksRequest{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	return func() (*models.ChangeEvent, error) {
		event := &models.ChangeEvent{}
		if err := stream.RecvMsg(event); err != nil {
			return nil, err
		}
		return event, nil
	}, nil
}
