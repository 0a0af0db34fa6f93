package server

import (
	"context"
	"strconv"

	"github.com/dgketchum/Landsat578/internal/observability"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName        = "landsat.v1.Discovery"
	SelectScenesMethod = "/" + ServiceName + "/SelectScenes"
	ResolveTilesMethod = "/" + ServiceName + "/ResolveTiles"
)

// DiscoveryServer is the RPC surface. Requests carry the same named
// parameters as the HTTP query string; responses mirror the HTTP JSON.
type DiscoveryServer interface {
	SelectScenes(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResolveTiles(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var discoveryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DiscoveryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SelectScenes", Handler: selectScenesHandler},
		{MethodName: "ResolveTiles", Handler: resolveTilesHandler},
	},
	Metadata: "landsat/v1/discovery.proto",
}

func RegisterDiscoveryServer(s grpc.ServiceRegistrar, srv DiscoveryServer) {
	s.RegisterService(&discoveryServiceDesc, srv)
}

func selectScenesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DiscoveryServer).SelectScenes(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SelectScenesMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DiscoveryServer).SelectScenes(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func resolveTilesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DiscoveryServer).ResolveTiles(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ResolveTilesMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DiscoveryServer).ResolveTiles(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type discoveryService struct {
	discovery Discovery
	logger    zerolog.Logger
}

func (s *discoveryService) SelectScenes(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	q, err := ParseQuery(structParams(req))
	if err != nil {
		return nil, status.Error(grpcCode(err), err.Error())
	}
	res, err := s.discovery.Select(ctx, q)
	if err != nil {
		s.logger.Warn().Err(err).Str("method", "SelectScenes").Msg("selection failed")
		return nil, status.Error(grpcCode(err), err.Error())
	}
	return structpb.NewStruct(resultPayload(q, res))
}

func (s *discoveryService) ResolveTiles(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	q, err := ParseQuery(structParams(req))
	if err != nil {
		return nil, status.Error(grpcCode(err), err.Error())
	}
	tiles, err := s.discovery.Resolve(ctx, q)
	if err != nil {
		s.logger.Warn().Err(err).Str("method", "ResolveTiles").Msg("resolve failed")
		return nil, status.Error(grpcCode(err), err.Error())
	}
	return structpb.NewStruct(map[string]any{
		"satellite": string(q.Sensor),
		"tiles":     tilesPayload(tiles),
	})
}

// structParams reads request fields as the strings ParseQuery expects.
func structParams(req *structpb.Struct) func(string) string {
	fields := req.GetFields()
	return func(name string) string {
		v, ok := fields[name]
		if !ok {
			return ""
		}
		switch kind := v.GetKind().(type) {
		case *structpb.Value_StringValue:
			return kind.StringValue
		case *structpb.Value_NumberValue:
			return strconv.FormatFloat(kind.NumberValue, 'f', -1, 64)
		case *structpb.Value_BoolValue:
			return strconv.FormatBool(kind.BoolValue)
		}
		return ""
	}
}

// NewGRPCServer returns a server with the discovery service registered.
func NewGRPCServer(d Discovery, logger zerolog.Logger, metrics *observability.Collector) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(metrics.UnaryServerInterceptor()),
		grpc.MaxRecvMsgSize(10*1024*1024),
		grpc.MaxSendMsgSize(10*1024*1024),
	)
	RegisterDiscoveryServer(srv, &discoveryService{discovery: d, logger: logger})
	return srv
}

// Client calls the discovery service over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) SelectScenes(ctx context.Context, params map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, SelectScenesMethod, params, opts...)
}

func (c *Client) ResolveTiles(ctx context.Context, params map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ResolveTilesMethod, params, opts...)
}

func (c *Client) invoke(ctx context.Context, method string, params map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(params)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
