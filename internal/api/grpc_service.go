package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"slotbook/internal/service"
)

const (
	bookingEngineService = "slotbook.v1.BookingEngine"
	methodListSlots      = "/" + bookingEngineService + "/ListSlots"
	methodCommitBooking  = "/" + bookingEngineService + "/CommitBooking"
	methodCreateHold     = "/" + bookingEngineService + "/CreateHold"
	methodDeleteHold     = "/" + bookingEngineService + "/DeleteHold"
)

// BookingEngineServer is the gRPC surface of the engine. Requests and
// responses are google.protobuf.Struct messages whose fields follow the
// JSON names of the HTTP API.
type BookingEngineServer interface {
	ListSlots(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CommitBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateHold(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteHold(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var bookingEngineServiceDesc = grpc.ServiceDesc{
	ServiceName: bookingEngineService,
	HandlerType: (*BookingEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListSlots", Handler: unaryHandler(methodListSlots, BookingEngineServer.ListSlots)},
		{MethodName: "CommitBooking", Handler: unaryHandler(methodCommitBooking, BookingEngineServer.CommitBooking)},
		{MethodName: "CreateHold", Handler: unaryHandler(methodCreateHold, BookingEngineServer.CreateHold)},
		{MethodName: "DeleteHold", Handler: unaryHandler(methodDeleteHold, BookingEngineServer.DeleteHold)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "slotbook/v1/booking_engine.proto",
}

// RegisterBookingEngineServer attaches srv to a gRPC server.
func RegisterBookingEngineServer(s grpc.ServiceRegistrar, srv BookingEngineServer) {
	s.RegisterService(&bookingEngineServiceDesc, srv)
}

type structCall func(BookingEngineServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call structCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BookingEngineServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BookingEngineServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// BookingEngineClient calls a remote engine over an existing connection.
type BookingEngineClient struct {
	cc grpc.ClientConnInterface
}

func NewBookingEngineClient(cc grpc.ClientConnInterface) *BookingEngineClient {
	return &BookingEngineClient{cc: cc}
}

func (c *BookingEngineClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BookingEngineClient) ListSlots(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodListSlots, in, opts...)
}

func (c *BookingEngineClient) CommitBooking(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodCommitBooking, in, opts...)
}

func (c *BookingEngineClient) CreateHold(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodCreateHold, in, opts...)
}

func (c *BookingEngineClient) DeleteHold(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodDeleteHold, in, opts...)
}

// engineService adapts the engine services to BookingEngineServer.
type engineService struct {
	engine *Engine
}

func newEngineService(engine *Engine) *engineService {
	return &engineService{engine: engine}
}

func (s *engineService) ListSlots(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromMetadata(ctx)
	if err != nil {
		return nil, err
	}
	var q slotQuery
	if err := decodeStruct(in, &q); err != nil {
		return nil, toStatus(err)
	}
	req, err := q.request(true)
	if err != nil {
		return nil, toStatus(err)
	}

	list, err := s.engine.Availability.ListSlots(ctx, actor, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return respond(map[string]any{"slots": list, "count": len(list)})
}

func (s *engineService) CommitBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromMetadata(ctx)
	if err != nil {
		return nil, err
	}
	var req service.CreateRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}

	booking, err := s.engine.Bookings.Create(ctx, actor, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return respond(booking)
}

func (s *engineService) CreateHold(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromMetadata(ctx)
	if err != nil {
		return nil, err
	}
	var req service.HoldRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}

	hold, err := s.engine.Holds.Create(ctx, actor, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return respond(hold)
}

func (s *engineService) DeleteHold(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromMetadata(ctx)
	if err != nil {
		return nil, err
	}
	var req struct {
		ID string `json:"id"`
	}
	if err := decodeStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}
	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	if err := s.engine.Holds.Delete(ctx, actor, req.ID); err != nil {
		return nil, toStatus(err)
	}
	return respond(map[string]any{"id": req.ID, "deleted": true})
}

func respond(v any) (*structpb.Struct, error) {
	out, err := encodeStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}
