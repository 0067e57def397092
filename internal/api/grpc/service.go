// Package grpcapi serves the configuration store over gRPC. Messages are
// google.protobuf.Struct values, so clients need no generated stubs.
package grpcapi

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/KevinKickass/OpenControllerCore/internal/hwa"
	"github.com/KevinKickass/OpenControllerCore/internal/interfaces"
	"github.com/KevinKickass/OpenControllerCore/internal/sysconfig"
	"github.com/KevinKickass/OpenControllerCore/internal/system"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ConfigServiceName = "occ.ConfigService"

// ConfigServiceServer is the server API for occ.ConfigService.
//
// Get:    {block, section, index}        -> {block, section, index, value}
// Set:    {block, section, index, value} -> {block, section, index, value}
// Backup: {}                             -> {frames: [hex, ...], count}
type ConfigServiceServer interface {
	Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Set(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Backup(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func RegisterConfigServiceServer(s grpc.ServiceRegistrar, srv ConfigServiceServer) {
	s.RegisterService(&configServiceDesc, srv)
}

func unaryHandler(method string, call func(ConfigServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ConfigServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ConfigServiceName + "/" + method,
		}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(ConfigServiceServer), ctx, req.(*structpb.Struct))
		})
	}
}

var configServiceDesc = grpc.ServiceDesc{
	ServiceName: ConfigServiceName,
	HandlerType: (*ConfigServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Get", Handler: unaryHandler("Get", ConfigServiceServer.Get)},
		{MethodName: "Set", Handler: unaryHandler("Set", ConfigServiceServer.Set)},
		{MethodName: "Backup", Handler: unaryHandler("Backup", ConfigServiceServer.Backup)},
	},
	Streams: []grpc.StreamDesc{},
}

// ConfigService implements ConfigServiceServer on top of a Controller.
type ConfigService struct {
	controller interfaces.Controller
	logger     *zap.Logger
}

func NewConfigService(controller interfaces.Controller, logger *zap.Logger) *ConfigService {
	return &ConfigService{controller: controller, logger: logger}
}

type address struct {
	block   sysconfig.Block
	section uint8
	index   int
}

func (s *ConfigService) Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	addr, err := s.parseAddress(req)
	if err != nil {
		return nil, err
	}

	value, err := s.controller.GetConfig(ctx, addr.block, addr.section, addr.index)
	if err != nil {
		return nil, toStatus(err)
	}

	return s.response(addr, value)
}

func (s *ConfigService) Set(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	addr, err := s.parseAddress(req)
	if err != nil {
		return nil, err
	}

	v, ok := req.GetFields()["value"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "value is required")
	}
	n := v.GetNumberValue()
	if _, isNumber := v.GetKind().(*structpb.Value_NumberValue); !isNumber || n < 0 || n > math.MaxUint16 || n != math.Trunc(n) {
		return nil, status.Errorf(codes.InvalidArgument, "invalid value %v", v.AsInterface())
	}
	value := uint16(n)

	if err := s.controller.SetConfig(ctx, addr.block, addr.section, addr.index, value); err != nil {
		return nil, toStatus(err)
	}

	s.logger.Debug("Config set over gRPC",
		zap.Stringer("block", addr.block),
		zap.Uint8("section", addr.section),
		zap.Int("index", addr.index),
		zap.Uint16("value", value))

	return s.response(addr, value)
}

func (s *ConfigService) Backup(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	frames, err := s.controller.Backup(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	encoded := make([]any, 0, len(frames))
	for _, frame := range frames {
		encoded = append(encoded, hex.EncodeToString(frame))
	}

	resp, err := structpb.NewStruct(map[string]any{
		"frames": encoded,
		"count":  len(frames),
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

// parseAddress accepts block and section as name or number.
func (s *ConfigService) parseAddress(req *structpb.Struct) (address, error) {
	var addr address
	fields := req.GetFields()

	blockName, err := field(fields, "block")
	if err != nil {
		return addr, err
	}
	block, ok := sysconfig.BlockByName(blockName)
	if !ok {
		return addr, status.Errorf(codes.NotFound, "unknown block %q", blockName)
	}
	addr.block = block

	sectionName, err := field(fields, "section")
	if err != nil {
		return addr, err
	}
	section, ok := s.controller.Layout().SectionByName(block, sectionName)
	if !ok {
		return addr, status.Errorf(codes.NotFound, "unknown section %q in block %s", sectionName, block)
	}
	addr.section = section

	idx, ok := fields["index"]
	if !ok {
		return addr, status.Error(codes.InvalidArgument, "index is required")
	}
	n := idx.GetNumberValue()
	if _, isNumber := idx.GetKind().(*structpb.Value_NumberValue); !isNumber || n < 0 || n != math.Trunc(n) || n > math.MaxInt32 {
		return addr, status.Errorf(codes.InvalidArgument, "invalid index %v", idx.AsInterface())
	}
	addr.index = int(n)

	return addr, nil
}

// field returns a string or integral number field as its string form.
func field(fields map[string]*structpb.Value, name string) (string, error) {
	v, ok := fields[name]
	if !ok {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue, nil
	case *structpb.Value_NumberValue:
		return fmt.Sprintf("%d", int64(k.NumberValue)), nil
	default:
		return "", status.Errorf(codes.InvalidArgument, "%s must be a name or a number", name)
	}
}

func (s *ConfigService) response(addr address, value uint16) (*structpb.Struct, error) {
	resp, err := structpb.NewStruct(map[string]any{
		"block":   addr.block.String(),
		"section": s.controller.Layout()[addr.block][addr.section].Name,
		"index":   addr.index,
		"value":   int(value),
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, sysconfig.ErrInvalidIndex), errors.Is(err, hwa.ErrInputRange):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, sysconfig.ErrInvalidValue):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, sysconfig.ErrNotSupported):
		return status.Error(codes.Unimplemented, err.Error())
	case errors.Is(err, system.ErrInvalidTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, interfaces.ErrStopped):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
