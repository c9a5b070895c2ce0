// Package rpc exposes a policy over gRPC as rrcpolicy.v1.Policy. Messages
// are protobuf well-known types so no generated code is needed: Reset takes
// and returns google.protobuf.Empty, GetAction maps a
// google.protobuf.ListValue of numbers to another.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cartridge/rrc-policy/internal/metrics"
	"github.com/cartridge/rrc-policy/internal/obs"
	"github.com/cartridge/rrc-policy/internal/policy"
)

const (
	ServiceName = "rrcpolicy.v1.Policy"

	resetMethod     = "/" + ServiceName + "/Reset"
	getActionMethod = "/" + ServiceName + "/GetAction"
)

// PolicyServer is the server API for rrcpolicy.v1.Policy.
type PolicyServer interface {
	Reset(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	GetAction(context.Context, *structpb.ListValue) (*structpb.ListValue, error)
}

// ServiceDesc describes rrcpolicy.v1.Policy for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PolicyServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Reset", Handler: resetHandler},
		{MethodName: "GetAction", Handler: getActionHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rrcpolicy/v1/policy.proto",
}

// RegisterPolicyServer registers srv with s.
func RegisterPolicyServer(s grpc.ServiceRegistrar, srv PolicyServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func resetHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PolicyServer).Reset(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: resetMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PolicyServer).Reset(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getActionHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.ListValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PolicyServer).GetAction(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getActionMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PolicyServer).GetAction(ctx, req.(*structpb.ListValue))
	}
	return interceptor(ctx, in, info, handler)
}

// PolicyService implements PolicyServer on top of a policy.Policy, which
// must be safe for concurrent use.
type PolicyService struct {
	policy  policy.Policy
	metrics *metrics.Collector
	logger  zerolog.Logger

	// steps since the last reset
	steps atomic.Int64
}

// NewPolicyService creates a new PolicyService. collector may be nil.
func NewPolicyService(p policy.Policy, collector *metrics.Collector, logger zerolog.Logger) *PolicyService {
	return &PolicyService{policy: p, metrics: collector, logger: logger}
}

// Reset starts a new episode
func (s *PolicyService) Reset(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.policy.Reset()
	previous := s.steps.Swap(0)
	if s.metrics != nil {
		s.metrics.EpisodeReset("grpc", int(previous))
	}
	return &emptypb.Empty{}, nil
}

// GetAction selects the action for one flat observation
func (s *PolicyService) GetAction(ctx context.Context, req *structpb.ListValue) (*structpb.ListValue, error) {
	observation, err := toFloats(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	start := time.Now()
	action, err := s.policy.GetAction(observation)
	if s.metrics != nil {
		s.metrics.Inference("grpc", len(observation), time.Since(start), err)
	}
	if err != nil {
		if errors.Is(err, obs.ErrObservationDim) || errors.Is(err, obs.ErrObservationValue) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		s.logger.Error().Err(err).Msg("Action selection failed")
		return nil, status.Error(codes.Internal, "action selection failed")
	}
	s.steps.Add(1)
	return fromFloats(action), nil
}

func toFloats(list *structpb.ListValue) ([]float64, error) {
	values := list.GetValues()
	out := make([]float64, len(values))
	for i, v := range values {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("observation[%d] is not a number", i)
		}
		out[i] = n.NumberValue
	}
	return out, nil
}

func fromFloats(xs []float64) *structpb.ListValue {
	values := make([]*structpb.Value, len(xs))
	for i, x := range xs {
		values[i] = structpb.NewNumberValue(x)
	}
	return &structpb.ListValue{Values: values}
}

// PolicyClient is a client for rrcpolicy.v1.Policy.
type PolicyClient struct {
	cc grpc.ClientConnInterface
}

// NewPolicyClient creates a client on cc.
func NewPolicyClient(cc grpc.ClientConnInterface) *PolicyClient {
	return &PolicyClient{cc: cc}
}

// Reset calls rrcpolicy.v1.Policy/Reset.
func (c *PolicyClient) Reset(ctx context.Context, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, resetMethod, &emptypb.Empty{}, new(emptypb.Empty), opts...)
}

// GetAction calls rrcpolicy.v1.Policy/GetAction.
func (c *PolicyClient) GetAction(ctx context.Context, observation []float64, opts ...grpc.CallOption) ([]float64, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, getActionMethod, fromFloats(observation), out, opts...); err != nil {
		return nil, err
	}
	return toFloats(out)
}
