package rpc

import (
	"context"
	"io"
	"math"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cartridge/rrc-policy/internal/metrics"
	"github.com/cartridge/rrc-policy/internal/obs"
	"github.com/cartridge/rrc-policy/internal/policy"
)

// checkedPolicy rejects non-finite observations the way network policies do.
type checkedPolicy struct {
	policy.Policy
}

func (p checkedPolicy) GetAction(observation []float64) ([]float64, error) {
	if err := obs.CheckFinite(observation); err != nil {
		return nil, err
	}
	return p.Policy.GetAction(observation)
}

func startServer(t *testing.T) *grpc.ClientConn {
	t.Helper()
	logger := zerolog.New(io.Discard)

	random, err := policy.NewRandom(policy.Space{Dim: 9}, policy.Space{Dim: 4}, 0.397, 1)
	require.NoError(t, err)
	server := NewServer(policy.NewSynchronized(checkedPolicy{random}), metrics.NewCollector(logger), logger)

	lis := bufconn.Listen(1 << 20)
	go func() {
		_ = server.Serve(lis)
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPolicyService_ResetAndGetAction(t *testing.T) {
	conn := startServer(t)
	client := NewPolicyClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, client.Reset(ctx))

	action, err := client.GetAction(ctx, []float64{0.1, 0.2, 0.3, 0.4})
	require.NoError(t, err)
	require.Len(t, action, 9)
	for _, a := range action {
		assert.LessOrEqual(t, a, 0.397)
		assert.GreaterOrEqual(t, a, -0.397)
	}
}

func TestPolicyService_InvalidArgument(t *testing.T) {
	conn := startServer(t)
	client := NewPolicyClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.GetAction(ctx, []float64{0.1, 0.2})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	list, err := structpb.NewList([]interface{}{1.0, "two", 3.0, 4.0})
	require.NoError(t, err)
	err = conn.Invoke(ctx, getActionMethod, list, new(structpb.ListValue))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err = client.GetAction(ctx, []float64{bad, 0.2, 0.3, 0.4})
		assert.Equal(t, codes.InvalidArgument, status.Code(err), "value %v", bad)
	}
}

func TestServer_Health(t *testing.T) {
	conn := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
