package grpc

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

func TestJSONCodecRegistered(t *testing.T) {
	assert.NotNil(t, encoding.GetCodec(CodecName))
	assert.Equal(t, "json", JSONCodec().Name())
}

func TestJSONCodecPlainStruct(t *testing.T) {
	type msg struct {
		ID   int64  `json:"id"`
		Kind string `json:"kind"`
	}
	codec := JSONCodec()
	data, err := codec.Marshal(&msg{ID: 7, Kind: "c"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7,"kind":"c"}`, string(data))

	var out msg
	require.NoError(t, codec.Unmarshal(data, &out))
	assert.Equal(t, msg{ID: 7, Kind: "c"}, out)
}

func TestJSONCodecProtoMessage(t *testing.T) {
	codec := JSONCodec()
	data, err := codec.Marshal(&healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING})
	require.NoError(t, err)
	assert.Contains(t, string(data), "SERVING")

	var out healthpb.HealthCheckResponse
	require.NoError(t, codec.Unmarshal(data, &out))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, out.GetStatus())
}

func TestPoolReusesConnection(t *testing.T) {
	p := NewPool()
	a, err := p.GetConnection("passthrough:///ledger-a")
	require.NoError(t, err)
	b, err := p.GetConnection("passthrough:///ledger-a")
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := p.GetConnection("passthrough:///ledger-b")
	require.NoError(t, err)
	assert.NotSame(t, a, c)

	require.NoError(t, p.Close())

	// 關閉後會重新建立
	d, err := p.GetConnection("passthrough:///ledger-a")
	require.NoError(t, err)
	assert.NotSame(t, a, d)
	require.NoError(t, p.Close())
}

func TestRecoveryInterceptor(t *testing.T) {
	interceptor := RecoveryInterceptor(zerolog.Nop())
	info := &grpc.UnaryServerInfo{FullMethod: "/test/Panic"}
	_, err := interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))

	resp, err := interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}
