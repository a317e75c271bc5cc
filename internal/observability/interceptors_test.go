package observability

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var testInfo = &grpc.UnaryServerInfo{FullMethod: "/dialog.v1.DialogAnalysisService/Analyze"}

func TestUnaryServerInterceptor_PassesThrough(t *testing.T) {
	interceptor := UnaryServerInterceptor()
	wantErr := status.Error(codes.InvalidArgument, "bad")

	resp, err := interceptor(context.Background(), "req", testInfo, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "resp", wantErr
	})
	if resp != "resp" {
		t.Errorf("expected handler response, got %v", resp)
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("expected handler error, got %v", err)
	}
}

func TestRecoveryUnaryInterceptor(t *testing.T) {
	interceptor := RecoveryUnaryInterceptor()

	_, err := interceptor(context.Background(), nil, testInfo, func(ctx context.Context, req interface{}) (interface{}, error) {
		panic("boom")
	})
	if status.Code(err) != codes.Internal {
		t.Errorf("expected Internal, got %v", err)
	}

	resp, err := interceptor(context.Background(), nil, testInfo, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	})
	if err != nil || resp != "ok" {
		t.Errorf("expected pass-through, got %v, %v", resp, err)
	}
}

type fakeStream struct {
	grpc.ServerStream
}

func TestStreamServerInterceptor(t *testing.T) {
	interceptor := StreamServerInterceptor()
	info := &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch"}
	wantErr := errors.New("closed")

	err := interceptor(nil, fakeStream{}, info, func(srv interface{}, stream grpc.ServerStream) error {
		return wantErr
	})
	if err != wantErr {
		t.Errorf("expected handler error, got %v", err)
	}
}
