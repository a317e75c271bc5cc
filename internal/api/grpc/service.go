package grpcapi

import (
	"context"

	"google.golang.org/grpc"

	"ai-dialog-analysis-service/internal/service/dialog"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "dialog.v1.DialogAnalysisService"

// AnalyzeMethod is the full method name of Analyze.
const AnalyzeMethod = "/" + ServiceName + "/Analyze"

// AnalyzeRequest carries either inline WAV bytes or a URL to fetch them from.
type AnalyzeRequest struct {
	Audio    []byte `json:"audio,omitempty"`
	Filename string `json:"filename,omitempty"`
	URL      string `json:"url,omitempty"`
}

// AnalyzeResponse mirrors the HTTP dialog result.
type AnalyzeResponse struct {
	AnalysisID     string                `json:"analysis_id"`
	Dialog         []string              `json:"dialog"`
	ResultDuration dialog.DurationTotals `json:"result_duration"`
}

// DialogAnalysisServer is the server API for DialogAnalysisService.
type DialogAnalysisServer interface {
	Analyze(context.Context, *AnalyzeRequest) (*AnalyzeResponse, error)
}

func analyzeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AnalyzeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DialogAnalysisServer).Analyze(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: AnalyzeMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DialogAnalysisServer).Analyze(ctx, req.(*AnalyzeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc describes DialogAnalysisService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DialogAnalysisServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Analyze",
			Handler:    analyzeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dialog/v1/dialog.proto",
}

// Client calls DialogAnalysisService over a client connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Analyze submits one request.
func (c *Client) Analyze(ctx context.Context, in *AnalyzeRequest, opts ...grpc.CallOption) (*AnalyzeResponse, error) {
	out := new(AnalyzeResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, AnalyzeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
