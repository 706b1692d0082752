package middleware

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/theo-thinker/music-server-admission/admission"
)

// UnaryAdmissionInterceptor guards unary gRPC handlers with one policy.
//
// The full method name becomes the operation; denied calls return
// ResourceExhausted with the policy message.
func UnaryAdmissionInterceptor(engine *admission.Engine, policy string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !engine.IsEnabled() {
			return handler(ctx, req)
		}

		rc := grpcRequestContext(ctx, info.FullMethod)

		d, err := engine.Evaluate(ctx, policy, rc)
		if err != nil {
			// Unknown policy is a wiring mistake; do not take traffic down.
			return handler(ctx, req)
		}

		if !d.Allowed {
			msg := d.Message
			if msg == "" {
				msg = "rate limit exceeded"
			}
			return nil, status.Errorf(codes.ResourceExhausted, "%s: %s", info.FullMethod, msg)
		}

		return handler(ctx, req)
	}
}

// grpcRequestContext maps call metadata onto the admission context.
func grpcRequestContext(ctx context.Context, method string) *admission.RequestContext {
	rc := &admission.RequestContext{Operation: method}

	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		rc.CallerIP = p.Addr.String()
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		rc.Principal = firstValue(md, "x-user-id")
		rc.Device = firstValue(md, "x-device-id")
		rc.Application = firstValue(md, "x-app-id")
	}
	return rc
}

func firstValue(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}
