package cerr

import (
	"context"

	"connectrpc.com/connect"
)

// NewConvertConnectErrorInterceptor turns handler errors into connect errors
// that carry only the client facing message and details.
func NewConvertConnectErrorInterceptor() connect.Interceptor {
	return connect.UnaryInterceptorFunc(func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			resp, err := next(ctx, req)
			return resp, ExtractConnectError(ctx, err)
		}
	})
}
