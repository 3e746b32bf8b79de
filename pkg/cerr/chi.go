package cerr

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/kazz187/ganttguild/pkg/clog"
)

type responseReceiverKey struct{}

type responseReceiver struct {
	response any
	err      error
}

func receiverFromContext(ctx context.Context) *responseReceiver {
	rr, _ := ctx.Value(responseReceiverKey{}).(*responseReceiver)
	return rr
}

// SetJSONResponse sets the value the middleware encodes as the response body.
func SetJSONResponse(ctx context.Context, response any) {
	if rr := receiverFromContext(ctx); rr != nil {
		rr.response = response
	}
}

// SetJSONError makes the middleware answer with err's status and message.
func SetJSONError(ctx context.Context, err error) {
	if rr := receiverFromContext(ctx); rr != nil {
		rr.err = err
	}
}

func SetNewJSONError(ctx context.Context, code Code, msg string, err error) {
	SetJSONError(ctx, NewError(code, msg, err))
}

// NewConvertConnectErrorChiMiddleware lets chi handlers report results through
// SetJSONResponse and SetJSONError instead of writing the response themselves.
func NewConvertConnectErrorChiMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			rr := &responseReceiver{}
			ctx := context.WithValue(r.Context(), responseReceiverKey{}, rr)
			next.ServeHTTP(rw, r.WithContext(ctx))
			if rr.err != nil {
				writeJSONError(ctx, rw, normalize(ctx, rr.err))
				return
			}
			writeJSON(ctx, rw, http.StatusOK, rr.response)
		})
	}
}

type httpError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(ctx context.Context, rw http.ResponseWriter, status int, response any) {
	body, err := encode(response)
	if err != nil {
		writeJSONError(ctx, rw, NewError(Internal, "server error", err))
		return
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	if _, err := rw.Write(body); err != nil {
		clog.AddError(ctx, NewError(Internal, "server error", err))
	}
}

func writeJSONError(ctx context.Context, rw http.ResponseWriter, e *Error) {
	body, err := encode(httpError{Code: e.Code.String(), Message: e.Msg})
	if err != nil {
		body = []byte(`{"code":"internal","message":"server error"}` + "\n")
		clog.AddError(ctx, err)
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(e.Code.HTTPCode())
	if _, err := rw.Write(body); err != nil {
		clog.AddError(ctx, err)
	}
}
