// Package connectjson serves connect unary procedures whose messages are
// plain Go structs encoded as JSON. Protobuf messages, such as error details,
// still go through protojson.
package connectjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Name replaces connect's default protojson codec for application/json.
const Name = "json"

type Codec struct{}

func (Codec) Name() string { return Name }

func (Codec) Marshal(v any) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return protojson.Marshal(m)
	}
	return json.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	if m, ok := v.(proto.Message); ok {
		return protojson.Unmarshal(data, m)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

// Procedure is one mounted RPC.
type Procedure struct {
	Path    string
	Handler http.Handler
}

// Unary builds the handler for service/method.
func Unary[Req, Res any](
	service, method string,
	fn func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error),
	opts ...connect.HandlerOption,
) Procedure {
	path := "/" + service + "/" + method
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
	return Procedure{Path: path, Handler: connect.NewUnaryHandler(path, fn, opts...)}
}

// NewClient is the client counterpart of Unary.
func NewClient[Req, Res any](httpClient connect.HTTPClient, baseURL, service, method string, opts ...connect.ClientOption) *connect.Client[Req, Res] {
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return connect.NewClient[Req, Res](httpClient, baseURL+"/"+service+"/"+method, opts...)
}
