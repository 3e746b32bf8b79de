package cerr

import (
	"net/http"

	"connectrpc.com/connect"
)

// Code mirrors the connect/gRPC status codes so domain errors can be created
// without importing a transport.
type Code int

const (
	OK                 = Code(0)
	Canceled           = Code(1)
	Unknown            = Code(2)
	InvalidArgument    = Code(3)
	DeadlineExceeded   = Code(4)
	NotFound           = Code(5)
	AlreadyExists      = Code(6)
	PermissionDenied   = Code(7)
	ResourceExhausted  = Code(8)
	FailedPrecondition = Code(9)
	Aborted            = Code(10)
	OutOfRange         = Code(11)
	Unimplemented      = Code(12)
	Internal           = Code(13)
	Unavailable        = Code(14)
	DataLoss           = Code(15)
	Unauthenticated    = Code(16)
)

type codeInfo struct {
	name   string
	status int
}

var codes = [...]codeInfo{
	OK:                 {"ok", http.StatusOK},
	Canceled:           {"canceled", 499},
	Unknown:            {"unknown", http.StatusInternalServerError},
	InvalidArgument:    {"invalid_argument", http.StatusBadRequest},
	DeadlineExceeded:   {"deadline_exceeded", http.StatusGatewayTimeout},
	NotFound:           {"not_found", http.StatusNotFound},
	AlreadyExists:      {"already_exists", http.StatusConflict},
	PermissionDenied:   {"permission_denied", http.StatusForbidden},
	ResourceExhausted:  {"resource_exhausted", http.StatusTooManyRequests},
	FailedPrecondition: {"failed_precondition", http.StatusPreconditionFailed},
	Aborted:            {"aborted", http.StatusConflict},
	OutOfRange:         {"out_of_range", http.StatusBadRequest},
	Unimplemented:      {"unimplemented", http.StatusNotImplemented},
	Internal:           {"internal", http.StatusInternalServerError},
	Unavailable:        {"unavailable", http.StatusServiceUnavailable},
	DataLoss:           {"data_loss", http.StatusInternalServerError},
	Unauthenticated:    {"unauthenticated", http.StatusUnauthorized},
}

func (c Code) valid() bool {
	return c >= 0 && int(c) < len(codes)
}

func (c Code) String() string {
	if !c.valid() {
		return "unknown"
	}
	return codes[c].name
}

// ConnectCode returns 0 for OK. The numeric values line up with connect.Code.
func (c Code) ConnectCode() connect.Code {
	if c == OK {
		return 0
	}
	if !c.valid() {
		return connect.CodeUnknown
	}
	return connect.Code(c)
}

func (c Code) HTTPCode() int {
	if !c.valid() {
		return http.StatusInternalServerError
	}
	return codes[c].status
}

func NewCodeFromConnectError(err error) Code {
	c := Code(connect.CodeOf(err))
	if c == OK || !c.valid() {
		return Unknown
	}
	return c
}
