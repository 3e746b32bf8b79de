// Package cerr carries a status code, a client facing message and the
// underlying cause through repositories and servers, and converts them to
// connect or JSON responses at the edge.
package cerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"connectrpc.com/connect"
	"google.golang.org/protobuf/proto"

	"github.com/kazz187/ganttguild/pkg/clog"
)

type Error struct {
	Code Code
	// Msg is returned to the client with Code.
	Msg string
	// Err is logged but never returned to the client.
	Err error
	// Stack is captured for codes that log at error level.
	Stack string
	// Details are returned to the client as connect error details.
	Details []proto.Message
}

func NewError(code Code, msg string, underlying error) *Error {
	err := &Error{
		Code: code,
		Msg:  msg,
		Err:  underlying,
	}
	if clog.ConnectCodeToLevel(code.ConnectCode()) == clog.LevelError {
		stackTrace := make([]byte, 2048)
		n := runtime.Stack(stackTrace, false)
		err.Stack = string(stackTrace[:n])
	}
	return err
}

func NewErrorWithDetails(code Code, msg string, underlying error, details []proto.Message) *Error {
	err := NewError(code, msg, underlying)
	err.Details = details
	return err
}

// NewValidationError reports an invalid request field with a
// buf.validate.Violation detail naming the field and the broken rule.
func NewValidationError(field, ruleID, msg string) *Error {
	err := NewError(InvalidArgument, msg, nil)
	err.Details = append(err.Details, &validate.Violation{
		Field: &validate.FieldPath{
			Elements: []*validate.FieldPathElement{{FieldName: &field}},
		},
		RuleId:  &ruleID,
		Message: &msg,
	})
	return err
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) AddDetailError(err proto.Message) {
	e.Details = append(e.Details, err)
}

func (e *Error) AddDetailMessage(msg string) error {
	e.Details = append(e.Details, &validate.Violation{Message: &msg})
	return e
}

func (e *Error) AddDetailMessageWithCode(msg string, code string) error {
	e.Details = append(e.Details, &validate.Violation{Message: &msg, RuleId: &code})
	return e
}

func (e *Error) ConnectError() *connect.Error {
	connectErr := connect.NewError(e.Code.ConnectCode(), errors.New(e.Msg))
	for _, detailMsg := range e.Details {
		detail, err := connect.NewErrorDetail(detailMsg)
		if err != nil {
			continue
		}
		connectErr.AddDetail(detail)
	}
	return connectErr
}

func IsCode(err error, code Code) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code == code
	}
	return false
}

func isClientGone(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.Err == "operation was canceled"
}

// normalize turns any error into an *Error and records it on the request
// log context.
func normalize(ctx context.Context, err error) *Error {
	if isClientGone(err) {
		return NewError(Canceled, "connection closed", err)
	}
	clog.AddError(ctx, err)
	var cerr *Error
	if errors.As(err, &cerr) {
		if cerr.Stack != "" {
			clog.AddStack(ctx, cerr.Stack)
		}
		return cerr
	}
	return NewError(Unknown, "unknown error", err)
}

// ExtractConnectError converts err for a connect response. A *connect.Error
// produced elsewhere in the chain passes through unchanged.
func ExtractConnectError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var cerr *Error
	var connectErr *connect.Error
	if !errors.As(err, &cerr) && errors.As(err, &connectErr) {
		clog.AddError(ctx, err)
		return connectErr
	}
	return normalize(ctx, err).ConnectError()
}
