package clog

import (
	"net/http"

	"connectrpc.com/connect"
)

type Level int

const (
	LevelDebug Level = iota + 1
	LevelInfo
	LevelWarn
	LevelError
)

// Codes that point at a server side fault. Every other code is the
// caller's problem and logs at info.
var errorCodes = map[connect.Code]bool{
	connect.CodeUnknown:           true,
	connect.CodeResourceExhausted: true,
	connect.CodeUnimplemented:     true,
	connect.CodeInternal:          true,
	connect.CodeUnavailable:       true,
	connect.CodeDataLoss:          true,
}

func ConnectCodeToLevel(code connect.Code) Level {
	if code == 0 {
		return LevelInfo
	}
	if errorCodes[code] {
		return LevelError
	}
	if code < connect.CodeCanceled || code > connect.CodeUnauthenticated {
		return LevelError
	}
	return LevelInfo
}

func HTTPStatusToLevel(status int) Level {
	switch {
	case status == 499:
		return LevelInfo
	case status >= 100 && status < http.StatusBadRequest:
		return LevelInfo
	case status >= http.StatusBadRequest && status < http.StatusInternalServerError:
		return LevelWarn
	default:
		return LevelError
	}
}
