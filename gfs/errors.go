package gfs

import "fmt"

// ErrorCode classifies failures independently of their transport. It is
// returned across RPC boundaries inside Error so a caller can branch on
// the kind of failure rather than string-matching a message.
type ErrorCode int

const (
	UnknownError ErrorCode = iota
	NotLeader
	NotFound
	CapacityExhausted
	ReplicaUnavailable
	AuthFailed
	OtpInvalid
	Transient
)

func (c ErrorCode) String() string {
	switch c {
	case NotLeader:
		return "NotLeader"
	case NotFound:
		return "NotFound"
	case CapacityExhausted:
		return "CapacityExhausted"
	case ReplicaUnavailable:
		return "ReplicaUnavailable"
	case AuthFailed:
		return "AuthFailed"
	case OtpInvalid:
		return "OtpInvalid"
	case Transient:
		return "Transient"
	default:
		return "UnknownError"
	}
}

// Error is the error type carried over every RPC boundary in this system.
type Error struct {
	Code ErrorCode
	Err  string
}

func (e Error) Error() string {
	return e.Code.String() + ": " + e.Err
}

// NewError builds an Error from a code and an underlying error.
func NewError(code ErrorCode, err error) Error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Error{Code: code, Err: msg}
}

// Errorf builds an Error from a code and a formatted message.
func Errorf(code ErrorCode, format string, args ...interface{}) Error {
	return Error{Code: code, Err: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the ErrorCode from err, or UnknownError if err is not
// a gfs.Error (e.g. a raw transport error from net/rpc).
func CodeOf(err error) ErrorCode {
	if err == nil {
		return UnknownError
	}
	if ge, ok := err.(Error); ok {
		return ge.Code
	}
	return UnknownError
}

// RPCStatus carries a structured Error in-band inside an RPC reply,
// mirroring the teacher's own reply.ErrorCode idiom (e.g.
// chunkserver.go's RPCReadChunk setting reply.ErrorCode = gfs.ReadEOF):
// net/rpc reduces a handler's returned error to a plain string
// (reconstructed client-side as an opaque rpc.ServerError), so a domain
// error a caller needs to branch on by code must travel as a reply
// field instead of the Go error return, which does not survive the
// wire. Embed RPCStatus in a Reply struct to get this for free; a
// generic caller recovers it through the Statused interface.
type RPCStatus struct {
	Failed  bool
	Code    ErrorCode
	Message string
}

// StatusFromError builds an RPCStatus from a handler-side error, for a
// reply field a handler sets before returning nil.
func StatusFromError(err error) RPCStatus {
	if err == nil {
		return RPCStatus{}
	}
	return RPCStatus{Failed: true, Code: CodeOf(err), Message: err.Error()}
}

// AsError reconstructs the original structured Error, or nil if the
// call the reply belongs to succeeded.
func (s RPCStatus) AsError() error {
	if !s.Failed {
		return nil
	}
	return Error{Code: s.Code, Err: s.Message}
}

// Statused is implemented by any reply type that embeds RPCStatus,
// letting util.Call recover a handler's structured error by code after
// net/rpc has already reduced the Go error return to an opaque string.
type Statused interface {
	AsError() error
}
