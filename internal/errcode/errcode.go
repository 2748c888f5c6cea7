// Package errcode serializes the middleware's error enum to and from the
// single signed integer that crosses a process boundary on a method or
// event-subscription return.
package errcode

import "fmt"

// Code identifies one of the fixed error conditions the core can report
// across a process boundary. The zero value, Invalid, is never a valid
// wire value on its own terms -- it exists only to catch zero-valued
// Code variables used by mistake.
type Code int32

const (
	Invalid Code = iota

	ServiceUnavailable
	MaxSamplesReached
	BindingFailure
	PeerUnreachable
	FieldValueInvalid
	HandlerNotSet
	AllocationFailure
	IllegalAllocatorUsage
	ServiceNotOffered
	CommunicationLinkError
	NoClients
	MaxSubscribersExceeded
	InvalidHandle
	InvalidBindingInfo
	EventNotExisting
	NotSubscribed
	InvalidConfiguration
	InvalidMetaModelShortname
	InstanceAlreadyOffered
	CouldNotRestartProxy
	NotOffered
	InstanceIDUnresolved
	FindServiceHandlerFailure

	numEnumElements
)

// NumEnumElements is the first integer value that is not a valid Code.
const NumEnumElements = int32(numEnumElements)

var messages = map[Code]string{
	ServiceUnavailable:        "service unavailable",
	MaxSamplesReached:         "maximum number of samples reached",
	BindingFailure:            "binding failure",
	PeerUnreachable:           "peer unreachable",
	FieldValueInvalid:         "field value invalid",
	HandlerNotSet:             "handler not set",
	AllocationFailure:         "allocation failure",
	IllegalAllocatorUsage:     "illegal allocator usage",
	ServiceNotOffered:         "service not offered",
	CommunicationLinkError:    "communication link error",
	NoClients:                 "no clients",
	MaxSubscribersExceeded:    "maximum number of subscribers exceeded",
	InvalidHandle:             "invalid handle",
	InvalidBindingInfo:        "invalid binding info",
	EventNotExisting:          "event not existing",
	NotSubscribed:             "not subscribed",
	InvalidConfiguration:      "invalid configuration",
	InvalidMetaModelShortname: "invalid meta-model shortname",
	InstanceAlreadyOffered:    "instance already offered",
	CouldNotRestartProxy:      "could not restart proxy",
	NotOffered:                "not offered",
	InstanceIDUnresolved:      "instance-id unresolved",
	FindServiceHandlerFailure: "find-service handler failure",
}

// String renders the human-readable message for a Code. Unknown codes
// (including Invalid) render a generic placeholder; callers that need a
// wire-safe value should go through SerializeError, whose precondition
// panic catches unknown codes.
func (c Code) String() string {
	if msg, ok := messages[c]; ok {
		return msg
	}
	return fmt.Sprintf("errcode(%d)", int32(c))
}

// Error is the typed result carried by method returns and subscription
// signals. A nil *Error means success.
type Error struct {
	Code Code
}

func (e *Error) Error() string {
	if e == nil {
		return "success"
	}
	return e.Code.String()
}

// New wraps code in an *Error for callers that already hold a Code.
func New(code Code) *Error {
	return &Error{Code: code}
}

// SerializeSuccess returns the wire value for "no error".
func SerializeSuccess() int32 {
	return 0
}

// SerializeError returns the wire value for code. code must satisfy
// Invalid < code < NumEnumElements; violating this precondition
// indicates memory corruption or a protocol break upstream and is
// therefore fatal rather than an error return.
func SerializeError(code Code) int32 {
	if code <= Invalid || int32(code) >= NumEnumElements {
		panic(fmt.Sprintf("errcode: SerializeError precondition violated: code=%d", int32(code)))
	}
	return int32(code)
}

// Deserialize reconstructs a result from a wire value n. n == 0 means
// success and returns a nil *Error. Any other value must satisfy
// 0 < n < NumEnumElements;
// outside that range the wire value cannot be trusted and deserializing
// it is fatal, matching SerializeError's precondition.
func Deserialize(n int32) *Error {
	if n < 0 || n >= NumEnumElements {
		panic(fmt.Sprintf("errcode: Deserialize precondition violated: n=%d", n))
	}
	if n == 0 {
		return nil
	}
	return &Error{Code: Code(n)}
}
