package engine

import "fmt"

// Code is the completion code of a single transfer.
type Code int

const (
	OK                     Code = 0
	UnsupportedProtocol    Code = 1
	FailedInit             Code = 2
	URLMalformat           Code = 3
	CouldntResolveProxy    Code = 5
	CouldntResolveHost     Code = 6
	CouldntConnect         Code = 7
	WriteError             Code = 23
	ReadError              Code = 26
	OperationTimedOut      Code = 28
	SSLConnectError        Code = 35
	FileCouldntReadFile    Code = 37
	AbortedByCallback      Code = 42
	BadFunctionArgument    Code = 43
	TooManyRedirects       Code = 47
	UnknownOption          Code = 48
	GotNothing             Code = 52
	SendError              Code = 55
	RecvError              Code = 56
	PeerFailedVerification Code = 60
)

var codeText = map[Code]string{
	OK:                     "No error",
	UnsupportedProtocol:    "Unsupported protocol",
	FailedInit:             "Failed initialization",
	URLMalformat:           "URL using bad/illegal format or missing URL",
	CouldntResolveProxy:    "Could not resolve proxy name",
	CouldntResolveHost:     "Could not resolve hostname",
	CouldntConnect:         "Could not connect to server",
	WriteError:             "Failed writing received data to disk/application",
	ReadError:              "Failed to open/read local data from file/application",
	OperationTimedOut:      "Timeout was reached",
	SSLConnectError:        "SSL connect error",
	FileCouldntReadFile:    "Could not read a file:// file",
	AbortedByCallback:      "Operation was aborted by an application callback",
	BadFunctionArgument:    "A function was given a bad argument",
	TooManyRedirects:       "Number of redirects hit maximum amount",
	UnknownOption:          "An unknown option was passed in",
	GotNothing:             "Server returned nothing (no headers, no data)",
	SendError:              "Failed sending data to the peer",
	RecvError:              "Failure when receiving data from the peer",
	PeerFailedVerification: "SSL peer certificate or SSH remote key was not OK",
}

func (c Code) String() string {
	if text, ok := codeText[c]; ok {
		return text
	}
	return fmt.Sprintf("Unknown error (%d)", int(c))
}

// MultiCode is the result of a multi handle operation.
type MultiCode int

const (
	MultiOK            MultiCode = 0
	MultiBadHandle     MultiCode = 1
	MultiBadEasyHandle MultiCode = 2
	MultiAddedAlready  MultiCode = 7
)

func (c MultiCode) String() string {
	switch c {
	case MultiOK:
		return "No error"
	case MultiBadHandle:
		return "Invalid multi handle"
	case MultiBadEasyHandle:
		return "Invalid easy handle"
	case MultiAddedAlready:
		return "The easy handle is already added to a multi handle"
	default:
		return fmt.Sprintf("Unknown error (%d)", int(c))
	}
}
