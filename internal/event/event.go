// Package event is the Event Interpreter: a pure parser from an inbound
// text payload to a typed Event (spec §4.5). Semantic dispatch — the side
// effects an Event triggers — lives in the connection loop, not here.
package event

import (
	"fmt"
	"strings"
)

// Kind tags an Event variant.
type Kind int

const (
	Ping Kind = iota
	Deploy
	SearchServices
	Navigate
)

// Event is a parsed inbound command.
type Event struct {
	Kind Kind
	Arg  string
}

// ParseError classifies why a payload failed to parse, matching the three
// error cases spec §4.5 names.
type ParseError struct {
	Reason ParseErrorReason
}

type ParseErrorReason int

const (
	UnknownKind ParseErrorReason = iota
	MissingArg
	ExtraData
)

func (r ParseErrorReason) String() string {
	switch r {
	case UnknownKind:
		return "unknown event kind"
	case MissingArg:
		return "missing event arg"
	case ExtraData:
		return "excess data in event call"
	default:
		return "unknown parse error"
	}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("event: %s", e.Reason)
}

// Parse splits payload on the first colon and validates it against the
// grammar table in spec §4.5.
func Parse(payload string) (Event, error) {
	kindStr, arg, hasColon := strings.Cut(payload, ":")

	switch kindStr {
	case "ping":
		if hasColon {
			return Event{}, &ParseError{Reason: ExtraData}
		}
		return Event{Kind: Ping}, nil
	case "deploy":
		if !hasColon || arg == "" {
			return Event{}, &ParseError{Reason: MissingArg}
		}
		return Event{Kind: Deploy, Arg: arg}, nil
	case "search_services":
		if !hasColon || arg == "" {
			return Event{}, &ParseError{Reason: MissingArg}
		}
		return Event{Kind: SearchServices, Arg: arg}, nil
	case "navigate":
		if !hasColon || arg == "" {
			return Event{}, &ParseError{Reason: MissingArg}
		}
		return Event{Kind: Navigate, Arg: arg}, nil
	default:
		return Event{}, &ParseError{Reason: UnknownKind}
	}
}

// Render produces the canonical kind[:arg] form of an Event, the inverse of
// Parse for every non-error Event.
func Render(e Event) string {
	switch e.Kind {
	case Ping:
		return "ping"
	case Deploy:
		return "deploy:" + e.Arg
	case SearchServices:
		return "search_services:" + e.Arg
	case Navigate:
		return "navigate:" + e.Arg
	default:
		return ""
	}
}

// ErrorText renders a ParseError as the user-visible Text message the
// connection loop enqueues, per spec §4.5 ("error, <reason>").
func ErrorText(err *ParseError) string {
	return fmt.Sprintf("error, %s", err.Reason)
}
