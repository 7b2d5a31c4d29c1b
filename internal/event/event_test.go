package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValidEvents(t *testing.T) {
	cases := []struct {
		payload string
		want    Event
	}{
		{"ping", Event{Kind: Ping}},
		{"deploy:svc-a", Event{Kind: Deploy, Arg: "svc-a"}},
		{"search_services:se", Event{Kind: SearchServices, Arg: "se"}},
		{"navigate:/settings", Event{Kind: Navigate, Arg: "/settings"}},
		{"navigate:/service?name=a:b", Event{Kind: Navigate, Arg: "/service?name=a:b"}},
	}

	for _, c := range cases {
		got, err := Parse(c.payload)
		require.NoError(t, err, c.payload)
		assert.Equal(t, c.want, got, c.payload)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		payload string
		reason  ParseErrorReason
	}{
		{"ping:", ExtraData},
		{"deploy:", MissingArg},
		{"search_services:", MissingArg},
		{"navigate:", MissingArg},
		{"wobble:foo", UnknownKind},
		{"", UnknownKind},
	}

	for _, c := range cases {
		_, err := Parse(c.payload)
		require.Error(t, err, c.payload)
		perr, ok := err.(*ParseError)
		require.True(t, ok, c.payload)
		assert.Equal(t, c.reason, perr.Reason, c.payload)
	}
}

func TestErrorTextMatchesWireFormat(t *testing.T) {
	_, err := Parse("wobble:foo")
	perr := err.(*ParseError)
	assert.Equal(t, "error, unknown event kind", ErrorText(perr))
}

func TestParseRenderRoundTrip(t *testing.T) {
	events := []Event{
		{Kind: Ping},
		{Kind: Deploy, Arg: "svc-a"},
		{Kind: SearchServices, Arg: "se"},
		{Kind: Navigate, Arg: "/settings"},
	}

	for _, e := range events {
		got, err := Parse(Render(e))
		require.NoError(t, err)
		assert.Equal(t, e, got)
	}
}
