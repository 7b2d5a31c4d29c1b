package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEmptyString(t *testing.T) {
	assert.Equal(t, map[string]string{}, Parse(""))
}

func TestParseDiscardsEmptyFragmentsAndKeys(t *testing.T) {
	got := Parse("a=1&&=2&b=")
	assert.Equal(t, map[string]string{"a": "1", "b": ""}, got)
}

func TestParseSplitsOnFirstEqualsOnly(t *testing.T) {
	got := Parse("name=a=b")
	assert.Equal(t, map[string]string{"name": "a=b"}, got)
}

func TestParseLastWriteWins(t *testing.T) {
	got := Parse("name=a&name=b")
	assert.Equal(t, map[string]string{"name": "b"}, got)
}

func TestParseSerializeRoundTrip(t *testing.T) {
	m := map[string]string{"name": "svc-a", "page": "2"}
	got := Parse(Serialize(m))
	assert.Equal(t, m, got)
}
