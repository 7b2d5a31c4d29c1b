package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterEmptyQueryReturnsAllInOrder(t *testing.T) {
	names := []string{"zeta", "alpha", "mu"}
	assert.Equal(t, names, Filter("  ", names))
}

func TestFilterRejectsNonSubsequence(t *testing.T) {
	got := Filter("xyz", []string{"alpha", "beta"})
	assert.Empty(t, got)
}

func TestFilterRanksTighterMatchesFirst(t *testing.T) {
	// "auth" is a contiguous substring of "auth-service" but a stretched
	// subsequence of "api-user-tracking-hub"; the tighter match wins.
	names := []string{"api-user-tracking-hub", "auth-service"}
	got := Filter("auth", names)
	assert.Equal(t, []string{"auth-service", "api-user-tracking-hub"}, got)
}

func TestFilterIsCaseInsensitive(t *testing.T) {
	got := Filter("AUTH", []string{"auth-service"})
	assert.Equal(t, []string{"auth-service"}, got)
}

func TestFilterTiesBreakAlphabetically(t *testing.T) {
	// "ab" matches query "a" at position 0 (gap 0, trailing gap 1) and "ba"
	// at position 1 (gap 1, trailing gap 0), so both score 1; alphabetical
	// order breaks the tie.
	names := []string{"ba", "ab"}
	got := Filter("a", names)
	assert.Equal(t, []string{"ab", "ba"}, got)
}
