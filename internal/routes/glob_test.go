package routes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGlobMatchExact(t *testing.T) {
	assert.True(t, globMatch("/", "/"))
	assert.False(t, globMatch("/", "/search"))
}

func TestGlobMatchStarCrossesSlashes(t *testing.T) {
	// Unlike path.Match, '*' here must match across '/', since routing
	// uses fnmatch with flags=0 (no FNM_PATHNAME).
	assert.True(t, globMatch("/*", "/www/ports"))
	assert.True(t, globMatch("/*", "/www/ports/x11/firefox"))
}

func TestGlobMatchQuestionMarkMatchesOneByte(t *testing.T) {
	assert.True(t, globMatch("/a?c", "/abc"))
	assert.False(t, globMatch("/a?c", "/abbc"))
}

func TestGlobMatchNoMatch(t *testing.T) {
	assert.False(t, globMatch("/search", "/all"))
}
