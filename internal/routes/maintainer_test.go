package routes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObfuscateMaintainer(t *testing.T) {
	got := obfuscateMaintainer("Jane Doe <jane@example.org>")
	assert.Equal(t, "Jane Doe <jane at example dot org>", got)
}

func TestObfuscateMaintainerNoAddress(t *testing.T) {
	got := obfuscateMaintainer("ports@openbsd.org")
	assert.Equal(t, "ports@openbsd.org", got)
}

func TestObfuscateMaintainerMultipleDots(t *testing.T) {
	got := obfuscateMaintainer("Someone <someone@mail.example.co.uk>")
	assert.Equal(t, "Someone <someone at mail dot example dot co dot uk>", got)
}
