package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupUserRejectsSuperuser(t *testing.T) {
	_, err := lookupUser("root")
	require.Error(t, err)
}

func TestLookupUserUnknown(t *testing.T) {
	_, err := lookupUser("no-such-user-pkg-fcgi-test")
	assert.Error(t, err)
}
