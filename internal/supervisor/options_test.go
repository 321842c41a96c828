package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	opts, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, defaultChildren, opts.Children)
	assert.Equal(t, defaultSocket, opts.Socket)
	assert.Equal(t, defaultUser, opts.User)
	assert.Equal(t, defaultDB, opts.DB)
	assert.False(t, opts.Foreground)
	assert.False(t, opts.Server)
	assert.Zero(t, opts.Verbose)
}

func TestParseFlags(t *testing.T) {
	opts, err := Parse([]string{"-d", "-vv", "-j", "5", "-p", "/var/pkg_fcgi", "-u", "_pkgfcgi", "/tmp/pkgs.sqlite3"})
	require.NoError(t, err)

	assert.True(t, opts.Foreground)
	assert.Equal(t, 2, opts.Verbose)
	assert.Equal(t, 5, opts.Children)
	assert.Equal(t, "/var/pkg_fcgi", opts.Root)
	assert.Equal(t, "_pkgfcgi", opts.User)
	assert.Equal(t, "/tmp/pkgs.sqlite3", opts.DB)
}

func TestParseServerFlag(t *testing.T) {
	opts, err := Parse([]string{"-S", "-p", "/var/pkg_fcgi", "-u", "_pkgfcgi", "/tmp/pkgs.sqlite3"})
	require.NoError(t, err)
	assert.True(t, opts.Server)
}

func TestParseChildrenClampedToMax(t *testing.T) {
	opts, err := Parse([]string{"-j", "999"})
	require.NoError(t, err)
	assert.Equal(t, maxChildren, opts.Children)
}

func TestParseChildrenClampedToMin(t *testing.T) {
	opts, err := Parse([]string{"-j", "0"})
	require.NoError(t, err)
	assert.Equal(t, 1, opts.Children)
}
