package fastcgi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func noopFlush(uint16, []byte) error { return nil }

func TestApplyParamDefaults(t *testing.T) {
	r := newRequest(1, noopFlush)
	assert.Equal(t, "/", r.ScriptName)
	assert.Equal(t, "/", r.PathInfo)
}

func TestApplyParamScriptNameGetsTrailingSlash(t *testing.T) {
	r := newRequest(1, noopFlush)
	r.applyParam("SCRIPT_NAME", "/pkg_fcgi")
	assert.Equal(t, "/pkg_fcgi/", r.ScriptName)

	r.applyParam("SCRIPT_NAME", "/pkg_fcgi/")
	assert.Equal(t, "/pkg_fcgi/", r.ScriptName)
}

func TestApplyParamPathInfoGetsLeadingSlash(t *testing.T) {
	r := newRequest(1, noopFlush)
	r.applyParam("PATH_INFO", "search")
	assert.Equal(t, "/search", r.PathInfo)

	r.applyParam("GEMINI_URL_PATH", "/www/ports")
	assert.Equal(t, "/www/ports", r.PathInfo)
}

func TestApplyParamQueryStringRequiresNonEmpty(t *testing.T) {
	r := newRequest(1, noopFlush)
	r.applyParam("QUERY_STRING", "")
	assert.Empty(t, r.QueryString)

	r.applyParam("QUERY_STRING", "foo")
	assert.Equal(t, "foo", r.QueryString)
}

func TestApplyParamRequestMethod(t *testing.T) {
	r := newRequest(1, noopFlush)

	r.applyParam("REQUEST_METHOD", "get")
	assert.Equal(t, MethodGET, r.Method)

	r.applyParam("REQUEST_METHOD", "POST")
	assert.Equal(t, MethodPOST, r.Method)

	r.applyParam("REQUEST_METHOD", "PUT")
	assert.Equal(t, MethodUnknown, r.Method)
}

func TestApplyParamOverlongValuesDropped(t *testing.T) {
	r := newRequest(1, noopFlush)

	longName := make([]byte, maxServerNameLen)
	for i := range longName {
		longName[i] = 'a'
	}
	r.applyParam("SERVER_NAME", string(longName))
	assert.Empty(t, r.ServerName)

	r.applyParam("SERVER_NAME", "gemini.example.org")
	assert.Equal(t, "gemini.example.org", r.ServerName)
}

func TestWriteStatusFormat(t *testing.T) {
	var flushed []byte
	r := newRequest(1, func(id uint16, p []byte) error {
		flushed = append(flushed, p...)
		return nil
	})

	assert := assert.New(t)
	assert.NoError(r.WriteStatus(20, "text/gemini"))
	assert.NoError(r.out.flush())
	assert.Equal("20 text/gemini\r\n", string(flushed))
}
