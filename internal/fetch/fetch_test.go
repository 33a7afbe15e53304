package fetch

import (
	"context"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthesis-kb/synthesis/internal/errors"
)

func TestValidateURL_SchemeWhitelist(t *testing.T) {
	for _, raw := range []string{
		"ftp://example.com/file",
		"file:///etc/passwd",
		"gopher://example.com",
	} {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Error(t, validateURL(u), raw)
	}
}

func TestValidateURL_RejectsPrivateAddresses(t *testing.T) {
	for _, raw := range []string{
		"http://127.0.0.1/admin",
		"http://127.8.8.8:8080/",
		"http://10.0.0.5/internal",
		"http://172.16.1.1/",
		"http://192.168.1.1/router",
		"http://169.254.169.254/latest/meta-data",
		"http://[::1]/",
		"http://[fe80::1]/",
		"http://[fc00::1]/",
		"http://0.0.0.0/",
		"http://localhost:9200/",
	} {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Error(t, validateURL(u), raw)
	}
}

func TestValidateURL_AllowsPublicIP(t *testing.T) {
	u, err := url.Parse("https://93.184.216.34/")
	require.NoError(t, err)
	assert.NoError(t, validateURL(u))
}

func TestDisallowedIP(t *testing.T) {
	assert.Equal(t, "loopback", disallowedIP(net.ParseIP("127.0.0.1")))
	assert.Equal(t, "private", disallowedIP(net.ParseIP("10.1.2.3")))
	assert.Equal(t, "link-local", disallowedIP(net.ParseIP("169.254.0.1")))
	assert.Equal(t, "private", disallowedIP(net.ParseIP("fd12::1")))
	assert.Equal(t, "", disallowedIP(net.ParseIP("8.8.8.8")))
}

func TestFetch_InvalidURL(t *testing.T) {
	c := New(nil)
	_, err := c.Fetch(context.Background(), "http://127.0.0.1/secret")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))
}

func TestFetch_UnparseableURL(t *testing.T) {
	c := New(nil)
	_, err := c.Fetch(context.Background(), "http://[broken")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))
}
