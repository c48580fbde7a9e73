package urlnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	testCases := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{name: "bare domain", raw: "example.com", want: "https://example.com/"},
		{name: "surrounding spaces", raw: "  example.com  ", want: "https://example.com/"},
		{name: "http kept", raw: "http://example.com/path?q=1", want: "http://example.com/path?q=1"},
		{name: "uppercase scheme and host", raw: "HTTPS://Example.COM", want: "https://example.com/"},
		{name: "default port dropped", raw: "https://example.com:443/a", want: "https://example.com/a"},
		{name: "custom port kept", raw: "localhost:8080/admin", want: "https://localhost:8080/admin"},
		{name: "ipv6 host", raw: "http://[::1]:3000", want: "http://[::1]:3000/"},
		{name: "empty", raw: "", wantErr: ErrEmptyURL},
		{name: "blank", raw: "   ", wantErr: ErrEmptyURL},
		{name: "not a url", raw: "not a url!!", wantErr: ErrInvalidURL},
		{name: "other scheme", raw: "ftp://example.com", wantErr: ErrInvalidURL},
		{name: "scheme only", raw: "https://", wantErr: ErrInvalidURL},
		{name: "bang in host", raw: "exa!mple.com", wantErr: ErrInvalidURL},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			got, err := Normalize(testCase.raw)
			if testCase.wantErr != nil {
				require.ErrorIs(t, err, testCase.wantErr)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testCase.want, got)
			assert.True(t, IsValid(got))
		})
	}
}

func TestTitle(t *testing.T) {
	title, err := Title("  GitHub \n")
	require.NoError(t, err)
	assert.Equal(t, "GitHub", title)

	_, err = Title(" \t ")
	assert.ErrorIs(t, err, ErrEmptyTitle)
}
