package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestClassify(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline", fmt.Errorf("submit: %w", context.DeadlineExceeded), KindTimeout},
		{"dial", dial, KindNetwork},
		{"url", &url.Error{Op: "Post", URL: "http://x", Err: dial}, KindNetwork},
		{"dns", &net.DNSError{Err: "no such host", Name: "x"}, KindNetwork},
		{"already classified", fmt.Errorf("wrap: %w", Server(503, "unavailable")), KindServer},
		{"plain", errors.New("odd"), KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
	assert.Nil(t, Classify(nil))
}

func TestErrorText(t *testing.T) {
	err := Validation("rejected", map[string]string{"b": "bad", "a": "also bad"})
	assert.Equal(t, "rejected: a: also bad; b: bad", err.Error())

	assert.Equal(t, "boom (status 500)", Server(500, "boom").Error())

	cause := errors.New("disk full")
	st := Storage("enqueue", cause)
	assert.ErrorIs(t, st, cause)
	assert.Equal(t, "enqueue: disk full", st.Error())
}

func TestUserMessage_Localized(t *testing.T) {
	netErr := Network(errors.New("refused"))
	assert.Equal(t, msgNetwork, UserMessage(language.English, netErr))
	assert.Equal(t, "No se puede conectar con el servidor. Revisa tu conexión.", UserMessage(language.Spanish, netErr))

	assert.Equal(t, "The server had a problem (502). Please try again later.", UserMessage(language.English, Server(502, "")))
	assert.Contains(t, UserMessage(ParseLocale("es"), Server(502, "")), "(502)")

	assert.Equal(t, "", UserMessage(language.English, nil))
}

func TestParseLocale(t *testing.T) {
	require.Equal(t, language.English, ParseLocale("not a locale!"))
	base, _ := ParseLocale("es-MX").Base()
	require.Equal(t, "es", base.String())
}
