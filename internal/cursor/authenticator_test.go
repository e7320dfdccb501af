package cursor

import (
	"testing"

	"github.com/stretchr/testify/require"

	sverrors "github.com/R3E-Network/query_layer/infrastructure/errors"
)

func TestSealOpenRoundTrip(t *testing.T) {
	auth, err := NewAuthenticator()
	require.NoError(t, err)

	for _, data := range []string{"", "0", `{"offset":1024}`, "page-token-xyz"} {
		sealed := auth.Seal(data)
		opened, err := auth.Open(sealed)
		require.NoError(t, err)
		require.Equal(t, data, opened)
	}
}

func TestOpenRejectsTamperedData(t *testing.T) {
	auth, err := NewAuthenticator()
	require.NoError(t, err)

	sealed := auth.Seal(`{"offset":0}`)
	sealed.Data = `{"offset":999999}`

	_, err = auth.Open(sealed)
	require.Error(t, err)
	svcErr := sverrors.GetServiceError(err)
	require.NotNil(t, svcErr)
	require.Equal(t, sverrors.ErrCodeInvalidCursor, svcErr.Code)
}

func TestOpenRejectsForgedSignature(t *testing.T) {
	auth, err := NewAuthenticator()
	require.NoError(t, err)

	cases := []Sealed{
		{Data: "anything", Sig: ""},
		{Data: "anything", Sig: "not-hex"},
		{Data: "anything", Sig: "deadbeef"},
		{Data: "anything", Sig: "0000000000000000000000000000000000000000000000000000000000000000"},
	}
	for _, sealed := range cases {
		_, err := auth.Open(sealed)
		require.Error(t, err, "sig %q", sealed.Sig)
	}
}

func TestCrossRequestIsolation(t *testing.T) {
	a, err := NewAuthenticator()
	require.NoError(t, err)
	b, err := NewAuthenticator()
	require.NoError(t, err)

	sealed := a.Seal("shared-cursor")
	_, err = b.Open(sealed)
	require.Error(t, err, "a cursor sealed by one request must not open under another")

	_, err = a.Open(sealed)
	require.NoError(t, err)
}
