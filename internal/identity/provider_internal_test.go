package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ThxTiger/roomkiosk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedeemDeviceCodeClassification(t *testing.T) {
	var tokenErr string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if tokenErr != "" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, `{"error":%q}`, tokenErr)
			return
		}
		fmt.Fprint(w, `{"access_token":"at-1","token_type":"Bearer","expires_in":3600}`)
	}))
	defer server.Close()

	p := NewDeviceProvider(config.IdentityConfig{ClientID: "kiosk", TokenURL: server.URL}, nil)
	ctx := context.Background()

	tokenErr = "authorization_pending"
	_, status, err := p.redeemDeviceCode(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, redeemPending, status)

	// slow_down is not a plain retry: the poll loop backs off by five
	// seconds before asking again.
	tokenErr = "slow_down"
	_, status, err = p.redeemDeviceCode(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, redeemSlowDown, status)

	tokenErr = "access_denied"
	_, _, err = p.redeemDeviceCode(ctx, "dev-1")
	assert.ErrorIs(t, err, ErrCancelled)

	tokenErr = "expired_token"
	_, _, err = p.redeemDeviceCode(ctx, "dev-1")
	assert.ErrorIs(t, err, ErrCancelled)

	tokenErr = ""
	token, status, err := p.redeemDeviceCode(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, redeemOK, status)
	assert.Equal(t, "at-1", token.AccessToken)
}
