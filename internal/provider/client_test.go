package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetWallet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/wallet/addr1qxyz", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(`{
			"balance": "2500000",
			"stake_address": "stake1uxyz",
			"assets": [{
				"unit": "7eae28af2208be856f7a119668ae52a49b73725e326dc16579dcc373484f534b59",
				"quantity": "100000000000000000000",
				"decimals": 2
			}]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret")
	w, err := c.GetWallet(context.Background(), "addr1qxyz")
	require.NoError(t, err)

	assert.Equal(t, Lovelace(2_500_000), w.Balance)
	assert.Equal(t, "stake1uxyz", w.StakeAddress)
	require.Len(t, w.Assets, 1)

	rec := w.Assets[0].Record()
	assert.Equal(t, "7eae28af2208be856f7a119668ae52a49b73725e326dc16579dcc373", rec.PolicyID)
	assert.Equal(t, "484f534b59", rec.AssetName)
	assert.Equal(t, "100000000000000000000", rec.Quantity)
	assert.Equal(t, 2, rec.Decimals)
	assert.Regexp(t, `^asset1`, rec.Fingerprint)
}

func TestLovelaceNumberOrString(t *testing.T) {
	var w WalletResponse
	require.NoError(t, json.Unmarshal([]byte(`{"balance": 42}`), &w))
	assert.Equal(t, Lovelace(42), w.Balance)

	var empty WalletResponse
	require.NoError(t, json.Unmarshal([]byte(`{"balance": null}`), &empty))
	assert.Equal(t, Lovelace(0), empty.Balance)

	assert.Error(t, json.Unmarshal([]byte(`{"balance": "1.5"}`), &w))
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid address"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").GetWallet(context.Background(), "nope")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "invalid address", apiErr.Body)
}

func TestPaymentEndpoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/initiate-payment":
			w.Write([]byte(`{"paymentId":"p-1","amount":10000042,"address":"addr1service","claimToken":"c-1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/verify-payment/p-1":
			if r.URL.Query().Get("claim") == "c-1" {
				w.Write([]byte(`{"verified":true,"used":false}`))
				return
			}
			w.Write([]byte(`{"verified":true,"used":true}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	ctx := context.Background()

	req, err := c.InitiatePayment(ctx)
	require.NoError(t, err)
	assert.Equal(t, &PaymentRequest{PaymentID: "p-1", Amount: 10_000_042, Address: "addr1service", ClaimToken: "c-1"}, req)

	st, err := c.VerifyPayment(ctx, "p-1", req.ClaimToken)
	require.NoError(t, err)
	assert.True(t, st.Verified)
	assert.False(t, st.Used)

	st, err = c.VerifyPayment(ctx, "p-1", "")
	require.NoError(t, err)
	assert.True(t, st.Used)

	_, err = c.VerifyPayment(ctx, "p-2", "")
	assert.Error(t, err)
}
