package tinkoff

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken(t *testing.T) {
	c := NewClient("TinkoffBankTest", "TinkoffBankTest", "", nil)

	// Amount, Description, OrderId, Password, TerminalKey
	raw := "19200" + "Подарочная карта" + "21090" + "TinkoffBankTest" + "TinkoffBankTest"
	sum := sha256.Sum256([]byte(raw))

	got := c.Token(map[string]string{
		"TerminalKey": "TinkoffBankTest",
		"Amount":      "19200",
		"OrderId":     "21090",
		"Description": "Подарочная карта",
	})
	assert.Equal(t, hex.EncodeToString(sum[:]), got)
}

func TestInit(t *testing.T) {
	var seen map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/Init", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		w.Write([]byte(`{"Success":true,"ErrorCode":"0","Status":"NEW","PaymentId":"3093639567","OrderId":"o-1","Amount":150000,"PaymentURL":"https://securepay.tinkoff.ru/new/abc"}`))
	}))
	defer srv.Close()

	c := NewClient("term", "secret", srv.URL+"/v2/", srv.Client())
	reply, err := c.Init(context.Background(), InitRequest{
		Amount:      150000,
		OrderID:     "o-1",
		Description: "ticket",
		SuccessURL:  "https://t.me/bot?start=activateabcde",
	})
	require.NoError(t, err)

	assert.Equal(t, ID("3093639567"), reply.PaymentID)
	assert.Equal(t, "https://securepay.tinkoff.ru/new/abc", reply.PaymentURL)

	assert.Equal(t, "term", seen["TerminalKey"])
	assert.Equal(t, float64(150000), seen["Amount"])
	assert.Equal(t, "https://t.me/bot?start=activateabcde", seen["SuccessURL"])
	assert.Equal(t, c.Token(map[string]string{
		"TerminalKey": "term",
		"Amount":      "150000",
		"OrderId":     "o-1",
		"Description": "ticket",
		"SuccessURL":  "https://t.me/bot?start=activateabcde",
	}), seen["Token"])
}

func TestInit_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Success":false,"ErrorCode":"204","Message":"Неверный токен","Details":"check Token"}`))
	}))
	defer srv.Close()

	c := NewClient("term", "secret", srv.URL, srv.Client())
	_, err := c.Init(context.Background(), InitRequest{Amount: 1, OrderID: "o"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "204", apiErr.Code)
	assert.Equal(t, "Init", apiErr.Method)
}

func TestGetState_NumericPaymentID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/GetState", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "777", body["PaymentId"])
		w.Write([]byte(`{"Success":true,"ErrorCode":"0","Status":"FORM_SHOWED","PaymentId":777}`))
	}))
	defer srv.Close()

	c := NewClient("term", "secret", srv.URL, srv.Client())
	reply, err := c.GetState(context.Background(), "777")
	require.NoError(t, err)
	assert.Equal(t, "FORM_SHOWED", reply.Status)
	assert.Equal(t, ID("777"), reply.PaymentID)
}

func TestPost_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient("term", "secret", srv.URL, srv.Client())
	_, err := c.GetState(context.Background(), "1")
	assert.ErrorContains(t, err, "502")
}
