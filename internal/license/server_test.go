package license

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testWebhookSecret = "whsec_test"

func testServer(t *testing.T) (*httptest.Server, *Service) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("admin-token"), bcrypt.MinCost)
	require.NoError(t, err)
	svc := NewService(testStore(t), quietLogger())
	srv := NewServer(svc, ServerConfig{WebhookSecret: testWebhookSecret, AdminTokenHash: string(hash)}, quietLogger())
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts, svc
}

func postWebhook(t *testing.T, url string, payload []byte, sig string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/api/webhook/stripe", bytes.NewReader(payload))
	require.NoError(t, err)
	if sig != "" {
		req.Header.Set("Stripe-Signature", sig)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestWebhookIssuesLicense(t *testing.T) {
	ts, _ := testServer(t)
	payload := []byte(`{"type":"checkout.session.completed","data":{"object":{
		"id":"cs_live_1","customer_email":"c@example.com","amount_total":1900,"currency":"usd"}}}`)

	resp := postWebhook(t, ts.URL, payload, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postWebhook(t, ts.URL, payload, SignatureHeader(payload, "wrong", time.Now()))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postWebhook(t, ts.URL, payload, SignatureHeader(payload, testWebhookSecret, time.Now()))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got, err := http.Get(ts.URL + "/api/license/session/cs_live_1")
	require.NoError(t, err)
	defer got.Body.Close()
	require.Equal(t, http.StatusOK, got.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(got.Body).Decode(&body))
	assert.Equal(t, KeyFromSession("cs_live_1"), body["key"])
	assert.Equal(t, "c@example.com", body["email"])

	missing, err := http.Get(ts.URL + "/api/license/session/cs_none")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestVerifyEndpoint(t *testing.T) {
	ts, svc := testServer(t)
	l, err := svc.Issue(context.Background(), Checkout{SessionID: "cs_v", Email: "d@example.com"})
	require.NoError(t, err)

	verify := func(body string) VerifyResponse {
		resp, err := http.Post(ts.URL+"/api/verify-license", "application/json", bytes.NewBufferString(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var vr VerifyResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&vr))
		return vr
	}

	assert.Equal(t, MsgInvalidFormat, verify(`{}`).Error)
	assert.Equal(t, MsgInvalidFormat, verify(`garbage`).Error)

	vr := verify(`{"license_key":"` + l.Key + `","increment":true}`)
	assert.True(t, vr.Valid)
	assert.Equal(t, 1, vr.Activations)
	assert.Equal(t, "d@example.com", vr.Email)
}

func TestVerifyReportsZeroActivations(t *testing.T) {
	ts, svc := testServer(t)
	l, err := svc.Issue(context.Background(), Checkout{SessionID: "cs_zero", Email: "z@example.com"})
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/api/verify-license", "application/json",
		bytes.NewBufferString(`{"license_key":"`+l.Key+`"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["valid"])
	require.Contains(t, body, "activations")
	assert.EqualValues(t, 0, body["activations"])
}

func TestAdminRoutes(t *testing.T) {
	ts, svc := testServer(t)
	l, err := svc.Issue(context.Background(), Checkout{SessionID: "cs_admin"})
	require.NoError(t, err)

	do := func(method, path, token string) *http.Response {
		req, err := http.NewRequest(method, ts.URL+path, nil)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/api/admin/stats", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/api/admin/stats", "nope").StatusCode)

	resp := do(http.MethodGet, "/api/admin/stats", "admin-token")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, 1, st.Active)

	assert.Equal(t, http.StatusNoContent, do(http.MethodPost, "/api/admin/licenses/"+l.Key+"/deactivate", "admin-token").StatusCode)
	assert.Equal(t, http.StatusNotFound, do(http.MethodPost, "/api/admin/licenses/HIPPO-0000-0000-0000/deactivate", "admin-token").StatusCode)
}

func TestAdminDisabledWithoutHash(t *testing.T) {
	svc := NewService(testStore(t), quietLogger())
	ts := httptest.NewServer(NewServer(svc, ServerConfig{}, quietLogger()).Routes())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer anything")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClientAndGate(t *testing.T) {
	ts, svc := testServer(t)
	ctx := context.Background()
	l, err := svc.Issue(ctx, Checkout{SessionID: "cs_gate", Email: "e@example.com"})
	require.NoError(t, err)

	client := NewClient(ts.URL+"/api/verify-license", quietLogger())
	gate := NewGate(filepath.Join(t.TempDir(), "license.json"), client)
	assert.False(t, gate.IsLicensed())

	_, err = gate.Activate(ctx, "bad")
	assert.EqualError(t, err, MsgInvalidFormat)
	_, err = gate.Activate(ctx, "HIPPO-0000-0000-0000")
	assert.EqualError(t, err, MsgNotFound)

	rec, err := gate.Activate(ctx, " "+l.Key+" ")
	require.NoError(t, err)
	assert.Equal(t, l.Key, rec.Key)
	assert.Equal(t, "e@example.com", rec.Email)
	assert.Equal(t, ProductID, rec.ProductID)
	assert.True(t, gate.IsLicensed())

	ok, err := gate.Revalidate(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := svc.store.Get(ctx, l.Key)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Activations, "revalidation must not consume an activation")

	// An unreachable server keeps the cached activation.
	offline := NewGate(gate.path, NewClient("http://127.0.0.1:1/api/verify-license", quietLogger()))
	ok, err = offline.Revalidate(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	// A revoked key clears the cache.
	require.NoError(t, svc.Deactivate(ctx, l.Key))
	ok, err = gate.Revalidate(ctx)
	assert.EqualError(t, err, MsgDeactivated)
	assert.False(t, ok)
	assert.False(t, gate.IsLicensed())
	assert.Nil(t, gate.Record())
}

func TestClientOfflineMessages(t *testing.T) {
	client := NewClient("http://127.0.0.1:1/api/verify-license", quietLogger())
	res := client.Verify(context.Background(), "HIPPO-AAAA-BBBB-CCCC")
	assert.True(t, res.Offline)
	assert.Equal(t, "Failed to verify license. Please check your internet connection.", res.Error)

	res = client.Activate(context.Background(), "HIPPO-AAAA-BBBB-CCCC")
	assert.Equal(t, "Failed to activate license. Please check your internet connection.", res.Error)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()
	res = NewClient(failing.URL, quietLogger()).Verify(context.Background(), "HIPPO-AAAA-BBBB-CCCC")
	assert.Equal(t, "Network error. Please check your internet connection.", res.Error)
}
