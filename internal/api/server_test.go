package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/wishlist/internal/cache"
	"github.com/Kerhoff/wishlist/internal/catalog"
	"github.com/Kerhoff/wishlist/internal/models"
	"github.com/Kerhoff/wishlist/internal/repository/memory"
	"github.com/Kerhoff/wishlist/internal/service"
	"github.com/Kerhoff/wishlist/internal/session"
	"github.com/Kerhoff/wishlist/pkg/logger"
)

const (
	testSecret = "webhook-secret"
	testAdmin  = "admin-token"
)

type testClient struct {
	t    *testing.T
	srv  *httptest.Server
	http *http.Client
}

func newTestClient(t *testing.T, settings service.Settings, cfg Config) *testClient {
	t.Helper()

	store := memory.New()
	products := catalog.NewStatic(
		&models.Product{ID: 42, Name: "Teapot", Purchasable: true},
		&models.Product{ID: 43, Name: "Cups", Purchasable: true},
		&models.Product{ID: 50, Name: "Retired", Purchasable: false},
	)
	svc := service.New(logger.Discard(), settings, service.Dependencies{
		Items:       store,
		Lists:       store,
		Conversions: store,
		Preferences: store,
		Catalog:     products,
		Cache:       cache.NewMap(),
	})

	sessions, err := session.NewManager(session.Config{HashKey: []byte("0123456789abcdef0123456789abcdef")})
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(svc, sessions, cfg, logger.Discard()).Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testClient{t: t, srv: srv, http: &http.Client{Jar: jar}}
}

func defaultConfig() Config {
	return Config{WebhookSecret: testSecret, AdminToken: testAdmin}
}

func (c *testClient) cookie(name string) string {
	u, err := url.Parse(c.srv.URL)
	require.NoError(c.t, err)
	for _, ck := range c.http.Jar.Cookies(u) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

func (c *testClient) do(method, path string, body any, headers map[string]string) (int, map[string]any) {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.srv.URL+path, &buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var payload map[string]any
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

// mutate sends an unsafe request echoing the anti-forgery cookie.
func (c *testClient) mutate(method, path string, body any, headers map[string]string) (int, map[string]any) {
	c.t.Helper()
	if c.cookie(defaultCSRFCookie) == "" {
		status, _ := c.do(http.MethodGet, "/api/wishlist/count", nil, headers)
		require.Equal(c.t, http.StatusOK, status)
	}
	h := map[string]string{defaultCSRFHeader: c.cookie(defaultCSRFCookie)}
	for k, v := range headers {
		h[k] = v
	}
	return c.do(method, path, body, h)
}

func asUser(id string) map[string]string {
	return map[string]string{"X-User-ID": id}
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, service.DefaultSettings(), defaultConfig())

	status, body := c.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestUserHeader_OnlyConfiguredHeaderIsTrusted(t *testing.T) {
	cfg := defaultConfig()
	cfg.UserHeader = "X-Remote-User"
	c := newTestClient(t, service.DefaultSettings(), cfg)

	status, body := c.mutate(http.MethodPost, "/api/wishlist/toggle", map[string]any{"product_id": 42}, asUser("7"))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])

	status, body = c.do(http.MethodGet, "/api/wishlist/count", nil, map[string]string{"X-Remote-User": "7"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["count"], "X-User-ID acted as a guest")
}

func TestGuestFlowAndLoginMerge(t *testing.T) {
	c := newTestClient(t, service.DefaultSettings(), defaultConfig())

	status, body := c.do(http.MethodGet, "/api/wishlist/count", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["count"])
	assert.NotEmpty(t, c.cookie("wishlist_guest"), "guest identity minted")
	assert.NotEmpty(t, c.cookie(defaultCSRFCookie), "anti-forgery token issued")

	status, body = c.mutate(http.MethodPost, "/api/wishlist/toggle", map[string]any{"product_id": 42}, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["added"])
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, "default", body["list_id"])

	status, body = c.mutate(http.MethodPost, "/api/session/login", nil, asUser("7"))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["inserted"])
	assert.Equal(t, float64(0), body["merged"])
	assert.Empty(t, c.cookie("wishlist_guest"), "guest identity cleared")

	status, body = c.do(http.MethodGet, "/api/wishlist/items", nil, asUser("7"))
	require.Equal(t, http.StatusOK, status)
	items, ok := body["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, float64(42), items[0].(map[string]any)["product_id"])
	assert.NotContains(t, items[0], "owner")
}

func TestToggleRemovesSecondTime(t *testing.T) {
	c := newTestClient(t, service.DefaultSettings(), defaultConfig())
	user := asUser("9")

	_, body := c.mutate(http.MethodPost, "/api/wishlist/toggle", map[string]any{"product_id": 43}, user)
	assert.Equal(t, float64(1), body["count"])

	status, body := c.mutate(http.MethodPost, "/api/wishlist/toggle", map[string]any{"product_id": 43}, user)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["added"])
	assert.Equal(t, float64(0), body["count"])

	status, body = c.mutate(http.MethodPost, "/api/wishlist/remove", map[string]any{"product_id": 43}, user)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["success"])
}

func TestMutationsRequireAntiForgeryToken(t *testing.T) {
	c := newTestClient(t, service.DefaultSettings(), defaultConfig())

	status, body := c.do(http.MethodPost, "/api/wishlist/toggle", map[string]any{"product_id": 42}, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "csrf_invalid", body["error"])
	assert.Equal(t, float64(http.StatusForbidden), body["status"])
	assert.NotEmpty(t, body["request_id"])

	status, _ = c.do(http.MethodPost, "/api/wishlist/toggle", map[string]any{"product_id": 42},
		map[string]string{defaultCSRFHeader: "forged"})
	assert.Equal(t, http.StatusForbidden, status)
}

func TestErrorMapping(t *testing.T) {
	c := newTestClient(t, service.DefaultSettings(), defaultConfig())

	cases := []struct {
		name    string
		body    map[string]any
		headers map[string]string
		status  int
		code    string
	}{
		{"missing product", map[string]any{}, nil, http.StatusBadRequest, service.CodeInvalidProduct},
		{"not purchasable", map[string]any{"product_id": 50}, nil, http.StatusBadRequest, service.CodeProductNotFound},
		{"unknown product", map[string]any{"product_id": 999}, nil, http.StatusBadRequest, service.CodeProductNotFound},
		{"bad user header", map[string]any{"product_id": 42}, asUser("abc"), http.StatusBadRequest, service.CodeInvalidUser},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := c.mutate(http.MethodPost, "/api/wishlist/toggle", tc.body, tc.headers)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, body["error"])
		})
	}

	status, body := c.mutate(http.MethodPost, "/api/wishlist/note", map[string]any{"product_id": 42, "note": "hi"}, asUser("3"))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, service.CodeItemNotFound, body["error"])
}

func TestGuestsNotAllowed(t *testing.T) {
	settings := service.DefaultSettings()
	settings.GuestsAllowed = false
	c := newTestClient(t, settings, defaultConfig())

	status, body := c.do(http.MethodGet, "/api/wishlist/count", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, service.CodeGuestsNotAllowed, body["error"])

	status, _ = c.do(http.MethodGet, "/api/wishlist/count", nil, asUser("4"))
	assert.Equal(t, http.StatusOK, status)
}

func TestListsAndActiveList(t *testing.T) {
	c := newTestClient(t, service.DefaultSettings(), defaultConfig())
	user := asUser("11")

	status, body := c.mutate(http.MethodPost, "/api/wishlist/lists", map[string]any{"title": "Birthday Ideas"}, user)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "birthday-ideas", body["slug"])
	assert.Equal(t, "private", body["visibility"])

	status, body = c.mutate(http.MethodPut, "/api/wishlist/active-list", map[string]any{"list": "Birthday-Ideas"}, user)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "birthday-ideas", body["list_id"])

	_, body = c.mutate(http.MethodPost, "/api/wishlist/toggle", map[string]any{"product_id": 42}, user)
	assert.Equal(t, "birthday-ideas", body["list_id"])

	status, body = c.do(http.MethodGet, "/api/wishlist/lists", nil, user)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "birthday-ideas", body["active_list"])
	assert.Len(t, body["lists"], 1)

	status, body = c.mutate(http.MethodPost, "/api/wishlist/lists", map[string]any{"title": "  "}, user)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, service.CodeTitleMissing, body["error"])
}

func TestOrderWebhookAndStats(t *testing.T) {
	c := newTestClient(t, service.DefaultSettings(), defaultConfig())

	_, body := c.mutate(http.MethodPost, "/api/wishlist/toggle", map[string]any{"product_id": 42}, asUser("7"))
	require.Equal(t, float64(1), body["count"])

	event := map[string]any{
		"order_id": 900,
		"user_id":  7,
		"status":   "completed",
		"items": []map[string]any{
			{"product_id": 42, "quantity": 2, "line_total": 59.98},
			{"product_id": 77, "quantity": 1, "line_total": 5},
		},
	}

	status, body := c.do(http.MethodPost, "/api/orders/events", event, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_secret", body["error"])

	secret := map[string]string{webhookSecretHeader: testSecret}
	status, body = c.do(http.MethodPost, "/api/orders/events", event, secret)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["conversions"])
	assert.Equal(t, float64(1), body["recorded"])

	_, body = c.do(http.MethodPost, "/api/orders/events", event, secret)
	assert.Equal(t, float64(0), body["conversions"], "redelivery is ignored")
	assert.Equal(t, float64(1), body["recorded"])

	status, _ = c.do(http.MethodGet, "/api/stats/summary", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	admin := map[string]string{adminTokenHeader: testAdmin}
	status, body = c.do(http.MethodGet, "/api/stats/summary", nil, admin)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["total_adds"])
	assert.Equal(t, float64(1), body["conversions"])
	assert.Equal(t, float64(1), body["purchasing_users"])
	assert.Equal(t, float64(100), body["conversion_rate"])

	status, body = c.do(http.MethodGet, "/api/stats/products", nil, admin)
	require.Equal(t, http.StatusOK, status)
	products, ok := body["products"].([]any)
	require.True(t, ok)
	require.Len(t, products, 1)
	assert.Equal(t, 59.98, products[0].(map[string]any)["revenue"])

	status, body = c.do(http.MethodGet, "/api/stats/summary?from=2024-02-01&to=2024-01-01", nil, admin)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, service.CodeInvalidRange, body["error"])

	status, _ = c.do(http.MethodGet, "/api/stats/summary?from=yesterday", nil, admin)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUnconfiguredEndpoints(t *testing.T) {
	c := newTestClient(t, service.DefaultSettings(), Config{})

	status, body := c.do(http.MethodPost, "/api/orders/events", map[string]any{}, map[string]string{webhookSecretHeader: "x"})
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "webhook_disabled", body["error"])

	status, body = c.do(http.MethodGet, "/api/stats/products", nil, map[string]string{adminTokenHeader: "x"})
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "stats_disabled", body["error"])
}

func TestParseRangeBound(t *testing.T) {
	got, err := ParseRangeBound("", false)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ParseRangeBound("2024-03-05", true)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05T23:59:59.999999Z", got.Format("2006-01-02T15:04:05.999999999Z07:00"))
	assert.Equal(t, *got, got.Truncate(time.Microsecond), "bound survives microsecond storage")
	assert.True(t, got.Before(time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)))

	got, err = ParseRangeBound("2024-03-05T10:00:00+02:00", false)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Hour())

	_, err = ParseRangeBound("March", false)
	assert.Error(t, err)
}
