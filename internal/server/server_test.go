// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/qolzam/dbkit/internal/app/user"
	"github.com/qolzam/dbkit/internal/database"
	"github.com/qolzam/dbkit/internal/database/factory"
	"github.com/qolzam/dbkit/internal/database/interfaces"
	"github.com/qolzam/dbkit/internal/database/observability"
	"github.com/qolzam/dbkit/internal/platform"
	"github.com/qolzam/dbkit/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*fiber.App, *platform.Context) {
	t.Helper()
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	pc := platform.NewContext(factory.NewDBFactory(database.WithMetrics(observability.NewMetricsCollector(reg))))
	cfg := testutil.LoadTestConfig().DatabaseConfig(t, interfaces.DatabaseTypeSQLCipher)
	require.NoError(t, pc.Bootstrap(ctx, user.AppConfig(*cfg), user.Catalog()))
	t.Cleanup(func() { _ = pc.Shutdown(ctx) })

	return New(pc, Config{Gatherer: reg}), pc
}

func do(t *testing.T, app *fiber.App, method, target, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decodeList(t *testing.T, data []byte) []map[string]interface{} {
	t.Helper()
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &rows))
	return rows
}

func TestHealth(t *testing.T) {
	app, pc := newTestApp(t)

	code, body := do(t, app, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"connected": true}`, string(body))

	require.NoError(t, pc.Shutdown(context.Background()))
	code, body = do(t, app, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.JSONEq(t, `{"connected": false}`, string(body))
}

func TestStoreRoutes(t *testing.T) {
	app, _ := newTestApp(t)

	code, body := do(t, app, http.MethodPost, "/api/user", `{"name": "A", "age": 30, "place": "X"}`)
	require.Equal(t, http.StatusCreated, code, string(body))
	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "A", created["name"])
	require.NotNil(t, created["id"])
	id := fmt.Sprint(created["id"])

	code, _ = do(t, app, http.MethodPost, "/api/user", `{"name": "B", "age": 25, "place": "Y"}`)
	require.Equal(t, http.StatusCreated, code)

	t.Run("Find by filter", func(t *testing.T) {
		code, body := do(t, app, http.MethodGet, "/api/user?filter="+url.QueryEscape(`{"age": 30}`), "")
		require.Equal(t, http.StatusOK, code, string(body))
		rows := decodeList(t, body)
		require.Len(t, rows, 1)
		assert.Equal(t, "A", rows[0]["name"])
	})

	t.Run("Sort and limit", func(t *testing.T) {
		code, body := do(t, app, http.MethodGet, "/api/user?sort=age:asc&limit=1", "")
		require.Equal(t, http.StatusOK, code, string(body))
		rows := decodeList(t, body)
		require.Len(t, rows, 1)
		assert.Equal(t, "B", rows[0]["name"])
	})

	t.Run("Update by id", func(t *testing.T) {
		code, body := do(t, app, http.MethodPut, "/api/user/"+id, `{"place": "Z"}`)
		require.Equal(t, http.StatusOK, code, string(body))
		var updated map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &updated))
		assert.Equal(t, "Z", updated["place"])
		assert.Equal(t, "A", updated["name"])
	})

	t.Run("Delete by id", func(t *testing.T) {
		code, _ := do(t, app, http.MethodDelete, "/api/user/"+id, "")
		assert.Equal(t, http.StatusNoContent, code)

		code, _ = do(t, app, http.MethodDelete, "/api/user/"+id, "")
		assert.Equal(t, http.StatusNotFound, code)

		code, body := do(t, app, http.MethodGet, "/api/user", "")
		require.Equal(t, http.StatusOK, code)
		assert.Len(t, decodeList(t, body), 1)
	})

	t.Run("Metrics", func(t *testing.T) {
		code, body := do(t, app, http.MethodGet, "/metrics", "")
		assert.Equal(t, http.StatusOK, code)
		assert.Contains(t, string(body), "dbkit_operations_total")
	})
}

func TestStoreRoutes_Errors(t *testing.T) {
	app, _ := newTestApp(t)

	cases := []struct {
		name   string
		method string
		target string
		body   string
		code   int
	}{
		{"unknown store", http.MethodGet, "/api/ghost", "", http.StatusNotFound},
		{"bad filter", http.MethodGet, "/api/user?filter=" + url.QueryEscape(`{"age":`), "", http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/api/user?limit=-1", "", http.StatusBadRequest},
		{"bad sort order", http.MethodGet, "/api/user?sort=age:up", "", http.StatusBadRequest},
		{"filter field with SQL", http.MethodGet, "/api/user?filter=" + url.QueryEscape(`{"1=1 OR name": "x"}`), "", http.StatusBadRequest},
		{"sort field with SQL", http.MethodGet, "/api/user?sort=" + url.QueryEscape("(SELECT 1):desc"), "", http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/user", `{"email": "a@b.c"}`, http.StatusBadRequest},
		{"array body", http.MethodPost, "/api/user", `[1, 2]`, http.StatusBadRequest},
		{"empty update", http.MethodPut, "/api/user/1", `{}`, http.StatusBadRequest},
		{"update of a missing row", http.MethodPut, "/api/user/999", `{"age": 1}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := do(t, app, tc.method, tc.target, tc.body)
			assert.Equal(t, tc.code, code, string(body))
			assert.Contains(t, string(body), `"error"`)
		})
	}
}

func TestRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(GetRequestID(c)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "req-1", string(body))
	assert.Equal(t, "req-1", resp.Header.Get(HeaderRequestID))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	assert.Len(t, string(body), 36)
	assert.Equal(t, string(body), resp.Header.Get(HeaderRequestID))
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusOf(interfaces.ValidationError(nil, "bad")))
	assert.Equal(t, http.StatusServiceUnavailable, StatusOf(interfaces.StateError("closed")))
	assert.Equal(t, http.StatusNotFound, StatusOf(fmt.Errorf("%w: x", ErrStoreNotFound)))
	assert.Equal(t, http.StatusMethodNotAllowed, StatusOf(fiber.ErrMethodNotAllowed))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("boom")))
}
