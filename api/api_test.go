package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"petshop/config"
	"petshop/core"
	"petshop/service"
	"petshop/storage"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.API.Port = 8080
	cfg.API.MaxBodyBytes = 1 << 20
	cfg.API.AllowedOrigins = []string{"http://localhost:3000"}
	// High limits so tests never trip the limiter by accident
	cfg.API.RateLimit.RequestsPerSecond = 100000
	cfg.API.RateLimit.Burst = 100000
	return cfg
}

func setupTestAPI(t *testing.T, cfg *config.Config) (*API, *storage.MockPetStore) {
	t.Helper()
	store := storage.NewMockPetStore()
	logger := zap.NewNop().Sugar()
	api := NewAPI(service.NewPetService(store, logger), store, cfg, logger)
	t.Cleanup(func() { _ = api.Stop(context.Background()) })
	return api, store
}

func doRequest(t *testing.T, api *API, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, req)
	return rr
}

func petBody(name, category string) map[string]interface{} {
	return map[string]interface{}{
		"name":      name,
		"category":  category,
		"available": true,
		"gender":    "MALE",
		"birthday":  "2019-03-14",
	}
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func createPet(t *testing.T, api *API, name, category string) core.Pet {
	t.Helper()
	rr := doRequest(t, api, http.MethodPost, "/pets", petBody(name, category))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var pet core.Pet
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pet))
	return pet
}

func TestNewAPI_PanicsOnNilDependencies(t *testing.T) {
	store := storage.NewMockPetStore()
	logger := zap.NewNop().Sugar()
	svc := service.NewPetService(store, logger)

	assert.Panics(t, func() { NewAPI(nil, store, testConfig(), logger) })
	assert.Panics(t, func() { NewAPI(svc, nil, testConfig(), logger) })
	assert.Panics(t, func() { NewAPI(svc, store, nil, logger) })
	assert.Panics(t, func() { NewAPI(svc, store, testConfig(), nil) })
}

func TestIndex(t *testing.T) {
	api, _ := setupTestAPI(t, testConfig())

	rr := doRequest(t, api, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp IndexResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Pet Demo REST API Service", resp.Name)
	assert.Equal(t, "1.0", resp.Version)
	assert.Equal(t, "http://example.com/pets", resp.Paths)
}

func TestHealthCheck(t *testing.T) {
	api, store := setupTestAPI(t, testConfig())

	rr := doRequest(t, api, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"OK"}`, rr.Body.String())

	store.PingFunc = func(ctx context.Context) error { return errors.New("connection refused") }
	rr = doRequest(t, api, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.JSONEq(t, `{"status":"DOWN"}`, rr.Body.String())
}

func TestCreatePet(t *testing.T) {
	api, _ := setupTestAPI(t, testConfig())

	rr := doRequest(t, api, http.MethodPost, "/pets", petBody("fido", "dog"))
	require.Equal(t, http.StatusCreated, rr.Code)

	var pet core.Pet
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pet))
	assert.NotEmpty(t, pet.ID)
	assert.NotEmpty(t, pet.Rev)
	assert.Equal(t, "fido", pet.Name)
	assert.Equal(t, core.GenderMale, pet.Gender)
	assert.Equal(t, "http://example.com/pets/"+pet.ID, rr.Header().Get("Location"))
}

func TestCreatePet_ClientID(t *testing.T) {
	api, _ := setupTestAPI(t, testConfig())
	body := petBody("fido", "dog")
	body["_id"] = "fido-1"

	rr := doRequest(t, api, http.MethodPost, "/pets", body)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "http://example.com/pets/fido-1", rr.Header().Get("Location"))

	rr = doRequest(t, api, http.MethodPost, "/pets", body)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, decodeError(t, rr).Message, "fido-1")
}

func TestCreatePet_UnsupportedMediaType(t *testing.T) {
	api, _ := setupTestAPI(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/pets", strings.NewReader(`{"name":"fido"}`))
	req.Header.Set("Content-Type", "text/plain")
	rr := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
	resp := decodeError(t, rr)
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.Status)
	assert.Equal(t, "Unsupported Media Type", resp.Error)
}

func TestCreatePet_BadData(t *testing.T) {
	api, _ := setupTestAPI(t, testConfig())

	tests := []struct {
		name    string
		body    interface{}
		message string
	}{
		{"not an object", []string{"fido"}, "Invalid pet: body of request contained bad or no data"},
		{"missing category", map[string]interface{}{"name": "fido"}, "Invalid pet: missing category"},
		{"available not bool", func() map[string]interface{} {
			b := petBody("fido", "dog")
			b["available"] = "yes"
			return b
		}(), "Invalid type for boolean [available]: string"},
		{"bad gender", func() map[string]interface{} {
			b := petBody("fido", "dog")
			b["gender"] = "DRAGON"
			return b
		}(), "Invalid attribute: gender DRAGON"},
		{"empty name", petBody("", "dog"), "name attribute is not set"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, api, http.MethodPost, "/pets", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tt.message, decodeError(t, rr).Message)
		})
	}
}

func TestCreatePet_MalformedJSON(t *testing.T) {
	api, _ := setupTestAPI(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/pets", strings.NewReader(`{"name":`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreatePet_BodyTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.API.MaxBodyBytes = 16
	api, _ := setupTestAPI(t, cfg)

	rr := doRequest(t, api, http.MethodPost, "/pets", petBody("fido", "dog"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestGetPet(t *testing.T) {
	api, _ := setupTestAPI(t, testConfig())
	created := createPet(t, api, "fido", "dog")

	rr := doRequest(t, api, http.MethodGet, "/pets/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var pet core.Pet
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pet))
	assert.Equal(t, created.ID, pet.ID)
}

func TestGetPet_NotFound(t *testing.T) {
	api, _ := setupTestAPI(t, testConfig())

	rr := doRequest(t, api, http.MethodGet, "/pets/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	resp := decodeError(t, rr)
	assert.Equal(t, "Pet with id 'missing' was not found.", resp.Message)
	assert.Equal(t, "Not Found", resp.Error)
}

func TestUpdatePet(t *testing.T) {
	api, _ := setupTestAPI(t, testConfig())
	created := createPet(t, api, "fido", "dog")

	body := petBody("fido", "wolf")
	body["available"] = false
	rr := doRequest(t, api, http.MethodPut, "/pets/"+created.ID, body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var pet core.Pet
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pet))
	assert.Equal(t, created.ID, pet.ID)
	assert.Equal(t, "wolf", pet.Category)
	assert.False(t, pet.Available)
	assert.NotEqual(t, created.Rev, pet.Rev)
}

func TestUpdatePet_NotFound(t *testing.T) {
	api, _ := setupTestAPI(t, testConfig())

	rr := doRequest(t, api, http.MethodPut, "/pets/missing", petBody("fido", "dog"))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUpdatePet_StaleRevision(t *testing.T) {
	api, _ := setupTestAPI(t, testConfig())
	created := createPet(t, api, "fido", "dog")

	body := petBody("fido", "dog")
	body["_rev"] = "9-stale"
	rr := doRequest(t, api, http.MethodPut, "/pets/"+created.ID, body)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestDeletePet_IsIdempotent(t *testing.T) {
	api, _ := setupTestAPI(t, testConfig())
	created := createPet(t, api, "fido", "dog")

	rr := doRequest(t, api, http.MethodDelete, "/pets/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())

	rr = doRequest(t, api, http.MethodDelete, "/pets/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = doRequest(t, api, http.MethodGet, "/pets/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPurchasePet(t *testing.T) {
	api, _ := setupTestAPI(t, testConfig())
	created := createPet(t, api, "fido", "dog")

	rr := doRequest(t, api, http.MethodPut, "/pets/"+created.ID+"/purchase", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var pet core.Pet
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pet))
	assert.False(t, pet.Available)

	rr = doRequest(t, api, http.MethodPut, "/pets/"+created.ID+"/purchase", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "Pet with id '"+created.ID+"' is not available.", decodeError(t, rr).Message)

	rr = doRequest(t, api, http.MethodPut, "/pets/missing/purchase", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListPets_Filters(t *testing.T) {
	api, _ := setupTestAPI(t, testConfig())
	fido := createPet(t, api, "fido", "dog")
	createPet(t, api, "kitty", "cat")
	doRequest(t, api, http.MethodPut, "/pets/"+fido.ID+"/purchase", nil)

	tests := []struct {
		query string
		names []string
	}{
		{"", []string{"fido", "kitty"}},
		{"?category=cat", []string{"kitty"}},
		{"?name=fido", []string{"fido"}},
		{"?available=yes", []string{"kitty"}},
		{"?available=false", []string{"fido"}},
		{"?gender=male", []string{"fido", "kitty"}},
		{"?gender=female", []string{}},
		{"?category=dog&name=kitty", []string{"fido"}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := doRequest(t, api, http.MethodGet, "/pets"+tt.query, nil)
			require.Equal(t, http.StatusOK, rr.Code)

			var pets []core.Pet
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pets))
			names := make([]string, 0, len(pets))
			for _, p := range pets {
				names = append(names, p.Name)
			}
			assert.ElementsMatch(t, tt.names, names)
		})
	}
}

func TestListPets_EmptyIsArray(t *testing.T) {
	api, _ := setupTestAPI(t, testConfig())

	rr := doRequest(t, api, http.MethodGet, "/pets", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rr.Body.String()))
}

func TestListPets_BadGender(t *testing.T) {
	api, _ := setupTestAPI(t, testConfig())

	rr := doRequest(t, api, http.MethodGet, "/pets?gender=dragon", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRemoveAllPets(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		api, _ := setupTestAPI(t, testConfig())
		createPet(t, api, "fido", "dog")

		rr := doRequest(t, api, http.MethodDelete, "/pets", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
		assert.Equal(t, http.StatusMethodNotAllowed, decodeError(t, rr).Status)
	})

	t.Run("enabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.API.AllowReset = true
		api, store := setupTestAPI(t, cfg)
		createPet(t, api, "fido", "dog")

		rr := doRequest(t, api, http.MethodDelete, "/pets", nil)
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, 1, store.Calls("remove_all"))

		rr = doRequest(t, api, http.MethodGet, "/pets", nil)
		assert.Equal(t, "[]", strings.TrimSpace(rr.Body.String()))
	})
}

func TestStoreUnavailable(t *testing.T) {
	api, store := setupTestAPI(t, testConfig())
	store.GetFunc = func(ctx context.Context, id string) (*core.Pet, error) {
		return nil, core.NewDatabaseConnectionError("get failed after 10 attempts", errors.New("dial tcp 10.0.0.5:5984: connection refused"))
	}

	rr := doRequest(t, api, http.MethodGet, "/pets/p1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.NotContains(t, rr.Body.String(), "10.0.0.5")
}

func TestUnknownRoute(t *testing.T) {
	api, _ := setupTestAPI(t, testConfig())

	rr := doRequest(t, api, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}

func TestMetricsEndpoint(t *testing.T) {
	api, _ := setupTestAPI(t, testConfig())
	doRequest(t, api, http.MethodGet, "/pets", nil)

	rr := doRequest(t, api, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "petshop_http_requests_total")
}

func TestStop_IsIdempotent(t *testing.T) {
	api, _ := setupTestAPI(t, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, api.Stop(ctx))
	assert.NoError(t, api.Stop(ctx))
}
