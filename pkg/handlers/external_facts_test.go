package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
	"github.com/ekaya-inc/ekaya-accounts/pkg/providers"
	"github.com/ekaya-inc/ekaya-accounts/pkg/services"
)

func newFactMux(facts *stubFactService, profiles *stubProfileService) *http.ServeMux {
	mux := http.NewServeMux()
	NewExternalFactHandler(facts, profiles, zap.NewNop()).RegisterRoutes(mux, noScope)
	return mux
}

func TestExternalFactHandler_Collect_InfoTypes(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		tasks []providers.Task
	}{
		{"empty body collects all", "", providers.AllTasks},
		{"all", `{"info_type":"all"}`, providers.AllTasks},
		{"news alias", `{"info_type":"news"}`, []providers.Task{providers.TaskNews}},
		{"market", `{"info_type":"market_info"}`, []providers.Task{providers.TaskMarketInfo}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := &stubFactService{}
			mux := newFactMux(facts, &stubProfileService{})

			path := "/api/accounts/" + uuid.NewString() + "/external-info"
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(tt.body)))

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.tasks, facts.collectedTasks)
		})
	}
}

func TestExternalFactHandler_Collect_UnknownInfoType(t *testing.T) {
	facts := &stubFactService{}
	mux := newFactMux(facts, &stubProfileService{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/accounts/"+uuid.NewString()+"/external-info",
		bytes.NewBufferString(`{"info_type":"weather"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_info_type")
	assert.Nil(t, facts.collectedTasks)
}

func TestExternalFactHandler_Collect_UnknownAccount(t *testing.T) {
	mux := newFactMux(&stubFactService{err: apperrors.ErrNotFound}, &stubProfileService{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/accounts/"+uuid.NewString()+"/external-info", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "account_not_found")
}

func TestExternalFactHandler_ListEmpty(t *testing.T) {
	mux := newFactMux(&stubFactService{}, &stubProfileService{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/accounts/"+uuid.NewString()+"/external-info", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"external_info":[]`)
	assert.Contains(t, rec.Body.String(), `"total":0`)
}

func TestExternalFactHandler_Upsert(t *testing.T) {
	facts := &stubFactService{}
	mux := newFactMux(facts, &stubProfileService{})

	body := `{"info_type":"company_profile","content":{"industry":"Robotics"},"source_url":"https://acme.example"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/accounts/"+uuid.NewString()+"/external-info",
		bytes.NewBufferString(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, facts.upserted)
	assert.Equal(t, models.FactTypeCompanyProfile, facts.upserted.FactType)
	assert.JSONEq(t, `{"industry":"Robotics"}`, string(facts.upserted.Content))
	assert.Equal(t, "https://acme.example", facts.upserted.SourceURL)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/accounts/"+uuid.NewString()+"/external-info",
		bytes.NewBufferString(`{"info_type":"gossip","content":{}}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExternalFactHandler_ProfileLifecycle(t *testing.T) {
	profiles := &stubProfileService{}
	mux := newFactMux(&stubFactService{}, profiles)
	base := "/api/accounts/" + uuid.NewString() + "/customer-profile"

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, base, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got services.CustomerProfile
	decodeData(t, rec, &got)
	assert.False(t, got.Exists)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, base+"/generate", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &got)
	assert.Contains(t, got.Profile, "# Customer Profile Analysis Report")
	assert.Empty(t, profiles.saved, "generate does not store")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, base,
		bytes.NewBufferString(`{"customer_profile":"Edited profile"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Edited profile", profiles.saved)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, base, nil))
	decodeData(t, rec, &got)
	assert.True(t, got.Exists)
	assert.Equal(t, "Edited profile", got.Profile)
}

func TestExternalFactHandler_ProfileFailure(t *testing.T) {
	mux := newFactMux(&stubFactService{}, &stubProfileService{err: errors.New("pool exhausted")})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/accounts/"+uuid.NewString()+"/customer-profile/generate", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "generate_customer_profile_failed")
}

func TestExternalFactHandler_Delete(t *testing.T) {
	facts := &stubFactService{}
	mux := newFactMux(facts, &stubProfileService{})
	path := "/api/accounts/" + uuid.NewString() + "/external-info/news"

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, path, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "External info deleted")
	assert.Equal(t, []models.FactType{models.FactTypeNews}, facts.deleted)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, path, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "fact_not_found")
}

func TestExternalFactHandler_Delete_UnknownType(t *testing.T) {
	mux := newFactMux(&stubFactService{}, &stubProfileService{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete,
		"/api/accounts/"+uuid.NewString()+"/external-info/weather", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
