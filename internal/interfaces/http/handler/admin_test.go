package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	admissionapp "github.com/concierge/gateway/internal/application/admission"
	directoryapp "github.com/concierge/gateway/internal/application/directory"
	"github.com/concierge/gateway/internal/domain/billing"
	"github.com/concierge/gateway/internal/domain/directory"
	"github.com/concierge/gateway/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type adminFixture struct {
	router   *gin.Engine
	cache    *directoryapp.Cache
	usage    *fakeUsageRepo
	tenantID uuid.UUID
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, dto.RegisterValidators())

	tenantID := uuid.New()
	profiles := &fakeProfileRepo{profiles: map[uuid.UUID]*directory.TenantProfile{
		tenantID: {
			TenantID:    tenantID,
			DisplayName: "Le Bistro",
			PlanID:      "pro",
			Status:      directory.TenantStatusActive,
		},
	}}
	cache := directoryapp.NewCache(&fakeBindingRepo{bindings: make(map[string]*directory.TenantBinding)}, profiles, zap.NewNop())

	usage := &fakeUsageRepo{counters: make(map[string]int64)}
	admission := admissionapp.NewController(usage, &fakePolicyRepo{}, &fakeOverageSink{}, zap.NewNop(), nil)

	h := NewAdminHandler(cache, admission)
	router := gin.New()
	router.POST("/admin/bindings", h.RegisterBinding)
	router.DELETE("/admin/bindings", h.ReleaseBinding)
	router.GET("/admin/directory", h.GetDirectory)
	router.POST("/admin/directory/refresh", h.RefreshDirectory)
	router.GET("/admin/tenants/:id/usage", h.GetTenantUsage)

	return &adminFixture{router: router, cache: cache, usage: usage, tenantID: tenantID}
}

func (f *adminFixture) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestAdminHandler_Bindings(t *testing.T) {
	t.Run("registers a binding and resolves immediately", func(t *testing.T) {
		f := newAdminFixture(t)

		w := f.request(t, http.MethodPost, "/admin/bindings", dto.RegisterBindingRequest{
			TenantID: f.tenantID.String(),
			Address:  "+33 9 39 24 02 69",
			Kind:     "voice",
		})
		require.Equal(t, http.StatusCreated, w.Code)

		var binding dto.BindingResponse
		decodeResponse(t, w, &binding)
		assert.Equal(t, "+33939240269", binding.Address, "stored in canonical form")
		assert.Equal(t, f.tenantID.String(), binding.TenantID)

		entry, err := f.cache.Resolve("+33939240269", directory.ChannelVoice)
		require.NoError(t, err)
		assert.Equal(t, f.tenantID, entry.Profile.TenantID)
	})

	t.Run("unknown tenant is rejected", func(t *testing.T) {
		f := newAdminFixture(t)

		w := f.request(t, http.MethodPost, "/admin/bindings", dto.RegisterBindingRequest{
			TenantID: uuid.NewString(),
			Address:  "+33939240269",
			Kind:     "voice",
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed address is rejected at binding", func(t *testing.T) {
		f := newAdminFixture(t)

		w := f.request(t, http.MethodPost, "/admin/bindings", dto.RegisterBindingRequest{
			TenantID: f.tenantID.String(),
			Address:  "!!not-an-address!!",
			Kind:     "voice",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("duplicate registration conflicts", func(t *testing.T) {
		f := newAdminFixture(t)

		body := dto.RegisterBindingRequest{
			TenantID: f.tenantID.String(),
			Address:  "+33939240269",
			Kind:     "voice",
		}
		require.Equal(t, http.StatusCreated, f.request(t, http.MethodPost, "/admin/bindings", body).Code)
		assert.Equal(t, http.StatusConflict, f.request(t, http.MethodPost, "/admin/bindings", body).Code)
	})

	t.Run("release withdraws the address", func(t *testing.T) {
		f := newAdminFixture(t)

		require.Equal(t, http.StatusCreated, f.request(t, http.MethodPost, "/admin/bindings", dto.RegisterBindingRequest{
			TenantID: f.tenantID.String(),
			Address:  "+33939240269",
			Kind:     "voice",
		}).Code)

		w := f.request(t, http.MethodDelete, "/admin/bindings", dto.ReleaseBindingRequest{
			Address: "+33939240269",
			Kind:    "voice",
		})
		assert.Equal(t, http.StatusNoContent, w.Code)

		_, err := f.cache.Resolve("+33939240269", directory.ChannelVoice)
		assert.Error(t, err)
	})

	t.Run("releasing an unbound address is not found", func(t *testing.T) {
		f := newAdminFixture(t)

		w := f.request(t, http.MethodDelete, "/admin/bindings", dto.ReleaseBindingRequest{
			Address: "+33999999999",
			Kind:    "voice",
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAdminHandler_Directory(t *testing.T) {
	f := newAdminFixture(t)

	require.Equal(t, http.StatusCreated, f.request(t, http.MethodPost, "/admin/bindings", dto.RegisterBindingRequest{
		TenantID: f.tenantID.String(),
		Address:  "+33939240269",
		Kind:     "voice",
	}).Code)

	w := f.request(t, http.MethodGet, "/admin/directory", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var dirResp dto.DirectoryResponse
	decodeResponse(t, w, &dirResp)
	require.Len(t, dirResp.Entries, 1)
	assert.Equal(t, "+33939240269", dirResp.Entries[0].Address)
	assert.Equal(t, f.tenantID.String(), dirResp.Entries[0].TenantID)

	w = f.request(t, http.MethodPost, "/admin/directory/refresh", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminHandler_GetTenantUsage(t *testing.T) {
	f := newAdminFixture(t)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()

	_, err := f.usage.Increment(ctx, f.tenantID, billing.ResourceAIInteractions, billing.CurrentPeriod(time.Now()), 7)
	require.NoError(t, err)

	w := f.request(t, http.MethodGet, "/admin/tenants/"+f.tenantID.String()+"/usage", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var usageResp dto.UsageResponse
	decodeResponse(t, w, &usageResp)
	assert.Equal(t, f.tenantID.String(), usageResp.TenantID)
	require.Len(t, usageResp.Counters, 1)
	assert.Equal(t, string(billing.ResourceAIInteractions), usageResp.Counters[0].Resource)
	assert.Equal(t, int64(7), usageResp.Counters[0].Used)

	t.Run("bad tenant id", func(t *testing.T) {
		w := f.request(t, http.MethodGet, "/admin/tenants/not-a-uuid/usage", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
