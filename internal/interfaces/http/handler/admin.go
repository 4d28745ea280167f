package handler

import (
	"github.com/concierge/gateway/internal/application/admission"
	directoryapp "github.com/concierge/gateway/internal/application/directory"
	"github.com/concierge/gateway/internal/domain/directory"
	"github.com/concierge/gateway/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AdminHandler serves the back-office provisioning and introspection API
type AdminHandler struct {
	BaseHandler
	cache     *directoryapp.Cache
	admission *admission.Controller
}

// NewAdminHandler creates an admin handler
func NewAdminHandler(cache *directoryapp.Cache, controller *admission.Controller) *AdminHandler {
	return &AdminHandler{cache: cache, admission: controller}
}

// RegisterBinding provisions a channel address for a tenant
// POST /admin/bindings
func (h *AdminHandler) RegisterBinding(c *gin.Context) {
	var req dto.RegisterBindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid binding request: "+err.Error())
		return
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	binding, err := h.cache.Register(c.Request.Context(), req.Address, directory.ChannelKind(req.Kind), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, dto.BindingResponse{
		Address:   binding.ChannelAddress,
		Kind:      string(binding.ChannelKind),
		TenantID:  binding.TenantID.String(),
		Status:    string(binding.Status),
		CreatedAt: binding.CreatedAt,
	})
}

// ReleaseBinding withdraws a channel address from service
// DELETE /admin/bindings
func (h *AdminHandler) ReleaseBinding(c *gin.Context) {
	var req dto.ReleaseBindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid release request: "+err.Error())
		return
	}

	if err := h.cache.Release(c.Request.Context(), req.Address, directory.ChannelKind(req.Kind)); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// RefreshDirectory rebuilds the directory snapshot from the store
// POST /admin/directory/refresh
func (h *AdminHandler) RefreshDirectory(c *gin.Context) {
	if err := h.cache.Refresh(c.Request.Context()); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"built_at": h.cache.BuiltAt()})
}

// GetDirectory returns the current directory snapshot
// GET /admin/directory
func (h *AdminHandler) GetDirectory(c *gin.Context) {
	entries := h.cache.Entries()
	resp := dto.DirectoryResponse{
		BuiltAt: h.cache.BuiltAt(),
		Entries: make([]dto.DirectoryEntry, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, dto.DirectoryEntry{
			Address:  e.Binding.ChannelAddress,
			Kind:     string(e.Binding.ChannelKind),
			TenantID: e.Binding.TenantID.String(),
		})
	}
	h.Success(c, resp)
}

// GetTenantUsage reports a tenant's consumption for the current period
// GET /admin/tenants/:id/usage
func (h *AdminHandler) GetTenantUsage(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	counters, period, err := h.admission.Usage(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := dto.UsageResponse{
		TenantID: tenantID.String(),
		Period:   string(period),
		Counters: make([]dto.UsageCounter, 0, len(counters)),
	}
	for _, counter := range counters {
		resp.Counters = append(resp.Counters, dto.UsageCounter{
			Resource:  string(counter.Resource),
			Used:      counter.Used,
			UpdatedAt: counter.UpdatedAt,
		})
	}
	h.Success(c, resp)
}
