package http

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/moonbridge/internal/api/middleware"
	"github.com/GriffinCanCode/moonbridge/internal/browser"
	"github.com/GriffinCanCode/moonbridge/internal/host"
	"github.com/GriffinCanCode/moonbridge/internal/shared/types"
	"github.com/GriffinCanCode/moonbridge/internal/shared/utils"
	"github.com/GriffinCanCode/moonbridge/internal/surface"
)

// Host is what the handlers need from a running plugin instance.
type Host interface {
	Surface() *surface.Surface
	Page() *browser.Page
	Classes() []string
	Resolve(name string) (*surface.TypeDescriptor, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	host    Host
	logger  *zap.Logger
	started time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(h Host, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		host:    h,
		logger:  logger.Named("api"),
		started: time.Now(),
	}
}

// Health reports surface state. A failed or closed surface answers 503.
func (h *Handlers) Health(c *gin.Context) {
	s := h.host.Surface()
	status := types.Health{
		Status:     "healthy",
		SurfaceID:  s.ID().String(),
		Types:      s.Len(),
		Classes:    len(h.host.Classes()),
		Closed:     s.Closed(),
		HTMLAccess: h.host.Page().IsEnabled(),
		StartedAt:  h.started,
	}
	code := http.StatusOK
	if err := s.Err(); err != nil {
		status.Status = "failed"
		status.Error = err.Error()
		code = http.StatusServiceUnavailable
	} else if status.Closed {
		status.Status = "closed"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// ListTypes lists registered classes in registration order
func (h *Handlers) ListTypes(c *gin.Context) {
	descs := h.host.Surface().Descriptors()
	out := make([]types.TypeInfo, 0, len(descs))
	for _, td := range descs {
		out = append(out, typeInfo(td))
	}
	c.JSON(http.StatusOK, types.TypeList{Types: out, Count: len(out)})
}

// GetType returns one registered class with its ancestry
func (h *Handlers) GetType(c *gin.Context) {
	name := c.Param("name")
	if err := utils.ValidateClassName(name, "name"); err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}

	s := h.host.Surface()
	td, ok := s.LookupName(name)
	if !ok {
		h.fail(c, http.StatusNotFound, surface.ErrNotRegistered)
		return
	}
	detail, err := typeDetail(s, td)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// ListClasses lists the class names the host can resolve
func (h *Handlers) ListClasses(c *gin.Context) {
	c.JSON(http.StatusOK, types.ClassList{Classes: h.host.Classes()})
}

// ResolveType resolves a catalog class, registering it and its ancestors
// with the engine when needed.
func (h *Handlers) ResolveType(c *gin.Context) {
	var req types.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if err := utils.ValidateClassName(req.Name, "name"); err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}

	td, err := h.host.Resolve(req.Name)
	if err != nil {
		h.fail(c, resolveStatus(err), err)
		return
	}
	detail, err := typeDetail(h.host.Surface(), td)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}

	h.logger.Debug("type resolved via api",
		zap.String("type", td.Name()),
		zap.Int32("native_handle", int32(td.NativeHandle)),
		zap.String("request_id", middleware.GetRequestID(c)),
	)
	c.JSON(http.StatusOK, detail)
}

// ListScriptable lists scriptable object keys and createable aliases
func (h *Handlers) ListScriptable(c *gin.Context) {
	page := h.host.Page()
	aliases := make([]string, 0)
	for alias := range page.CreateableTypes() {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	objects := page.ScriptableObjects()
	if objects == nil {
		objects = []string{}
	}
	c.JSON(http.StatusOK, types.Scriptable{Objects: objects, Createable: aliases})
}

// GetNavigation returns the navigation journal state of the page
func (h *Handlers) GetNavigation(c *gin.Context) {
	state, err := h.host.Page().NavigationState()
	if err != nil {
		h.fail(c, pageStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, types.Navigation{State: state})
}

// SetNavigation stores a navigation journal state in the page
func (h *Handlers) SetNavigation(c *gin.Context) {
	var req types.Navigation
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	page := h.host.Page()
	if err := page.SetNavigationState(req.State); err != nil {
		h.fail(c, pageStatus(err), err)
		return
	}
	state, err := page.NavigationState()
	if err != nil {
		h.fail(c, pageStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, types.Navigation{State: state})
}

func (h *Handlers) fail(c *gin.Context, code int, err error) {
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(code, types.ErrorResponse{
		Error:     err.Error(),
		RequestID: middleware.GetRequestID(c),
	})
}

func resolveStatus(err error) int {
	switch {
	case errors.Is(err, host.ErrUnknownClass):
		return http.StatusNotFound
	case errors.Is(err, surface.ErrSurfaceClosed), errors.Is(err, surface.ErrSurfaceFailed),
		errors.Is(err, surface.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, surface.ErrNativeRegistration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func pageStatus(err error) int {
	switch {
	case errors.Is(err, browser.ErrHTMLAccessDisabled):
		return http.StatusForbidden
	case errors.Is(err, browser.ErrMissingHistoryFrame):
		return http.StatusPreconditionFailed
	case errors.Is(err, browser.ErrPageClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func typeInfo(td *surface.TypeDescriptor) types.TypeInfo {
	info := types.TypeInfo{
		Name:         td.Name(),
		NativeHandle: int32(td.NativeHandle),
		ParentHandle: int32(td.ParentHandle()),
	}
	if td.Parent != nil {
		info.Parent = td.Parent.Name()
	}
	return info
}

func typeDetail(s *surface.Surface, td *surface.TypeDescriptor) (types.TypeDetail, error) {
	chain, err := s.Chain(td.Class)
	if err != nil {
		return types.TypeDetail{}, err
	}
	names := make([]string, len(chain))
	for i, d := range chain {
		names[i] = d.Name()
	}
	return types.TypeDetail{TypeInfo: typeInfo(td), Chain: names}, nil
}
