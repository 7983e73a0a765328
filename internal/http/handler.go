package http

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"go.ngs.io/elevation-api/internal/domain"
)

// ElevationService is the part of elevation.Service the handlers use.
type ElevationService interface {
	Height(ref domain.Reference, lon, lat float64) (float64, bool)
	AddDemDirectory(dir string) bool
	SetGeoid(path string) bool
	SetDefaultHeight(height float64)
	DefaultHeight() float64
	ClearAll()
	Reload()
	GetDemDirectories() []string
	GetGeoidPath() string
}

// errRegistrationDisabled is returned for source registration requests when
// no source root is configured.
var errRegistrationDisabled = errors.New("source registration is disabled")

// Handler handles HTTP requests for elevation lookups.
type Handler struct {
	svc ElevationService
	// sourceRoot bounds the paths clients may register. Empty disables
	// registration.
	sourceRoot string
}

// NewHandler creates a new HTTP handler. Registration requests may only
// name paths below sourceRoot; an empty sourceRoot rejects them all.
func NewHandler(svc ElevationService, sourceRoot string) *Handler {
	if sourceRoot != "" {
		sourceRoot = filepath.Clean(sourceRoot)
	}
	return &Handler{svc: svc, sourceRoot: sourceRoot}
}

// sourcePath resolves p against the source root. Relative paths are taken
// from the root. Paths that leave the root are rejected.
func (h *Handler) sourcePath(p string) (string, error) {
	if h.sourceRoot == "" {
		return "", errRegistrationDisabled
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(h.sourceRoot, p)
	}
	p = filepath.Clean(p)
	rel, err := filepath.Rel(h.sourceRoot, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the source root", p)
	}
	return p, nil
}

// bindSourcePath binds a PathRequest and resolves its path. It writes the
// error response and returns false on failure.
func (h *Handler) bindSourcePath(c *gin.Context) (string, bool) {
	var req PathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
		return "", false
	}
	p, err := h.sourcePath(req.Path)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return "", false
	}
	return p, true
}

// ElevationResponse is the response for a single elevation lookup.
type ElevationResponse struct {
	Lat       float64          `json:"lat"`
	Lon       float64          `json:"lon"`
	Reference domain.Reference `json:"reference"`
	HeightM   float64          `json:"height_m"`
	// Found is false when HeightM is a fallback value.
	Found bool `json:"found"`
}

// SourcesResponse describes the registered elevation sources.
type SourcesResponse struct {
	DemDirectories []string `json:"dem_directories"`
	GeoidPath      string   `json:"geoid_path,omitempty"`
	DefaultHeightM float64  `json:"default_height_m"`
}

// PathRequest is the body of source registration requests.
type PathRequest struct {
	Path string `json:"path" binding:"required"`
}

// DefaultHeightRequest is the body of PUT /v1/default-height.
type DefaultHeightRequest struct {
	HeightM *float64 `json:"height_m" binding:"required"`
}

// GetElevation handles GET /v1/elevation.
func (h *Handler) GetElevation(c *gin.Context) {
	latStr := c.Query("lat")
	lonStr := c.Query("lon")
	if latStr == "" || lonStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon parameters are required"})
		return
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid latitude: %v", err)})
		return
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid longitude: %v", err)})
		return
	}
	if lat < -90 || lat > 90 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("latitude %.6f outside [-90, 90]", lat)})
		return
	}
	if lon < -180 || lon > 360 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("longitude %.6f outside [-180, 360]", lon)})
		return
	}

	ref, err := domain.ParseReference(c.Query("reference"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	height, found := h.svc.Height(ref, lon, lat)
	c.JSON(http.StatusOK, ElevationResponse{
		Lat:       lat,
		Lon:       lon,
		Reference: ref,
		HeightM:   height,
		Found:     found,
	})
}

// GetSources handles GET /v1/sources.
func (h *Handler) GetSources(c *gin.Context) {
	c.JSON(http.StatusOK, h.sources())
}

// AddDemDirectory handles POST /v1/sources/dem.
func (h *Handler) AddDemDirectory(c *gin.Context) {
	dir, ok := h.bindSourcePath(c)
	if !ok {
		return
	}
	if !h.svc.AddDemDirectory(dir) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": fmt.Sprintf("no readable DEM tiles in %s", dir)})
		return
	}
	c.JSON(http.StatusOK, h.sources())
}

// SetGeoid handles PUT /v1/sources/geoid.
func (h *Handler) SetGeoid(c *gin.Context) {
	path, ok := h.bindSourcePath(c)
	if !ok {
		return
	}
	if !h.svc.SetGeoid(path) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": fmt.Sprintf("geoid %s could not be opened or has no projection", path)})
		return
	}
	c.JSON(http.StatusOK, h.sources())
}

// SetDefaultHeight handles PUT /v1/default-height.
func (h *Handler) SetDefaultHeight(c *gin.Context) {
	var req DefaultHeightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
		return
	}
	h.svc.SetDefaultHeight(*req.HeightM)
	c.JSON(http.StatusOK, h.sources())
}

// ClearSources handles DELETE /v1/sources.
func (h *Handler) ClearSources(c *gin.Context) {
	h.svc.ClearAll()
	c.JSON(http.StatusOK, h.sources())
}

// Reload handles POST /v1/reload.
func (h *Handler) Reload(c *gin.Context) {
	h.svc.Reload()
	c.JSON(http.StatusOK, h.sources())
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) sources() SourcesResponse {
	dirs := h.svc.GetDemDirectories()
	if dirs == nil {
		dirs = []string{}
	}
	return SourcesResponse{
		DemDirectories: dirs,
		GeoidPath:      h.svc.GetGeoidPath(),
		DefaultHeightM: h.svc.DefaultHeight(),
	}
}
