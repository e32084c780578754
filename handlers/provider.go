package handlers

import (
	"net/http"
	"strconv"

	"swiftaid/models"
	"swiftaid/services/matching"
	"swiftaid/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ProviderHandler exposes read-only candidate ranking to the app.
type ProviderHandler struct {
	Matching matching.MatchingService
	Logger   *zap.Logger
}

// NewProviderHandler creates a ProviderHandler.
func NewProviderHandler(m matching.MatchingService, logger *zap.Logger) *ProviderHandler {
	return &ProviderHandler{Matching: m, Logger: logger}
}

// RankCandidates handles GET /api/providers/candidates. An empty list is a
// normal response, not an error.
func (h *ProviderHandler) RankCandidates(c *gin.Context) {
	categoryID := c.Query("categoryId")
	if categoryID == "" {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", "categoryId is required")
		return
	}

	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	if errLon != nil || errLat != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", "lon and lat must be numbers")
		return
	}
	urgency, _ := strconv.Atoi(c.DefaultQuery("urgency", "0"))

	location := models.GeoPoint{Type: "Point", Coordinates: []float64{lon, lat}}
	candidates, err := h.Matching.RankCandidates(c.Request.Context(), categoryID, location, urgency)
	if err != nil {
		h.Logger.Error("candidate ranking failed", zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, "failed to rank candidates", "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"candidates": candidates})
}
