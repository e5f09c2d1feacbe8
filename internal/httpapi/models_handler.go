package httpapi

import (
	"net/http"
	"strings"

	"github.com/samber/lo"

	"cyris/internal/auth"
	"cyris/internal/models"
	"cyris/internal/utils"
)

// ModelResponse is one entry of the model picker
type ModelResponse struct {
	models.AIModel
	Autopick bool `json:"autopick"`
}

// GenerateImageRequest is the body of POST /api/generate-image
type GenerateImageRequest struct {
	Prompt string `json:"prompt"`
}

// GenerateImageResponse carries the generated image location
type GenerateImageResponse struct {
	ImageURL string `json:"imageUrl"`
}

// GuestSessionResponse carries a fresh guest session token
type GuestSessionResponse struct {
	GuestToken string `json:"guestToken"`
}

// handleListModels handles GET /api/models
func (d *Dependencies) handleListModels(w http.ResponseWriter, r *http.Request) {
	list := lo.Map(d.Registry.All(), func(m models.AIModel, _ int) ModelResponse {
		return ModelResponse{AIModel: m, Autopick: !m.ImageOnly}
	})
	utils.RespondWithJSON(w, http.StatusOK, list)
}

// handleGenerateImage handles POST /api/generate-image using the caller's
// own OpenAI key
func (d *Dependencies) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	var req GenerateImageRequest
	if err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Prompt is required")
		return
	}
	apiKey := strings.TrimSpace(r.Header.Get(ImageKeyHeader))
	if apiKey == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "An OpenAI API key is required")
		return
	}
	if d.Images == nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to generate image")
		return
	}

	url, err := d.Images.Generate(r.Context(), apiKey, req.Prompt)
	if err != nil || url == "" {
		d.log().Warn("Image generation failed", "error", err)
		d.Metrics.RecordUpstreamFailure("image")
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to generate image")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, GenerateImageResponse{ImageURL: url})
}

// handleNewGuestSession handles POST /api/guest-session
func (d *Dependencies) handleNewGuestSession(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, GuestSessionResponse{GuestToken: auth.NewGuestToken()})
}

// handleHealth handles GET /health
func (d *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{}
	healthy := true
	for name, check := range d.HealthChecks {
		if err := check(r); err != nil {
			d.log().Warn("Health check failed", "service", name, "error", err)
			status[name] = "unavailable"
			healthy = false
			continue
		}
		status[name] = "ok"
	}

	if !healthy {
		utils.RespondWithJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "services": status})
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{"status": "ok", "services": status})
}
