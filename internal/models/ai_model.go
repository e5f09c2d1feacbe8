package models

// AIModel is one entry of the model registry shown in the model picker.
type AIModel struct {
	ID       string `json:"id" toml:"id"`
	Name     string `json:"name" toml:"name"`
	LogoPath string `json:"logoPath" toml:"logo_path"`

	// ImageOnly models generate images and are never eligible for autopick.
	ImageOnly bool `json:"imageOnly" toml:"image_only"`
}

// DefaultAIModels is the registry used when no models file is configured.
func DefaultAIModels() []AIModel {
	return []AIModel{
		{
			ID:       "meta-llama/llama-4-scout",
			Name:     "Llama 4 Scout",
			LogoPath: "/assets/meta.svg",
		},
		{
			ID:       "openai/gpt-4o-mini",
			Name:     "GPT-4o Mini",
			LogoPath: "/assets/gpt.png",
		},
		{
			ID:       "google/gemini-2.5-flash-preview-05-20",
			Name:     "Gemini 2.5 Flash (05-20)",
			LogoPath: "/assets/gemini.png",
		},
		{
			ID:        "openai/gpt-image-1",
			Name:      "GPT-Image-1",
			LogoPath:  "/assets/gpt.png",
			ImageOnly: true,
		},
	}
}
