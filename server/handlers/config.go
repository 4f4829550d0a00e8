package handlers

import "net/http"

// ConfigHandler serves the running configuration as YAML. Target header
// values and push URL credentials are replaced by "REDACTED".
type ConfigHandler struct {
	provider ConfigProvider
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(provider ConfigProvider) *ConfigHandler {
	return &ConfigHandler{provider: provider}
}

// ServeHTTP implements http.Handler.
func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeYAML(w, http.StatusOK, h.provider.Config().Redacted())
}
