package endpoints

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/lectern-dev/lectern/internal/api"
	"github.com/lectern-dev/lectern/internal/defra"
	"github.com/lectern-dev/lectern/internal/svcctx"
)

// HealthResponse is shared by /health and /ready.
type HealthResponse struct {
	Status string `json:"status"`
	Defra  string `json:"defra,omitempty"`
}

// defraState checks the DefraDB client wired into the request context.
// The bool reports whether it is usable.
func defraState(ctx context.Context) (string, bool) {
	client := svcctx.DefraClientFrom(ctx)
	if client == nil {
		return "not_initialized", false
	}
	if err := client.HealthCheck(ctx); err != nil {
		return "unhealthy", false
	}
	return "ok", true
}

// HealthEndpoint handles GET /health: liveness only, no dependencies.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresInit() bool { return false }

func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp HealthResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			fmt.Printf("Status: %s\n", resp.Status)
			return nil
		},
	}
}

// ReadyEndpoint handles GET /ready: liveness plus a DefraDB check.
type ReadyEndpoint struct{}

func (e *ReadyEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/ready", e.handler
}

func (e *ReadyEndpoint) RequiresInit() bool { return false }

func (e *ReadyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	state, ok := defraState(r.Context())
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Defra: state})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Defra: state})
}

func (e *ReadyEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Check server readiness (includes DefraDB)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp HealthResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), "/ready", &resp); err != nil {
				return err
			}
			fmt.Printf("Status: %s\n", resp.Status)
			if resp.Defra != "" {
				fmt.Printf("Defra:  %s\n", resp.Defra)
			}
			return nil
		},
	}
}

// StatusResponse is the detailed status body for /api/status.
type StatusResponse struct {
	Server    string          `json:"server"`
	Providers ProvidersStatus `json:"providers"`
	Defra     DefraStatus     `json:"defra"`
}

type ProvidersStatus struct {
	LLM []string `json:"llm"`
}

type DefraStatus struct {
	Container string `json:"container"`
	Health    string `json:"health"`
	URL       string `json:"url"`
}

// StatusEndpoint handles GET /api/status. DefraManager is injected by
// the server because the container lifecycle lives outside Services.
type StatusEndpoint struct {
	DefraManager *defra.DockerManager
}

func (e *StatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/status", e.handler
}

func (e *StatusEndpoint) RequiresInit() bool { return false }

func (e *StatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Server: "running"}

	if registry := svcctx.RegistryFrom(r.Context()); registry != nil {
		resp.Providers.LLM = registry.ListLLM()
	}

	resp.Defra = e.defraStatus(r.Context())
	writeJSON(w, http.StatusOK, resp)
}

func (e *StatusEndpoint) defraStatus(ctx context.Context) DefraStatus {
	ds := DefraStatus{Container: "not_initialized"}

	if e.DefraManager != nil {
		ds.URL = e.DefraManager.URL()
		if status, err := e.DefraManager.Status(ctx); err != nil {
			ds.Container = "error"
		} else {
			ds.Container = string(status)
		}
	}

	switch state, ok := defraState(ctx); {
	case ok:
		ds.Health = "healthy"
	case state == "not_initialized":
		ds.Health = state
	default:
		ds.Health = "unhealthy"
	}
	return ds
}

func (e *StatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get detailed server status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp StatusResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), "/api/status", &resp); err != nil {
				return err
			}
			fmt.Printf("Server: %s\n", resp.Server)
			fmt.Printf("Defra:\n")
			fmt.Printf("  Container: %s\n", resp.Defra.Container)
			fmt.Printf("  Health:    %s\n", resp.Defra.Health)
			fmt.Printf("  URL:       %s\n", resp.Defra.URL)
			fmt.Printf("Providers:\n")
			fmt.Printf("  LLM: %v\n", resp.Providers.LLM)
			return nil
		},
	}
}
