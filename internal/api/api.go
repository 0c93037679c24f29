// ABOUTME: HTTP transport for the mesh, one route per hub operation
// ABOUTME: Thin echo handlers that bind, call a service, and map errors

package api

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/2389/agent-mesh/internal/auth"
	"github.com/2389/agent-mesh/internal/events"
	"github.com/2389/agent-mesh/internal/groups"
	"github.com/2389/agent-mesh/internal/memory"
	"github.com/2389/agent-mesh/internal/registry"
	"github.com/2389/agent-mesh/internal/router"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Handler wires every mesh service to its HTTP routes.
type Handler struct {
	registry *registry.Service
	router   *router.Service
	groups   *groups.Service
	memory   *memory.Service
	broker   *events.Broker
	tokens   *auth.JWTVerifier
	logger   *slog.Logger
}

// NewHandler creates the HTTP handler layer.
func NewHandler(reg *registry.Service, rtr *router.Service, grp *groups.Service, mem *memory.Service, broker *events.Broker, tokens *auth.JWTVerifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: reg,
		router:   rtr,
		groups:   grp,
		memory:   mem,
		broker:   broker,
		tokens:   tokens,
		logger:   logger.With("component", "api"),
	}
}

// NewServer builds an echo server with all routes registered. Every route
// except /healthz and the event stream sits behind the shared secret.
func (h *Handler) NewServer(secret string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())

	e.GET("/healthz", h.Health)

	// The event stream authenticates with a minted subscriber token
	// because WebSocket clients cannot always set headers.
	e.GET("/v1/events", h.StreamEvents)

	v1 := e.Group("/v1", auth.RequireSecret(secret))

	v1.POST("/agents/register", h.RegisterAgent)
	v1.GET("/agents", h.ListAgents)
	v1.GET("/agents/:agent_id", h.GetAgent)
	v1.POST("/agents/:agent_id/heartbeat", h.Heartbeat)
	v1.GET("/agents/:agent_id/skills", h.ListSkills)
	v1.POST("/agents/:agent_id/skills/:skill/invoke", h.InvokeSkill)

	v1.POST("/messages", h.SendMessage)
	v1.POST("/messages/broadcast", h.Broadcast)
	v1.GET("/agents/:agent_id/messages", h.GetMessages)
	v1.GET("/agents/:agent_id/messages/failed", h.ListFailedMessages)
	v1.POST("/messages/:message_id/read", h.MarkRead)
	v1.POST("/messages/:message_id/status", h.UpdateStatus)
	v1.POST("/messages/:message_id/retry", h.RetryMessage)

	v1.POST("/groups", h.CreateGroup)
	v1.GET("/groups", h.ListGroups)
	v1.GET("/groups/:group_id", h.GetGroup)
	v1.POST("/groups/:group_id/members", h.AddMember)
	v1.DELETE("/groups/:group_id/members/:agent_id", h.RemoveMember)
	v1.GET("/groups/:group_id/members", h.ListMembers)
	v1.GET("/agents/:agent_id/groups", h.ListAgentGroups)
	v1.POST("/groups/:group_id/broadcast", h.GroupBroadcast)

	v1.POST("/groups/:group_id/memory", h.WriteMemory)
	v1.GET("/groups/:group_id/memory", h.ReadMemory)
	v1.GET("/groups/:group_id/memory/:key", h.ReadMemoryKey)
	v1.DELETE("/groups/:group_id/memory/:key", h.DeleteMemory)
	v1.GET("/groups/:group_id/memory/:key/history", h.MemoryHistory)

	v1.POST("/events/token", h.MintSubscriberToken)

	return e
}

// Health returns liveness without requiring a credential.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": Version,
	})
}
