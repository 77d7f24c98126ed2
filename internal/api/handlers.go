package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"erek/internal/auth"
	"erek/internal/service/chat"
	"erek/internal/service/turn"
)

const keepAliveInterval = 20 * time.Second

// Handler wires HTTP routes to the chat store and the turn pipeline.
type Handler struct {
	store       *chat.Service
	auth        *auth.Service
	turns       *turn.Service
	adminSecret string
}

// NewHandler constructs a Handler instance.
func NewHandler(store *chat.Service, authService *auth.Service, turns *turn.Service, adminSecret string) *Handler {
	return &Handler{
		store:       store,
		auth:        authService,
		turns:       turns,
		adminSecret: adminSecret,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/auth/signup", h.signup)
	api.POST("/auth/login", h.login)
	api.POST("/auth/logout", h.logout)

	optional := h.auth.OptionalMiddleware()
	api.POST("/chat", optional, h.postChat)
	api.GET("/sessions", optional, h.listSessions)
	api.GET("/sessions/:id/messages", optional, h.getSessionMessages)
	api.PATCH("/sessions/:id", optional, h.updateSession)
	api.DELETE("/sessions/:id", optional, h.deleteSession)

	admin := api.Group("/admin")
	admin.Use(auth.AdminMiddleware(h.adminSecret))
	admin.GET("/sessions", h.adminListSessions)
	admin.GET("/sessions/:id/messages", h.adminSessionMessages)
	admin.DELETE("/sessions/:id", h.adminDeleteSession)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *Handler) signup(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.store.RegisterUser(c.Request.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		if errors.Is(err, chat.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}
	authToken, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	h.setAuthCookie(c, authToken)
	c.JSON(http.StatusCreated, gin.H{
		"id":         user.ID,
		"email":      user.Email,
		"name":       user.Name,
		"auth_token": authToken,
	})
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.store.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	authToken, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	h.setAuthCookie(c, authToken)
	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"email":      user.Email,
		"name":       user.Name,
		"auth_token": authToken,
	})
}

func (h *Handler) logout(c *gin.Context) {
	if token, err := c.Cookie(h.auth.AuthCookieName()); err == nil && token != "" {
		_ = h.auth.RevokeToken(c.Request.Context(), token)
	}
	h.clearAuthCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

type chatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Stream    *bool  `json:"stream"`
}

func (h *Handler) postChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	ownerID := auth.UserIDFromContext(c)

	if req.Stream != nil && !*req.Stream {
		result, err := h.turns.Run(c.Request.Context(), ownerID, req.SessionID, req.Message)
		if err != nil {
			var turnErr *turn.Error
			if errors.As(err, &turnErr) {
				c.JSON(errStatus(turnErr.Event.Code), turnErr.Event)
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	h.streamChat(c, ownerID, req.SessionID, req.Message)
}

func (h *Handler) streamChat(c *gin.Context, ownerID *string, sessionID, message string) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	sendEvent := func(event string, payload interface{}) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	ctx := c.Request.Context()
	events := h.turns.Stream(ctx, ownerID, sessionID, message)
	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			switch {
			case ev.Done != nil:
				_ = sendEvent("done", ev.Done)
				return
			case ev.Err != nil:
				_ = sendEvent("error", ev.Err)
				return
			default:
				if err := sendEvent("chunk", gin.H{"chunk": ev.Chunk}); err != nil {
					return
				}
			}
		case <-keepAlive.C:
			// comment line keeps proxies from dropping an idle stream
			if _, err := fmt.Fprint(c.Writer, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) listSessions(c *gin.Context) {
	ownerID := auth.UserIDFromContext(c)
	sessions, err := h.store.ListSessionsForOwner(c.Request.Context(), ownerID, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list sessions failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) getSessionMessages(c *gin.Context) {
	ownerID := auth.UserIDFromContext(c)
	sessionID := c.Param("id")
	if err := h.store.VerifySessionOwner(c.Request.Context(), ownerID, sessionID); err != nil {
		h.sessionError(c, err)
		return
	}
	messages, err := h.store.Messages(c.Request.Context(), sessionID, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list messages failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": sessionID, "messages": messages})
}

type sessionPatchRequest struct {
	Title  *string `json:"title"`
	Pinned *bool   `json:"pinned"`
}

func (h *Handler) updateSession(c *gin.Context) {
	var req sessionPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Title == nil && req.Pinned == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}
	ownerID := auth.UserIDFromContext(c)
	sessionID := c.Param("id")
	ctx := c.Request.Context()

	if req.Title != nil {
		if err := h.store.RenameSession(ctx, ownerID, sessionID, *req.Title); err != nil {
			h.sessionError(c, err)
			return
		}
	}
	if req.Pinned != nil {
		if err := h.store.SetSessionPinned(ctx, ownerID, sessionID, *req.Pinned); err != nil {
			h.sessionError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "session updated"})
}

func (h *Handler) deleteSession(c *gin.Context) {
	ownerID := auth.UserIDFromContext(c)
	if err := h.store.DeleteSession(c.Request.Context(), ownerID, c.Param("id")); err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session deleted"})
}

func (h *Handler) adminListSessions(c *gin.Context) {
	sessions, err := h.store.ListSessions(c.Request.Context(), 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list sessions failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) adminSessionMessages(c *gin.Context) {
	sessionID := c.Param("id")
	messages, err := h.store.Messages(c.Request.Context(), sessionID, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list messages failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": sessionID, "messages": messages})
}

func (h *Handler) adminDeleteSession(c *gin.Context) {
	if err := h.store.DeleteSessionAdmin(c.Request.Context(), c.Param("id")); err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session deleted"})
}

// sessionError hides foreign sessions behind 404, same as missing ones.
func (h *Handler) sessionError(c *gin.Context, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func errStatus(code string) int {
	switch code {
	case "invalid_request":
		return http.StatusBadRequest
	case "busy":
		return http.StatusConflict
	case "timeout":
		return http.StatusGatewayTimeout
	case "unavailable", "empty_reply", "upstream_http_error":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) setAuthCookie(c *gin.Context, authToken string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.auth.AuthCookieName(), authToken, int(h.auth.TokenTTL().Seconds()), "/", "", false, true)
}

func (h *Handler) clearAuthCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.auth.AuthCookieName(), "", -1, "/", "", false, true)
}
