package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"companion/internal/logger"
	"companion/internal/models"
	"companion/internal/service/chat"
	"companion/internal/service/conversation"
	"companion/internal/worker"
)

const (
	GuestCookieName  = "companion_guest"
	GuestHeaderName  = "X-Guest-Session"
	guestPrefix      = "guest-"
	guestCookieTTL   = 30 * 24 * time.Hour
	maxGuestIDLength = 128
	defaultTimeout   = 2 * time.Minute
)

type ChatService interface {
	Chat(ctx context.Context, req chat.Request) (*chat.Result, error)
}

type TurnPager interface {
	Page(ctx context.Context, scope models.Scope, limit, offset int) ([]models.Turn, error)
}

type Dispatcher interface {
	Do(ctx context.Context, scope models.Scope, fn func(ctx context.Context) error) error
}

type Options struct {
	StaticDir string
	// PublicBaseURL overrides the base derived from the request when building audio links.
	PublicBaseURL string
	ChatTimeout   time.Duration
}

// Handler wires HTTP routes to the chat pipeline and the conversation store.
type Handler struct {
	chat       ChatService
	turns      TurnPager
	dispatcher Dispatcher
	opts       Options
}

func NewHandler(chatService ChatService, turns TurnPager, dispatcher Dispatcher, opts Options) *Handler {
	if opts.ChatTimeout <= 0 {
		opts.ChatTimeout = defaultTimeout
	}
	return &Handler{
		chat:       chatService,
		turns:      turns,
		dispatcher: dispatcher,
		opts:       opts,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.root)
	router.GET("/conversations", h.listConversations)
	router.POST("/chat", h.postChat)
	if h.opts.StaticDir != "" {
		router.Static("/static", h.opts.StaticDir)
	}
}

func (h *Handler) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "AI Companion Backend is running!"})
}

func (h *Handler) listConversations(c *gin.Context) {
	limit, err := queryInt(c, "limit", conversation.DefaultPageSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}
	scope := models.Scope(strings.TrimSpace(c.Query("user_id")))

	turns, err := h.turns.Page(c.Request.Context(), scope, limit, offset)
	if err != nil {
		if errors.Is(err, conversation.ErrInvalidPage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.FromContext(c.Request.Context()).Error("list conversations failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}
	if turns == nil {
		turns = make([]models.Turn, 0)
	}
	c.JSON(http.StatusOK, turns)
}

type chatRequest struct {
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
	VoiceName string `json:"voice_name"`
}

type chatResponse struct {
	ReplyText string `json:"reply_text"`
	AudioURL  string `json:"audio_url"`
}

func (h *Handler) postChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	scope := h.resolveScope(c, req.UserID)
	log := logger.FromContext(c.Request.Context()).With("scope", string(scope))

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.opts.ChatTimeout)
	defer cancel()

	chatReq := chat.Request{
		Scope:   scope,
		Message: req.Message,
		Voice:   req.VoiceName,
		BaseURL: h.baseURL(c),
	}
	var result *chat.Result
	err := h.dispatcher.Do(ctx, scope, func(ctx context.Context) error {
		var err error
		result, err = h.chat.Chat(ctx, chatReq)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, worker.ErrDispatcherBusy):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
		case errors.Is(err, chat.ErrEmptyMessage):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, context.DeadlineExceeded):
			log.Error("chat timed out", "error", err)
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "chat timed out"})
		default:
			log.Error("chat failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "chat failed"})
		}
		return
	}
	c.JSON(http.StatusOK, chatResponse{ReplyText: result.ReplyText, AudioURL: result.AudioURL})
}

// resolveScope prefers the explicit user id, then an existing guest session,
// and mints a guest session otherwise.
func (h *Handler) resolveScope(c *gin.Context, userID string) models.Scope {
	if id := strings.TrimSpace(userID); id != "" {
		return models.Scope(id)
	}
	guest, err := c.Cookie(GuestCookieName)
	if err != nil || !validGuestID(guest) {
		guest = c.GetHeader(GuestHeaderName)
	}
	if !validGuestID(guest) {
		guest = guestPrefix + uuid.NewString()
		setCookie(c, &http.Cookie{
			Name:     GuestCookieName,
			Value:    guest,
			MaxAge:   int(guestCookieTTL.Seconds()),
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	c.Header(GuestHeaderName, guest)
	return models.Scope(guest)
}

func validGuestID(id string) bool {
	return strings.HasPrefix(id, guestPrefix) && len(id) > len(guestPrefix) && len(id) <= maxGuestIDLength
}

// baseURL returns scheme://host/ for the current request unless a public base is configured.
func (h *Handler) baseURL(c *gin.Context) string {
	if h.opts.PublicBaseURL != "" {
		return ensureTrailingSlash(h.opts.PublicBaseURL)
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	return scheme + "://" + c.Request.Host + "/"
}

func ensureTrailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
