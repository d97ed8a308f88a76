package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"wellnessgo/internal/conversation"
	"wellnessgo/internal/healthmem"
	"wellnessgo/internal/identity"
	applog "wellnessgo/internal/logger"
	"wellnessgo/internal/models"
	"wellnessgo/internal/service/ai"
	"wellnessgo/internal/worker"
)

const (
	msgRateLimited = "عذراً، لقد أرسلت عدداً كبيراً من الرسائل خلال وقت قصير. يرجى الانتظار دقيقة ثم المحاولة مرة أخرى."
	msgExhausted   = "عذراً، المساعد الصحي غير متاح حالياً.\n" +
		"• تأكد من اتصالك بالإنترنت.\n" +
		"• حاول مرة أخرى بعد بضع دقائق.\n" +
		"• إذا استمرت المشكلة، تواصل مع فريق الدعم.\n" +
		"في الحالات الطارئة اتصل بالإسعاف فوراً."
	msgBusy       = "الخادم مشغول حالياً، يرجى المحاولة بعد قليل."
	msgInternal   = "حدث خطأ غير متوقع. يرجى المحاولة مرة أخرى لاحقاً."
	msgNoMessage  = "الرسالة مطلوبة"
	msgBadRequest = "تعذّر قراءة الطلب، يرجى التحقق من البيانات المرسلة."

	msgMethodNotAllowed = "هذه الطريقة غير مدعومة لهذا المسار."
	msgOriginDenied     = "مصدر الطلب غير مسموح به."
	msgInvalidMetric    = "قيمة القياس خارج النطاق المسموح."

	chatAllow = "POST, OPTIONS"
)

// ChatService is the gateway behaviour the handlers depend on.
type ChatService interface {
	Chat(ctx context.Context, req ai.ChatRequest) (*ai.ChatResponse, error)
	Providers() []string
}

type Options struct {
	AllowedOrigins []string
	DevMode        bool
	// MetricsHandler is mounted on /metrics when set.
	MetricsHandler http.Handler
	Logger         zerolog.Logger
}

// Handler wires HTTP routes to the chat gateway and the per-session stores.
type Handler struct {
	chat          ChatService
	conversations *conversation.Registry
	memories      *healthmem.Registry
	opts          Options
	logger        zerolog.Logger
}

func NewHandler(chat ChatService, conversations *conversation.Registry, memories *healthmem.Registry, opts Options) *Handler {
	return &Handler{
		chat:          chat,
		conversations: conversations,
		memories:      memories,
		opts:          opts,
		logger:        opts.Logger.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.healthz)
	if h.opts.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(h.opts.MetricsHandler))
	}

	api := router.Group("/api")
	api.Use(h.cors(), identity.Middleware())
	api.POST("/chat", h.postChat)
	api.OPTIONS("/chat", h.preflight(chatAllow))
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodHead} {
		api.Handle(method, "/chat", h.methodNotAllowed(chatAllow))
	}

	api.GET("/conversation", h.getConversation)
	api.DELETE("/conversation", h.clearConversation)
	api.GET("/conversations", h.listConversations)
	api.DELETE("/conversations", h.clearConversations)

	api.GET("/health-profile", h.getProfile)
	api.DELETE("/health-profile", h.clearProfile)
	api.GET("/health-profile/export", h.exportProfile)
	api.POST("/health-profile/metrics", h.updateMetrics)
}

type chatRequest struct {
	Message        string         `json:"message"`
	HealthContext  map[string]any `json:"healthContext"`
	History        []models.Turn  `json:"history"`
	SessionID      string         `json:"sessionId"`
	ConversationID string         `json:"conversationId"`
}

func (h *Handler) postChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgBadRequest, "success": false})
		return
	}

	id := identity.FromContext(c)
	if id.SessionID == id.ClientID {
		id = id.WithSession(req.SessionID)
	}

	resp, err := h.chat.Chat(c.Request.Context(), ai.ChatRequest{
		ClientID:       id.ClientID,
		SessionID:      id.SessionID,
		UserID:         id.UserID,
		ConversationID: req.ConversationID,
		Message:        req.Message,
		HealthContext:  req.HealthContext,
		History:        req.History,
	})
	if err != nil {
		h.writeChatError(c, err, req.Message)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"text":           resp.Text,
		"source":         resp.Source,
		"success":        true,
		"suggestions":    resp.Suggestions,
		"conversationId": resp.ConversationID,
	})
}

func (h *Handler) writeChatError(c *gin.Context, err error, input string) {
	var limited *ai.RateLimitError
	switch {
	case errors.Is(err, ai.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": msgNoMessage, "success": false})
	case errors.As(err, &limited):
		resetIn := limited.Result.ResetIn
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(resetIn.Seconds()))))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":     msgRateLimited,
			"success":   false,
			"remaining": limited.Result.Remaining,
			"resetInMs": resetIn.Milliseconds(),
		})
	case errors.Is(err, ai.ErrProvidersExhausted):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgExhausted, "success": false})
	case errors.Is(err, worker.ErrQueueFull):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": msgBusy, "success": false})
	default:
		h.logger.Error().
			Err(err).
			Str("endpoint", c.FullPath()).
			Str("input", applog.Truncate(input, 80)).
			Msg("chat request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal, "success": false})
	}
}

func (h *Handler) preflight(allow string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Allow", allow)
		c.Status(http.StatusNoContent)
	}
}

func (h *Handler) methodNotAllowed(allow string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Allow", allow)
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": msgMethodNotAllowed, "success": false})
	}
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"providers": h.chat.Providers(),
	})
}

func (h *Handler) getConversation(c *gin.Context) {
	id := identity.FromContext(c)
	store := h.conversations.Get(c.Request.Context(), id.SessionID)
	c.JSON(http.StatusOK, gin.H{
		"conversation": store.Current(),
		"summary":      store.Summary(),
		"userName":     store.UserName(),
	})
}

func (h *Handler) listConversations(c *gin.Context) {
	id := identity.FromContext(c)
	store := h.conversations.Get(c.Request.Context(), id.SessionID)
	c.JSON(http.StatusOK, gin.H{"conversations": store.All()})
}

func (h *Handler) clearConversation(c *gin.Context) {
	id := identity.FromContext(c)
	h.conversations.Get(c.Request.Context(), id.SessionID).ClearCurrent(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (h *Handler) clearConversations(c *gin.Context) {
	id := identity.FromContext(c)
	h.conversations.Get(c.Request.Context(), id.SessionID).ClearAll(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (h *Handler) getProfile(c *gin.Context) {
	id := identity.FromContext(c)
	mem := h.memories.Get(c.Request.Context(), id.UserID)
	c.JSON(http.StatusOK, gin.H{
		"profile": mem.Profile(),
		"context": mem.BuildHealthContext(),
	})
}

func (h *Handler) clearProfile(c *gin.Context) {
	id := identity.FromContext(c)
	h.memories.Get(c.Request.Context(), id.UserID).Clear(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (h *Handler) exportProfile(c *gin.Context) {
	id := identity.FromContext(c)
	data, err := h.memories.Get(c.Request.Context(), id.UserID).Export()
	if err != nil {
		h.logger.Error().Err(err).Msg("export health profile failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="health-profile.json"`)
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

func (h *Handler) updateMetrics(c *gin.Context) {
	var req healthmem.MetricsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgBadRequest})
		return
	}
	id := identity.FromContext(c)
	mem := h.memories.Get(c.Request.Context(), id.UserID)
	if err := mem.UpdateMetrics(c.Request.Context(), req); err != nil {
		if errors.Is(err, healthmem.ErrInvalidMetric) {
			c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidMetric, "detail": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": mem.Profile().Metrics})
}
