package http

import (
	stdhttp "net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/securechat-server/internal/auth"
	"github.com/vovakirdan/securechat-server/internal/blob"
	"github.com/vovakirdan/securechat-server/internal/config"
	"github.com/vovakirdan/securechat-server/internal/core"
	"github.com/vovakirdan/securechat-server/internal/service/chats"
	"github.com/vovakirdan/securechat-server/internal/service/contacts"
	"github.com/vovakirdan/securechat-server/internal/service/delivery"
	"github.com/vovakirdan/securechat-server/internal/service/users"
)

// Deps are the services the HTTP layer serves.
type Deps struct {
	Hub      *core.Hub
	Gate     *auth.Gate
	Auth     *auth.Service
	Users    *users.Service
	Contacts *contacts.Service
	Chats    *chats.Service
	Delivery *delivery.Service
	Blobs    blob.Store
}

// NewServer builds the HTTP server with the REST API and the websocket endpoint.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(deps, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewHandler mounts the websocket endpoint on a plain ServeMux next to the REST
// router. gin refuses to hijack once a status is written, which websocket.Accept does.
func NewHandler(deps Deps, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(deps.Hub, deps.Gate, deps.Chats, deps.Delivery, WSOptions{
		PingInterval:    cfg.PingInterval,
		MaxMessageBytes: cfg.MaxMessageBytes,
		RateLimit:       cfg.InboundRateLimit,
	}, logger))
	mux.Handle("/", NewRouter(deps, cfg, logger))
	return mux
}

// NewRouter builds the gin engine with every REST route registered.
func NewRouter(deps Deps, cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger), cors.New(corsConfig(cfg.CORSOrigins)))
	if cfg.MaxUploadBytes > 0 {
		router.MaxMultipartMemory = cfg.MaxUploadBytes
	}

	router.GET("/health", healthHandler)
	if strings.HasPrefix(cfg.BlobBaseURL, "/") && cfg.BlobDir != "" {
		router.Static(cfg.BlobBaseURL, cfg.BlobDir)
	}

	api := router.Group("/api")

	accounts := NewAPIHandlers(deps.Auth, logger)
	api.POST("/auth/register", accounts.Register)
	api.POST("/auth/login", accounts.Login)

	protected := api.Group("", AuthMiddleware(deps.Gate, logger))

	userHandlers := NewUserHandlers(deps.Users, logger)
	protected.GET("/users/me", userHandlers.Me)
	protected.PATCH("/users/me", userHandlers.UpdateMe)
	protected.GET("/users/search", userHandlers.SearchUsers)

	contactHandlers := NewContactHandlers(deps.Contacts, logger)
	protected.GET("/contacts", contactHandlers.List)
	protected.POST("/contacts", contactHandlers.Add)
	protected.DELETE("/contacts/:uid", contactHandlers.Remove)

	chatHandlers := NewChatHandlers(deps.Chats, logger)
	protected.GET("/chats", chatHandlers.ListChats)
	protected.POST("/chats/direct", chatHandlers.Direct)
	protected.POST("/chats/group", chatHandlers.CreateGroup)
	protected.PATCH("/chats/:chatId", chatHandlers.UpdateGroup)
	protected.POST("/chats/:chatId/members", chatHandlers.AddMembers)
	protected.DELETE("/chats/:chatId/members/:memberId", chatHandlers.RemoveMember)
	protected.POST("/chats/:chatId/pin", chatHandlers.Pin)
	protected.POST("/chats/:chatId/unpin", chatHandlers.Unpin)

	messageHandlers := NewMessageHandlers(deps.Chats, deps.Delivery, deps.Blobs, cfg.MaxUploadBytes, logger)
	protected.GET("/messages/:chatId", messageHandlers.List)
	protected.POST("/messages", messageHandlers.Send)
	protected.POST("/messages/delivered", messageHandlers.DeliveredBulk)
	protected.POST("/messages/media", messageHandlers.StoreMedia)
	protected.POST("/messages/media/upload", messageHandlers.Upload)
	protected.POST("/messages/:id/read", messageHandlers.Read)
	protected.POST("/messages/:id/delivered", messageHandlers.Delivered)
	protected.POST("/messages/:id/reactions", messageHandlers.React)
	protected.DELETE("/messages/:id/reactions", messageHandlers.Unreact)

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Auth-Token"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
