package handler

import (
	"transfer_ledger_back/pkg/middleware"
	"transfer_ledger_back/pkg/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Config struct {
	AllowOrigins []string
	ExplorerURL  string
}

type Handler struct {
	service  *service.Service
	origins  []string
	explorer string
}

func NewHandler(service *service.Service, cfg Config) *Handler {
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = []string{"http://localhost:3000"}
	}
	return &Handler{
		service:  service,
		origins:  cfg.AllowOrigins,
		explorer: cfg.ExplorerURL,
	}
}

func (h *Handler) InitRoute() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     h.origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", middleware.AccountHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	api := router.Group("/api")
	{
		api.GET("/state", h.GetState)

		account := api.Group("/account")
		{
			account.GET("", h.GetAccount)
			account.POST("/connect", h.Connect)
			account.POST("/disconnect", h.Disconnect)
		}

		api.GET("/transactions", h.GetTransactions)
		synced := api.Group("/transactions", middleware.RequireAccount(h.service.Snapshot))
		{
			synced.POST("", h.SubmitTransaction)
			synced.POST("/refresh", h.Refresh)
		}

		api.POST("/submission/ack", h.Acknowledge)
		api.GET("/decoration", h.GetDecoration)
	}
	return router
}
