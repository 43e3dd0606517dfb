package http

import (
	"time"

	"github.com/gin-gonic/gin"

	appsvc "evalrag/internal/app"
	"evalrag/internal/bootstrap"
	"evalrag/internal/llm"
	"evalrag/internal/rag"
	"evalrag/internal/transport/http/handler"
	"evalrag/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(middleware.CORS(app.Config.CORS.AllowOrigins))

	retriever := rag.NewRetriever(app.Embedding, app.VectorStore)
	docService := appsvc.NewDocumentService(
		app.VectorStore,
		app.Embedding,
		app.Publisher,
		app.Config.RAG.ChunkSize,
		app.Config.RAG.ChunkOverlap,
	)
	chatService := appsvc.NewChatService(
		llm.NewClient(),
		llm.Config{
			BaseURL: app.Config.LLM.BaseURL,
			APIKey:  app.Config.LLM.APIKey,
			Model:   app.Config.LLM.Model,
		},
		retriever,
		app.Settings,
		app.Config.RAG.TopK,
		app.Config.RAG.SimilarityThreshold,
	)
	authService := appsvc.NewAuthService(
		app.Config.Auth.AdminUsername,
		app.Config.Auth.AdminPasswordHash,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)

	healthHandler := handler.NewHealthHandler(app)
	authHandler := handler.NewAuthHandler(authService)
	chatHandler := handler.NewChatHandler(chatService)
	llmHandler := handler.NewLLMHandler(chatService)
	docHandler := handler.NewDocumentHandler(docService)
	ragHandler := handler.NewRAGHandler(retriever, docService, app.Embedding, app.Config.RAG)
	settingsHandler := handler.NewSettingsHandler(app.Settings)
	ingestLogHandler := handler.NewIngestLogHandler(app.IngestRepo)

	router.GET("/healthz", healthHandler.Check)

	api := router.Group("/api")
	api.GET("/model-status", healthHandler.ModelStatus)

	api.POST("/auth/login", authHandler.Login)

	api.POST("/chat/completions", chatHandler.Completions)

	llmGroup := api.Group("/llm")
	llmGroup.GET("/model", llmHandler.Model)
	llmGroup.POST("/generate", llmHandler.Generate)
	llmGroup.POST("/generate/sync", llmHandler.GenerateSync)

	ragGroup := api.Group("/rag")
	ragGroup.POST("/query", ragHandler.Query)
	ragGroup.GET("/stats", ragHandler.Stats)

	adminJWT := middleware.AdminJWT(app.Config.Auth.JWTSecret)

	docs := api.Group("/documents")
	docs.POST("/upload", docHandler.Upload)
	docs.POST("/upload-text", docHandler.UploadText)
	docs.POST("", docHandler.Create)
	docs.GET("", docHandler.ListChunks)
	docs.GET("/list", docHandler.List)
	docs.GET("/count", docHandler.Count)
	docs.GET("/content/:filename", docHandler.Content)
	docs.DELETE("/by-id/:id", docHandler.DeleteByID)
	docs.DELETE("/:filename", docHandler.Delete)
	docs.POST("/reset", adminJWT, docHandler.Reset)
	docs.GET("/ingest-log", adminJWT, ingestLogHandler.ListRecent)

	settingsGroup := api.Group("/settings")
	settingsGroup.GET("/system-prompt", settingsHandler.GetSystemPrompt)
	settingsGroup.PUT("/system-prompt", adminJWT, settingsHandler.UpdateSystemPrompt)
	settingsGroup.POST("/system-prompt/reset", adminJWT, settingsHandler.ResetSystemPrompt)

	return router
}
