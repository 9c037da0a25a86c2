package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	"aura-chat/config"
	"aura-chat/handlers"
	"aura-chat/models"
	"aura-chat/services"
	"aura-chat/store"
	"aura-chat/workflows"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	_ "github.com/lib/pq"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	persona := cfg.Persona

	// Initialize Gemini service
	gemini, err := services.NewGeminiService(ctx, cfg.APIKey, cfg.Model)
	if err != nil {
		log.Fatalf("Failed to initialize Gemini: %v", err)
	}
	gemini.TrendFallback = persona.TrendFallback

	newSession := func(ctx context.Context, p *models.Persona, history []models.Message) (workflows.ChatSession, error) {
		session, err := gemini.NewChatSession(ctx, p, history)
		if err != nil {
			return nil, err
		}
		return session, nil
	}

	// Conversations live in memory unless a database is configured
	var (
		messageStore workflows.MessageStore = store.NewMemory()
		dbosCtx      dbos.DBOSContext
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := db.Ping(); err != nil {
			log.Fatalf("Failed to ping database: %v", err)
		}
		pg := store.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to prepare database: %v", err)
		}
		messageStore = pg
		log.Println("Connected to PostgreSQL database")
	}

	chatWorkflows := workflows.NewChatWorkflows(messageStore, &persona, newSession, gemini)

	if cfg.DatabaseURL != "" {
		// Initialize DBOS context for durable workflows
		dbosCtx, err = dbos.NewDBOSContext(ctx, dbos.Config{
			DatabaseURL: cfg.DatabaseURL,
			AppName:     "aura-chat",
		})
		if err != nil {
			log.Fatalf("Failed to initialize DBOS: %v", err)
		}

		// Register workflows with DBOS (MUST be before Launch)
		dbos.RegisterWorkflow(dbosCtx, chatWorkflows.SendMessageWorkflow)
		dbos.RegisterWorkflow(dbosCtx, chatWorkflows.CreateConversationWorkflow)
		dbos.RegisterWorkflow(dbosCtx, chatWorkflows.DeleteConversationWorkflow)

		if err := dbos.Launch(dbosCtx); err != nil {
			log.Fatalf("Failed to launch DBOS: %v", err)
		}
		defer dbos.Shutdown(dbosCtx, 5*time.Second)
		log.Println("DBOS initialized - durable workflows enabled")
	}

	chatHandler := handlers.NewChatHandler(chatWorkflows, dbosCtx)
	router := handlers.NewRouter(chatHandler, dbosCtx != nil)

	log.Printf("Starting %s on port %s (model %s)", persona.Name, cfg.Port, cfg.Model)
	if err := router.Run(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
