package main

import (
	"log"
	"os"
	"time"

	"erek/internal/api"
	"erek/internal/auth"
	"erek/internal/config"
	"erek/internal/postproc"
	"erek/internal/provider"
	"erek/internal/redis"
	"erek/internal/service/chat"
	"erek/internal/service/turn"
	"erek/internal/storage"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("EREK_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("EREK_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	// redis is an optional cache in front of token validation
	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb, err = redis.NewClient(cfg)
		if err != nil {
			log.Fatalf("create redis client: %v", err)
		}
		defer rdb.Close()
	}

	store := chat.NewService(db)
	authService := auth.NewService(db, rdb, 24*time.Hour)

	primary := provider.NewWebhook(cfg.Providers.Primary)
	if primary == nil {
		log.Printf("primary provider not configured, all turns go to groq")
	}
	groq, err := provider.NewGroq(cfg.Providers.Groq)
	if err != nil {
		log.Fatalf("init groq provider: %v", err)
	}

	post := postproc.New(cfg.Heuristics)
	var completer provider.Completer
	if primary != nil {
		completer = primary
	}
	turns := turn.NewService(store, completer, groq, post, cfg)

	handlers := api.NewHandler(store, authService, turns, cfg.BasicConfig.AdminSecret)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
