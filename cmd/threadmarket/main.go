package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	appchat "threadmarket/internal/app/chat"
	chatservice "threadmarket/internal/app/services/chat"
	domainchat "threadmarket/internal/domain/chat"
	domainlistings "threadmarket/internal/domain/listings"
	domainuser "threadmarket/internal/domain/user"
	"threadmarket/internal/infra/broker/kafka"
	"threadmarket/internal/infra/config"
	mongodb "threadmarket/internal/infra/db/mongo"
	ginserver "threadmarket/internal/infra/http/gin"
	"threadmarket/internal/infra/obs"
	"threadmarket/internal/infra/realtime"
	"threadmarket/internal/infra/security"
	"threadmarket/internal/infra/storage/memory"
	"threadmarket/internal/infra/storage/s3"
	"threadmarket/internal/infra/storage/scylla"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)

	users, blocks, reports, listings, err := buildMarketplaceStores(cfg, logger)
	if err != nil {
		logger.Error("marketplace store init failed", "error", err)
		os.Exit(1)
	}

	chatStore, err := buildChatStore(cfg, logger, users, listings)
	if err != nil {
		logger.Error("chat store init failed", "error", err)
		os.Exit(1)
	}

	hub := realtime.NewHub(logger)

	var notifier domainchat.Notifier = domainchat.NopNotifier{}
	var producer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer, err = kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			logger.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
		notifier = kafka.ChangeNotifier{Producer: producer, Topic: cfg.KafkaTopic}
		logger.Info("kafka change notifications enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	chatSvc := chatservice.New(chatStore, blocks, hub, notifier, logger)
	inboxes := appchat.NewInboxes(chatSvc, logger)
	registry := appchat.NewRegistry(hub, chatSvc, logger)
	registry.SetTypingTTL(cfg.TypingTTL)

	var consumer *kafka.Consumer
	if len(cfg.KafkaBrokers) > 0 {
		consumer, err = kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, nil, kafka.InboxRefresher{
			Inboxes: inboxes,
			Logger:  logger,
		})
		if err != nil {
			logger.Error("kafka consumer init failed", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := consumer.Run(ctx, []string{cfg.KafkaTopic}); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("kafka consumer stopped", "error", err)
			}
		}()
	}

	var uploader s3.Uploader = s3.NoopUploader{}
	if cfg.S3Endpoint != "" {
		store, err := s3.NewAttachmentStore(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3PublicEndpoint, logger)
		if err != nil {
			logger.Warn("attachment store unavailable", "error", err)
		} else {
			uploader = store
		}
	}

	sessions := security.NewSessionStore()

	fixturesPath := cfg.FixturesPath
	if fixturesPath == "" {
		fixturesPath = filepath.Join("fixtures", "seed.json")
	}
	if err := loadFixtures(ctx, fixturesPath, users, listings, sessions); err != nil {
		logger.Warn("fixtures load failed", "path", fixturesPath, "error", err)
	}

	handlers := ginserver.Handlers{
		Chat: ginserver.ChatHandler{
			Chat:     chatSvc,
			Uploader: uploader,
			Logger:   logger,
		},
		Listing: ginserver.ListingHandler{
			Listings: listings,
			Chat:     chatSvc,
			Logger:   logger,
		},
		User: ginserver.UserHandler{
			Users:   users,
			Blocks:  blocks,
			Reports: reports,
			Logger:  logger,
		},
		WS: ginserver.WSHandler{
			Chat:     chatSvc,
			Registry: registry,
			Logger:   logger,
		},
		AuthMiddleware: ginserver.AuthMiddleware{
			Sessions: sessions,
			Users:    users,
			Logger:   logger,
		}.Handle,
	}

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: func() error { return nil },
	}, handlers)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}

	registry.CloseAll()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Warn("kafka consumer close failed", "error", err)
		}
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Warn("kafka producer close failed", "error", err)
		}
	}
	logger.Info("server stopped")
}

func buildMarketplaceStores(cfg config.Config, logger *slog.Logger) (domainuser.Repository, domainuser.BlockStore, domainuser.ReportStore, domainlistings.Repository, error) {
	if cfg.UserStoreMode == "mongo" {
		client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx); err != nil {
			return nil, nil, nil, nil, err
		}
		logger.Info("mongo connected", "database", cfg.MongoDB)
		return mongodb.NewUserRepository(client),
			mongodb.NewBlockStore(client),
			mongodb.NewReportStore(client),
			mongodb.NewListingRepository(client),
			nil
	}
	return memory.NewUserRepository(), memory.NewBlockStore(), memory.NewReportStore(), memory.NewListingRepository(), nil
}

func buildChatStore(cfg config.Config, logger *slog.Logger, users domainuser.Repository, listings domainlistings.Repository) (domainchat.Store, error) {
	if cfg.ChatStoreMode == "scylla" {
		session, err := scylla.NewSession(cfg, logger)
		if err != nil {
			return nil, err
		}
		return scylla.NewStore(session, users, listings, logger), nil
	}
	return memory.NewChatStore(users, listings), nil
}

type fixtureUser struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
	Bio       string `json:"bio"`
	Location  string `json:"location"`
	Token     string `json:"token"`
}

type fixtureListing struct {
	ID          string   `json:"id"`
	SellerID    string   `json:"seller_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Culture     string   `json:"culture"`
	Category    string   `json:"category"`
	Size        string   `json:"size"`
	Condition   string   `json:"condition"`
	PriceCents  int64    `json:"price_cents"`
	Images      []string `json:"images"`
	Active      bool     `json:"active"`
}

type fixtureFile struct {
	Users    []fixtureUser    `json:"users"`
	Listings []fixtureListing `json:"listings"`
}

// loadFixtures seeds users, listings and dev bearer tokens from a JSON file.
// Missing file is not an error; the server just starts empty.
func loadFixtures(ctx context.Context, path string, users domainuser.Repository, listings domainlistings.Repository, sessions *security.SessionStore) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var file fixtureFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	for _, fu := range file.Users {
		u, err := domainuser.New(domainuser.CreateParams{
			ID:        fu.ID,
			Username:  fu.Username,
			AvatarURL: fu.AvatarURL,
			Bio:       fu.Bio,
			Location:  fu.Location,
		})
		if err != nil {
			return err
		}
		if err := users.Save(ctx, u); err != nil {
			return err
		}
		sessions.Register(fu.Token, u.ID)
	}
	for _, fl := range file.Listings {
		l, err := domainlistings.New(domainlistings.CreateParams{
			ID:          fl.ID,
			SellerID:    fl.SellerID,
			Title:       fl.Title,
			Description: fl.Description,
			Culture:     fl.Culture,
			Category:    fl.Category,
			Size:        fl.Size,
			Condition:   fl.Condition,
			PriceCents:  fl.PriceCents,
			Images:      fl.Images,
		})
		if err != nil {
			return err
		}
		if fl.Active {
			l.Activate(time.Now())
		}
		if err := listings.Save(ctx, l); err != nil {
			return err
		}
	}
	return nil
}
