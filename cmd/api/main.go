package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"guidebook/internal/adapter/api"
	"guidebook/internal/adapter/api/handler"
	apimiddleware "guidebook/internal/adapter/api/middleware"
	"guidebook/internal/adapter/api/router"
	"guidebook/internal/adapter/repository"
	domainrepo "guidebook/internal/domain/repository"
	"guidebook/internal/domain/service"
	"guidebook/internal/infrastructure/cache"
	"guidebook/internal/infrastructure/firebase"
	"guidebook/internal/infrastructure/queue"
	"guidebook/internal/infrastructure/ratelimit"
	"guidebook/internal/infrastructure/storage"
	"guidebook/internal/infrastructure/websocket"
	"guidebook/internal/usecase"
	"guidebook/pkg/config"
)

const localFilesPrefix = "/files"

type repositories struct {
	users    domainrepo.UserRepository
	chats    domainrepo.ChatRepository
	quotes   domainrepo.QuoteRepository
	bookings domainrepo.BookingRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pingers := map[string]handler.Pinger{}
	var repos repositories
	var verifier firebase.TokenVerifier

	if cfg.FirebaseProject != "" {
		opts := credentials(cfg)

		firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase: %v", err)
		}
		authClient, err := firebaseApp.Auth(ctx)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase Auth: %v", err)
		}
		verifier = firebase.NewFirebaseAuthClient(authClient)

		firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
		if err != nil {
			log.Fatalf("Failed to create Firestore client: %v", err)
		}
		defer firestoreClient.Close()

		repos = repositories{
			users:    repository.NewFirestoreUserRepository(firestoreClient),
			chats:    repository.NewFirestoreChatRepository(firestoreClient),
			quotes:   repository.NewFirestoreQuoteRepository(firestoreClient),
			bookings: repository.NewFirestoreBookingRepository(firestoreClient),
		}
		pingers["firestore"] = handler.PingFunc(func(ctx context.Context) error {
			_, err := firestoreClient.Collection("rooms").Limit(1).Documents(ctx).GetAll()
			return err
		})
	} else {
		if !cfg.IsDevelopment() {
			log.Fatalf("FIREBASE_PROJECT_ID is required outside development")
		}
		log.Printf("No Firebase project configured, using the in-memory store")
		store := repository.NewMemoryStore()
		repos = repositories{users: store.Users(), chats: store.Chats(), quotes: store.Quotes(), bookings: store.Bookings()}
	}
	if cfg.IsDevelopment() {
		verifier = firebase.NewDevTokenVerifier(verifier)
	}

	e := echo.New()

	var files service.FileUploadService
	if cfg.StorageBucket != "" {
		storageClient, err := storage.NewCloudStorageClient(ctx, cfg.StorageBucket, cfg.AllowedOrigins, credentials(cfg)...)
		if err != nil {
			log.Fatalf("Failed to initialize Cloud Storage: %v", err)
		}
		files = storageClient
	} else {
		localStore, err := storage.NewLocalFileStore(cfg.LocalStorageDir, strings.TrimRight(cfg.PublicBaseURL, "/")+localFilesPrefix)
		if err != nil {
			log.Fatalf("Failed to initialize local file store: %v", err)
		}
		files = localStore
		e.Static(localFilesPrefix, cfg.LocalStorageDir)
	}
	defer files.Close()

	var ledger service.PaymentLedger
	if cfg.MidtransServerKey != "" {
		ledger = service.NewMidtransLedger(cfg.MidtransServerKey, cfg.MidtransEnvironment == "production")
	} else {
		log.Printf("No Midtrans server key configured, payments are simulated")
		ledger = service.NewSimplifiedLedger()
	}

	var bookingCache usecase.BookingCache
	if redisClient := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword); redisClient != nil {
		defer redisClient.Close()
		bookingCache = cache.NewBookingCache(redisClient, cfg.BookingCacheTTL)
		pingers["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	clock := clockwork.NewRealClock()
	limiter := ratelimit.NewRateLimiter(clock, cfg.MessageRateLimit, cfg.MessageBurst)
	limiter.StartCleanupRoutine(ctx.Done())

	wsManager := websocket.NewManager()
	wsManager.Start(ctx)

	var events usecase.BookingEventPublisher
	if cfg.RabbitMQURL != "" {
		publisher := queue.NewBookingPublisher(cfg.RabbitMQURL)
		defer publisher.Close()
		events = publisher
		queue.StartBookingConsumer(ctx, cfg.RabbitMQURL, wsManager.RelayBookingEvent)
	} else {
		events = queue.NewDirectPublisher(wsManager.RelayBookingEvent)
	}

	chatUseCase := usecase.NewChatUseCase(repos.chats, repos.users, service.NewMediaUploader(files), wsManager, limiter, clock)
	wsManager.SetAuthorizer(chatUseCase)

	policy := usecase.QuotePolicy{
		Validity:        cfg.QuoteValidity,
		AdvanceDueAfter: cfg.AdvanceDueAfter,
		SweepInterval:   cfg.ExpirySweepInterval,
	}
	quoteUseCase := usecase.NewQuoteUseCase(repos.quotes, repos.chats, usecase.NewUserRateSource(repos.users), chatUseCase, events, limiter, clock, policy)
	bookingUseCase := usecase.NewBookingUseCase(repos.bookings, repos.users, ledger, chatUseCase, events, bookingCache, limiter, clock)

	quoteUseCase.StartExpiryJob(ctx)

	handler.Setup(chatUseCase, quoteUseCase, bookingUseCase, usecase.NewUserUseCase(repos.users, clock), service.NewNominatimPlaceLookup(cfg.PlaceLookupURL))
	handler.SetupHealthHandler(pingers)
	handler.SetupDevTokenHandler(repos.users)

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	if len(cfg.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: cfg.AllowedOrigins}))
	} else {
		e.Use(middleware.CORS())
	}

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(verifier)
	adminMiddleware := apimiddleware.NewAdminMiddleware(repos.users)

	router.Setup(e, authMiddleware, adminMiddleware)
	router.SetupDevRouter(e, cfg.Environment)
	router.SetupFileRouter(e, handler.NewFileHandler(chatUseCase, cfg.MaxUploadSize), authMiddleware, limiter)
	router.SetupPaymentRoutes(e, handler.NewPaymentHandler(bookingUseCase, cfg.MidtransServerKey, cfg.MidtransEnvironment), limiter)
	router.SetupWebSocketRouter(e, handler.NewWebSocketHandler(wsManager, authMiddleware, cfg.AllowedOrigins))

	go func() {
		log.Printf("Starting server on port %s...", cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown failed: %v", err)
	}
}

// credentials prefers an inline service account, then a file, then the
// ambient default credentials.
func credentials(cfg *config.Config) []option.ClientOption {
	if cfg.CredentialsJSON != "" {
		log.Printf("Using Firebase service account from environment variable")
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))}
	}
	if cfg.CredentialsPath != "" {
		if _, err := os.Stat(cfg.CredentialsPath); err != nil {
			log.Fatalf("Service account file does not exist: %s", cfg.CredentialsPath)
		}
		log.Printf("Using Firebase service account from file: %s", cfg.CredentialsPath)
		return []option.ClientOption{option.WithCredentialsFile(cfg.CredentialsPath)}
	}
	return nil
}
