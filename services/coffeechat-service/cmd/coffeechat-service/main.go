package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/coffeechat-app/coffeechat/libs/auth"
	"github.com/coffeechat-app/coffeechat/libs/config"
	"github.com/coffeechat-app/coffeechat/libs/db"
	"github.com/coffeechat-app/coffeechat/libs/httpx"
	"github.com/coffeechat-app/coffeechat/libs/kafkax"
	otelx "github.com/coffeechat-app/coffeechat/libs/otel"
	"github.com/coffeechat-app/coffeechat/libs/runtime"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/calendarsync"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/consumer"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/handlers"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/hub"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/inbox"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/meeting"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/model"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/outbox"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/scheduling"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/storage"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/sweep"
)

func main() {
	service := config.String("SERVICE_NAME", "coffeechat-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}
	var jwksClient *auth.JWKSClient
	if jwksURL := config.String("JWKS_URL", ""); jwksURL != "" {
		jwksClient = auth.NewJWKSClient(jwksURL, time.Duration(config.Int("JWKS_CACHE_SECONDS", 300))*time.Second)
	}

	slotRepo := storage.NewSlotRepository(pool)
	bookingRepo := storage.NewBookingRepository(pool)
	chatRepo := storage.NewChatRepository(pool)
	profileRepo := storage.NewProfileRepository(pool)
	calendarRepo := storage.NewCalendarRepository(pool)
	tokenRepo := storage.NewTokenRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	inboxRepo := inbox.NewRepository(pool)

	meetClient := meeting.NewClient(meeting.Config{
		ClientID:     config.String("GOOGLE_CLIENT_ID", ""),
		ClientSecret: config.String("GOOGLE_CLIENT_SECRET", ""),
		RedirectURL:  config.String("GOOGLE_REDIRECT_URL", ""),
	}, tokenRepo, logger)
	if meetClient == nil {
		logger.Warn("google calendar disabled (no client credentials)")
	}

	engine := scheduling.NewEngine(slotRepo, profileRepo, calendarRepo, logger)
	notifyHub := hub.New(logger, config.Int("HUB_BUFFER", 32))

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   kafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	// Booking events come back through Kafka and fan out to whichever party
	// is connected here. Offline parties catch up from booking state on the
	// next list call.
	if kafkaBrokers != "" {
		eventConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: kafkaBrokers,
			GroupID: config.String("KAFKA_GROUP_ID", service),
			Topic:   config.String("KAFKA_BOOKING_TOPIC", outbox.BookingTopic),
		}, func(ctx context.Context, msg kafka.Message) error {
			var evt model.BookingEvent
			if err := json.Unmarshal(msg.Value, &evt); err != nil {
				logger.Error("invalid booking event payload", "err", err, "topic", msg.Topic)
				return nil
			}
			for _, userID := range []string{evt.RequesterID, evt.OwnerID} {
				notifyHub.Publish(userID, hub.Event{
					Type:           hub.EventBooking,
					BookingID:      evt.BookingID,
					Status:         string(evt.Status),
					SenderID:       evt.ActorID,
					CounterpartyID: evt.CounterpartyOf(userID),
					MeetingLink:    evt.MeetingLink,
					Timestamp:      evt.TransitionedAt.UTC().Format(time.RFC3339),
				})
			}
			return nil
		})
		go eventConsumer.Run(ctx)
	}

	completionSweeper := sweep.NewCompletionSweeper(bookingRepo, outboxRepo, logger,
		time.Duration(config.Int("COMPLETION_SWEEP_SECONDS", 60))*time.Second,
		config.Int("COMPLETION_SWEEP_BATCH", 100))
	go completionSweeper.Run(ctx)

	refresher := sweep.NewAvailabilityRefresher(engine, profileRepo, logger,
		time.Duration(config.Int("AVAILABILITY_REFRESH_HOURS", 24))*time.Hour)
	go refresher.Run(ctx)

	calendarSyncer := calendarsync.NewSyncer(meetClient, profileRepo, calendarRepo, logger,
		time.Duration(config.Int("CALENDAR_SYNC_MINUTES", 30))*time.Minute)
	go calendarSyncer.Run(ctx)

	availabilityHandler := handlers.NewAvailabilityHandler(engine, logger)
	bookingHandler := handlers.NewBookingHandler(bookingRepo, slotRepo, outboxRepo, meetClient, logger)
	chatHandler := handlers.NewChatHandler(chatRepo, profileRepo, notifyHub, logger)
	googleHandler := handlers.NewGoogleHandler(meetClient, tokenRepo, jwtSecret, logger)
	wsHandler := hub.NewWSHandler(notifyHub, logger, func(ctx context.Context, senderID, receiverID, body string) error {
		_, err := chatHandler.SendChat(ctx, senderID, receiverID, body)
		return err
	})

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)},
	)
	protect := func(h http.HandlerFunc) http.Handler {
		return handlers.RequireAuth(h, jwtSecret, jwksClient)
	}
	mux.Handle("/api/v1/availability", protect(availabilityHandler.List))
	mux.Handle("/api/v1/availability/mine", protect(availabilityHandler.Mine))
	mux.Handle("/api/v1/availability/generate", protect(availabilityHandler.Generate))
	mux.Handle("/api/v1/availability/save", protect(availabilityHandler.Save))
	mux.Handle("/api/v1/bookings", protect(bookingHandler.Create))
	mux.Handle("/api/v1/bookings/action", protect(bookingHandler.Action))
	mux.Handle("/api/v1/bookings/sent", protect(bookingHandler.ListSent))
	mux.Handle("/api/v1/bookings/received", protect(bookingHandler.ListReceived))
	mux.Handle("/api/v1/chat/send", protect(chatHandler.Send))
	mux.Handle("/api/v1/chat/history", protect(chatHandler.History))
	mux.Handle("/api/v1/chat/room", protect(chatHandler.Room))
	mux.Handle("/api/v1/chat/notifications", protect(chatHandler.Notifications))
	mux.Handle("/api/v1/chat/notifications/clear", protect(chatHandler.ClearNotifications))
	mux.Handle("/api/v1/chat/unread-count", protect(chatHandler.UnreadCount))
	mux.Handle("/api/v1/google/connect", protect(googleHandler.Connect))
	mux.HandleFunc("/api/v1/google/callback", googleHandler.Callback)

	apiHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods:   parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS")),
			AllowedHeaders:   parseList(config.String("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id,Idempotency-Key")),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           time.Duration(config.Int("CORS_MAX_AGE_SECONDS", 600)) * time.Second,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("BODY_LIMIT_BYTES", 1<<20))),
		rateLimitMiddleware(logger),
	)
	apiHandler = otelhttp.NewHandler(apiHandler, "coffeechat")

	// The websocket route bypasses the middleware chain: the logging and
	// timeout wrappers don't support hijacking the connection.
	root := http.NewServeMux()
	root.Handle("/ws", handlers.RequireAuth(wsHandler, jwtSecret, jwksClient))
	root.Handle("/", apiHandler)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// rateLimitMiddleware picks Redis fixed-window limiting when REDIS_ADDR is
// set and falls back to the in-memory limiter for single-instance runs.
func rateLimitMiddleware(logger *slog.Logger) httpx.Middleware {
	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)

	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
		return rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
	}

	rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
	logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	return rl.Middleware()
}
