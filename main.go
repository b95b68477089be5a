// File: schedulebot/main.go
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"schedulebot/config"
	"schedulebot/cron"
	"schedulebot/database"
	bookingRepo "schedulebot/database/repository/bookings"
	sessionRepo "schedulebot/database/repository/session"
	"schedulebot/handlers"
	"schedulebot/middleware"
	"schedulebot/routes"
	"schedulebot/services/availability"
	"schedulebot/services/booking"
	"schedulebot/services/calendar"
	"schedulebot/services/dialog"
	"schedulebot/services/notification"
	"schedulebot/services/reservation"
	"schedulebot/services/rotation"
	"schedulebot/services/tasks"
	"schedulebot/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const calendarMaxFailures = 5

func newSessionStore(cfg config.Config) sessionRepo.SessionStore {
	switch cfg.SessionBackend {
	case "redis":
		return sessionRepo.NewRedisSessionStore(utils.GetSessionClient(), cfg.SessionTTL)
	case "mongo":
		return sessionRepo.NewMongoSessionStore(database.Database())
	default:
		return sessionRepo.NewMemorySessionStore()
	}
}

func newRotationMemory(ctx context.Context, cfg config.Config) rotation.Memory {
	if cfg.RotationBackend == "redis" {
		return rotation.NewRedisMemory(utils.GetRotationClient(), cfg.SuggestionTTL)
	}
	mem := rotation.NewInProcessMemory(cfg.SuggestionTTL)
	mem.StartJanitor(ctx, cfg.SuggestionTTL)
	return mem
}

func newCalendarGateway(ctx context.Context, cfg config.Config, logger *zap.Logger) calendar.Gateway {
	if cfg.CalendarBackend != "google" {
		logger.Warn("Using the in-memory calendar; bookings are lost on restart")
		return calendar.NewMemoryGateway()
	}
	loc, _ := cfg.Location()
	gw, err := calendar.NewGoogleGateway(ctx, cfg.GoogleCalendarID, calendar.GoogleCredentials{
		ProjectID:    cfg.GoogleProjectID,
		PrivateKeyID: cfg.GooglePrivateKeyID,
		PrivateKey:   cfg.GooglePrivateKey,
		ClientEmail:  cfg.GoogleServiceAccountEmail,
		ClientID:     cfg.GoogleClientID,
	}, loc)
	if err != nil {
		logger.Fatal("main: failed to initialize google calendar", zap.Error(err))
	}
	return gw
}

func newReminderSender(cfg config.Config, logger *zap.Logger) notification.Sender {
	sender, err := notification.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
	if err != nil {
		logger.Warn("Reminders will only be logged", zap.Error(err))
		return notification.LogSender{Logger: logger}
	}
	return sender
}

func main() {
	config.LoadConfig()
	cfg := config.AppConfig
	logger := utils.GetLogger()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, _ := cfg.Location()
	weekly, _ := cfg.WeeklyHours()

	if cfg.DatabaseURL != "" {
		database.InitDB()
	}

	// Calendar.
	guarded := calendar.NewGuardedGateway(newCalendarGateway(ctx, cfg, logger), cfg.CalendarTimeout, calendarMaxFailures, logger)
	hours := calendar.NewBusinessCalendar(weekly, cfg.MorningCutoff, loc)
	engine := availability.NewEngine(hours, guarded, newRotationMemory(ctx, cfg), availability.Settings{
		SlotDuration:     cfg.SlotDuration,
		Grid:             cfg.SlotGrid,
		MaxLookaheadDays: cfg.MaxLookaheadDays,
	}, logger)

	// Booking records and reminders.
	var records bookingRepo.BookingRepository
	if database.MongoClient != nil {
		records = bookingRepo.NewMongoBookingRepo(database.Database())
		if err := bookingRepo.EnsureIndexes(ctx, records); err != nil {
			logger.Error("main: failed to create booking indexes", zap.Error(err))
		}
	}

	var reminders booking.ReminderScheduler
	var worker *asynq.Server
	if cfg.RemindersEnabled {
		queue := asynq.NewClient(cron.QueueRedisOpt())
		defer queue.Close()
		reminders = tasks.NewScheduler(queue, cfg.ReminderLead, cfg.BusinessName, logger)
		worker = cron.InitReminderWorker(newReminderSender(cfg, logger), logger)
	}

	bookingService := booking.NewService(engine, guarded, records, reminders, cfg.BusinessName, logger)

	machine := dialog.NewMachine(newSessionStore(cfg), engine, bookingService, dialog.Options{
		BusinessName:       cfg.BusinessName,
		CalculatorURL:      cfg.CalculatorURL,
		ResetWords:         cfg.MenuResetWords,
		BookingHorizonDays: cfg.BookingHorizonDays,
		LookaheadDays:      cfg.MaxLookaheadDays,
	}, logger)
	tools := reservation.NewTools(engine, guarded, bookingService, logger)

	var probe utils.CalendarProbe
	if cfg.CalendarBackend == "google" {
		probe = func(ctx context.Context) error {
			now := time.Now()
			_, err := guarded.QueryBusy(ctx, now, now.Add(time.Hour))
			return err
		}
	}
	utils.StartHealthMonitor(ctx, utils.RedisClients(), database.MongoClient, probe)

	limiter := middleware.NewRateLimiter(cfg.MaxMessagesPerMin)
	limiter.StartCleanup(ctx, 5*time.Minute, 10*time.Minute)

	conversationHandler := handlers.NewConversationHandler(machine)
	toolsHandler := handlers.NewToolsHandler(tools)

	handlerBundle := &handlers.HandlerBundle{
		JWTSecret:        cfg.JWTSecret,
		TwilioAuthToken:  cfg.TwilioAuthToken,
		WebhookPublicURL: cfg.WebhookPublicURL,
		ConsoleEnabled:   !config.IsProduction(),
		Limiter:          limiter,

		WhatsAppWebhookHandler: conversationHandler.WhatsAppWebhookHandler,
		ConsoleMessageHandler:  conversationHandler.ConsoleMessageHandler,
		ToolsWebhookHandler:    toolsHandler.ToolsWebhookHandler,
		HealthHandler:          handlers.HealthHandler(cfg.GoogleCalendarID),
	}

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(middleware.RequestLogger(logger))
	routes.RegisterRoutes(router, handlerBundle)

	srv := &http.Server{
		Addr:    "0.0.0.0:" + cfg.AppPort,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Sugar().Info("main: server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar().Errorf("main: server forced to shutdown: %v", err)
	}
	if worker != nil {
		worker.Shutdown()
	}
	for _, client := range utils.RedisClients() {
		client.Close()
	}
	if err := database.Close(shutdownCtx); err != nil {
		logger.Sugar().Errorf("main: failed to close MongoDB: %v", err)
	}

	logger.Sugar().Info("main: server stopped gracefully")
}
