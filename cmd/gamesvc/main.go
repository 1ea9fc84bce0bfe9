package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"

	config "github.com/avvvet/quiz-services/configs"
	mongodb "github.com/avvvet/quiz-services/internal/db"
	"github.com/avvvet/quiz-services/internal/gamesvc/broker"
	"github.com/avvvet/quiz-services/internal/gamesvc/catalog"
	svcconfig "github.com/avvvet/quiz-services/internal/gamesvc/config"
	"github.com/avvvet/quiz-services/internal/gamesvc/db"
	"github.com/avvvet/quiz-services/internal/gamesvc/fanout"
	handlers "github.com/avvvet/quiz-services/internal/gamesvc/handlers"
	"github.com/avvvet/quiz-services/internal/gamesvc/reaper"
	"github.com/avvvet/quiz-services/internal/gamesvc/service"
	"github.com/avvvet/quiz-services/internal/gamesvc/session"
	"github.com/avvvet/quiz-services/internal/gamesvc/store"
	nats "github.com/avvvet/quiz-services/internal/nats"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "game"

var instanceId string

func init() {
	config.LoadEnv(SERVICE_NAME)
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId[:8])
}

func main() {
	cfg, err := svcconfig.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// quiz catalog
	mdb, disconnect, err := mongodb.ConnectToDB(cfg.MongoURI)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer disconnect(context.Background())
	mongoCatalog := catalog.NewMongoCatalog(mdb)
	if err := mongoCatalog.EnsureIndexes(context.Background()); err != nil {
		log.Warnf("catalog index: %v", err)
	}
	log.Printf("mongo catalog connected")

	// audit log, optional
	var audit store.AuditLog = store.NopAudit{}
	if cfg.PostgresURL != "" {
		dbpool, err := db.Connect(cfg.PostgresURL)
		if err != nil {
			log.Fatalf("Failed to connect to DB: %v", err)
		}
		defer db.ClosePool()
		recorder := store.NewRecorder(store.NewPgAudit(dbpool), cfg.AuditBuffer)
		defer recorder.Close()
		audit = recorder
		log.Printf("pg connection established successfully")
	}

	// room codes are shared through redis when several instances run
	var codes session.CodeRegistry
	if cfg.RedisURL != "" {
		rdb, err := db.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer rdb.Close()
		codes = session.NewRedisCodes(rdb, instanceId, cfg.RoomCodeTTL)
		log.Printf("redis room code registry enabled")
	}

	// Connect to NATS
	n, err := nats.Connect("game service "+instanceId, cfg.NatsURL, cfg.NatsToken)
	if err != nil {
		log.Fatalf("Error: unable to connect to NATS server %v", err)
	}
	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	var b *broker.Broker
	sessions := service.NewSessionService(
		session.NewRegistry(codes),
		fanout.NewHub(),
		catalog.NewCached(mongoCatalog),
		audit,
		service.WithDefaultMaxPlayers(cfg.DefaultMaxPlayers),
		service.WithRoomOpened(func(code string) error { return b.Open(code) }),
	)
	b = broker.NewBroker(broker.NatsBus(n.Conn), sessions)

	// room actions arrive on per-room subjects; this covers room-less and unknown rooms
	if err := b.Listen(); err != nil {
		log.Fatalf("Error: unable to subscribe to socket service %v", err)
	}
	defer b.Stop()

	rp := reaper.New(sessions, cfg.EndedRoomTTL, cfg.IdleRoomTTL)
	if err := rp.Start(cfg.ReapSchedule); err != nil {
		log.Fatalf("Invalid REAP_SCHEDULE %q: %v", cfg.ReapSchedule, err)
	}
	defer rp.Stop()

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(c.Handler)

	// to protect the service api from any over requests
	r.Use(httprate.LimitByIP(cfg.RateLimit, 1*time.Minute))

	// Init handlers and routes
	h := handlers.NewHandler(sessions, cfg.Port)
	h.InitAuth(cfg.JWTSecret)
	h.SetRoutes(r)

	// Create server with timeout settings
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
