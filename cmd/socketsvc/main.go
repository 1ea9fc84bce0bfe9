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
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/quiz-services/configs"
	"github.com/avvvet/quiz-services/internal/comm"
	"github.com/avvvet/quiz-services/internal/nats"
	svcconfig "github.com/avvvet/quiz-services/internal/socketsvc/config"

	"github.com/avvvet/quiz-services/internal/socketsvc/broker"
	"github.com/avvvet/quiz-services/internal/socketsvc/routes"
	"github.com/avvvet/quiz-services/internal/socketsvc/ws"
)

const SERVICE_NAME = "socket"

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

	// Connect to NATS
	n, err := nats.Connect("socket service "+instanceId, cfg.NatsURL, cfg.NatsToken)
	if err != nil {
		log.Fatalf("Error: unable to connect to NATS server %v", err)
	}

	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(c.Handler)

	// to protect the service api from any over requests
	r.Use(httprate.LimitByIP(cfg.RateLimit, 1*time.Minute))

	// Initialize websocket handler
	s := ws.NewWs()

	// Initialize routes
	tokenAuth := jwtauth.New("HS256", []byte(cfg.JWTSecret), nil)
	routes.SetRoutes(r, s, tokenAuth, cfg.Port)

	// broker relays game service messages to sockets
	b := broker.NewBroker(n.Conn, s.GetConnection, s.GetRoomSockets)
	b.AssignRoom = s.StoreRoom
	b.Identify = s.Identify
	s.Broker = b

	// subscribe to game server
	sub, err := b.Subscribe(n.Conn, comm.GameServiceTopic)
	if err != nil {
		log.Fatalf("Error: unable to subscribe to queue %v", err)
	}

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

	sub.Unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
