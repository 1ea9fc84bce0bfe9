package config

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/gofrs/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/joho/godotenv"
)

var InstanceId string

// LoadEnv loads ./.env when present. Deployments that inject the environment directly
// run without the file.
func LoadEnv(service string) {
	log.Infof("%s service configuration and env variables loading started ...", service)
	if err := godotenv.Load("./.env"); err != nil {
		log.Warnf("no .env file loaded, using process environment: %s", err)
		return
	}

	log.Info(".env file loaded.")
}

func CreateUniqueInstance(service string) string {
	id, err := uuid.NewV4() // instance identifier
	if err != nil {
		log.Fatalf("error generating instanceId: %s", err)
	}
	InstanceId = id.String()
	log.Infof(service+" service with Instance ID: %s is ready", id)
	return id.String()
}

func GetInstanceId() string {
	return InstanceId
}

func CORS() *cors.Cors {
	origins := []string{"http://localhost:5173"}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins = strings.Split(v, ",")
	}

	corsOptions := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	})

	return corsOptions
}

// Logging sends logs to .l_g/<service>.log, and to stdout as well when LOG_STDOUT=true.
// LOG_LEVEL picks the level, info by default.
func Logging(service string) {
	log.SetFormatter(&log.TextFormatter{})
	log.SetLevel(logLevel(os.Getenv("LOG_LEVEL")))

	logFolder := ".l_g"

	_, err := os.Stat(logFolder)
	if os.IsNotExist(err) {
		err = os.Mkdir(logFolder, 0755)
		if err != nil {
			log.Warnf("unable to create folder for log %s", err)
			return
		}
	}

	logFilePath := filepath.Join(logFolder, service+".log")

	file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Warnf("unable to open log file, logging to stdout: %s", err)
		return
	}

	if os.Getenv("LOG_STDOUT") == "true" {
		log.SetOutput(io.MultiWriter(os.Stdout, file))
	} else {
		log.SetOutput(file)
	}

	log.Infof("log to file started for service: %s", service)
}

func logLevel(v string) log.Level {
	if v == "" {
		return log.InfoLevel
	}
	lvl, err := log.ParseLevel(v)
	if err != nil {
		log.Warnf("invalid LOG_LEVEL %q, using info", v)
		return log.InfoLevel
	}
	return lvl
}

func CustomLoggerMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				log.WithFields(log.Fields{
					"request_id": middleware.GetReqID(r.Context()),
					"remote":     r.RemoteAddr,
					"status":     ww.Status(),
					"duration":   time.Since(start).String(),
				}).Infof("%s %s %s", r.Method, r.RequestURI, http.StatusText(ww.Status()))
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
