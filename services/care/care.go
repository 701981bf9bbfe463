package main

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/carevine/carevine/core"
	"github.com/carevine/carevine/core/access"
	"github.com/carevine/carevine/core/backend"
	"github.com/carevine/carevine/core/credential"
	"github.com/carevine/carevine/core/csql"
	"github.com/carevine/carevine/core/events"
	"github.com/carevine/carevine/core/logger"
	"github.com/carevine/carevine/core/schema"
)

var configurationJSON string = `
{
	"resources": [
	  {
		"key": "patients",
		"handler": "patient_collection",
		"description": "residents under care"
	  },
	  {
		"key": "reminders",
		"handler": "reminder_collection",
		"description": "care reminders, e.g. medication schedules"
	  },
	  {
		"key": "checkups",
		"handler": "checkup_collection",
		"description": "recorded health checkups"
	  },
	  {
		"key": "bulletins",
		"handler": "bulletin_collection",
		"description": "facility announcements, readable without login"
	  }
	]
}
`

var reminderSchemaJSON string = `{
	"$id": "https://carevine.example/reminder.json",
	"type": "object",
	"properties": {
		"title": {"type": "string", "minLength": 1},
		"notes": {"type": "string"},
		"due_at": {"type": "string", "format": "date-time"}
	},
	"required": ["title"]
}`

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres password=docker dbname=postgres sslmode=disable"
//
// Without POSTGRES the service runs on in-memory stores, for development
// only. Without KAFKA_BROKERS resource notifications are disabled.
type Service struct {
	Postgres           string        `env:"POSTGRES,optional" description:"the connection string for the Postgres DB"`
	Port               string        `env:"PORT,default=3000" description:"the port to listen on"`
	LogLevel           string        `env:"LOG_LEVEL,default=info" description:"log level: debug, info, warning or error"`
	KafkaBrokers       string        `env:"KAFKA_BROKERS,optional" description:"comma separated kafka brokers for resource notifications"`
	NotificationTopic  string        `env:"NOTIFICATION_TOPIC,default=resource_notification" description:"kafka topic for resource notifications"`
	TokenValidity      time.Duration `env:"TOKEN_VALIDITY,default=720h" description:"bearer token lifetime, 0 disables expiry"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT,default=30s" description:"execution limit for a single resource request"`
	ServiceTokenSecret string        `env:"SERVICE_TOKEN_SECRET,optional" description:"HMAC secret for service-to-service JWT tokens"`
	CORSOrigins        string        `env:"CORS_ORIGINS,default=*" description:"comma separated allowed CORS origins"`
}

// patientProfileLoader links a user account to the patient record with
// the same email, so that /user carries the patient's care fields.
type patientProfileLoader struct {
	store backend.RecordStore
}

func (l patientProfileLoader) LoadProfile(ctx context.Context, principal *access.Principal) (map[string]interface{}, error) {
	records, err := l.store.List(ctx, "patient")
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if email, ok := record["email"].(string); ok && email == principal.Email {
			return map[string]interface{}{"patient": map[string]interface{}(record)}, nil
		}
	}
	return nil, nil
}

func main() {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}

	logLevel, err := logrus.ParseLevel(service.LogLevel)
	if err != nil {
		panic(err)
	}
	logger.InitLogger(logLevel)
	rlog := logger.Default()

	var records backend.RecordStore
	var principals access.PrincipalStore
	var credentials credential.Store
	var db *csql.DB
	if len(service.Postgres) > 0 {
		db = csql.MustOpenWithSchema(service.Postgres, "care")
		defer db.Close()
		records = backend.NewPostgresRecordStore(db)
		principals, err = access.NewPostgresPrincipalStore(db)
		if err != nil {
			panic(err)
		}
		credentials, err = credential.NewPostgresStore(db, service.TokenValidity)
		if err != nil {
			panic(err)
		}
	} else {
		rlog.Warningln("POSTGRES not set, running on in-memory stores")
		records = backend.NewMemoryRecordStore()
		principals = access.NewMemoryPrincipalStore()
		credentials = credential.NewMemoryStore(service.TokenValidity)
	}

	resolver := access.NewResolver(principals, credentials).
		WithProfileLoader(patientProfileLoader{store: records})

	schemas, err := schema.NewValidator([]string{reminderSchemaJSON}, nil)
	if err != nil {
		panic(err)
	}

	var notifier core.Notifier
	if len(service.KafkaBrokers) > 0 {
		kafkaNotifier := events.NewKafkaNotifier(
			strings.Split(service.KafkaBrokers, ","), service.NotificationTopic)
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
	}

	handlerRegistry := backend.NewHandlerRegistry().
		Register("patient_collection", backend.NewCollectionFamily(backend.CollectionSpec{
			Model:    "patient",
			Fillable: []string{"name", "email", "room", "birth_date", "care_level", "notes"},
		}, records, schemas, notifier)).
		Register("reminder_collection", backend.NewCollectionFamily(backend.CollectionSpec{
			Model:    "reminder",
			Fillable: []string{"title", "notes", "due_at"},
			SchemaID: "https://carevine.example/reminder.json",
		}, records, schemas, notifier)).
		Register("checkup_collection", backend.NewCollectionFamily(backend.CollectionSpec{
			Model:    "checkup",
			Fillable: []string{"patient_id", "kind", "result", "recorded_at"},
		}, records, schemas, notifier)).
		Register("bulletin_collection", backend.NewCollectionFamily(backend.CollectionSpec{
			Model:            "bulletin",
			Fillable:         []string{"title", "body"},
			PublicOperations: []core.Operation{core.OperationList, core.OperationRead},
		}, records, schemas, notifier))

	router := mux.NewRouter()
	logger.AddRequestID(router)
	router.Use(access.NewMiddleware(resolver))
	if len(service.ServiceTokenSecret) > 0 {
		router.Use(access.NewServiceTokenMiddleware([]byte(service.ServiceTokenSecret), "carevine"))
	}
	access.HandleAuthRoutes(router, resolver)

	backend.MustNew(&backend.Builder{
		Config:         configurationJSON,
		Router:         router,
		Registry:       handlerRegistry,
		Store:          records,
		DB:             db,
		RequestTimeout: service.RequestTimeout,
	})

	handler := handlers.CORS(
		handlers.AllowedOrigins(strings.Split(service.CORSOrigins, ",")),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)(handlers.CombinedLoggingHandler(os.Stdout, router))

	server := &http.Server{
		Addr:         ":" + service.Port,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	rlog.Infoln("listen on port :" + service.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		panic(err)
	}
}
