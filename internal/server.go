package internal

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kazz187/ganttguild/internal/config"
	"github.com/kazz187/ganttguild/internal/project"
	"github.com/kazz187/ganttguild/internal/pushnotification"
	"github.com/kazz187/ganttguild/internal/schedule"
	"github.com/kazz187/ganttguild/internal/taskserver"
	"github.com/kazz187/ganttguild/pkg/cerr"
	"github.com/kazz187/ganttguild/pkg/clog"
	"github.com/kazz187/ganttguild/pkg/connectjson"
)

const healthPath = "/health"

type Server struct {
	server                 *http.Server
	env                    *config.Env
	projectServer          *project.Server
	taskServer             *taskserver.Server
	scheduleServer         *schedule.Server
	pushNotificationServer *pushnotification.Server
}

func NewServer(
	env *config.Env,
	projectServer *project.Server,
	taskServer *taskserver.Server,
	scheduleServer *schedule.Server,
	pushNotificationServer *pushnotification.Server,
) *Server {
	return &Server{
		env:                    env,
		projectServer:          projectServer,
		taskServer:             taskServer,
		scheduleServer:         scheduleServer,
		pushNotificationServer: pushNotificationServer,
	}
}

// Handler builds the complete HTTP handler: RPC procedures, the REST read
// API below /api and the health endpoints, behind CORS and the API key check.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(
			clog.SlogChiMiddleware(),
			cerr.NewConvertConnectErrorChiMiddleware(),
		)
		s.scheduleServer.Routes(r)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
		})
	})

	mux := http.NewServeMux()

	mux.Handle(healthPath, &HealthChecker{})
	mux.Handle("/api/", r)
	mux.Handle(grpchealth.NewHandler(grpchealth.NewStaticChecker(
		project.ServiceName,
		taskserver.ServiceName,
		schedule.ServiceName,
		pushnotification.ServiceName,
	)))

	handlerOpts := connect.WithInterceptors(s.interceptors()...)
	var procedures []connectjson.Procedure
	procedures = append(procedures, s.projectServer.Procedures(handlerOpts)...)
	procedures = append(procedures, s.taskServer.Procedures(handlerOpts)...)
	procedures = append(procedures, s.scheduleServer.Procedures(handlerOpts)...)
	procedures = append(procedures, s.pushNotificationServer.Procedures(handlerOpts)...)
	for _, p := range procedures {
		mux.Handle(p.Path, p.Handler)
	}

	return h2c.NewHandler(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.apiKeyMiddleware(mux)), &http2.Server{})
}

// ListenAndServe uses ctx as the base context of every request, so
// cancelling it also cancels requests blocked on a recalculation.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) interceptors() []connect.Interceptor {
	return []connect.Interceptor{
		clog.NewSlogConnectInterceptor(clog.WithConnectFilter(clog.DefaultConnectHealthCheckUnaryFilter)),
		cerr.NewConvertConnectErrorInterceptor(),
	}
}

func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == healthPath || r.URL.Path == "/"+grpchealth.HealthV1ServiceName+"/Check" {
			next.ServeHTTP(w, r)
			return
		}
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.env.APIKey)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
