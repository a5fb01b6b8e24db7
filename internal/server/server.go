// Package server wires the services, the Huma API and the viewer pages.
package server

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-collab/internal/api"
	"github.com/joeblew999/plat-collab/internal/api/viewer"
	"github.com/joeblew999/plat-collab/internal/db"
	"github.com/joeblew999/plat-collab/internal/humastar"
	"github.com/joeblew999/plat-collab/internal/logging"
	"github.com/joeblew999/plat-collab/internal/maputil"
	"github.com/joeblew999/plat-collab/internal/metrics"
	"github.com/joeblew999/plat-collab/internal/service"
	"github.com/joeblew999/plat-collab/internal/templates"
	"github.com/joeblew999/plat-collab/internal/wms"
)

// Config holds the server configuration.
type Config struct {
	Host       string
	Port       string
	DataDir    string
	WebDir     string // static files and page templates; fragments under templates/fragments override the embedded ones
	DBName     string // empty keeps the feature store in memory
	LogLevel   string
	Defaults   api.Defaults
	SessionTTL time.Duration
	WMSTimeout time.Duration
}

// Server is the map HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	services *api.Services
	renderer *templates.Renderer
	links    humastar.Links
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// New creates a server. A feature store that fails to open is logged and
// left out; the feature routes then answer 503.
func New(cfg Config) *Server {
	log := logging.New(cfg.LogLevel)
	return NewWithLogger(cfg, log)
}

// NewWithLogger is New with an explicit logger.
func NewWithLogger(cfg Config, log zerolog.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		config:  cfg,
		mux:     mux,
		metrics: metrics.New(),
		log:     log,
	}

	humaConfig := huma.DefaultConfig("plat-collab API", api.Version)
	humaConfig.Info.Description = "Map sessions over WMS/TMS base layers with project feature overlays and GetFeatureInfo popups."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// no $schema property in responses
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	// AutoLinks needs the registered operations, so the transformer reads
	// s.links once routes() has filled it.
	humaConfig.Transformers = append(humaConfig.Transformers, func(ctx huma.Context, status string, v any) (any, error) {
		return s.links.Transformer()(ctx, status, v)
	})
	s.humaAPI = humago.New(mux, humaConfig)

	s.renderer = templates.Default()
	if cfg.WebDir != "" {
		fragmentsDir := filepath.Join(cfg.WebDir, "templates", "fragments")
		if r, err := templates.New(fragmentsDir); err == nil {
			s.renderer = r
		} else {
			log.Warn().Err(err).Str("dir", fragmentsDir).Msg("fragment templates not loaded, using embedded set")
		}
	}

	bus := service.NewEventBus()
	wmsClient := wms.NewClient(cfg.WMSTimeout)
	rendererLog := log.With().Str("component", "renderer").Logger()
	s.services = &api.Services{
		Layer:   service.NewLayerService(cfg.DataDir, bus),
		BaseMap: service.NewBaseMapService(cfg.DataDir, bus),
		Source:  service.NewSourceService(cfg.DataDir),
		Session: service.NewSessionService(bus,
			service.WithSessionTTL(cfg.SessionTTL),
			service.WithSessionLogger(log.With().Str("component", "sessions").Logger()),
			service.WithSessionMetrics(s.metrics),
			service.WithRendererFactory(func() *maputil.Renderer {
				return maputil.New(
					maputil.WithTemplates(s.renderer),
					maputil.WithWMSClient(wmsClient),
					maputil.WithLogger(rendererLog),
					maputil.WithMetrics(s.metrics),
				)
			}),
		),
		WMS:      wmsClient,
		Bus:      bus,
		Defaults: cfg.Defaults,
		DataDir:  cfg.DataDir,
	}

	conn, err := db.Open(db.Config{DataDir: cfg.DataDir, DBName: cfg.DBName})
	if err != nil {
		log.Error().Err(err).Msg("feature store unavailable")
	} else {
		s.db = conn
		s.services.Feature = service.NewFeatureService(conn, bus)
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Handler wraps the server with request logging and metrics.
func (s *Server) Handler() http.Handler {
	return s.observe(s)
}

// Services exposes the wired services, e.g. for the CLI import command.
func (s *Server) Services() *api.Services {
	return s.services
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Close ends every map session and closes the feature store.
func (s *Server) Close() error {
	s.services.Session.Close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Server) routes() {
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(s.services, s.log))
	huma.AutoRegister(s.humaAPI, viewer.New(s.services, s.renderer, s.log))
	s.links = humastar.AutoLinks(s.humaAPI)

	s.mux.Handle("/metrics", s.metrics.Handler())

	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}

	s.mux.HandleFunc("/viewer", s.handleViewer)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	for _, link := range s.links.Root() {
		w.Header().Add("Link", link)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-collab",
		"status":  "running",
		"version": api.Version,
	})
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	templatePath := filepath.Join(s.config.WebDir, "templates", "viewer.html")
	if _, err := os.Stat(templatePath); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, templatePath)
}
