package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-collab/internal/api"
	"github.com/joeblew999/plat-collab/internal/logging"
	"github.com/joeblew999/plat-collab/internal/server"
)

// Options defines all CLI flags and env vars for the map server.
// Flags: --host, --port, --data-dir, --web-dir, --db, --log-level, --center,
// --zoom, --fallback-tiles, --session-ttl, --wms-timeout
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, ...
type Options struct {
	Host          string `doc:"Host to bind to" default:"0.0.0.0"`
	Port          int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir       string `doc:"Directory for layer catalogue, basemaps and sources" default:".data"`
	WebDir        string `doc:"Path to web/ directory" default:"web"`
	DB            string `doc:"DuckDB database name under data-dir/duckdb (empty for in-memory)" default:"collab"`
	LogLevel      string `doc:"Log level (debug, info, warn, error)" default:"info"`
	Center        string `doc:"Default map centre as lat,lng" default:"46.6,2.4"`
	Zoom          int    `doc:"Default map zoom" default:"6"`
	FallbackTiles string `doc:"Tile URL used when a map has no base layers" default:"https://tile.openstreetmap.org/{z}/{x}/{y}.png"`
	SessionTTL    string `doc:"Idle time before a map session is dropped" default:"30m"`
	WMSTimeout    string `doc:"GetFeatureInfo request timeout" default:"10s"`
}

func parseCenter(s string) ([2]float64, error) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return [2]float64{}, fmt.Errorf("center %q: want lat,lng", s)
	}
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return [2]float64{}, fmt.Errorf("center latitude: %w", err)
	}
	ln, err := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err != nil {
		return [2]float64{}, fmt.Errorf("center longitude: %w", err)
	}
	return [2]float64{la, ln}, nil
}

func serverConfig(opts *Options) (server.Config, error) {
	center, err := parseCenter(opts.Center)
	if err != nil {
		return server.Config{}, err
	}
	ttl, err := time.ParseDuration(opts.SessionTTL)
	if err != nil {
		return server.Config{}, fmt.Errorf("session ttl: %w", err)
	}
	timeout, err := time.ParseDuration(opts.WMSTimeout)
	if err != nil {
		return server.Config{}, fmt.Errorf("wms timeout: %w", err)
	}
	return server.Config{
		Host:     opts.Host,
		Port:     strconv.Itoa(opts.Port),
		DataDir:  opts.DataDir,
		WebDir:   opts.WebDir,
		DBName:   opts.DB,
		LogLevel: opts.LogLevel,
		Defaults: api.Defaults{
			Center:          center,
			Zoom:            float64(opts.Zoom),
			FallbackService: opts.FallbackTiles,
			FallbackOptions: map[string]any{
				"maxZoom":     19,
				"attribution": "&copy; OpenStreetMap",
			},
		},
		SessionTTL: ttl,
		WMSTimeout: timeout,
	}, nil
}

func newServer(opts *Options) *server.Server {
	cfg, err := serverConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid options: %v\n", err)
		os.Exit(1)
	}
	return server.New(cfg)
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		log := logging.New(opts.LogLevel)
		var httpServer *http.Server

		hooks.OnStart(func() {
			srv := newServer(opts)
			defer srv.Close()

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)
			log.Info().
				Str("server", baseURL).
				Str("data", opts.DataDir).
				Str("viewer", baseURL+"/viewer").
				Str("docs", baseURL+"/docs").
				Msg("plat-collab API server starting")

			httpServer = &http.Server{Addr: addr, Handler: srv.Handler()}
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("server error")
			}
		})

		hooks.OnStop(func() {
			if httpServer == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpServer.Shutdown(ctx)
		})
	})

	cli.Root().Use = "geomap"
	cli.Root().Short = "Collaborative map layers and feature overlays"
	cli.Root().Version = api.Version

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			opts.DB = ""
			srv := newServer(opts)
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// import subcommand: load a GeoJSON file into a project's feature store
	importCmd := &cobra.Command{
		Use:   "import <project> <file.geojson>",
		Short: "Import a GeoJSON FeatureCollection into a project",
		Args:  cobra.ExactArgs(2),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := newServer(opts)
			defer srv.Close()

			features := srv.Services().Feature
			if features == nil {
				fmt.Fprintln(os.Stderr, "Feature store not available")
				os.Exit(1)
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", args[1], err)
				os.Exit(1)
			}
			fc, err := geojson.UnmarshalFeatureCollection(data)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing %s: %v\n", args[1], err)
				os.Exit(1)
			}
			n, err := features.Import(cmd.Context(), args[0], fc)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error importing: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%d features imported into %s\n", n, args[0])
		}),
	}
	cli.Root().AddCommand(importCmd)

	cli.Run()
}
