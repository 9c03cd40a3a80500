package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/gridworld-fuzzer/api"
	"github.com/wricardo/gridworld-fuzzer/game/config"
	"github.com/wricardo/gridworld-fuzzer/game/service"
	"github.com/wricardo/gridworld-fuzzer/game/session"
	"github.com/wricardo/gridworld-fuzzer/transport/mcp"
	"github.com/wricardo/gridworld-fuzzer/transport/websocket"
)

const (
	runRetention    = 24 * time.Hour
	cleanupInterval = time.Hour
	syncInterval    = 5 * time.Second
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP server with REST API, WebSocket progress and an /mcp endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Value: "localhost", Usage: "HTTP server host"},
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "HTTP server port", Sources: cli.EnvVars("PORT")},
			&cli.StringFlag{Name: "store", Value: "file", Usage: "run storage: file, sqlite or memory", Sources: cli.EnvVars("RUN_STORE")},
			&cli.StringFlag{Name: "data", Value: "runs", Usage: "run directory (file) or database path (sqlite)", Sources: cli.EnvVars("RUN_DATA")},
			&cli.BoolFlag{Name: "ngrok", Usage: "enable ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "custom ngrok domain (optional)", Sources: cli.EnvVars("NGROK_DOMAIN")},
		},
		Action: serveAction,
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "run an MCP stdio server backed by the REST API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api-url", Value: "http://localhost:8080", Usage: "API server to reuse when it is running", Sources: cli.EnvVars("FUZZER_API_URL")},
		},
		Action: mcpAction,
	}
}

// services is everything a server needs, plus how to stop it
type services struct {
	runs    service.RunService
	hub     *websocket.Hub
	manager *session.Manager
	store   session.RunPersistence
	closers []io.Closer
}

// initializeServices wires the config manager, run storage, progress hub
// and run service
func initializeServices(ctx context.Context, configDir, store, data string) (*services, error) {
	configManager, err := config.NewManager(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	s := &services{}
	switch store {
	case "memory":
		s.manager = session.NewManager()
	case "file":
		fp, err := session.NewFilePersistence(data)
		if err != nil {
			return nil, fmt.Errorf("failed to create run persistence: %w", err)
		}
		s.store = fp
	case "sqlite":
		if filepath.Ext(data) == "" {
			data = filepath.Join(data, "runs.db")
		}
		if err := os.MkdirAll(filepath.Dir(data), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		sp, err := session.NewSQLitePersistence(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("failed to open run database: %w", err)
		}
		s.store = sp
		s.closers = append(s.closers, sp)
	default:
		return nil, fmt.Errorf("unknown store %q (want file, sqlite or memory)", store)
	}

	if s.store != nil {
		s.manager = session.NewManagerWithPersistence(s.store)
		if err := s.manager.LoadPersisted(); err != nil {
			log.Printf("Warning: Failed to load persisted runs: %v", err)
		}
	}

	s.hub = websocket.NewHub()
	s.runs = service.NewRunService(s.manager, configManager, s.hub)
	return s, nil
}

// shutdown cancels running jobs, flushes runs to storage and closes the hub
func (s *services) shutdown(ctx context.Context) {
	if err := s.runs.Shutdown(ctx); err != nil {
		log.Printf("Run service shutdown error: %v", err)
	}
	s.hub.Stop()
	if err := s.manager.SaveAll(); err != nil {
		log.Printf("Warning: Failed to save runs: %v", err)
	}
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			log.Printf("Warning: Failed to close store: %v", err)
		}
	}
}

// newRouter mounts the API at the root and the MCP proxy at /mcp
func newRouter(apiServer http.Handler, mcpClient *mcp.Client) http.Handler {
	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)

	mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})

	return mainRouter
}

// serveAction starts the HTTP server and, when enabled, an ngrok tunnel.
// It blocks until ctx is cancelled by a signal.
func serveAction(ctx context.Context, cmd *cli.Command) error {
	svc, err := initializeServices(ctx, cmd.String("config-dir"), cmd.String("store"), cmd.String("data"))
	if err != nil {
		return err
	}
	go svc.hub.Run()

	addr := fmt.Sprintf("%s:%d", cmd.String("host"), cmd.Int("port"))
	mcpClient := mcp.NewClient(fmt.Sprintf("http://%s", addr))
	handler := newRouter(api.NewServer(svc.runs, svc.hub), mcpClient)

	httpServer := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		cleanupRoutine(ctx, svc.manager)
	}()
	if svc.store != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			storeSyncRoutine(ctx, svc.manager, svc.store)
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("Starting %s v%s (store: %s)", AppName, Version, cmd.String("store"))
		log.Printf("HTTP server listening on %s", addr)
		log.Printf("REST API: http://%s/api", addr)
		log.Printf("WebSocket: ws://%s/ws?run=<run_id>", addr)
		log.Printf("MCP endpoint: http://%s/mcp", addr)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	if cmd.Bool("ngrok") {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(ctx, cmd.String("ngrok-auth"), cmd.String("ngrok-domain"), handler)
		}()
	}

	select {
	case <-ctx.Done():
		log.Println("Shutting down...")
	case err = <-serverErr:
		log.Printf("HTTP server failed: %v", err)
	}
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	svc.shutdown(shutdownCtx)

	wg.Wait()
	log.Println("Server stopped")
	return err
}

// runNgrok serves handler through an ngrok tunnel until ctx is cancelled
func runNgrok(ctx context.Context, authToken, domain string, handler http.Handler) {
	if authToken == "" {
		log.Println("WARNING: Ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	log.Println("Starting ngrok tunnel...")

	var tunnel ngrokConfig.Tunnel
	if domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
		log.Printf("Using custom ngrok domain: %s", domain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		log.Printf("Failed to start ngrok tunnel: %v", err)
		return
	}
	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			log.Printf("Failed to close ngrok tunnel: %v", err)
		}
	}()

	ngrokURL := tun.URL()
	log.Printf("🚀 Ngrok tunnel established: %s", ngrokURL)
	log.Printf("  REST API (ngrok): %s/api", ngrokURL)
	log.Printf("  WebSocket (ngrok): %s/ws?run=<run_id>", ngrokURL)
	log.Printf("  MCP endpoint (ngrok): %s/mcp", ngrokURL)

	if err := http.Serve(tun, handler); err != nil && err != http.ErrServerClosed {
		log.Printf("Ngrok server error: %v", err)
	}
	log.Println("Ngrok tunnel closed")
}

// cleanupRoutine periodically removes finished runs that have not been
// accessed within the retention window
func cleanupRoutine(ctx context.Context, manager *session.Manager) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := manager.CleanupExpired(runRetention); removed > 0 {
				log.Printf("Cleaned up %d expired runs", removed)
			}
		}
	}
}

// storeSyncRoutine prunes finished runs from memory once their stored copy
// has been deleted out of band
func storeSyncRoutine(ctx context.Context, manager *session.Manager, store session.RunPersistence) {
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pruned := pruneOrphans(manager, store); pruned > 0 {
				log.Printf("Store sync: pruned %d orphaned runs from memory", pruned)
			}
		}
	}
}

func pruneOrphans(manager *session.Manager, store session.RunPersistence) int {
	pruned := 0
	for _, run := range manager.List() {
		rec := run.Record()
		if rec.Status == service.StatusRunning || store.Exists(rec.ID) {
			continue
		}
		if err := manager.DeleteFromMemory(rec.ID); err == nil {
			pruned++
			log.Printf("Pruned run %s from memory (stored copy deleted)", rec.ID)
		}
	}
	return pruned
}

// mcpAction runs an MCP stdio server. It reuses the API at --api-url when
// it answers; otherwise it starts an internal API on a loopback port with
// in-memory run storage.
func mcpAction(ctx context.Context, cmd *cli.Command) error {
	externalURL := cmd.String("api-url")
	log.Printf("Checking for external API server at %s...", externalURL)

	baseURL := externalURL
	testClient := &http.Client{Timeout: 2 * time.Second}
	resp, err := testClient.Get(externalURL + "/api/health")
	if err == nil && resp.StatusCode < 500 {
		resp.Body.Close()
		log.Printf("External API server found at %s, using it for MCP", externalURL)
	} else {
		log.Printf("No external API server found, starting internal HTTP server")

		svc, err := initializeServices(ctx, cmd.String("config-dir"), "memory", "")
		if err != nil {
			return err
		}
		go svc.hub.Run()
		defer svc.shutdown(context.Background())

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}

		httpServer := &http.Server{Handler: api.NewServer(svc.runs, svc.hub)}
		go func() {
			if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
				log.Printf("Internal HTTP server error: %v", err)
			}
		}()
		defer httpServer.Close()

		baseURL = fmt.Sprintf("http://%s", listener.Addr().String())
		log.Printf("Internal HTTP server for MCP stdio on %s", baseURL)
	}

	mcpClient := mcp.NewClient(baseURL)
	log.Println("MCP stdio server ready")

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}
