package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/gridhall/gridhall/auth"
	"github.com/gridhall/gridhall/config"
	"github.com/gridhall/gridhall/globals"
	"github.com/gridhall/gridhall/persistence"
	"github.com/gridhall/gridhall/types"
	"github.com/gridhall/gridhall/ws"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	configPath string

	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "gridhall",
		Short:        "realtime multi-room tile presence server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file or directory")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "start the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}

	var mintId, mintName, mintColor string
	mintCmd := &cobra.Command{
		Use:   "mint-token",
		Short: "mint a signed agent token against the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tokens := auth.NewTokenManager(cfg.TokenSecret, cfg.TokenTTL)
			token, err := tokens.Mint(auth.Identity{AgentId: mintId, Name: mintName, BodyColor: mintColor}, time.Now())
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	mintCmd.Flags().StringVar(&mintId, "agent-id", "", "agent id (subject)")
	mintCmd.Flags().StringVar(&mintName, "name", "", "display name")
	mintCmd.Flags().StringVar(&mintColor, "color", "#3B82F6", "body color")
	_ = mintCmd.MarkFlagRequired("agent-id")
	_ = mintCmd.MarkFlagRequired("name")

	rootCmd.AddCommand(serveCmd, mintCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	flagSet := config.GetFlagSet()
	flagSet.AddFlagSet(pflag.CommandLine)
	cfg, err := config.ReadConfiguration(configPath, flagSet)
	if err != nil {
		return nil, err
	}
	if cfg.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(cfg.LogLevel))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serve() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	persister, err := persistence.NewPersister(cfg)
	if err != nil {
		return err
	}
	defer persister.Close()

	tokens := auth.NewTokenManager(cfg.TokenSecret, cfg.TokenTTL)
	registry := ws.NewRegistry(cfg, persister, tokens)
	if err := registry.Start(); err != nil {
		return err
	}
	defer registry.Stop()

	router := mux.NewRouter()
	router.HandleFunc("/ws", websocketHandler(registry)).Methods(http.MethodGet)
	router.HandleFunc("/healthz", healthzHandler(registry)).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms/active", roomsHandler(registry.ActiveRooms)).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms/most-watched", roomsHandler(registry.MostWatchedRooms)).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms/search", searchHandler(registry)).Methods(http.MethodGet)

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	errChan := make(chan error, 1)
	go func() {
		globals.AppLogger.Info("listening", "addr", cfg.Addr())
		errChan <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		globals.AppLogger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	}
}

// websocketHandler upgrades the connection and drives it until close.
func websocketHandler(registry *ws.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			globals.AppLogger.Error("websocket upgrade error", "error", err)
			return
		}
		c := ws.NewClient(registry, conn)
		go c.WriteLoop()
		c.ReadLoop()
	}
}

func healthzHandler(registry *ws.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agents, spectators := registry.ConnectionCounts()
		writeJSON(w, map[string]interface{}{
			"status":     "ok",
			"rooms":      registry.RoomCount(),
			"agents":     agents,
			"spectators": spectators,
		})
	}
}

func roomsHandler(query func() []types.RoomSummary) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, query())
	}
}

func searchHandler(registry *ws.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, registry.Search(r.URL.Query().Get("q")))
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		globals.AppLogger.Error("could not encode response", "error", err)
	}
}
