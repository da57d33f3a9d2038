package main

import (
	"bufio"
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"room-sync/internal/config"
	"room-sync/internal/handlers"
	httpapi "room-sync/internal/http"
	"room-sync/internal/logging"
	"room-sync/internal/repos"
	"room-sync/internal/room"
	"room-sync/internal/services"
	"room-sync/internal/ws"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	var store services.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("sqlite", cfg.DatabaseURL)
		if err != nil {
			logger.Errorf("open database: %v", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := runMigrations(db, cfg.MigrationsDir); err != nil {
			logger.Errorf("migrations: %v", err)
			os.Exit(1)
		}
		store = repos.NewRoomRepo(db)
	} else {
		logger.Warnf("persistence disabled: no database url")
	}

	registry := room.NewRegistry(cfg.RoomGrace)
	svc := services.NewSyncService(registry, store, logger.Named("sync"), cfg.TombstoneTTL)
	hub := ws.NewHub()
	wsh := ws.NewHandler(svc, logger.Named("ws"), hub, cfg.HeartbeatInterval)
	rh := handlers.NewRoomHandler(registry, hub)
	router := httpapi.NewRouter(logger.Named("http"), rh, wsh)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	go runSweeps(sweepCtx, svc, cfg, logger.Named("sweep"))

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Infof("room-sync listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("shutting down")
	sweepCancel()
	hub.Shutdown("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

// runSweeps drives the periodic maintenance: reclaiming rooms that stayed
// empty past the grace period and garbage-collecting expired tombstones.
func runSweeps(ctx context.Context, svc *services.SyncService, cfg config.Config, logger *logging.Logger) {
	roomTicker := time.NewTicker(cfg.RoomSweepInterval)
	defer roomTicker.Stop()
	gcTicker := time.NewTicker(cfg.TombstoneGCInterval)
	defer gcTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-roomTicker.C:
			if n := svc.SweepRooms(); n > 0 {
				logger.Infof("reclaimed %d empty room(s)", n)
			}
		case <-gcTicker.C:
			if n := svc.CollectTombstones(); n > 0 {
				logger.Infof("collected %d expired tombstone(s)", n)
			}
		}
	}
}

func runMigrations(db *sql.DB, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, f := range files {
		if err := applySQLFile(db, filepath.Join(dir, f)); err != nil {
			return err
		}
	}
	return nil
}

func applySQLFile(db *sql.DB, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024), 1024*1024)
	var sb strings.Builder
	for scanner.Scan() {
		sb.WriteString(scanner.Text())
		sb.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	_, err = db.Exec(sb.String())
	return err
}
