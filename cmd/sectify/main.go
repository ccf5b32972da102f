// Command sectify is C9, the Orchestrator: it wires C1-C8 behind the HTTP
// surface in internal/httpapi and runs the process until interrupted.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/sectify/sectify/internal/authz"
	"github.com/sectify/sectify/internal/config"
	"github.com/sectify/sectify/internal/hls"
	"github.com/sectify/sectify/internal/httpapi"
	"github.com/sectify/sectify/internal/kdf"
	"github.com/sectify/sectify/internal/keyalias"
	"github.com/sectify/sectify/internal/objstore"
	"github.com/sectify/sectify/internal/reaper"
	"github.com/sectify/sectify/internal/store"
	"github.com/sectify/sectify/internal/tokens"
	"github.com/sectify/sectify/internal/watermark"
)

func main() {
	root := &cobra.Command{
		Use:   "sectify",
		Short: "Sectify secure audio streaming server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
	root.AddCommand(detectCommand())

	if err := root.Execute(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(2)
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	db, err := store.Connect(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	slog.Info("postgres ready")

	kv := redis.NewClient(&redis.Options{Addr: cfg.KVAddr})
	defer kv.Close()
	if err := kv.Ping(ctx).Err(); err != nil {
		slog.Warn("keyval unreachable at startup", "err", err)
	} else {
		slog.Info("keyval connected")
	}

	var files objstore.ObjectStore
	switch cfg.StoreBackend {
	case "s3":
		files, err = objstore.NewS3(ctx, objstore.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.StoreBucket,
		})
	default:
		files, err = objstore.NewLocalFS(cfg.UploadRoot)
	}
	if err != nil {
		return fmt.Errorf("object store: %w", err)
	}
	slog.Info("object store ready", "backend", cfg.StoreBackend)

	kdfSvc := kdf.New([]byte(cfg.MasterSecret))
	defer kdfSvc.Zero()

	tokenSvc := tokens.New([]byte(cfg.MasterSecret), cfg.TokenTTLAccess, cfg.TokenTTLMFA)
	keyStore := keyalias.New()
	authzSvc := authz.New(db)

	keyURLBase := func(trackID, alias string) string { return "/api/v1/stream/key/" + alias }
	packager := hls.New(cfg.HLSRoot, keyStore, keyURLBase)

	sweepInterval := cfg.ReaperInterval
	go sweepLoop(ctx, sweepInterval, keyStore, authzSvc)

	r := reaper.New(cfg.HLSRoot, cfg.ReaperInterval, cfg.ReaperAge, slog.Default())
	go r.Run(ctx)

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: httpapi.NewRouter(httpapi.Deps{
			DB:       db,
			KV:       kv,
			Files:    files,
			KDF:      kdfSvc,
			Tokens:   tokenSvc,
			AuthZ:    authzSvc,
			Keys:     keyStore,
			Packager: packager,
			HLSRoot:  cfg.HLSRoot,
			Log:      slog.Default(),
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	slog.Info("listening", "port", cfg.HTTPPort)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// sweepLoop periodically purges expired key aliases and access grants —
// the two components whose invariant is that they are never persisted, so
// their memory footprint must be reclaimed directly rather than by a
// database TTL.
func sweepLoop(ctx context.Context, interval time.Duration, keys *keyalias.Store, az *authz.Service) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			keys.Sweep()
			az.Sweep()
		}
	}
}

// detectCommand exposes the offline, admin-only watermark extractor
// (internal/watermark.Detect) as a maintenance task rather than an HTTP
// route, per spec.md's framing of C3's detection side as investigative
// tooling, not a user-facing operation.
func detectCommand() *cobra.Command {
	var registry []string
	cmd := &cobra.Command{
		Use:   "detect [pcm-file]",
		Short: "Identify which session watermarked a captured PCM render",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			pcm := make([]int16, len(raw)/2)
			for i := range pcm {
				pcm[i] = int16(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
			}
			sessionID, score := watermark.Detect(pcm, registry)
			if sessionID == "" {
				fmt.Printf("no match (best score %.3f)\n", score)
				return nil
			}
			fmt.Printf("matched session %s (score %.3f)\n", sessionID, score)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&registry, "session", nil, "candidate session IDs to test against")
	return cmd
}
