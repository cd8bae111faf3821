package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/icelens/icelens"
	"github.com/icelens/icelens/server"
	"github.com/icelens/icelens/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP inspection API",
	Long: `Starts the REST API over one or more object stores. Store backends are
selected with --stores; each one serves the URI scheme it is named
after (gs, s3, file).

Examples:

  icelens serve --stores gs
  icelens serve --stores s3 --s3-endpoint http://localhost:9000 --s3-path-style
  icelens serve --stores gs,s3,file --listen :9090`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("listen", ":8080", "HTTP listen address")
	f.StringSlice("stores", []string{"gs"}, "store backends to enable: gs, s3, file")
	f.String("scheme", "gs", "default URI scheme for bucket/path query pairs")
	f.Int("concurrency", 0, "concurrent manifest reads per scan (0 = default)")
	f.Duration("read-timeout", 60*time.Second, "per-request deadline for storage reads")

	f.String("gcs-credentials", "", "GCS service account key file (default: application default credentials)")
	f.Bool("gcs-anonymous", false, "access GCS without credentials")
	f.String("gcs-endpoint", "", "GCS endpoint override, for emulators")

	f.String("s3-region", "", "S3 region")
	f.String("s3-endpoint", "", "S3 endpoint override, for MinIO")
	f.String("s3-access-key", "", "S3 access key id (default: SDK credential chain)")
	f.String("s3-secret-key", "", "S3 secret access key")
	f.Bool("s3-path-style", false, "use path-style S3 addressing, required for MinIO")

	for _, name := range []string{
		"listen", "stores", "scheme", "concurrency", "read-timeout",
		"gcs-credentials", "gcs-anonymous", "gcs-endpoint",
		"s3-region", "s3-endpoint", "s3-access-key", "s3-secret-key", "s3-path-style",
	} {
		mustBindPFlag(strings.ReplaceAll(name, "-", "_"), f.Lookup(name))
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	router, err := buildRouter(cmd.Context())
	if err != nil {
		return err
	}

	explorer := icelens.New(router,
		icelens.WithLogger(logger),
		icelens.WithConcurrency(viper.GetInt("concurrency")))
	srv := server.NewServer(explorer, viper.GetString("scheme"), logger)

	readTimeout := viper.GetDuration("read_timeout")
	handler := srv.Handler()
	if readTimeout > 0 {
		handler = http.TimeoutHandler(handler, readTimeout, `{"detail":"request timed out"}`)
	}

	addr := viper.GetString("listen")
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server started", "addr", addr, "stores", viper.GetStringSlice("stores"))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func buildRouter(ctx context.Context) (*store.Router, error) {
	router := store.NewRouter()
	for _, name := range viper.GetStringSlice("stores") {
		switch name {
		case "gs", "gcs":
			gcs, err := store.NewGCSStore(ctx, &store.GCSConfig{
				CredentialsFile: viper.GetString("gcs_credentials"),
				Anonymous:       viper.GetBool("gcs_anonymous"),
				Endpoint:        viper.GetString("gcs_endpoint"),
			})
			if err != nil {
				return nil, fmt.Errorf("gcs store: %w", err)
			}
			router.Register(gcs)
		case "s3":
			s3s, err := store.NewS3Store(ctx, &store.S3Config{
				Region:          viper.GetString("s3_region"),
				Endpoint:        viper.GetString("s3_endpoint"),
				AccessKeyID:     viper.GetString("s3_access_key"),
				SecretAccessKey: viper.GetString("s3_secret_key"),
				ForcePathStyle:  viper.GetBool("s3_path_style"),
			})
			if err != nil {
				return nil, fmt.Errorf("s3 store: %w", err)
			}
			router.Register(s3s)
		case "file", "local":
			router.Register(store.NewLocalStore())
		default:
			return nil, fmt.Errorf("unknown store backend %q (expected gs, s3, file)", name)
		}
	}
	return router, nil
}
