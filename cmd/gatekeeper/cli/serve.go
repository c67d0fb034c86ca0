package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kidvue/gatekeeper/internal/server"
	"github.com/kidvue/gatekeeper/internal/service"
)

const banner = `
  ___   _ _____ ___ _  _____ ___ ___ ___ ___
 / __| /_\_   _| __| |/ / __| __| _ \ __| _ \
| (_ |/ _ \| | | _|| ' <| _|| _||  _/ _||  _/
 \___/_/ \_\_| |___|_|\_\___|___|_| |___|_|
`

func newServeCmd() *cobra.Command {
	var (
		port          int
		host          string
		dev           bool
		detach        bool
		sweepSchedule string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Gatekeeper auth server",
		Long:  "Start the HTTP server that handles login, token refresh, revocation, and admin management.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if detach {
				return daemonize()
			}
			return runServe(host, port, dev, sweepSchedule)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging, CORS *)")
	cmd.Flags().BoolVarP(&detach, "detach", "d", false, "Run the server in the background")
	cmd.Flags().StringVar(&sweepSchedule, "sweep-schedule", "@hourly", "Cron schedule for expired token record cleanup (empty to disable)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

// daemonize re-execs the serve command detached from the terminal,
// logging to the data directory. 'gatekeeper stop' shuts it down.
func daemonize() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	args := make([]string, 0, len(os.Args)-1)
	for _, a := range os.Args[1:] {
		if a == "--detach" || a == "-d" {
			continue
		}
		args = append(args, a)
	}

	if err := os.MkdirAll(resolveDataDir(), 0755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(logFilePath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setSysProcAttr(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start background server: %w", err)
	}

	fmt.Printf("Server started in background (PID %d)\n", child.Process.Pid)
	fmt.Printf("  Logs: %s\n", logFilePath())
	fmt.Println("  Stop with: gatekeeper stop")
	return nil
}

func runServe(host string, port int, dev bool, sweepSchedule string) error {
	fmt.Print(banner)
	fmt.Println()

	// Set up logger
	logLevel := slog.LevelInfo
	if dev {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	// 1. Open the account store
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	logger.Info("store opened", "driver", viper.GetString("store.driver"))

	// 2. Token service
	secret := jwtSecret()
	if secret == "gatekeeper-dev-secret-change-me" {
		logger.Warn("using built-in dev JWT secret - set auth.jwt_secret or GATEKEEPER_AUTH_JWT_SECRET before deploying")
	}
	accessTTL := viper.GetDuration("auth.access_ttl")
	refreshTTL := viper.GetDuration("auth.refresh_ttl")
	tokens := service.NewTokenService(st, secret, accessTTL, refreshTTL)

	// 3. First-run check
	hasAdmin, err := st.HasAnyAdmin(context.Background())
	if err != nil {
		logger.Warn("failed to check for admin", "error", err)
	}
	if !hasAdmin {
		logger.Warn("no admin account found - run: gatekeeper admin create")
	}

	// 4. Periodic cleanup of expired token records
	if sweepSchedule != "" {
		c := cron.New()
		_, err := c.AddFunc(sweepSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			n, err := tokens.SweepExpired(ctx)
			if err != nil {
				logger.Error("token sweep failed", "error", err)
				return
			}
			if n > 0 {
				logger.Info("swept expired token records", "count", n)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid sweep schedule %q: %w", sweepSchedule, err)
		}
		c.Start()
		defer c.Stop()
		logger.Info("token sweep scheduled", "schedule", sweepSchedule)
	}

	// 5. Record PID for status/stop
	if err := writePID(os.Getpid()); err != nil {
		logger.Warn("failed to write PID file", "error", err)
	}
	defer removePID()

	// 6. Build and start HTTP server
	srvCfg := server.DefaultConfig()
	srvCfg.Host = host
	srvCfg.Port = port
	if origins := viper.GetStringSlice("server.cors_origins"); len(origins) > 0 && !dev {
		srvCfg.CORSOrigins = origins
	}

	srv := server.New(srvCfg, st, tokens, logger)

	fmt.Printf("→ Gatekeeper %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", host, port)
	fmt.Printf("→ Auth API:   http://%s:%d/api/v1/auth\n", host, port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", host, port)
	fmt.Println()

	return srv.ListenAndServe()
}
