package cli

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/kidvue/gatekeeper/internal/store"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from the --data-dir flag,
// GATEKEEPER_DATA_DIR env var, or ~/.gatekeeper as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("GATEKEEPER_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.gatekeeper"
}

// openStore opens the account store. The driver defaults to embedded
// SQLite under the data directory; set store.driver=postgres and
// store.dsn to run against PostgreSQL.
func openStore() (*store.Store, error) {
	driver := viper.GetString("store.driver")
	if driver == "" {
		driver = "sqlite"
	}
	dsn := viper.GetString("store.dsn")
	if driver == "sqlite" && dsn == "" {
		dsn = resolveDataDir()
	}
	return store.Open(driver, dsn)
}

// jwtSecret returns the signing secret from configuration. The dev
// fallback is only for local experimentation; serve warns loudly when
// it is in use.
func jwtSecret() string {
	if s := viper.GetString("auth.jwt_secret"); s != "" {
		return s
	}
	return "gatekeeper-dev-secret-change-me"
}

// --- PID file management ---

func pidFilePath() string {
	return filepath.Join(resolveDataDir(), "gatekeeper.pid")
}

func writePID(pid int) error {
	dir := resolveDataDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(), []byte(strconv.Itoa(pid)), 0644)
}

func readPID() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePID() {
	os.Remove(pidFilePath())
}

func logFilePath() string {
	return filepath.Join(resolveDataDir(), "gatekeeper.log")
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
