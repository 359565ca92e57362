package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"

	"github.com/karaokehub/karaokehub/auth"
	"github.com/karaokehub/karaokehub/config"
	"github.com/karaokehub/karaokehub/globals"
	"github.com/karaokehub/karaokehub/httpapi"
	"github.com/karaokehub/karaokehub/lifecycle"
	"github.com/karaokehub/karaokehub/persistence"
	"github.com/karaokehub/karaokehub/queue"
	"github.com/karaokehub/karaokehub/types"
	"github.com/karaokehub/karaokehub/ws"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	addr       = pflag.String("addr", "localhost:8000", "service address (including port)")
	sslCert    = pflag.String("ssl-cert", "", "SSL cert (optional)")
	sslKey     = pflag.String("ssl-key", "", "SSL key (optional)")
)

func main() {
	log.SetFlags(0)

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	cfg, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	if cfg.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(cfg.LogLevel))
	}
	if cfg.SessionSecret == "" {
		panic("session_secret must be configured")
	}

	persister, err := persistence.NewPersister(cfg)
	if err != nil {
		panic(err)
	}
	defer persister.Close()

	if err := seedAdminUser(persister, cfg); err != nil {
		panic(err)
	}

	sessions, err := auth.NewSessions(cfg.SessionSecret, cfg.SessionTTL())
	if err != nil {
		panic(err)
	}

	registry := ws.NewRegistry(persister, queue.NewManager(persister), globals.AppLogger)
	lc := lifecycle.NewManager(persister, registry, lifecycle.Config{
		GracePeriod:   cfg.GracePeriod(),
		IdleThreshold: cfg.IdleThreshold(),
		SweepSpec:     cfg.IdleSweepSpec,
		DefaultPrefs:  cfg.DefaultPrefs,
	}, globals.AppLogger)
	registry.SetLifecycle(lc)
	lc.OnRoomDeleted(registry.Drop)
	if err := lc.Start(); err != nil {
		panic(err)
	}
	defer lc.Stop()

	router := mux.NewRouter()
	httpapi.New(persister, sessions, lc, registry, cfg, globals.AppLogger).Routes(router)
	router.Handle("/socket", ws.NewConnectionHandler(registry, sessions, persister, globals.AppLogger))

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		lc.Stop()
		persister.Close()
		log.Fatal("interrupted!")
	}()

	globals.AppLogger.Info("listening", "addr", *addr)
	if *sslCert != "" && *sslKey != "" {
		err = http.ListenAndServeTLS(*addr, *sslCert, *sslKey, router)
	} else {
		err = http.ListenAndServe(*addr, router)
	}
	if err != nil {
		globals.AppLogger.Error("server terminated", "error", err)
		os.Exit(1)
	}
}

// seedAdminUser creates the configured admin account on first start with a
// generated password, printed once to the log.
func seedAdminUser(persister persistence.Persister, cfg *config.Config) error {
	_, err := persister.GetUserByUsername(cfg.AdminUser)
	if err == nil {
		return nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return err
	}
	password := uuid.NewString()
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	admin := types.User{
		Id:           uuid.NewString(),
		Username:     cfg.AdminUser,
		Name:         cfg.AdminUser,
		Role:         types.RoleAdmin,
		PasswordHash: hash,
	}
	if err := persister.StoreUser(admin); err != nil {
		return err
	}
	globals.AppLogger.Info("created admin user", "username", cfg.AdminUser, "password", password)
	return nil
}
