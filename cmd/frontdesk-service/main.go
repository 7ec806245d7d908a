// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/frontdesk/lib/archive"
	"github.com/bureau-foundation/frontdesk/lib/catalog"
	"github.com/bureau-foundation/frontdesk/lib/clock"
	"github.com/bureau-foundation/frontdesk/lib/config"
	"github.com/bureau-foundation/frontdesk/lib/desk"
	"github.com/bureau-foundation/frontdesk/lib/intake"
	"github.com/bureau-foundation/frontdesk/lib/provision"
	"github.com/bureau-foundation/frontdesk/lib/ref"
	"github.com/bureau-foundation/frontdesk/lib/secret"
	"github.com/bureau-foundation/frontdesk/lib/service"
	"github.com/bureau-foundation/frontdesk/lib/ticketstore"
	"github.com/bureau-foundation/frontdesk/lib/transcript"
	"github.com/bureau-foundation/frontdesk/lib/version"
	"github.com/bureau-foundation/frontdesk/messaging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		logLevel    string
		showVersion bool
	)

	flags := pflag.NewFlagSet("frontdesk-service", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "path to frontdesk.yaml (default: $FRONTDESK_CONFIG)")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	if showVersion {
		version.Print("frontdesk-service")
		return nil
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(logLevel),
	}))
	slog.SetDefault(logger)

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load and validate the Matrix session written by "frontdesk login".
	_, session, err := service.LoadSession(cfg.Paths.State, cfg.Homeserver.URL, logger)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	defer session.Close()

	serviceUser, err := service.ValidateSession(ctx, session)
	if err != nil {
		return err
	}
	logger.Info("matrix session valid", "user_id", serviceUser.String())

	serverName, err := ref.ParseServerName(serviceUser.Server())
	if err != nil {
		return fmt.Errorf("service account server name: %w", err)
	}

	staff, err := parseStaff(cfg.Staff.Users)
	if err != nil {
		return err
	}

	spaceAlias, err := ref.ParseRoomAlias(cfg.Space.Alias)
	if err != nil {
		return fmt.Errorf("space.alias: %w", err)
	}
	logAlias, err := ref.ParseRoomAlias(cfg.Tickets.LogRoomAlias)
	if err != nil {
		return fmt.Errorf("tickets.log_room_alias: %w", err)
	}

	clk := clock.Real()

	// Ensure the tenant space and staff log room exist before anything
	// references them.
	provisioner := provision.New(session, provision.Config{
		ServerName:   serverName,
		SpaceAlias:   spaceAlias,
		SpaceName:    cfg.Space.Name,
		LogRoomAlias: logAlias,
		LogRoomName:  cfg.Tickets.LogRoomName,
		TicketPrefix: cfg.Tickets.Prefix,
		Staff:        staff,
		StaffLevel:   cfg.Staff.PowerThreshold,
	}, logger)

	space, err := provisioner.EnsureSpace(ctx)
	if err != nil {
		return err
	}
	logRoom, err := provisioner.EnsureLogRoom(ctx, space)
	if err != nil {
		return err
	}
	logger.Info("tenant rooms ready",
		"space", space.String(),
		"log_room", logRoom.String(),
	)

	store, err := ticketstore.Open(cfg.SnapshotFile(), logger)
	if err != nil {
		return err
	}
	logger.Info("ticket snapshot loaded", "open_tickets", store.Len())

	// The archive key is optional: without it transcripts are stored
	// compressed but unsealed.
	var archiveKey *secret.Buffer
	if cfg.Archive.KeyFile != "" {
		archiveKey, err = archive.LoadKey(cfg.Archive.KeyFile)
		if err != nil {
			return fmt.Errorf("loading archive key: %w", err)
		}
	}
	transcriptArchive, err := archive.Open(cfg.Paths.Archive, archiveKey, clk)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer transcriptArchive.Close()

	// Room purging needs homeserver admin APIs; without them ticket
	// rooms are retired by kicking members and leaving.
	purger, err := messaging.NewRoomPurger(ctx, session)
	if err != nil {
		logger.Info("room purge unavailable, closed rooms will be retired instead", "reason", err)
		purger = nil
	}

	frontDesk := desk.New(desk.Options{
		Session:     session,
		Store:       store,
		Provisioner: provisioner,
		Transcripts: transcript.NewGenerator(session, cfg.TranscriptDir(), serviceUser),
		Archive:     transcriptArchive,
		Purger:      purger,
		Config: desk.Config{
			Space:      space,
			LogRoom:    logRoom,
			Staff:      staff,
			StaffLevel: cfg.Staff.PowerThreshold,
		},
		Clock:  clk,
		Logger: logger,
	})

	// Ordering is optional: no catalog file, no !order flows.
	if cfg.Intake.CatalogFile != "" {
		services, err := catalog.ReadFile(cfg.Intake.CatalogFile)
		if err != nil {
			return fmt.Errorf("loading service catalog: %w", err)
		}
		for _, warning := range catalog.Validate(services) {
			logger.Warn("catalog problem", "detail", warning)
		}
		frontDesk.SetIntake(intake.New(intake.Options{
			Session: session,
			Catalog: services,
			Store:   store,
			Tickets: frontDesk,
			Clock:   clk,
			Logger:  logger,
		}))
		logger.Info("service catalog loaded", "services", len(services.Services))
	}

	relay := &RelayService{
		session:     session,
		desk:        frontDesk,
		store:       store,
		space:       space,
		serviceUser: serviceUser,
		clock:       clk,
		startedAt:   clk.Now(),
		logger:      logger,
	}

	// Initial /sync: rebuild the direct-room map and the space power
	// cache before any event is handled or any socket call answered.
	sinceToken, err := relay.initialSync(ctx)
	if err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}

	socketServer := service.NewSocketServer(cfg.SocketPath(), logger)
	relay.registerActions(socketServer)

	socketDone := make(chan error, 1)
	go func() {
		socketDone <- socketServer.Serve(ctx)
	}()

	go service.RunSyncLoop(ctx, session, service.SyncConfig{
		Filter: syncFilter,
	}, sinceToken, relay.handleSync, clk, logger)

	go runPresenceRotation(ctx, session, cfg.Presence.StatusMessages, cfg.PresenceInterval(), clk, logger)

	logger.Info("frontdesk running",
		"user_id", serviceUser.String(),
		"socket", cfg.SocketPath(),
		"open_tickets", store.Len(),
	)
	frontDesk.PostStaffLog(ctx, fmt.Sprintf(
		"🟢 **Frontdesk online** — %s, %d open tickets.",
		version.Info(), store.Len(),
	))

	<-ctx.Done()
	logger.Info("shutting down")

	// Let the socket server drain active connections; a close handler
	// may still be mid-transcript.
	if err := <-socketDone; err != nil {
		logger.Error("socket server error", "error", err)
	}

	// The run context is already cancelled here; farewell traffic gets
	// its own deadline.
	offlineCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	frontDesk.PostStaffLog(offlineCtx, "🔴 **Frontdesk offline.**")

	// Mark the account offline so users don't message a dead desk.
	if err := session.SetPresence(offlineCtx, "offline", ""); err != nil {
		logger.Debug("failed to publish offline presence", "error", err)
	}

	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseStaff(raw []string) ([]ref.UserID, error) {
	staff := make([]ref.UserID, 0, len(raw))
	for _, entry := range raw {
		user, err := ref.ParseUserID(entry)
		if err != nil {
			return nil, fmt.Errorf("staff.users: %w", err)
		}
		staff = append(staff, user)
	}
	return staff, nil
}
