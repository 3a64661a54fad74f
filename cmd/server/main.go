package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/amanullahtanweer/audiosocket-diarizer/internal/config"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/demo"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/export"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/logging"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/server"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/session"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/speaker"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/transcriber"
)

func main() {
	var configFile, envFile string
	var runDemo bool
	flag.StringVar(&configFile, "config", "config.yaml", "Configuration file path")
	flag.StringVar(&envFile, "env", ".env", "Optional .env file")
	flag.BoolVar(&runDemo, "demo", false, "Replay the scripted consultation and exit")
	flag.Parse()

	if runDemo {
		cfg := logging.Config{}
		cfg.ApplyDefaults()
		if err := replayDemo(logging.New(cfg)); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(configFile, envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Logging)

	engine, err := transcriber.New(transcriber.Config{
		Provider:       cfg.Engine.Provider,
		VoskServerURL:  cfg.Engine.VoskServerURL,
		AssemblyAPIKey: cfg.Engine.AssemblyAPIKey,
		AssemblyURL:    cfg.Engine.AssemblyURL,
		SampleRate:     cfg.Engine.SampleRate,
		Diarization:    cfg.Engine.Diarization,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create recognition engine")
	}

	exporter, closeSinks, err := buildExporter(cfg.Export, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure export")
	}
	defer closeSinks()

	managerCfg := server.ManagerConfig{
		TickInterval: cfg.Session.TickInterval,
		StopTimeout:  cfg.Engine.StopTimeout,
	}
	if cfg.Export.Journal {
		managerCfg.JournalDir = cfg.Export.OutputDir
	}
	manager := server.NewManager(managerCfg, exporter, log)

	roles := cfg.Session.Roles
	if len(roles) == 0 {
		roles = speaker.Roles
	}

	hub := server.NewHub(manager, roles, log)
	go hub.Run()

	var api *server.API
	if cfg.HTTP.Enabled {
		api = server.NewAPI(server.HTTPConfig{Host: cfg.HTTP.Host, Port: cfg.HTTP.Port}, manager, hub, roles, log)
		go func() {
			if err := api.Start(); err != nil {
				log.Fatal().Err(err).Msg("HTTP API error")
			}
		}()
	}

	srv := server.New(server.Config{Host: cfg.Server.Host, Port: cfg.Server.Port}, engine, manager, log)
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	log.Info().
		Str("provider", engine.Name()).
		Bool("diarization", engine.SupportsDiarization()).
		Msg("Diarizer ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down server...")
	srv.Stop()
	manager.Shutdown()
	if api != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := api.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("HTTP API shutdown failed")
		}
		cancel()
	}
	hub.Close()
}

func buildExporter(cfg config.ExportConfig, log zerolog.Logger) (*export.Exporter, func(), error) {
	var sinks []export.Sink
	closers := []func(){}

	if cfg.SaveTranscripts {
		files, err := export.NewFileSink(cfg.OutputDir, cfg.SaveJSON)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, files)
	}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := client.Ping(ctx).Err()
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unreachable, exports will retry per session")
		}
		sinks = append(sinks, export.NewRedisSink(client, cfg.RedisPrefix, cfg.RedisTTL))
		closers = append(closers, func() { client.Close() })
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	return export.NewExporter(log, sinks...), closeAll, nil
}

// replayDemo runs the scripted consultation through a session without an
// engine and prints the result.
func replayDemo(log zerolog.Logger) error {
	s := session.New("", nil, session.Options{Provider: "demo", Log: log})
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		return err
	}
	if err := demo.Replay(ctx, s, demo.Consultation, 0); err != nil {
		return err
	}
	if err := s.Stop(ctx); err != nil {
		return err
	}

	fmt.Println(s.Text())
	fmt.Println()
	fmt.Println(s.Summary())
	return nil
}
