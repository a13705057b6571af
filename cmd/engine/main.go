package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iotdash/dashboard-engine/internal/alert"
	"github.com/iotdash/dashboard-engine/internal/channel"
	"github.com/iotdash/dashboard-engine/internal/config"
	"github.com/iotdash/dashboard-engine/internal/domain"
	httpHandlers "github.com/iotdash/dashboard-engine/internal/http"
	"github.com/iotdash/dashboard-engine/internal/hub"
	"github.com/iotdash/dashboard-engine/internal/ingest"
	"github.com/iotdash/dashboard-engine/internal/persist"
	"github.com/iotdash/dashboard-engine/internal/session"
	"github.com/iotdash/dashboard-engine/internal/telemetry"
	"github.com/iotdash/dashboard-engine/internal/upstream"
)

const (
	sweepInterval = 10 * time.Second
	offlineAfter  = 30 * time.Second
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blob, closeBlob, err := openBlobStore()
	if err != nil {
		log.Fatal().Err(err).Msg("storage init failed")
	}
	if closeBlob != nil {
		defer closeBlob()
	}
	gateway := persist.NewGateway(blob, config.StorageBackend(), log.Logger)

	store := telemetry.NewStore(log.Logger)

	var sess *session.Session
	fanout := hub.New(log.Logger, func() []byte { return sess.InitialStateFrame() })
	sess = session.New(store, gateway, fanout, log.Logger)
	go fanout.Run(ctx)

	if theme := config.Theme(); theme != "" {
		if err := sess.SetTheme(theme); err != nil {
			log.Warn().Str("theme", theme).Msg("ignoring unknown theme")
		}
	}

	if err := sess.Load(ctx); err != nil {
		if errors.Is(err, persist.ErrNoSnapshot) {
			log.Info().Msg("no saved layout, starting fresh")
		} else {
			log.Warn().Err(err).Msg("layout restore failed, starting fresh")
		}
	}

	if config.UseCloudServices() && config.SNSTopicArn() != "" {
		notifier, err := alert.NewSNSNotifier(ctx, config.AWSRegion(), config.SNSTopicArn())
		if err != nil {
			log.Fatal().Err(err).Msg("sns init failed")
		}
		sess.SetFaultNotifier(notifier)
		log.Info().Str("topic", config.SNSTopicArn()).Msg("fault alerts enabled")
	}

	feed := channel.New(config.UpstreamWSURL(), config.ReconnectDelay(), log.Logger,
		sess.HandleMessage,
		func(connected bool) {
			log.Info().Bool("connected", connected).Msg("feed state changed")
		})
	feed.Open()
	defer feed.Close()

	store.StartSweeper(ctx, sweepInterval, offlineAfter, func(env *domain.Envelope) {
		raw, err := json.Marshal(env)
		if err != nil {
			return
		}
		sess.HandleMessage(env, raw)
	})

	var up *upstream.Client
	if config.UpstreamAPIURL() != "" {
		up = upstream.New(config.UpstreamAPIURL())
		go discoveryLoop(ctx, up, store)
	}

	var mqttSrc *ingest.MQTTSource
	if config.MQTTEnabled() {
		mqttSrc, err = ingest.NewMQTTSource(config.MQTTBroker(), config.MQTTTopic(), log.Logger, sess.HandleMessage)
		if err != nil {
			log.Fatal().Err(err).Msg("mqtt connect failed")
		}
		if err := mqttSrc.Start(); err != nil {
			log.Fatal().Err(err).Msg("mqtt subscribe failed")
		}
		defer mqttSrc.Stop()
	}

	hubSrv := startHubServer(fanout)
	defer hubSrv.Shutdown(context.Background())

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httpHandlers.Register(app, sess, up, feed.Connected)

	go func() {
		log.Info().Str("addr", config.APIAddr()).Msg("api listening")
		if err := app.Listen(config.APIAddr()); err != nil {
			log.Fatal().Err(err).Msg("api server exit")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	cancel()
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Warn().Err(err).Msg("api shutdown")
	}
	if err := sess.Save(context.Background()); err != nil {
		log.Warn().Err(err).Msg("final save failed")
	}
}

func openBlobStore() (persist.BlobStore, func() error, error) {
	switch config.StorageBackend() {
	case "redis":
		s, err := persist.NewRedisStore(config.RedisAddr(), config.RedisPassword(), config.RedisDB(), config.StorageKey())
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "postgres":
		s, err := persist.NewPostgresStore(config.DBDSN(), config.StorageKey())
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return persist.NewFileStore(config.StoragePath()), nil, nil
	}
}

// discoveryLoop polls the backend's device list so devices that stopped
// publishing before the engine came up still show in pickers.
func discoveryLoop(ctx context.Context, up *upstream.Client, store *telemetry.Store) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		devices, err := up.Devices(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("device discovery failed")
		} else {
			store.MergeDevices(devices)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func startHubServer(fanout *hub.Hub) *nethttp.Server {
	mux := nethttp.NewServeMux()
	mux.HandleFunc("/ws/live", fanout.ServeWS)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		io.WriteString(w, "ok")
	})
	srv := &nethttp.Server{Addr: config.HubAddr(), Handler: mux}
	go func() {
		log.Info().Str("addr", config.HubAddr()).Msg("hub listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			log.Fatal().Err(err).Msg("hub server exit")
		}
	}()
	return srv
}
