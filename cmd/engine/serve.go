package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/rawblock/threatscore/internal/api"
	"github.com/rawblock/threatscore/internal/bandit"
	"github.com/rawblock/threatscore/internal/config"
	"github.com/rawblock/threatscore/internal/engine"
	"github.com/rawblock/threatscore/internal/features"
	"github.com/rawblock/threatscore/internal/intel"
	"github.com/rawblock/threatscore/internal/logging"
	"github.com/rawblock/threatscore/internal/queue"
	"github.com/rawblock/threatscore/internal/student"
	"github.com/rawblock/threatscore/internal/telemetry"
	"github.com/rawblock/threatscore/pkg/models"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scoring HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logLevel := cfg.Logging.Level
	if verbose {
		logLevel = "debug"
	}
	log := logging.New(logging.Config{Level: logLevel, Format: cfg.Logging.Format})

	studentModel, err := student.New(cfg.Storage.StudentModelPath)
	if err != nil {
		log.Fatal("failed to load student model", "error", err.Error())
		return err
	}

	sources := make([]intel.Source, len(cfg.Intel.Sources))
	for i, s := range cfg.Intel.Sources {
		sources[i] = intel.Source{
			Name:       s.Name,
			Category:   models.IntelCategory(s.Category),
			Confidence: s.Confidence,
			FilePath:   s.FilePath,
			URL:        s.URL,
		}
	}
	intelStore := intel.New(sources, intel.NewHTTPFetcher(), log)
	if err := intelStore.LoadFromDisk(cfg.Intel.DynamicDNSFile); err != nil {
		log.Warn("failed to load intel seed files", "error", err.Error())
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	intelStore.StartRefresh(rootCtx, cfg.Intel.RefreshInterval)

	featurizer := features.New(features.Config{
		BrandList:      cfg.Features.BrandList,
		SuspiciousTLDs: cfg.Features.SuspiciousTLDs,
		CacheCapacity:  cfg.Features.CacheCapacity,
		CacheTTL:       cfg.Features.CacheTTL,
	}, intelStore)

	linucb := bandit.New(bandit.Config{
		Alpha:      cfg.Bandit.Alpha,
		Dimensions: cfg.Bandit.Dimensions,
		Arms:       cfg.Bandit.Arms,
	})

	var redisClient *redis.Client
	var banditStore *bandit.RedisStore
	var taskQueue *queue.Queue
	if cfg.Storage.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Storage.RedisAddr})
		banditStore = bandit.NewRedisStore(redisClient)
		if err := banditStore.Load(rootCtx, linucb); err != nil {
			log.Warn("failed to load persisted bandit state, starting fresh", "error", err.Error())
		}
		taskQueue = queue.New(redisClient)
	}

	var sink *logging.DecisionSink
	if cfg.Storage.PostgresDSN != "" {
		s, err := logging.ConnectSink(rootCtx, cfg.Storage.PostgresDSN)
		if err != nil {
			log.Warn("failed to connect decision-log sink, continuing without persistence", "error", err.Error())
		} else {
			sink = s
			if err := sink.InitSchema(rootCtx); err != nil {
				log.Warn("failed to init decision-log schema", "error", err.Error())
			}
			defer sink.Close()
		}
	}

	tel := telemetry.New()
	hub := api.NewHub(log)
	go hub.Run()

	engineCfg := engine.Config{
		Intel:                 intelStore,
		Features:              featurizer,
		Student:                studentModel,
		Bandit:                linucb,
		Telemetry:             tel,
		Thresholds:            engine.Thresholds{Allow: cfg.Thresholds.Allow, Block: cfg.Thresholds.Block},
		DecisionCacheCapacity: 50000,
		DecisionCacheTTL:      5 * time.Minute,
		PendingContextTTL:     30 * time.Minute,
		Log:                   log,
	}
	if sink != nil {
		engineCfg.Logger = sink
	}
	if taskQueue != nil {
		engineCfg.Queue = taskQueue
	}
	if banditStore != nil {
		engineCfg.Persister = banditPersisterAdapter{banditStore, linucb}
	}

	eng := engine.New(engineCfg)

	sweepTicker := time.NewTicker(5 * time.Minute)
	defer sweepTicker.Stop()
	go func() {
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-sweepTicker.C:
				eng.SweepPending()
			}
		}
	}()

	router := &api.Router{
		Engine:          eng,
		Hub:             hub,
		MetricsHandler:  gin.WrapH(tel.Handler()),
		AuthToken:       cfg.Server.AuthToken,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		RateLimitPerMin: 30,
		RateLimitBurst:  5,
		Log:             log,
	}

	srv := router.Setup()

	log.Info("engine starting", "bind", cfg.Server.Bind)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-shutdown
		log.Info("shutdown signal received")
		cancel()
		os.Exit(0)
	}()

	return srv.Run(cfg.Server.Bind)
}

// banditPersisterAdapter closes over the running Bandit so the engine's
// Save(ctx) call doesn't need to know about it.
type banditPersisterAdapter struct {
	store *bandit.RedisStore
	b     *bandit.Bandit
}

func (a banditPersisterAdapter) Save(ctx context.Context) error {
	return a.store.Save(ctx, a.b)
}
