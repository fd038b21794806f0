package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/wes-io-groupchat/internal/cache"
	"github.com/weiawesome/wes-io-groupchat/internal/config"
	"github.com/weiawesome/wes-io-groupchat/internal/exchange"
	"github.com/weiawesome/wes-io-groupchat/internal/handler"
	"github.com/weiawesome/wes-io-groupchat/internal/hub"
	"github.com/weiawesome/wes-io-groupchat/internal/profile"
	"github.com/weiawesome/wes-io-groupchat/internal/repository"
	"github.com/weiawesome/wes-io-groupchat/internal/service"
	"github.com/weiawesome/wes-io-groupchat/internal/session"
	"github.com/weiawesome/wes-io-groupchat/pkg/database"
	pkglog "github.com/weiawesome/wes-io-groupchat/pkg/log"
	"github.com/weiawesome/wes-io-groupchat/pkg/middleware"
	"github.com/weiawesome/wes-io-groupchat/pkg/pubsub"
	"github.com/weiawesome/wes-io-groupchat/pkg/storage"
)

const revocationCleanupInterval = time.Hour

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		Caller:      cfg.Log.Caller,
		ServiceName: "groupchat",
	})
	logger := pkglog.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Credential store and group registry
	users, groups, closeStore, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open stores")
	}
	defer closeStore()
	logger.Info().Str("driver", cfg.Store.Driver).Msg("stores ready")

	// Redis, shared by the cache, the redis broker and the redis relay bus
	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.Redis.Address).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}

	// Exchange manager
	ex, err := exchange.New(exchange.Config{
		Driver:         cfg.Broker.Driver,
		OpTimeout:      cfg.Broker.OpTimeout,
		PublishRetries: cfg.Broker.PublishRetries,
		AMQPURL:        cfg.Broker.AMQP.URL,
		Kafka: exchange.KafkaConfig{
			Brokers:     cfg.Broker.Kafka.Brokers,
			Partitions:  cfg.Broker.Kafka.Partitions,
			TopicPrefix: cfg.Broker.Kafka.TopicPrefix,
		},
		RedisKeyPrefix: cfg.Broker.KeyPrefix,
	}, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Broker.Driver).Msg("failed to create exchange manager")
	}
	defer ex.Close()

	// Avatar storage
	blobs, err := storage.New(ctx, cfg.Storage.Backend())
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("failed to create storage")
	}
	profiles := profile.NewService(blobs, profile.Config{
		Prefix:    cfg.Storage.AvatarPrefix,
		MaxBytes:  cfg.Storage.AvatarMaxBytes,
		Dimension: cfg.Storage.AvatarDimension,
		MaxPixels: cfg.Storage.AvatarMaxPixels,
	})

	// Sessions
	sessions, err := session.NewManager(cfg.Session)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create session manager")
	}
	sessionMW := middleware.NewSessionMiddleware(sessions, sessions.CookieName())

	var groupCache cache.GroupCache
	if cfg.Cache.Enabled {
		groupCache = cache.NewRedisGroupCache(redisClient, cfg.Cache.Prefix)
	}

	// Cluster relay bus
	instanceID := cfg.Cluster.InstanceID
	if instanceID == "" {
		instanceID = defaultInstanceID()
	}
	var bus pubsub.Bus
	var publisher pubsub.Publisher
	if cfg.Cluster.Enabled {
		bus, err = pubsub.New(pubsub.Config{
			Driver:     cfg.Cluster.Driver,
			InstanceID: instanceID,
			Kafka: pubsub.KafkaConfig{
				Brokers:    cfg.Broker.Kafka.Brokers,
				Partitions: cfg.Broker.Kafka.Partitions,
			},
		}, redisClient)
		if err != nil {
			logger.Fatal().Err(err).Str("driver", cfg.Cluster.Driver).Msg("failed to create cluster bus")
		}
		defer bus.Close()
		publisher = bus
	}

	// Services
	h := hub.NewHub()
	chatService := service.NewChatService(h, ex, publisher, instanceID)
	h.OnDisconnect(chatService.HandleDisconnect)
	accountService := service.NewAccountService(users, profiles)
	groupService := service.NewGroupService(groups, ex, groupCache, cfg.Cache.TTL)

	// Setup Gin router
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger, "/health"))
	r.Use(sessionMW.Resolve())

	handler.NewHandler(accountService, groupService, profiles, sessions, sessionMW).RegisterRoutes(r)
	handler.NewWSHandler(h, chatService, cfg.WebSocket).RegisterRoutes(r)

	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h.Run(gctx)
		return nil
	})
	g.Go(func() error {
		sessions.Run(gctx, revocationCleanupInterval)
		return nil
	})
	if bus != nil {
		g.Go(func() error {
			chatService.RunRelay(gctx, bus)
			return nil
		})
	}
	g.Go(func() error {
		logger.Info().
			Str("addr", srv.Addr).
			Str("store", cfg.Store.Driver).
			Str("broker", cfg.Broker.Driver).
			Str("storage", cfg.Storage.Driver).
			Bool("cluster", cfg.Cluster.Enabled).
			Str(pkglog.FieldInstanceID, instanceID).
			Msg("groupchat starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
	}

	// Let in-flight broker publishes finish before the deferred closes run.
	chatService.Stop()
	logger.Info().Msg("groupchat stopped")
}

func openStores(ctx context.Context, cfg *config.Config) (repository.UserRepository, repository.GroupRepository, func(), error) {
	switch cfg.Store.Driver {
	case "database":
		db, err := database.New(&cfg.Database)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := repository.Migrate(db); err != nil {
			database.Close(db)
			return nil, nil, nil, err
		}
		closeDB := func() {
			if err := database.Close(db); err != nil {
				l := pkglog.L()
				l.Warn().Err(err).Msg("failed to close database")
			}
		}
		return repository.NewGormUserRepository(db), repository.NewGormGroupRepository(db), closeDB, nil

	default:
		userStore, userKey, err := repository.NewLocalDocumentStore(cfg.Store.CredentialsFile)
		if err != nil {
			return nil, nil, nil, err
		}
		users, err := repository.NewFileUserRepository(ctx, userStore, userKey)
		if err != nil {
			return nil, nil, nil, err
		}

		groupStore, groupKey, err := repository.NewLocalDocumentStore(cfg.Store.GroupsFile)
		if err != nil {
			return nil, nil, nil, err
		}
		groups, err := repository.NewFileGroupRepository(ctx, groupStore, groupKey)
		if err != nil {
			return nil, nil, nil, err
		}
		return users, groups, func() {}, nil
	}
}

func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "groupchat"
	}
	return host + "-" + uuid.New().String()[:8]
}
