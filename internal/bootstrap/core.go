package bootstrap

import (
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	gormpersistence "sketch-lobby/internal/infra/persistence/gorm"
	"sketch-lobby/internal/infra/persistence/memory"
	"sketch-lobby/internal/infra/setup"
	redisstate "sketch-lobby/internal/infra/state/redis"
	"sketch-lobby/internal/lock"
	"sketch-lobby/internal/repository"
	"sketch-lobby/internal/service"
)

// Core holds the storage connections and the services shared by the server
// and the operator CLI.
type Core struct {
	Config      *Config
	DB          *gorm.DB // nil with the memory driver
	RedisClient *redis.Client
	Store       repository.TxStore
	Users       repository.UserRepository
	Guests      repository.GuestRepository
	Auth        *service.AuthService
	Resolver    *service.IdentityResolver
	Locks       *lock.Keyed
}

// NewCore connects storage and builds the identity services.
func NewCore(cfg *Config, log *logrus.Logger) (*Core, error) {
	core := &Core{Config: cfg, Locks: lock.NewKeyed()}

	switch cfg.StoreDriver {
	case StoreMySQL:
		db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, fmt.Errorf("failed to init DB: %w", err)
		}
		if err := setup.MigrateDB(db); err != nil {
			return nil, fmt.Errorf("failed to migrate DB: %w", err)
		}
		core.DB = db
		core.Store = gormpersistence.NewGormStore(db)
		core.Users = gormpersistence.NewGormUserRepository(db)
		log.Info("MySQL store initialized")
	case StoreMemory:
		store := memory.NewStore()
		core.Store = store
		core.Users = store.Users()
		log.Warn("Using in-process memory store; state is lost on restart")
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	core.RedisClient = redisClient
	core.Guests = redisstate.NewRedisGuestRepository(redisClient, cfg.KeyPrefix, cfg.GuestTTL)
	log.Info("Redis client initialized")

	authService, err := service.NewAuthService(core.Users, cfg.JWTSecret, cfg.JWTExpiry, cfg.SocketTokenExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to create AuthService: %w", err)
	}
	core.Auth = authService
	core.Resolver = service.NewIdentityResolver(authService, core.Users, core.Guests)
	return core, nil
}

// NewCoordinator builds the room coordinator; events may be nil.
func (c *Core) NewCoordinator(events service.RoomEvents) *service.RoomCoordinator {
	policy := service.NewHostSuccessionPolicy(c.Resolver)
	return service.NewRoomCoordinator(c.Store, policy, c.Locks, events, c.Config.TxTimeout)
}

// Close releases Redis and the database pool.
func (c *Core) Close(log *logrus.Logger) {
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			log.Errorf("Error closing Redis connection: %v", err)
		}
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Errorf("Error closing database connection: %v", err)
			}
		}
	}
}
