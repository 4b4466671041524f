package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"lobbyd/internal/cache"
	"lobbyd/internal/config"
	"lobbyd/internal/events"
	"lobbyd/internal/repository"
	"lobbyd/internal/repository/memory"
	"lobbyd/internal/service"
	"lobbyd/internal/transport/rest"
	"lobbyd/internal/transport/ws"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// App is the wired lobby: stores, services and transport
type App struct {
	Config *config.Config

	RoomRepo       repository.RoomRepo
	MembershipRepo repository.MembershipRepo

	Auth      *service.AuthService
	Presence  *service.PresenceService
	Validator *service.Validator
	Rooms     *service.RoomService
	Janitor   *service.Janitor
	Hub       *ws.Hub

	mongoClient *mongo.Client
	redis       *redis.Client
	bus         *events.NATSBus
}

// New connects to the configured backends and wires every component
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.redis.Ping(pingCtx).Err(); err != nil {
		a.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.RedisAddr, err)
	}
	logrus.WithField("addr", cfg.RedisAddr).Info("connected to redis")

	if err := a.Wire(a.redis); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config
	if cfg.StoreBackend == "memory" {
		store := memory.NewStore()
		a.RoomRepo = store.Rooms()
		a.MembershipRepo = store.Memberships()
		logrus.Warn("using in-memory room store, state is lost on restart")
		return nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return fmt.Errorf("connect to mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(ctx)
		return fmt.Errorf("ping mongo: %w", err)
	}
	a.mongoClient = client

	db := client.Database(cfg.MongoDB)
	if err := repository.EnsureIndexes(ctx, db); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	a.RoomRepo = repository.NewRoomRepo(db)
	a.MembershipRepo = repository.NewMembershipRepo(db)
	logrus.WithField("db", cfg.MongoDB).Info("connected to mongo")
	return nil
}

// Wire builds the services on top of the already-opened stores and rdb.
// Tests call it directly with a miniredis-backed client.
func (a *App) Wire(rdb *redis.Client) error {
	cfg := a.Config

	presenceCache := cache.NewPresenceCache(rdb, cfg.Presence.TTL)
	locker := cache.NewLocker(rdb, cfg.Lock.TTL, cfg.Lock.Retries, cfg.Lock.Backoff)
	marker := cache.NewJanitorMarker(rdb)

	a.Auth = service.NewAuthService(cfg.JWTSecret)
	a.Presence = service.NewPresenceService(presenceCache, a.RoomRepo, a.MembershipRepo)
	a.Validator = service.NewValidator(a.RoomRepo, a.MembershipRepo, a.Presence)
	a.Rooms = service.NewRoomService(a.RoomRepo, a.MembershipRepo, a.Presence, a.Validator, locker, cfg.Rooms)
	a.Rooms.SetCodeCache(cache.NewRoomCodeCache(rdb, cfg.Janitor.RoomStaleAfter))
	a.Janitor = service.NewJanitor(a.RoomRepo, a.MembershipRepo, a.Presence, locker, marker, cfg.Janitor, cfg.Presence.StaleAfter)
	a.Hub = ws.NewHub()

	var broadcaster service.Broadcaster = a.Hub
	if cfg.NATSURL != "" {
		nc, err := events.Connect(cfg.NATSURL)
		if err != nil {
			return err
		}
		bus, err := events.NewNATSBus(nc, a.Hub)
		if err != nil {
			nc.Close()
			return err
		}
		a.bus = bus
		broadcaster = bus
		logrus.WithField("url", cfg.NATSURL).Info("room events fanned out over nats")
	}
	a.Rooms.SetBroadcaster(broadcaster)
	a.Janitor.SetBroadcaster(broadcaster)
	return nil
}

// Router returns the HTTP handler for the wired app
func (a *App) Router() http.Handler {
	return rest.NewRouter(&rest.Container{
		AuthService:     a.Auth,
		RoomService:     a.Rooms,
		PresenceService: a.Presence,
		Validator:       a.Validator,
		Janitor:         a.Janitor,
		WSHub:           a.Hub,
		AllowedOrigins:  a.Config.CORSAllowedOrigins,
	})
}

// Close waits for an in-flight janitor sweep and releases every connection
func (a *App) Close() {
	if a.Janitor != nil {
		a.Janitor.Wait()
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			logrus.WithError(err).Warn("nats drain failed")
		}
	}
	if a.Hub != nil {
		a.Hub.Stop()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.mongoClient.Disconnect(ctx)
	}
}
