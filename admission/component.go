package admission

import (
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/do/v2"

	"github.com/theo-thinker/music-server-admission/config"
	"github.com/theo-thinker/music-server-admission/logger"
	redisman "github.com/theo-thinker/music-server-admission/redis"
)

// Provider builds the admission engine inside a do injector.
//
// Reads the "admission" configuration section, resolves the redis manager
// from the container when the redis store is selected, and registers the
// engine for shutdown.
func Provider(i do.Injector) (*Engine, error) {
	loader := do.MustInvoke[*config.Loader](i)

	cfg := DefaultConfig()
	if loader.IsSet("admission") {
		if err := loader.Unmarshal("admission", &cfg); err != nil {
			return nil, err
		}
	}

	log := logger.GetLogger("admission")

	var client *goredis.Client
	if StoreType(cfg.StoreType) == StoreRedis {
		mgr, err := do.Invoke[*redisman.Manager](i)
		if err != nil {
			return nil, err
		}
		client = mgr.Client(cfg.Redis.Instance)
		if client == nil {
			return nil, &ValidationError{
				Resource: "admission",
				Field:    "redis.instance",
				Message:  "redis instance not configured: " + cfg.Redis.Instance,
			}
		}
	}

	return NewEngineWithLogger(cfg, log, client)
}
