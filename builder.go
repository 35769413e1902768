package widgetAuth

import (
	"errors"

	"github.com/MrEthical07/widgetAuth/audit"
	"github.com/MrEthical07/widgetAuth/clientid"
	"github.com/MrEthical07/widgetAuth/internal/limiters"
	"github.com/MrEthical07/widgetAuth/internal/rate"
	"github.com/MrEthical07/widgetAuth/jwt"
	"github.com/MrEthical07/widgetAuth/keyhash"
	"github.com/MrEthical07/widgetAuth/session"
	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder is single-use and not safe for
// concurrent use.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  session.Store
	clock  clock.Clock

	partners      PartnerProvider
	auditPrimary  audit.Sink
	auditFallback audit.Sink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis stores sessions in Redis through [session.RedisStore].
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSessionStore uses a custom session store. It takes precedence over
// WithRedis.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithPartnerProvider sets the partner lookup used by Authenticate.
func (b *Builder) WithPartnerProvider(p PartnerProvider) *Builder {
	b.partners = p
	return b
}

// WithAuditSinks sets the primary and fallback audit sinks. Either may be
// nil.
func (b *Builder) WithAuditSinks(primary, fallback audit.Sink) *Builder {
	b.auditPrimary = primary
	b.auditFallback = fallback
	return b
}

// WithClock overrides the wall clock, mainly for tests.
func (b *Builder) WithClock(clk clock.Clock) *Builder {
	b.clock = clk
	return b
}

// WithMetricsEnabled toggles in-process metrics.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires every component. The returned
// engine owns background goroutines; call [Engine.Close] when done.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.partners == nil {
		return nil, errors.New("partner provider required")
	}

	clk := b.clock
	if clk == nil {
		clk = clock.New()
	}

	// -------- SESSION STORE --------
	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, errors.New("redis client or session store required")
		}
		store = session.NewRedisStore(b.redis, session.RedisStoreConfig{
			Prefix: cfg.Session.RedisPrefix,
			Clock:  clk,
		})
	}

	// -------- CREDENTIALS --------
	tokens, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.JWT.TTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Clock:         clk,
	})
	if err != nil {
		return nil, err
	}

	keys, err := keyhash.NewArgon2(cfg.KeyHash)
	if err != nil {
		return nil, err
	}

	// -------- RATE LIMITS --------
	limiter, err := buildLimiter(cfg.RateLimits, clk)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:   cfg,
		clock:    clk,
		store:    store,
		tokens:   tokens,
		keys:     keys,
		limiter:  limiter,
		partners: b.partners,
		metrics:  NewMetrics(cfg.Metrics),
		resolver: clientid.NewResolver(clientid.Config{
			TrustedProxies: cfg.Proxy.TrustedProxies,
			MaxHops:        cfg.Proxy.MaxHops,
			CDNHeader:      cfg.Proxy.CDNHeader,
		}),
		stop: make(chan struct{}),
	}

	engine.sessions = session.NewManager(store, session.ManagerConfig{
		TTL:        cfg.Session.TTL,
		OpTimeout:  cfg.Session.OpTimeout,
		SweepBatch: cfg.Session.SweepBatch,
		OnSweep: func(n int) {
			engine.metrics.Add(MetricSessionSwept, uint64(n))
		},
	}, clk)

	// -------- AUDIT --------
	if cfg.Audit.Enabled {
		engine.emitter = audit.NewEmitter(b.auditPrimary, b.auditFallback, audit.EmitterConfig{
			StageTimeout: cfg.Audit.StageTimeout,
			Clock:        clk,
		})
		engine.audit = audit.NewDispatcher(audit.DispatcherConfig{
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, engine.emitter)
	}

	b.built = true

	return engine, nil
}

func buildLimiter(cfg RateLimitConfig, clk clock.Clock) (*limiters.Limiter, error) {
	l := limiters.New(cfg.limiterConfig(), clk)
	for name, layer := range cfg.layers() {
		maxEntries := layer.MaxEntries
		if maxEntries == 0 {
			maxEntries = cfg.MaxEntries
		}
		err := l.Register(name, rate.Config{
			Window:     layer.Window,
			Max:        layer.Max,
			MaxEntries: maxEntries,
		})
		if err != nil {
			l.Close()
			return nil, err
		}
	}
	return l, nil
}
