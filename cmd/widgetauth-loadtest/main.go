package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	widgetAuth "github.com/MrEthical07/widgetAuth"
	"github.com/MrEthical07/widgetAuth/clientid"
	"github.com/MrEthical07/widgetAuth/internal"
	"github.com/MrEthical07/widgetAuth/internal/config"
	"github.com/MrEthical07/widgetAuth/keyhash"
)

const loadKeyID = "load0001"

func main() {
	var (
		sessions    = flag.Int("sessions", 2000, "number of widget sessions to open")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (verify + gate)")
		emails      = flag.Int("emails", 50000, "distinct emails used by the gate phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "wsl", "session key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 || *emails <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, ops, and emails must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	engine, apiKey, err := buildEngine(client, *prefix, *sessions, *emails)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("opening %d sessions...\n", *sessions)
	startSeed := time.Now()
	tokens, err := seed(ctx, engine, apiKey, *sessions, *concurrency)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("opened in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verifyStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand, _ int) bool {
		_, err := engine.Verify(ctx, tokens[r.Intn(len(tokens))])
		return err == nil
	})
	gateStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand, i int) bool {
		d, err := engine.CheckAccountCreation(ctx, widgetAuth.AccountCreationRequest{
			PartnerID: "load",
			Email:     fmt.Sprintf("user%d@example.com", r.Intn(*emails)),
			Request:   requestFrom(i % 250),
		})
		return err == nil && d.Allowed
	})

	fmt.Println("---- results ----")
	printStats("verify", verifyStats)
	printStats("gate", gateStats)
}

// buildEngine raises every limit far enough that the load phases measure
// throughput rather than denials, except the per-email layer.
func buildEngine(client redis.UniversalClient, prefix string, sessions, emails int) (*widgetAuth.Engine, string, error) {
	cfg := widgetAuth.DefaultConfig()
	jwtKey, err := internal.RandomString(48)
	if err != nil {
		return nil, "", err
	}
	cfg.JWT.PrivateKey = []byte(jwtKey)
	cfg.JWT.Issuer = "widgetauth-loadtest"
	cfg.JWT.Audience = "widget"
	cfg.Session.RedisPrefix = prefix
	cfg.KeyHash = keyhash.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	cfg.Audit.Enabled = false

	unlimited := 1 << 30
	rl := &cfg.RateLimits
	rl.MaxEntries = sessions + emails + 1024
	rl.Auth.Partner.Max = unlimited
	rl.AccountCreation.IP.Max = unlimited
	rl.AccountCreation.Partner.Max = unlimited
	rl.AccountCreation.PartnerCreation.Max = unlimited
	rl.AccountCreation.PartnerBurst.Max = unlimited

	secret, err := internal.NewAPIKeySecret()
	if err != nil {
		return nil, "", err
	}
	hasher, err := keyhash.NewArgon2(cfg.KeyHash)
	if err != nil {
		return nil, "", err
	}
	hash, err := hasher.Hash(secret)
	if err != nil {
		return nil, "", err
	}
	partners := config.NewStaticPartners(map[string]widgetAuth.PartnerRecord{
		loadKeyID: {PartnerID: "load", KeyHash: hash},
	})

	engine, err := widgetAuth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithPartnerProvider(partners).
		Build()
	if err != nil {
		return nil, "", err
	}
	key := keyhash.APIKey{KeyID: loadKeyID, Secret: secret}
	return engine, key.String(), nil
}

// seed opens one session per synthetic client address so the per-IP auth
// layer never trips.
func seed(ctx context.Context, engine *widgetAuth.Engine, apiKey string, n, concurrency int) ([]string, error) {
	tokens := make([]string, n)
	var (
		wg       sync.WaitGroup
		cursor   int64
		failed   atomic.Bool
		errOnce  sync.Once
		firstErr error
	)
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= n || failed.Load() {
					return
				}
				res, err := engine.Authenticate(ctx, widgetAuth.AuthenticateRequest{
					APIKey:  apiKey,
					Request: requestFrom(i),
				})
				if err != nil {
					errOnce.Do(func() { firstErr = err })
					failed.Store(true)
					return
				}
				tokens[i] = res.Token
			}
		}()
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return tokens, nil
}

func requestFrom(i int) clientid.Request {
	return clientid.Request{
		Method:     http.MethodPost,
		Path:       "/v1/widget/session",
		Header:     http.Header{"User-Agent": []string{"widgetauth-loadtest"}},
		RemoteAddr: fmt.Sprintf("10.%d.%d.%d:40000", (i>>16)&0xFF, (i>>8)&0xFF, i&0xFF),
	}
}

func runPhase(ops, concurrency int, seedMul int64, op func(r *rand.Rand, i int) bool) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seedMul))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				ok := op(r, i)
				d := time.Since(t0)
				if !ok {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

// In the gate phase, failures are denials: emails past their per-day budget.
func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
