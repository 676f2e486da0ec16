package wiring

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sophialabs/mimicry/internal/domain/audit"
	"github.com/sophialabs/mimicry/internal/domain/match"
	"github.com/sophialabs/mimicry/internal/domain/scenario"
	inboundhttp "github.com/sophialabs/mimicry/internal/infrastructure/inbound/http"
	"github.com/sophialabs/mimicry/internal/infrastructure/outbound/auditlog"
	"github.com/sophialabs/mimicry/internal/infrastructure/outbound/clock"
	"github.com/sophialabs/mimicry/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/mimicry/internal/infrastructure/outbound/metrics"
	"github.com/sophialabs/mimicry/internal/infrastructure/outbound/ratelimit"
	"github.com/sophialabs/mimicry/internal/infrastructure/outbound/template"
	"github.com/sophialabs/mimicry/internal/infrastructure/outbound/upstream"
	"github.com/sophialabs/mimicry/internal/infrastructure/ports"
	"github.com/sophialabs/mimicry/internal/infrastructure/services"
	"github.com/sophialabs/mimicry/internal/infrastructure/usecases"
)

const (
	extractorCacheSize = 512
	evaluatorCacheSize = 512
)

// Params holds the subset of configuration needed to construct infrastructure components.
type Params struct {
	RootDir        string
	AuditSize      int
	AuditFile      string // "" disables the file sink
	RecordDir      string // relative to RootDir
	TemplateEngine string // "jinja2" or "expr"
	RateLimiterTTL time.Duration
	Breaker        upstream.Config
	Logger         ports.Logger
}

// Container owns the construction and lifecycle of all infrastructure components.
type Container struct {
	logger      ports.Logger
	server      *inboundhttp.Server
	repo        *filesystem.YAMLRepository
	reloadUC    *usecases.ReloadUseCase
	rateLimiter *ratelimit.TokenBucketStore
	tasks       *usecases.Background
	auditRing   *audit.RingBuffer
	auditFile   *auditlog.FileSink
	metrics     *metrics.Collector
	closeOnce   sync.Once
}

// New constructs all infrastructure components. Nothing is loaded and no
// goroutine is started; see Reload and RunBackground.
func New(p Params) (*Container, error) {
	if _, err := os.Stat(p.RootDir); err != nil {
		return nil, fmt.Errorf("failed to access root directory: %w", err)
	}

	registry := template.NewRegistry()
	if !registry.Has(p.TemplateEngine) {
		return nil, fmt.Errorf("unknown template engine %q (supported: %v)", p.TemplateEngine, registry.Engines())
	}

	repo, err := filesystem.NewYAMLRepository(p.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}

	clk := clock.System{}
	var recorder ports.Recorder
	if p.RecordDir != "" {
		rec, err := filesystem.NewRecorder(repo.Root(), p.RecordDir, clk)
		if err != nil {
			return nil, fmt.Errorf("failed to create recorder: %w", err)
		}
		recorder = rec
	}

	auditRing := audit.NewRingBuffer(p.AuditSize)
	sink := audit.MultiSink{auditRing}
	var auditFile *auditlog.FileSink
	if p.AuditFile != "" {
		if err := os.MkdirAll(filepath.Dir(p.AuditFile), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
		auditFile = auditlog.NewFileSink(p.AuditFile)
		sink = append(sink, auditFile)
	}

	compiler := services.NewCompiler(registry, p.TemplateEngine,
		services.NewFieldExtractor(extractorCacheSize), services.NewOperatorEvaluator(evaluatorCacheSize))
	rules := services.NewRuleCache(repo, repo, compiler, p.Logger)
	proxies := services.NewProxyCache(repo.Proxies(), repo, p.Logger)
	engine := scenario.NewEngine()
	scenariosUC := usecases.NewScenarioUseCase(engine, repo.Scenarios(), compiler, rules.Protocol, p.Logger)
	reloadUC := usecases.NewReloadUseCase(rules, proxies, usecases.LoaderFunc(scenariosUC.Load), p.Logger)

	rateLimiter := ratelimit.NewTokenBucketStore(clk, p.RateLimiterTTL)
	collector := metrics.NewCollector()
	tasks := usecases.NewBackground(p.Logger, 5*time.Second)
	forwarder := upstream.NewForwarder(&http.Client{}, rateLimiter, p.Logger, p.Breaker)

	pipeline := usecases.NewHandleRequestUseCase(usecases.PipelineDeps{
		Matcher:   match.NewEngine(rules),
		Scenarios: engine,
		States:    repo.Scenarios(),
		Proxies:   proxies,
		Forwarder: forwarder,
		Recorder:  recorder,
		Tasks:     tasks,
		Clock:     clk,
		Logger:    p.Logger,
		Metrics:   collector,
	})

	server := inboundhttp.NewServer(inboundhttp.Deps{
		Pipeline:  pipeline,
		Auditor:   usecases.NewAuditor(sink, tasks),
		Reload:    reloadUC,
		Rules:     rules,
		Scenarios: scenariosUC,
		Validate:  usecases.NewValidateUseCase(repo, repo),
		AuditLog:  auditRing,
		Metrics:   collector.Handler(),
		Clock:     clk,
		Logger:    p.Logger,
	})

	return &Container{
		logger:      p.Logger,
		server:      server,
		repo:        repo,
		reloadUC:    reloadUC,
		rateLimiter: rateLimiter,
		tasks:       tasks,
		auditRing:   auditRing,
		auditFile:   auditFile,
		metrics:     collector,
	}, nil
}

// Reload rebuilds every cache from the YAML tree.
func (c *Container) Reload(ctx context.Context) error {
	return c.reloadUC.Execute(ctx)
}

// RunBackground runs the periodic maintenance loops until ctx is done.
func (c *Container) RunBackground(ctx context.Context) {
	c.rateLimiter.Run(ctx)
}

// Close waits for pending background writes and releases resources held
// by the container. It is idempotent.
func (c *Container) Close() {
	c.closeOnce.Do(func() {
		c.tasks.Wait()
		if c.auditFile != nil {
			if err := c.auditFile.Close(); err != nil {
				c.logger.Warn("failed to close audit file", "error", err)
			}
		}
	})
}

// Logger returns the logger passed at construction time.
func (c *Container) Logger() ports.Logger {
	return c.logger
}

// Server returns the HTTP mock server.
func (c *Container) Server() *inboundhttp.Server {
	return c.server
}

// Root returns the resolved root directory of the definitions.
func (c *Container) Root() string {
	return c.repo.Root()
}

// AuditLog returns the in-memory audit ring.
func (c *Container) AuditLog() *audit.RingBuffer {
	return c.auditRing
}

// Background returns the runner of fire-and-forget tasks.
func (c *Container) Background() *usecases.Background {
	return c.tasks
}
