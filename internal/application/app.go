package application

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/zeroclaw/gateway/internal/application/usecase"
	domaindevice "github.com/zeroclaw/gateway/internal/domain/device"
	"github.com/zeroclaw/gateway/internal/domain/memory"
	"github.com/zeroclaw/gateway/internal/domain/service"
	domaintool "github.com/zeroclaw/gateway/internal/domain/tool"
	"github.com/zeroclaw/gateway/internal/domain/urlguard"
	"github.com/zeroclaw/gateway/internal/infrastructure/config"
	infradevice "github.com/zeroclaw/gateway/internal/infrastructure/device"
	"github.com/zeroclaw/gateway/internal/infrastructure/embedding"
	"github.com/zeroclaw/gateway/internal/infrastructure/llm"
	_ "github.com/zeroclaw/gateway/internal/infrastructure/llm/anthropic" // register anthropic provider factory
	_ "github.com/zeroclaw/gateway/internal/infrastructure/llm/gemini"    // register gemini provider factory
	_ "github.com/zeroclaw/gateway/internal/infrastructure/llm/openai"    // register openai provider factory
	"github.com/zeroclaw/gateway/internal/infrastructure/monitoring"
	"github.com/zeroclaw/gateway/internal/infrastructure/persistence"
	"github.com/zeroclaw/gateway/internal/infrastructure/plugin"
	"github.com/zeroclaw/gateway/internal/infrastructure/prompt"
	"github.com/zeroclaw/gateway/internal/infrastructure/sandbox"
	toolpkg "github.com/zeroclaw/gateway/internal/infrastructure/tool"
	"github.com/zeroclaw/gateway/internal/infrastructure/vectorstore"
	httpServer "github.com/zeroclaw/gateway/internal/interfaces/http"
)

// App 应用程序主体 — 按依赖顺序装配网关的六个子系统:
// 记忆 → 设备 → 工具 → 插件 → LLM → HTTP 入口。
type App struct {
	config *config.Config
	logger *zap.Logger

	deviceRegistry *domaindevice.Registry
	toolRegistry   domaintool.Registry
	hybridMemory   *memory.HybridMemory
	pluginLoader   *plugin.Loader
	promptEngine   *prompt.PromptEngine
	monitor        *monitoring.Monitor
	agentLoop      *service.AgentLoop
	usecase        *usecase.ProcessMessageUseCase
	httpServer     *httpServer.Server

	vectorStore *vectorstore.LanceDBVectorStore // nil unless lancedb backend selected

	cancelWatchers context.CancelFunc
}

// NewApp 初始化应用程序
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{
		config:  cfg,
		logger:  logger,
		monitor: monitoring.NewMonitor(logger),
	}

	// Bootstrap: ensure ~/.zeroclaw/ exists with default files on first run
	if err := config.Bootstrap(logger); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	if err := app.initMemory(); err != nil {
		return nil, err
	}
	app.initDevices()
	if err := app.initTools(); err != nil {
		return nil, err
	}
	if err := app.initPlugins(); err != nil {
		return nil, err
	}
	llmRouter, err := app.initLLM()
	if err != nil {
		return nil, err
	}
	app.initAgent(llmRouter)
	app.initHTTP()

	return app, nil
}

// initMemory 装配混合记忆: gorm 权威存储 + 可选的语义索引 (lancedb / 内存)。
func (a *App) initMemory() error {
	db, err := persistence.NewDBConnection(&a.config.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	authoritative := persistence.NewGormMemoryRepository(db)

	var semantic memory.VectorStore
	var embedder memory.EmbeddingProvider
	if a.config.Memory.Enabled {
		if a.config.Memory.OllamaURL != "" {
			e, err := embedding.NewOllamaEmbedder(a.config.Memory.OllamaURL, a.config.Memory.EmbedModel, a.logger)
			if err != nil {
				a.logger.Warn("embedder unavailable, semantic memory disabled", zap.Error(err))
			} else {
				embedder = e
			}
		}
		switch {
		case embedder == nil:
			// No embedder means nothing can be vectorized; stay authoritative-only.
		case a.config.Memory.StoreType == "lancedb" && a.config.Memory.StorePath != "":
			store, err := vectorstore.NewLanceDBVectorStore(a.config.Memory.StorePath, embedder.Dimension(), a.logger)
			if err != nil {
				a.logger.Warn("lancedb unavailable, falling back to in-memory semantic index", zap.Error(err))
				semantic = memory.NewInMemoryVectorStore()
			} else {
				a.vectorStore = store
				semantic = store
			}
		default:
			semantic = memory.NewInMemoryVectorStore()
		}
	}

	a.hybridMemory = memory.NewHybridMemory(authoritative, semantic, embedder, a.logger)
	return nil
}

// initDevices 装配设备注册表并发现已配置的串口板卡。
func (a *App) initDevices() {
	a.deviceRegistry = domaindevice.New()
	infradevice.Discover(a.config.Device, a.deviceRegistry, a.logger)
}

// initTools 注册内置工具: 文件/搜索、GPIO、PPTX、web_fetch、记忆。
func (a *App) initTools() error {
	a.toolRegistry = domaintool.NewInMemoryRegistry()

	workspace := a.config.Agent.Workspace
	if workspace == "" {
		workspace = filepath.Join(config.HomeDir(), config.WorkspaceDirName, "workspace")
		a.config.Agent.Workspace = workspace
	}
	if err := os.MkdirAll(workspace, 0755); err != nil {
		return fmt.Errorf("workspace dir: %w", err)
	}

	sb, err := sandbox.NewProcessSandbox(&sandbox.Config{
		WorkDir:   workspace,
		Timeout:   30 * time.Second,
		PythonEnv: a.config.PythonEnv,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("sandbox: %w", err)
	}

	guard := &urlguard.Policy{
		ToolName:       "web_fetch",
		AllowedDomains: urlguard.NormalizeAllowedDomains(a.config.WebFetch.AllowedDomains),
		BlockedDomains: urlguard.NormalizeAllowedDomains(a.config.WebFetch.BlockedDomains),
		Resolver: func(ctx context.Context, host string) ([]net.IP, error) {
			addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			ips := make([]net.IP, 0, len(addrs))
			for _, addr := range addrs {
				ips = append(ips, addr.IP)
			}
			return ips, nil
		},
	}

	toolpkg.RegisterAllTools(toolpkg.ToolLayerDeps{
		Registry:          a.toolRegistry,
		Logger:            a.logger,
		Sandbox:           sb,
		DeviceRegistry:    a.deviceRegistry,
		WorkspaceSecurity: toolpkg.NewWorkspaceSecurity(workspace, 0),
		URLGuard:          guard,
		Memory:            a.hybridMemory,
	})
	return nil
}

// initPlugins 扫描插件根目录, 把每个 manifest 声明的子进程适配成工具。
func (a *App) initPlugins() error {
	roots := a.config.Plugin.Roots
	if len(roots) == 0 {
		roots = []string{filepath.Join(config.HomeDir(), config.WorkspaceDirName, "plugins")}
	}

	loader, err := plugin.NewLoader(roots, a.toolRegistry, a.config.Plugin.WatchForReload, a.logger)
	if err != nil {
		return fmt.Errorf("plugin loader: %w", err)
	}
	if err := loader.LoadAll(context.Background()); err != nil {
		a.logger.Warn("plugin scan incomplete", zap.Error(err))
	}
	a.pluginLoader = loader
	return nil
}

// initLLM 按配置创建各 provider 并装入带熔断/容灾的路由器。
func (a *App) initLLM() (*llm.Router, error) {
	router := llm.NewRouter(a.logger)
	// The router tries providers in insertion order; lower priority = preferred.
	pcs := append([]config.LLMProviderConfig(nil), a.config.Agent.Providers...)
	sort.SliceStable(pcs, func(i, j int) bool { return pcs[i].Priority < pcs[j].Priority })
	for _, pc := range pcs {
		p, err := llm.CreateProvider(llm.ProviderConfig{
			Name:     pc.Name,
			Type:     pc.Type,
			BaseURL:  pc.BaseURL,
			APIKey:   pc.APIKey,
			Models:   pc.Models,
			Priority: pc.Priority,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}
		router.AddProvider(p)
	}
	return router, nil
}

// initAgent 装配 ReAct 循环: 提示词引擎、钩子、中间件、循环检测阈值。
func (a *App) initAgent(router *llm.Router) {
	a.promptEngine = prompt.NewPromptEngine(a.config.Agent.Workspace, a.logger)
	if err := a.promptEngine.Discover(); err != nil {
		a.logger.Warn("prompt component discovery failed", zap.Error(err))
	}

	loopCfg := service.DefaultAgentLoopConfig()
	loopCfg.Model = a.config.Agent.DefaultModel
	g := a.config.Agent.Guardrails
	if g.NoProgressThreshold > 0 {
		loopCfg.NoProgressThreshold = g.NoProgressThreshold
	}
	if g.PingPongCycles > 0 {
		loopCfg.PingPongCycles = g.PingPongCycles
	}
	if g.FailureStreakThreshold > 0 {
		loopCfg.FailureStreakThreshold = g.FailureStreakThreshold
	}
	if g.ContextMaxTokens > 0 {
		loopCfg.ContextMaxTokens = g.ContextMaxTokens
	}
	r := a.config.Agent.Runtime
	if r.ToolTimeout > 0 {
		loopCfg.ToolTimeout = r.ToolTimeout
	}
	if r.MaxTokenBudget > 0 {
		loopCfg.MaxTokenBudget = r.MaxTokenBudget
	}
	if r.MaxRetries > 0 {
		loopCfg.MaxRetries = r.MaxRetries
	}
	if r.RetryBaseWait > 0 {
		loopCfg.RetryBaseWait = r.RetryBaseWait
	}
	if len(a.config.Agent.ModelPolicies) > 0 {
		loopCfg.ModelPolicies = make(map[string]*service.ModelPolicyOverride, len(a.config.Agent.ModelPolicies))
		for family, o := range a.config.Agent.ModelPolicies {
			loopCfg.ModelPolicies[family] = &service.ModelPolicyOverride{
				ProgressInterval:   o.ProgressInterval,
				ProgressEscalation: o.ProgressEscalation,
			}
		}
	}

	executor := service.NewToolExecutorAdapter(a.toolRegistry, &domaintool.Policy{AskMode: a.config.Agent.AskMode}, a.logger)
	loop := service.NewAgentLoop(router, executor, loopCfg, a.logger)

	hooks := service.NewHookChain(monitoring.NewMetricsHook(a.monitor))
	if mode := a.config.Agent.Security.ApprovalMode; mode != "" && mode != "auto" {
		kindOf := func(name string) domaintool.Kind {
			if tool, ok := a.toolRegistry.Get(name); ok {
				return tool.Kind()
			}
			return domaintool.KindExecute
		}
		hooks.Add(service.NewSecurityHook(a.config.Agent.Security, kindOf, nil, a.logger))
	}
	loop.SetHooks(hooks)

	pipeline := service.NewMiddlewarePipeline(a.logger)
	pipeline.Use(service.NewDanglingToolCallMiddleware(a.logger))
	pipeline.Use(service.NewMemoryMiddleware(router, &memoryPersisterAdapter{mem: a.hybridMemory}, a.logger))
	loop.SetMiddleware(pipeline)

	a.agentLoop = loop
}

// initHTTP 装配对话用例与 HTTP 入口。
func (a *App) initHTTP() {
	systemPrompt := func() string {
		defs := a.toolRegistry.List()
		names := make([]string, 0, len(defs))
		summaries := make(map[string]string, len(defs))
		for _, d := range defs {
			names = append(names, d.Name)
			summaries[d.Name] = d.Description
		}
		return a.promptEngine.Assemble(prompt.PromptContext{
			Channel:         "http",
			ModelName:       a.config.Agent.DefaultModel,
			Workspace:       a.config.Agent.Workspace,
			RegisteredTools: names,
			ToolSummaries:   summaries,
			DeviceSummary:   a.deviceRegistry.PromptSummary(),
		})
	}

	a.usecase = usecase.NewProcessMessageUseCase(
		a.agentLoop,
		a.hybridMemory,
		&monitorObserver{monitor: a.monitor},
		systemPrompt,
		a.config.Agent.DefaultModel,
		a.config.Agent.AutoSaveChat,
		a.logger,
	)

	a.httpServer = httpServer.NewServer(httpServer.Config{
		Host:  a.config.Gateway.Host,
		Port:  a.config.Gateway.Port,
		Mode:  a.config.Gateway.Mode,
		Token: a.config.Gateway.Token,
		Stats: a.monitor.GetStats,
	}, a.usecase, a.logger)
}

// Start 启动网关: HTTP 服务 + 插件热加载监视。
func (a *App) Start(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(context.Background())
	a.cancelWatchers = cancel

	if err := a.pluginLoader.StartWatching(watchCtx); err != nil {
		a.logger.Warn("plugin hot-reload unavailable", zap.Error(err))
	}

	return a.httpServer.Start(ctx)
}

// Stop 按启动的相反顺序收尾。
func (a *App) Stop(ctx context.Context) error {
	if a.cancelWatchers != nil {
		a.cancelWatchers()
	}
	if a.pluginLoader != nil {
		_ = a.pluginLoader.Close()
	}
	if a.vectorStore != nil {
		_ = a.vectorStore.Close()
	}
	return a.httpServer.Stop(ctx)
}

// ProcessMessageUseCase 暴露对话用例 (供测试与诊断接口使用)。
func (a *App) ProcessMessageUseCase() *usecase.ProcessMessageUseCase {
	return a.usecase
}

// Logger 暴露应用日志器。
func (a *App) Logger() *zap.Logger { return a.logger }

// monitorObserver adapts monitoring.Monitor → usecase.TurnObserver.
type monitorObserver struct {
	monitor *monitoring.Monitor
}

func (o *monitorObserver) AgentStart(sessionID string) { o.monitor.IncRequestTotal() }
func (o *monitorObserver) LlmRequest(model string)     { o.monitor.IncModelCall() }
func (o *monitorObserver) LlmResponse(model string, success bool) {
	if success {
		o.monitor.IncRequestSuccess()
	} else {
		o.monitor.IncRequestFailed()
	}
}
func (o *monitorObserver) AgentEnd(sessionID string) {}
func (o *monitorObserver) RequestLatency(d time.Duration) {
	o.monitor.RecordRequestLatency(d)
}
