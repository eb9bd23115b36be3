package tool

import (
	"context"
	"fmt"
	"sync"
)

// Kind 工具操作类型 — 网关按此决定缓存与审批策略
type Kind string

const (
	KindRead    Kind = "read"    // 只读操作 (read_file, gpio_read, read_pptx...)
	KindSearch  Kind = "search"  // 搜索操作 (grep_search, glob, recall_memory...)
	KindFetch   Kind = "fetch"   // 网络获取 (web_fetch)
	KindExecute Kind = "execute" // 有副作用的操作 (gpio_write, save_memory, 插件...)
)

// ReadOnly 报告该类型是否无副作用。只读工具的结果可以安全缓存,
// 重复调用也不会改变设备或存储状态。
func (k Kind) ReadOnly() bool {
	switch k {
	case KindRead, KindSearch, KindFetch:
		return true
	}
	return false
}

// Tool 工具接口 - 所有可执行工具的抽象
type Tool interface {
	// Name 返回工具名称
	Name() string
	// Description 返回工具描述
	Description() string
	// Kind 返回工具操作类型
	Kind() Kind
	// Schema 返回参数的 JSON Schema
	Schema() map[string]interface{}
	// Execute 执行工具。参数非法时返回 success=false 的 Result,
	// 而不是 Go error — error 只用于工具自身无法运转的情况。
	Execute(ctx context.Context, args map[string]interface{}) (*Result, error)
}

// Result 工具执行结果
type Result struct {
	Output   string                 // 给 LLM 的精简结果
	Display  string                 // 给 UI 的富文本渲染 (为空时 fallback 到 Output)
	Success  bool                   // 是否成功
	Metadata map[string]interface{} // 元数据
	Error    string                 // 错误信息; Success=true 时必须为空
}

// Definition 工具定义，用于传递给模型
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Registry 工具注册表接口
type Registry interface {
	// Register 注册工具; 名称在注册集内必须唯一
	Register(tool Tool) error
	// Unregister 注销工具 (插件热重载时使用)
	Unregister(name string) error
	// Get 获取工具
	Get(name string) (Tool, bool)
	// List 列出所有工具
	List() []Definition
	// Has 检查工具是否存在
	Has(name string) bool
}

// InMemoryRegistry 内存工具注册表
type InMemoryRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewInMemoryRegistry 创建内存注册表
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		tools: make(map[string]Tool),
	}
}

// Register 注册工具
func (r *InMemoryRegistry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}

	r.tools[name] = tool
	return nil
}

// Unregister 注销工具
func (r *InMemoryRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return fmt.Errorf("tool %s not found", name)
	}

	delete(r.tools, name)
	return nil
}

// Get 获取工具
func (r *InMemoryRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	return tool, exists
}

// List 列出所有工具定义
func (r *InMemoryRegistry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, Definition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema(),
		})
	}
	return defs
}

// Has 检查工具是否存在
func (r *InMemoryRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tools[name]
	return exists
}

// Policy 工具放行策略: 先查禁止列表, 再查允许列表 (空 = 全部允许)。
type Policy struct {
	AllowList []string // 允许的工具列表
	DenyList  []string // 禁止的工具列表
	AskMode   bool     // 有副作用的工具执行前是否需要确认
}

// IsAllowed 检查工具是否被允许
func (p *Policy) IsAllowed(toolName string) bool {
	for _, denied := range p.DenyList {
		if denied == toolName {
			return false
		}
	}

	if len(p.AllowList) == 0 {
		return true
	}

	for _, allowed := range p.AllowList {
		if allowed == toolName {
			return true
		}
	}

	return false
}

// FilteredDefinitions 返回策略过滤后的工具列表 — 被策略挡掉的工具
// 连定义都不会进入模型的工具目录。
func FilteredDefinitions(p *Policy, registry Registry) []Definition {
	all := registry.List()
	if p == nil {
		return all
	}

	filtered := make([]Definition, 0, len(all))
	for _, def := range all {
		if p.IsAllowed(def.Name) {
			filtered = append(filtered, def)
		}
	}
	return filtered
}
