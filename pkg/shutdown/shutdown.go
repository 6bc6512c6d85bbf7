package shutdown

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "shutdown")

// Handler 关闭处理函数
type Handler func(ctx context.Context) error

type namedHandler struct {
	name string
	fn   Handler
}

// Manager 优雅关闭管理器：按注册的逆序依次执行（后启动的先关闭）
type Manager struct {
	callbacks []namedHandler
	mu        sync.Mutex
	once      sync.Once
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, namedHandler{name: name, fn: handler})
}

// Shutdown 执行所有关闭回调（阻塞，只执行一次）。
// ctx 应带超时；超时后剩余回调仍会被调用，但拿到的是已结束的 ctx。
// 返回失败的回调数。
func (m *Manager) Shutdown(ctx context.Context) int {
	failed := 0
	m.once.Do(func() {
		m.mu.Lock()
		callbacks := append([]namedHandler(nil), m.callbacks...)
		m.mu.Unlock()

		if len(callbacks) == 0 {
			return
		}
		log.Infof("开始优雅关闭，共 %d 个回调", len(callbacks))
		for i := len(callbacks) - 1; i >= 0; i-- {
			cb := callbacks[i]
			if err := cb.fn(ctx); err != nil {
				failed++
				log.Warnf("关闭 %s 失败: %v", cb.name, err)
				continue
			}
			log.Debugf("已关闭 %s", cb.name)
		}
		if ctx.Err() != nil {
			log.Warnf("关闭超时: %v", ctx.Err())
			return
		}
		log.Info("所有关闭回调已完成")
	})
	return failed
}
