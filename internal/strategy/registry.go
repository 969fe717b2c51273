package strategy

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"tradesim/internal/logger"

	"github.com/fsnotify/fsnotify"
)

// Snapshot 是某一次加载后的策略集合。
type Snapshot struct {
	Version    int64
	LoadedAt   time.Time
	Strategies map[string]Document
}

// ChangeListener 在文件重载成功后触发。
type ChangeListener func(Snapshot)

// Registry 管理规则文件并在文件变化时重载。
type Registry struct {
	path string

	watcher   *fsnotify.Watcher
	watchDone sync.WaitGroup
	closeOnce sync.Once

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry 读取规则文件；watch 为 true 时监听更新，需调用 Close 停止。
func NewRegistry(path string, watch bool) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("strategy registry requires path")
	}
	r := &Registry{path: path}
	if err := r.reload(); err != nil {
		return nil, err
	}
	if !watch {
		return r, nil
	}
	if err := r.watch(); err != nil {
		return nil, err
	}
	return r, nil
}

// watch 监听文件所在目录并按文件名过滤，编辑器先删后建的保存方式也能触发重载。
func (r *Registry) watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create strategy watcher: %w", err)
	}
	file := filepath.Clean(r.path)
	if err := w.Add(filepath.Dir(file)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch strategy file %s: %w", file, err)
	}
	r.watcher = w
	r.watchDone.Add(1)
	go r.watchLoop(w, file)
	return nil
}

func (r *Registry) watchLoop(w *fsnotify.Watcher, file string) {
	defer r.watchDone.Done()
	for {
		select {
		case evt, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != file || !(evt.Has(fsnotify.Write) || evt.Has(fsnotify.Create)) {
				continue
			}
			if err := r.reload(); err != nil {
				// 保留上一份可用快照
				logger.Errorf("strategy reload failed: %v", err)
				continue
			}
			r.notifyListeners()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Warnf("strategy watcher: %v", err)
		}
	}
}

// Close 停止文件监听并等待监听协程退出。未开启 watch 时为空操作，可重复调用。
func (r *Registry) Close() error {
	var err error
	r.closeOnce.Do(func() {
		if r.watcher == nil {
			return
		}
		err = r.watcher.Close()
		r.watchDone.Wait()
	})
	return err
}

// OnChange 注册重载回调。
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Snapshot 返回当前策略集。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Names 返回排序后的策略名。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.snapshot.Strategies))
	for name := range r.snapshot.Strategies {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Documents 按名称顺序返回所有策略文档。
func (r *Registry) Documents() []Document {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Document, 0, len(names))
	for _, name := range names {
		out = append(out, r.snapshot.Strategies[name])
	}
	return out
}

// Rules 返回指定名称的可执行规则。
func (r *Registry) Rules(name string) (Rules, error) {
	r.mu.RLock()
	doc, ok := r.snapshot.Strategies[strings.TrimSpace(name)]
	r.mu.RUnlock()
	if !ok {
		return Rules{}, configErr("name", "unknown strategy %q", name)
	}
	return doc.Rules()
}

func (r *Registry) reload() error {
	docs, err := LoadFile(r.path)
	if err != nil {
		return err
	}
	strategies := make(map[string]Document, len(docs))
	for _, doc := range docs {
		strategies[doc.Name] = doc
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:    r.snapshot.Version + 1,
		LoadedAt:   time.Now(),
		Strategies: strategies,
	}
	r.mu.Unlock()
	logger.Infof("Strategy registry loaded %d strategies from %s", len(strategies), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer safeRecover("strategy listener")
			cb(snap)
		}(fn)
	}
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:    src.Version,
		LoadedAt:   src.LoadedAt,
		Strategies: make(map[string]Document, len(src.Strategies)),
	}
	for name, doc := range src.Strategies {
		dst.Strategies[name] = doc
	}
	return dst
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}
