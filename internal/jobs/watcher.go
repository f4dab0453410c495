package jobs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"homedrive-go/internal/model"
	"homedrive-go/internal/repository"
	"homedrive-go/pkg/log"
)

// Watcher 监听卷根目录及其一级子目录的变化，在变化平息 debounce 之后为对应的卷入队索引任务。
// 深层目录的变化依赖定时索引。
type Watcher struct {
	store    *repository.Store
	queue    *Queue
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher 创建一个 Watcher。
func NewWatcher(store *repository.Store, queue *Queue, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 5 * time.Second
	}
	return &Watcher{store: store, queue: queue, debounce: debounce, pending: make(map[string]*time.Timer)}
}

// Start 注册监听并阻塞直到 ctx 结束。
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	vols, err := w.store.WithContext(ctx).Volumes().FindByKind(model.HostPath)
	if err != nil {
		return err
	}
	roots := make(map[string]string, len(vols))
	for _, v := range vols {
		roots[v.Path] = v.ID
		w.addTree(fw, v.Path)
	}
	log.Infof("[Watcher] 正在监听 %d 个卷", len(vols))

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			for _, t := range w.pending {
				t.Stop()
			}
			w.mu.Unlock()
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if volID := volumeFor(roots, ev.Name); volID != "" {
				w.schedule(ctx, volID)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warnw("[Watcher] 监听出错", "error", err)
		}
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) {
	for _, dir := range watchDirs(root) {
		if err := fw.Add(dir); err != nil {
			log.Warnw("[Watcher] 无法监听目录", "path", dir, "error", err)
		}
	}
}

// watchDirs 返回根目录及其一级子目录。普通文件和符号链接不监听。
func watchDirs(root string) []string {
	dirs := []string{root}
	entries, err := os.ReadDir(root)
	if err != nil {
		log.Warnw("[Watcher] 无法读取目录", "path", root, "error", err)
		return dirs
	}
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	return dirs
}

func (w *Watcher) schedule(ctx context.Context, volumeID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[volumeID]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[volumeID] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, volumeID)
		w.mu.Unlock()
		w.fire(ctx, volumeID)
	})
}

func (w *Watcher) fire(ctx context.Context, volumeID string) {
	if ctx.Err() != nil {
		return
	}
	store := w.store.WithContext(ctx)
	vol, err := store.Volumes().Get(volumeID)
	if err != nil {
		return
	}
	if _, err := EnqueueIndex(ctx, store, w.queue, vol); err != nil {
		log.Errorf("[Watcher] 为卷 %s 安排索引失败: %v", vol.Name, err)
	}
}

// volumeFor 返回包含 path 的卷 ID。
func volumeFor(roots map[string]string, path string) string {
	for root, id := range roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return id
		}
	}
	return ""
}
