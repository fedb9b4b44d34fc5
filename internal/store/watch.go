package store

import (
	"context"
	"sync"
)

// watcher runs one subscription. Signals coalesce: any number of notify calls
// made while a delivery is running produce at most one more delivery, which
// always reads the latest committed state.
type watcher struct {
	signal  chan struct{}
	deliver func(ctx context.Context)
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// newWatcher prepares a watcher with its first delivery pending. Nothing is
// read until start, so the watcher can be registered for notifications
// before its initial snapshot.
func newWatcher(deliver func(ctx context.Context)) *watcher {
	ctx, cancel := context.WithCancel(context.Background())
	w := &watcher{
		signal:  make(chan struct{}, 1),
		deliver: deliver,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	w.signal <- struct{}{}
	return w
}

// start delivers once immediately and again after every notify until stop.
// deliver must not call stop on its own watcher.
func (w *watcher) start() *watcher {
	go w.run()
	return w
}

func (w *watcher) run() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.signal:
			if w.ctx.Err() != nil {
				return
			}
			w.deliver(w.ctx)
		}
	}
}

func (w *watcher) notify() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *watcher) stop() {
	w.once.Do(w.cancel)
	<-w.done
}

// topics fans notifications out to the watchers registered for a key.
type topics struct {
	mu   sync.Mutex
	subs map[string]map[*watcher]struct{}
}

func newTopics() *topics {
	return &topics{subs: make(map[string]map[*watcher]struct{})}
}

func (t *topics) add(topic string, w *watcher) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subs[topic] == nil {
		t.subs[topic] = make(map[*watcher]struct{})
	}
	t.subs[topic][w] = struct{}{}
}

func (t *topics) remove(topic string, w *watcher) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ws, ok := t.subs[topic]; ok {
		delete(ws, w)
		if len(ws) == 0 {
			delete(t.subs, topic)
		}
	}
}

func (t *topics) publish(topic string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for w := range t.subs[topic] {
		w.notify()
	}
}

func (t *topics) count(topic string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs[topic])
}

func sessionTopic(pin string) string { return "session:" + pin }
func playersTopic(pin string) string { return "players:" + pin }
