package chat

import (
	"hash/fnv"
	"sync"

	"PPRelay/tools/safe"
)

type fanoutJob struct {
	handles []Handle
	payload []byte
}

// Fanout 广播工作池。按 handle ID 分区到固定 worker，
// 同一连接收到的广播顺序与提交顺序一致。
type Fanout struct {
	queues []chan fanoutJob
	stop   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	onFail func(Handle, error)
}

func NewFanout(workers, queue int) *Fanout {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = 1024
	}
	f := &Fanout{queues: make([]chan fanoutJob, workers), stop: make(chan struct{})}
	for i := range f.queues {
		q := make(chan fanoutJob, queue)
		f.queues[i] = q
		f.wg.Add(1)
		safe.Go("fanout-worker", func() {
			defer f.wg.Done()
			f.work(q)
		})
	}
	return f
}

// OnFail 推送失败回调（慢连接/已关闭连接）。需在 Broadcast 前设置。
func (f *Fanout) OnFail(fn func(Handle, error)) { f.onFail = fn }

func (f *Fanout) work(q chan fanoutJob) {
	for {
		select {
		case <-f.stop:
			return
		case job := <-q:
			for _, h := range job.handles {
				if err := h.Send(job.payload); err != nil && f.onFail != nil {
					f.onFail(h, err)
				}
			}
		}
	}
}

// Broadcast 提交后立即返回；队列满时等待，关停后直接丢弃。
func (f *Fanout) Broadcast(handles []Handle, payload []byte) {
	if len(handles) == 0 || len(payload) == 0 {
		return
	}
	parts := make([][]Handle, len(f.queues))
	for _, h := range handles {
		i := partition(h.ID(), len(f.queues))
		parts[i] = append(parts[i], h)
	}
	for i, part := range parts {
		if len(part) == 0 {
			continue
		}
		select {
		case f.queues[i] <- fanoutJob{handles: part, payload: payload}:
		case <-f.stop:
			return
		}
	}
}

func (f *Fanout) Close() {
	f.once.Do(func() { close(f.stop) })
	f.wg.Wait()
}

func partition(id string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % uint32(n))
}
