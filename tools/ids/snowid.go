package ids

import (
	"strconv"
	"sync"
	"time"
)

const (
	maxNodeID = 1023
	seqMask   = 0xFFF // 12 bits
	tsMask    = (1 << 41) - 1
)

var epochMS = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

// Generator 雪花ID：41 位时间戳 | 10 位节点 | 12 位序列
type Generator struct {
	mu       sync.Mutex
	nodeID   int64
	seq      int64
	lastTSMS int64
	now      func() time.Time
}

// NewGenerator nodeID 超出 0~1023 时回退为 1。
func NewGenerator(nodeID int64) *Generator {
	if nodeID < 0 || nodeID > maxNodeID {
		nodeID = 1
	}
	return &Generator{nodeID: nodeID, now: time.Now}
}

var (
	defaultGen *Generator
	once       sync.Once
)

func initDefault() {
	once.Do(func() { defaultGen = NewGenerator(1) })
}

// SetNodeID 在 main() 初始化时调用
func SetNodeID(nodeID int64) {
	initDefault()
	g := NewGenerator(nodeID)
	defaultGen.mu.Lock()
	defaultGen.nodeID = g.nodeID
	defaultGen.mu.Unlock()
}

func Generate() int64 {
	initDefault()
	return defaultGen.Next()
}

func GenerateString() string {
	return strconv.FormatInt(Generate(), 10)
}

func (g *Generator) NextString() string {
	return strconv.FormatInt(g.Next(), 10)
}

func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		now := g.now().UnixMilli()
		if now < g.lastTSMS {
			// 时钟回拨，等待
			time.Sleep(time.Duration(g.lastTSMS-now) * time.Millisecond)
			continue
		}
		if now == g.lastTSMS {
			g.seq = (g.seq + 1) & seqMask
			if g.seq == 0 {
				// 序列溢出，等到下一毫秒
				for now <= g.lastTSMS {
					now = g.now().UnixMilli()
				}
			}
		} else {
			g.seq = 0
		}
		g.lastTSMS = now

		ts := (now - epochMS) & tsMask
		return (ts << 22) | (g.nodeID << 12) | g.seq
	}
}

// NodeOf 从 ID 中取出节点号
func NodeOf(id int64) int64 { return (id >> 12) & maxNodeID }
