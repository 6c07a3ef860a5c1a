package inertia

import (
	"sort"
	"sync"
	"time"
)

// Timer はスケジュール済みのティックを表す
type Timer interface {
	Stop() bool
}

// Scheduler は遅延実行の仕組みを抽象化する
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealScheduler は time.AfterFunc を使う実時間スケジューラ
type RealScheduler struct{}

func (RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ManualScheduler は仮想時計で動くスケジューラ。
// Advance / RunNext を呼んだときだけコールバックが実行される。
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Duration
	seq   uint64
	tasks []*manualTask
}

type manualTask struct {
	at    time.Duration
	seq   uint64
	fn    func()
	owner *ManualScheduler
}

// NewManualScheduler は時刻0の仮想スケジューラを作成する
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (m *ManualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &manualTask{at: m.now + d, seq: m.seq, fn: f, owner: m}
	m.tasks = append(m.tasks, t)
	sort.SliceStable(m.tasks, func(i, j int) bool {
		if m.tasks[i].at != m.tasks[j].at {
			return m.tasks[i].at < m.tasks[j].at
		}
		return m.tasks[i].seq < m.tasks[j].seq
	})
	return t
}

func (t *manualTask) Stop() bool {
	m := t.owner
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, task := range m.tasks {
		if task == t {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			return true
		}
	}
	return false
}

// Now は仮想時計の現在時刻を返す
func (m *ManualScheduler) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending は未実行のタスク数を返す
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// RunNext は次のタスクの時刻まで時計を進めて実行する。
// タスクがなければ false を返す。
func (m *ManualScheduler) RunNext() bool {
	m.mu.Lock()
	if len(m.tasks) == 0 {
		m.mu.Unlock()
		return false
	}
	t := m.tasks[0]
	m.tasks = m.tasks[1:]
	if t.at > m.now {
		m.now = t.at
	}
	m.mu.Unlock()

	t.fn()
	return true
}

// Advance は時計を d だけ進め、その間に期限を迎えたタスクを順に実行する。
// 実行中に追加されたタスクも期限内であれば実行される。
func (m *ManualScheduler) Advance(d time.Duration) int {
	m.mu.Lock()
	deadline := m.now + d
	m.mu.Unlock()

	ran := 0
	for {
		m.mu.Lock()
		if len(m.tasks) == 0 || m.tasks[0].at > deadline {
			m.now = deadline
			m.mu.Unlock()
			return ran
		}
		t := m.tasks[0]
		m.tasks = m.tasks[1:]
		m.now = t.at
		m.mu.Unlock()

		t.fn()
		ran++
	}
}
