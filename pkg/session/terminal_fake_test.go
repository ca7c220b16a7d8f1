package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/dotsetgreg/dotfuzz/pkg/bus"
	"github.com/dotsetgreg/dotfuzz/pkg/generator"
	"github.com/dotsetgreg/dotfuzz/pkg/persona"
)

const (
	lineReady     = "[System] Ready.\r\n"
	lineName      = "收到创建指令。请问文件要叫什么名字？\r\n"
	lineFilename  = "请输入文件名 (或输入 '自动' )：\r\n"
	lineExtension = "请输入后缀 (如 .cpp)，或者输入 'all .txt' 统一应用：\r\n"
	linePath      = "所有文件名已就绪，请问放在哪里？(支持模糊搜索，例如 'test' 或 '/home/user/...')\r\n"
	lineNotFound  = "[ERROR] 找不到类似 'srcc' 的路径，请重新输入：\r\n"
	lineComplete  = "[System] 审计完成。训练数据已保存至: judgment_0001.jsonl\r\n"
)

// scriptedTerminal plays the target: every complete line written to it is
// recorded and handed to respond, whose return values become readable output.
type scriptedTerminal struct {
	mu      sync.Mutex
	respond func(line string) []string
	lines   []string
	partial []byte

	out     chan []byte
	pending []byte // only touched by the reader

	hungUp    chan struct{}
	hangOnce  sync.Once
	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32
}

func newScriptedTerminal(respond func(line string) []string, initial ...string) *scriptedTerminal {
	t := &scriptedTerminal{
		respond: respond,
		out:     make(chan []byte, 1024),
		hungUp:  make(chan struct{}),
		closed:  make(chan struct{}),
	}
	for _, s := range initial {
		t.out <- []byte(s)
	}
	return t
}

func (t *scriptedTerminal) Read(p []byte) (int, error) {
	if len(t.pending) == 0 {
		select {
		case b := <-t.out:
			t.pending = b
		case <-t.hungUp:
			select {
			case b := <-t.out:
				t.pending = b
			default:
				return 0, io.EOF
			}
		case <-t.closed:
			return 0, os.ErrClosed
		}
	}
	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

func (t *scriptedTerminal) Write(p []byte) (int, error) {
	select {
	case <-t.closed:
		return 0, os.ErrClosed
	default:
	}

	t.mu.Lock()
	t.partial = append(t.partial, p...)
	var output []string
	for {
		i := bytes.IndexByte(t.partial, '\n')
		if i < 0 {
			break
		}
		line := string(t.partial[:i])
		t.partial = t.partial[i+1:]
		t.lines = append(t.lines, line)
		if t.respond != nil {
			output = append(output, t.respond(line)...)
		}
	}
	t.mu.Unlock()

	for _, s := range output {
		t.out <- []byte(s)
	}
	return len(p), nil
}

func (t *scriptedTerminal) Close() error {
	t.closes.Add(1)
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

// hangup makes the target's output end once queued output is read.
func (t *scriptedTerminal) hangup() {
	t.hangOnce.Do(func() { close(t.hungUp) })
}

func (t *scriptedTerminal) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.lines...)
}

// cyclePrompts hands out numbered commands, rotating through personas.
type cyclePrompts struct {
	registry *persona.Registry
	ids      []string
	command  string // sent every round instead of cmd-N when set
}

func newCyclePrompts(ids ...string) *cyclePrompts {
	if len(ids) == 0 {
		ids = []string{"developer"}
	}
	return &cyclePrompts{registry: persona.DefaultRegistry(), ids: ids}
}

func (c *cyclePrompts) Generate(_ context.Context, round int) generator.Prompt {
	p, _ := c.registry.Get(c.ids[(round-1)%len(c.ids)])
	text := fmt.Sprintf("cmd-%d", round)
	if c.command != "" {
		text = c.command
	}
	return generator.Prompt{
		Text:    text,
		Context: persona.Context{Persona: &p, Topic: p.Topics[0]},
	}
}

// drain closes b and returns everything that was published.
func drain(b *bus.EventBus) []bus.Event {
	b.Close()
	var out []bus.Event
	for {
		ev, ok := b.Consume(context.Background())
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func eventsOf(events []bus.Event, kind bus.EventKind) []bus.Event {
	var out []bus.Event
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
