package jsruntime

import (
	"fmt"

	"github.com/dop251/goja"
)

type timerEntry struct {
	callback goja.Callable
	args     []goja.Value
	interval bool
	periodMs int64
}

// installTimers wires setTimeout/clearTimeout/setInterval/clearInterval
// to the owning EventLoop "Additional globals".
func (rt *Runtime) installTimers() {
	rt.vm.Set("setTimeout", rt.jsSetTimer(false))
	rt.vm.Set("setInterval", rt.jsSetTimer(true))
	rt.vm.Set("clearTimeout", rt.jsClearTimer())
	rt.vm.Set("clearInterval", rt.jsClearTimer())
}

func (rt *Runtime) jsSetTimer(repeating bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(rt.vm.NewTypeError("setTimeout/setInterval requires a function as the first argument"))
		}
		var delayMs int64
		if len(call.Arguments) > 1 {
			delayMs = call.Argument(1).ToInteger()
		}
		var extra []goja.Value
		if len(call.Arguments) > 2 {
			extra = call.Arguments[2:]
		}

		rt.mu.Lock()
		rt.timerSeq++
		id := fmt.Sprintf("t%d", rt.timerSeq)
		rt.timers[id] = timerEntry{callback: fn, args: extra, interval: repeating, periodMs: delayMs}
		rt.mu.Unlock()

		rt.loop.ScheduleTimer(id, rt.loop.NowMs()+delayMs)
		return rt.vm.ToValue(id)
	}
}

func (rt *Runtime) jsClearTimer() func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		id := call.Argument(0).String()
		rt.mu.Lock()
		delete(rt.timers, id)
		rt.mu.Unlock()
		rt.loop.ClearTimer(id)
		return goja.Undefined()
	}
}

// fireTimer invokes the callback registered for timerID, if it has not
// been cleared, and reschedules it when it is a setInterval timer.
func (rt *Runtime) fireTimer(timerID string) {
	rt.mu.Lock()
	entry, ok := rt.timers[timerID]
	rt.mu.Unlock()
	if !ok {
		return
	}

	if _, err := entry.callback(goja.Undefined(), entry.args...); err != nil {
		rt.logger.Warn("timer callback threw", "extension_id", rt.extension, "timer_id", timerID, "error", err)
	}

	if !entry.interval {
		rt.mu.Lock()
		delete(rt.timers, timerID)
		rt.mu.Unlock()
		return
	}

	rt.mu.Lock()
	_, stillArmed := rt.timers[timerID]
	rt.mu.Unlock()
	if stillArmed {
		rt.loop.ScheduleTimer(timerID, rt.loop.NowMs()+entry.periodMs)
	}
}
