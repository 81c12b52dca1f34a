package logging

import (
	"fmt"
	"runtime/debug"
)

// RecoverAndLog recovers from a panic in an SDK goroutine and records it.
// Use as: defer logging.RecoverAndLog("context", false)
// Set rePanic to true for goroutines whose failure should crash the process
// after the panic has been recorded.
func RecoverAndLog(context string, rePanic bool) {
	r := recover()
	if r == nil {
		return
	}

	stack := debug.Stack()
	CapturePanic(r, stack, context)
	Error(CatSystem, fmt.Sprintf("PANIC in %s: %v", context, r), map[string]any{
		"panic": fmt.Sprintf("%v", r),
		"stack": string(stack),
	})

	if rePanic {
		panic(r)
	}
}
