package safe

import (
	"fmt"
	"reflect"

	"PPRelay/logger"

	"go.uber.org/zap"
)

// MustNotNil panics if the given value is nil.
// Useful for enforcing required constructor dependencies.
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			panic(fmt.Sprintf("%s must not be nil", name))
		}
	}
}

// Go starts a goroutine that recovers from panic, so one bad
// connection or worker can't take the whole relay down.
func Go(name string, f func()) {
	go func() {
		defer Recover(name)
		f()
	}()
}

// Recover is meant to be deferred directly.
func Recover(name string) {
	if r := recover(); r != nil {
		logger.Error("panic recovered", zap.String("where", name), zap.Any("panic", r), zap.Stack("stack"))
	}
}
