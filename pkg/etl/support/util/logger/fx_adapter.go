package logger

import (
	"strings"

	"go.uber.org/fx/fxevent"
)

// FxLoggerAdapter sends fx container events to the leveled logger.
// Wiring details go to DEBUG; anything carrying an error goes to ERROR.
type FxLoggerAdapter struct{}

func NewFxLoggerAdapter() fxevent.Logger {
	return &FxLoggerAdapter{}
}

func (l *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.Provided:
		if e.Err != nil {
			failed("provide", e.ConstructorName, e.Err)
			return
		}
		Debugf("fx: %s provides %s", shortFunctionName(e.ConstructorName), strings.Join(e.OutputTypeNames, ", "))
	case *fxevent.Supplied:
		if e.Err != nil {
			failed("supply", e.TypeName, e.Err)
		}
	case *fxevent.Invoked:
		if e.Err != nil {
			failed("invoke", e.FunctionName, e.Err)
		}
	case *fxevent.Run:
		if e.Err != nil {
			failed("run "+e.Kind, e.Name, e.Err)
		}
	case *fxevent.OnStartExecuted:
		hookDone("OnStart", e.FunctionName, e.Runtime.String(), e.Err)
	case *fxevent.OnStopExecuted:
		hookDone("OnStop", e.FunctionName, e.Runtime.String(), e.Err)
	case *fxevent.RollingBack:
		Errorf("fx: start failed, rolling back: %v", e.StartErr)
	case *fxevent.Started:
		if e.Err != nil {
			Errorf("fx: start failed: %v", e.Err)
			return
		}
		Debugf("fx: pipeline container started")
	case *fxevent.Stopped:
		if e.Err != nil {
			Errorf("fx: stop failed: %v", e.Err)
		}
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			Errorf("fx: custom logger initialization failed: %v", e.Err)
		}
	}
}

func failed(what, name string, err error) {
	Errorf("fx: %s %s failed: %v", what, shortFunctionName(name), err)
}

func hookDone(hook, name, runtime string, err error) {
	if err != nil {
		failed(hook+" hook", name, err)
		return
	}
	Debugf("fx: %s hook %s done in %s", hook, shortFunctionName(name), runtime)
}

// shortFunctionName drops closure suffixes such as ".func1".
func shortFunctionName(name string) string {
	if idx := strings.LastIndex(name, ".func"); idx != -1 {
		return name[:idx]
	}
	return name
}
