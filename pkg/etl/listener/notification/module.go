package notification

import "go.uber.org/fx"

// Module provides the run notifier.
var Module = fx.Options(
	fx.Provide(NewLogNotifier),
)
