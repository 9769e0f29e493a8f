package delivery

import (
	"go.uber.org/fx"
)

var Module = fx.Module("delivery.pipeline",
	fx.Provide(
		ProvideSender,
		NewPipeline,
	),
)
