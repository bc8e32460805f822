package sweep

import (
	"context"

	"github.com/amrivadeneyra/lunari-sub001/internal/lifecycle"
	"go.uber.org/fx"
)

var Module = fx.Module("sweep",
	fx.Provide(ProvideConfig),
	fx.Provide(ProvideDetector),
	fx.Provide(New),
	fx.Invoke(StartSweepLoop),
)

func ProvideDetector() lifecycle.HelpDetector {
	return lifecycle.NewSubstringHelpDetector(lifecycle.DefaultHelpMarkers...)
}

func StartSweepLoop(lc fx.Lifecycle, sweeper *Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sweeper.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
