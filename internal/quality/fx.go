package quality

import (
	"github.com/amrivadeneyra/lunari-sub001/internal/quality/service"
	"go.uber.org/fx"
)

var Module = fx.Module("quality.service",
	fx.Provide(service.New),
)
