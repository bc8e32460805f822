package conversation

import (
	"github.com/amrivadeneyra/lunari-sub001/internal/conversation/repository"
	"github.com/amrivadeneyra/lunari-sub001/internal/conversation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("conversation.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
