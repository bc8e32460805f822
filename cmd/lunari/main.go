package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/amrivadeneyra/lunari-sub001/internal/clock"
	"github.com/amrivadeneyra/lunari-sub001/internal/config"
	"github.com/amrivadeneyra/lunari-sub001/internal/migration"
	"github.com/amrivadeneyra/lunari-sub001/internal/observability"
	"github.com/amrivadeneyra/lunari-sub001/internal/server"
	"github.com/amrivadeneyra/lunari-sub001/internal/sweep"
	"github.com/amrivadeneyra/lunari-sub001/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
		sweep.Module,
	)

	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
