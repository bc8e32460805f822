package migration

import (
	"github.com/amrivadeneyra/lunari-sub001/internal/config"
	conversationdomain "github.com/amrivadeneyra/lunari-sub001/internal/conversation/domain"
	"github.com/amrivadeneyra/lunari-sub001/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// MySQL and SQLite deployments get the schema from the models.
			if err := conn.AutoMigrate(
				&conversationdomain.Company{},
				&conversationdomain.Conversation{},
				&conversationdomain.Message{},
				&conversationdomain.MetricsRecord{},
				&conversationdomain.SatisfactionRating{},
			); err != nil {
				return err
			}
		}

		if cfg.DefaultCompanyID != 0 {
			return seed.EnsureDefaultCompanyWithID(conn, cfg.DefaultCompanyID)
		}
		return seed.EnsureDefaultCompany(conn)
	}),
)
