package seed

import (
	"context"
	"errors"
	"time"

	conversationdomain "github.com/amrivadeneyra/lunari-sub001/internal/conversation/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	defaultCompanyName = "Main"
	defaultCompanySlug = "main"
)

// EnsureDefaultCompany seeds the default company for startup bootstrap.
func EnsureDefaultCompany(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := ensureDefaultCompanyTx(ctx, tx, node.Generate())
		return err
	})
}

// EnsureDefaultCompanyWithID seeds the default company under a fixed ID,
// used when the deployment pins DEFAULT_COMPANY_ID.
func EnsureDefaultCompanyWithID(db *gorm.DB, id int64) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if id == 0 {
		return EnsureDefaultCompany(db)
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := ensureDefaultCompanyTx(ctx, tx, snowflake.ID(id))
		return err
	})
}

func ensureDefaultCompanyTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (conversationdomain.Company, error) {
	var company conversationdomain.Company
	err := tx.WithContext(ctx).Where("slug = ?", defaultCompanySlug).First(&company).Error
	if err == nil {
		return company, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return company, err
	}
	company = conversationdomain.Company{
		ID:        id,
		Name:      defaultCompanyName,
		Slug:      defaultCompanySlug,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(&company).Error; err != nil {
		return company, err
	}
	return company, nil
}
