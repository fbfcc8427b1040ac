package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"mercato/internal/service/catalog/domain"
)

type ProductModel struct {
	ID    string  `gorm:"column:id;primaryKey"`
	Name  string  `gorm:"column:name"`
	Price float64 `gorm:"column:price"`
}

func (ProductModel) TableName() string { return "products" }

type UserModel struct {
	ID    string `gorm:"column:id;primaryKey"`
	Email string `gorm:"column:email"`
	Role  string `gorm:"column:role;index"`
}

func (UserModel) TableName() string { return "users" }

type GormCatalogRepository struct {
	db *gorm.DB
}

func NewGormCatalogRepository(db *gorm.DB) (*GormCatalogRepository, error) {
	if err := db.AutoMigrate(&ProductModel{}, &UserModel{}); err != nil {
		return nil, errors.Wrap(err, "catalog schema migration")
	}
	return &GormCatalogRepository{db: db}, nil
}

func (r *GormCatalogRepository) FindProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var model ProductModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	return &domain.Product{ID: model.ID, Name: model.Name, Price: model.Price}, nil
}

func (r *GormCatalogRepository) FindUser(ctx context.Context, userID string) (*domain.User, error) {
	var model UserModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &domain.User{ID: model.ID, Email: model.Email, Role: model.Role}, nil
}

func (r *GormCatalogRepository) AdminEmails(ctx context.Context) ([]string, error) {
	var emails []string
	err := r.db.WithContext(ctx).Model(&UserModel{}).
		Where("role = ?", "ADMIN").
		Order("email").
		Pluck("email", &emails).Error
	return emails, err
}
