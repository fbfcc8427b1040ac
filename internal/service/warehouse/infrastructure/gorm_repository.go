package infrastructure

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"mercato/internal/service/warehouse/domain"
)

type WarehouseModel struct {
	ID   string `gorm:"column:id;primaryKey"`
	Name string `gorm:"column:name"`
	// 逗号分隔的管理员邮箱列表
	AdminEmails string `gorm:"column:admin_emails"`
}

func (WarehouseModel) TableName() string { return "warehouses" }

type WarehouseProductModel struct {
	WarehouseID    string `gorm:"column:warehouse_id;primaryKey"`
	ProductID      string `gorm:"column:product_id;primaryKey"`
	Quantity       int    `gorm:"column:quantity"`
	AlarmThreshold int    `gorm:"column:alarm_threshold"`
}

func (WarehouseProductModel) TableName() string { return "warehouse_products" }

type WarehouseTransactionModel struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	WarehouseID string    `gorm:"column:warehouse_id;index"`
	OrderID     *string   `gorm:"column:order_id;index"`
	ProductID   string    `gorm:"column:product_id"`
	Quantity    int       `gorm:"column:quantity"`
	Status      string    `gorm:"column:status"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (WarehouseTransactionModel) TableName() string { return "warehouse_transactions" }

// GormWarehouseRepository 是 WarehouseRepository 的 MySQL 实现。
type GormWarehouseRepository struct {
	db *gorm.DB
}

func NewGormWarehouseRepository(db *gorm.DB) (*GormWarehouseRepository, error) {
	if err := db.AutoMigrate(&WarehouseModel{}, &WarehouseProductModel{}, &WarehouseTransactionModel{}); err != nil {
		return nil, errors.Wrap(err, "warehouse schema migration")
	}
	return &GormWarehouseRepository{db: db}, nil
}

func (r *GormWarehouseRepository) FindByID(ctx context.Context, warehouseID string) (*domain.Warehouse, error) {
	var model WarehouseModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", warehouseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrWarehouseNotFound
		}
		return nil, err
	}

	var products []WarehouseProductModel
	if err := r.db.WithContext(ctx).Where("warehouse_id = ?", warehouseID).Order("product_id").Find(&products).Error; err != nil {
		return nil, err
	}
	var txs []WarehouseTransactionModel
	if err := r.db.WithContext(ctx).Where("warehouse_id = ?", warehouseID).Order("id").Find(&txs).Error; err != nil {
		return nil, err
	}

	return toDomainWarehouse(model, products, txs), nil
}

func (r *GormWarehouseRepository) IDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&WarehouseModel{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// AdjustQuantity 与资金侧同一套路：出库时 WHERE 子句带数量下限，
// 没命中任何行就按存在性区分失败原因，数量更新和流水追加同事务提交。
func (r *GormWarehouseRepository) AdjustQuantity(ctx context.Context, warehouseID string, tx domain.WarehouseTransaction) (*domain.WarehouseProduct, error) {
	var result domain.WarehouseProduct
	err := r.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		update := dbtx.Model(&WarehouseProductModel{}).
			Where("warehouse_id = ? AND product_id = ?", warehouseID, tx.ProductID)
		if tx.Quantity < 0 {
			update = update.Where("quantity >= ?", -tx.Quantity)
		}
		res := update.Update("quantity", gorm.Expr("quantity + ?", tx.Quantity))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := dbtx.Model(&WarehouseProductModel{}).
				Where("warehouse_id = ? AND product_id = ?", warehouseID, tx.ProductID).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return domain.ErrInsufficientStock
			}
			if err := dbtx.Model(&WarehouseModel{}).Where("id = ?", warehouseID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return domain.ErrWarehouseNotFound
			}
			return domain.ErrProductNotFound
		}

		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = time.Now()
		}
		if err := dbtx.Create(&WarehouseTransactionModel{
			WarehouseID: warehouseID,
			OrderID:     tx.OrderID,
			ProductID:   tx.ProductID,
			Quantity:    tx.Quantity,
			Status:      string(tx.Status),
			CreatedAt:   tx.CreatedAt,
		}).Error; err != nil {
			return errors.Wrap(err, "append warehouse transaction")
		}

		var model WarehouseProductModel
		if err := dbtx.First(&model, "warehouse_id = ? AND product_id = ?", warehouseID, tx.ProductID).Error; err != nil {
			return err
		}
		result = domain.WarehouseProduct{
			ProductID:      model.ProductID,
			Quantity:       model.Quantity,
			AlarmThreshold: model.AlarmThreshold,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *GormWarehouseRepository) StockLevels(ctx context.Context, productID string) ([]domain.StockLevel, error) {
	var models []WarehouseProductModel
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND quantity > 0", productID).
		Order("quantity DESC, warehouse_id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	levels := make([]domain.StockLevel, 0, len(models))
	for _, m := range models {
		levels = append(levels, domain.StockLevel{WarehouseID: m.WarehouseID, Quantity: m.Quantity})
	}
	return levels, nil
}

func (r *GormWarehouseRepository) WarehousesByOrder(ctx context.Context, orderID string) ([]*domain.Warehouse, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&WarehouseTransactionModel{}).
		Where("order_id = ?", orderID).
		Distinct().
		Pluck("warehouse_id", &ids).Error
	if err != nil {
		return nil, err
	}

	warehouses := make([]*domain.Warehouse, 0, len(ids))
	for _, id := range ids {
		warehouse, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		warehouses = append(warehouses, warehouse)
	}
	return warehouses, nil
}

func (r *GormWarehouseRepository) AddProduct(ctx context.Context, warehouseID string, product domain.WarehouseProduct) error {
	return r.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		var count int64
		if err := dbtx.Model(&WarehouseModel{}).Where("id = ?", warehouseID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrWarehouseNotFound
		}
		if err := dbtx.Model(&WarehouseProductModel{}).
			Where("warehouse_id = ? AND product_id = ?", warehouseID, product.ProductID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return domain.ErrProductExists
		}

		if err := dbtx.Create(&WarehouseProductModel{
			WarehouseID:    warehouseID,
			ProductID:      product.ProductID,
			Quantity:       product.Quantity,
			AlarmThreshold: product.AlarmThreshold,
		}).Error; err != nil {
			return errors.Wrap(err, "create warehouse product")
		}
		return dbtx.Create(&WarehouseTransactionModel{
			WarehouseID: warehouseID,
			OrderID:     nil,
			ProductID:   product.ProductID,
			Quantity:    product.Quantity,
			Status:      string(domain.StatusAdminEdit),
			CreatedAt:   time.Now(),
		}).Error
	})
}

func (r *GormWarehouseRepository) SetAlarmThreshold(ctx context.Context, warehouseID, productID string, threshold int) error {
	res := r.db.WithContext(ctx).Model(&WarehouseProductModel{}).
		Where("warehouse_id = ? AND product_id = ?", warehouseID, productID).
		Update("alarm_threshold", threshold)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func toDomainWarehouse(model WarehouseModel, products []WarehouseProductModel, txs []WarehouseTransactionModel) *domain.Warehouse {
	warehouse := &domain.Warehouse{
		ID:   model.ID,
		Name: model.Name,
	}
	if model.AdminEmails != "" {
		warehouse.AdminEmails = strings.Split(model.AdminEmails, ",")
	}
	for _, p := range products {
		warehouse.Inventory = append(warehouse.Inventory, domain.WarehouseProduct{
			ProductID:      p.ProductID,
			Quantity:       p.Quantity,
			AlarmThreshold: p.AlarmThreshold,
		})
	}
	for _, tx := range txs {
		warehouse.Transactions = append(warehouse.Transactions, domain.WarehouseTransaction{
			OrderID:   tx.OrderID,
			ProductID: tx.ProductID,
			Quantity:  tx.Quantity,
			Status:    domain.TransactionStatus(tx.Status),
			CreatedAt: tx.CreatedAt,
		})
	}
	return warehouse
}
