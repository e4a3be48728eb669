package stores

import (
	"context"

	"github.com/roach88/receiptvault/internal/domain"
	"github.com/roach88/receiptvault/internal/entitystore"
	"github.com/roach88/receiptvault/internal/tablestore"
)

const (
	MerchantsStoreName   = "MerchantsStore"
	MerchantsPersistName = "merchants-store"
)

// Merchants is the merchant collection.
type Merchants struct {
	*entitystore.Store[domain.Merchant]
	handle *tablestore.Handle
}

// NewMerchants creates the merchants store and starts its hydration.
func NewMerchants(cfg Config) (*Merchants, error) {
	s, err := entitystore.New[domain.Merchant](cfg.Handle,
		cfg.entityOptions(tablestore.TableMerchants, MerchantsStoreName, MerchantsPersistName))
	if err != nil {
		return nil, err
	}
	return &Merchants{Store: s, handle: cfg.Handle}, nil
}

// ByParentCompany returns the in-memory merchants owned by a parent company.
func (s *Merchants) ByParentCompany(parentID string) []domain.Merchant {
	return filter(s.State().Entities, func(m domain.Merchant) bool {
		return m.ParentCompanyID == parentID
	})
}

// QueryByParentCompany reads durable merchants through the parentCompanyId
// index.
func (s *Merchants) QueryByParentCompany(ctx context.Context, parentID string) ([]domain.Merchant, error) {
	return queryIndex[domain.Merchant](ctx, s.handle, tablestore.TableMerchants, "parentCompanyId", parentID)
}
