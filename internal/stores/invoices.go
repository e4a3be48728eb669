package stores

import (
	"context"

	"github.com/roach88/receiptvault/internal/domain"
	"github.com/roach88/receiptvault/internal/entitystore"
	"github.com/roach88/receiptvault/internal/tablestore"
)

const (
	InvoicesStoreName   = "InvoicesStore"
	InvoicesPersistName = "invoices-store"
)

// Invoices is the invoice collection.
type Invoices struct {
	*entitystore.Store[domain.Invoice]
	handle *tablestore.Handle
}

// NewInvoices creates the invoices store and starts its hydration.
func NewInvoices(cfg Config) (*Invoices, error) {
	s, err := entitystore.New[domain.Invoice](cfg.Handle,
		cfg.entityOptions(tablestore.TableInvoices, InvoicesStoreName, InvoicesPersistName))
	if err != nil {
		return nil, err
	}
	return &Invoices{Store: s, handle: cfg.Handle}, nil
}

// ByMerchant returns the in-memory invoices issued by a merchant.
func (s *Invoices) ByMerchant(merchantID string) []domain.Invoice {
	return filter(s.State().Entities, func(inv domain.Invoice) bool {
		return inv.MerchantReference == merchantID
	})
}

// SelectedTotal sums the total cost of the selected invoices.
func (s *Invoices) SelectedTotal() float64 {
	var total float64
	for _, inv := range s.State().SelectedEntities {
		total += inv.PaymentInformation.TotalCostAmount
	}
	return total
}

// QueryByMerchant reads durable invoices through the merchantReference
// index.
func (s *Invoices) QueryByMerchant(ctx context.Context, merchantID string) ([]domain.Invoice, error) {
	return queryIndex[domain.Invoice](ctx, s.handle, tablestore.TableInvoices, "merchantReference", merchantID)
}

// QueryByUser reads durable invoices through the userIdentifier index.
func (s *Invoices) QueryByUser(ctx context.Context, userID string) ([]domain.Invoice, error) {
	return queryIndex[domain.Invoice](ctx, s.handle, tablestore.TableInvoices, "userIdentifier", userID)
}
