package domain

// MerchantCategory classifies a merchant.
type MerchantCategory int

const (
	MerchantCategoryNotDefined  MerchantCategory = 0
	MerchantCategoryLocalShop   MerchantCategory = 1
	MerchantCategorySupermarket MerchantCategory = 2
	MerchantCategoryOther       MerchantCategory = 3
)

// Merchant is a shop an invoice was issued by.
type Merchant struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	Category        MerchantCategory `json:"category"`
	Address         string           `json:"address"`
	PhoneNumber     string           `json:"phoneNumber"`
	ParentCompanyID string           `json:"parentCompanyId"`
	Auditable
}

// EntityID returns the merchant id.
func (m Merchant) EntityID() string { return m.ID }
