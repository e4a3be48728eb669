package domain

import "time"

// InvoiceCategory classifies a whole invoice.
type InvoiceCategory int

const (
	InvoiceCategoryNotDefined   InvoiceCategory = 0
	InvoiceCategoryGrocery      InvoiceCategory = 100
	InvoiceCategoryFastFood     InvoiceCategory = 200
	InvoiceCategoryHomeCleaning InvoiceCategory = 300
	InvoiceCategoryCarAuto      InvoiceCategory = 400
	InvoiceCategoryOther        InvoiceCategory = 9999
)

// PaymentType is how a transaction was settled.
type PaymentType int

const (
	PaymentUnknown       PaymentType = 0
	PaymentCash          PaymentType = 100
	PaymentCard          PaymentType = 200
	PaymentTransfer      PaymentType = 300
	PaymentMobilePayment PaymentType = 400
	PaymentVoucher       PaymentType = 500
	PaymentOther         PaymentType = 9999
)

// ProductCategory classifies a line item.
type ProductCategory int

const (
	ProductNotDefined         ProductCategory = 0
	ProductBakedGoods         ProductCategory = 100
	ProductGroceries          ProductCategory = 200
	ProductDairy              ProductCategory = 300
	ProductMeat               ProductCategory = 400
	ProductFish               ProductCategory = 500
	ProductFruits             ProductCategory = 600
	ProductVegetables         ProductCategory = 700
	ProductBeverages          ProductCategory = 800
	ProductAlcoholicBeverages ProductCategory = 900
	ProductTobacco            ProductCategory = 1000
	ProductCleaningSupplies   ProductCategory = 1100
	ProductPersonalCare       ProductCategory = 1200
	ProductMedicine           ProductCategory = 1300
	ProductOther              ProductCategory = 9999
)

// Currency is an ISO 4217 currency.
type Currency struct {
	Name   string `json:"name"`
	Code   string `json:"code"`
	Symbol string `json:"symbol"`
}

// PaymentInformation is the settlement summary of an invoice.
type PaymentInformation struct {
	TransactionDate time.Time   `json:"transactionDate"`
	PaymentType     PaymentType `json:"paymentType"`
	Currency        Currency    `json:"currency"`
	TotalCostAmount float64     `json:"totalCostAmount"`
	TotalTaxAmount  float64     `json:"totalTaxAmount"`
}

// ProductMetadata flags the provenance of a line item.
type ProductMetadata struct {
	IsEdited      bool `json:"isEdited"`
	IsComplete    bool `json:"isComplete"`
	IsSoftDeleted bool `json:"isSoftDeleted"`
}

// Product is one invoice line item.
type Product struct {
	RawName           string          `json:"rawName"`
	GenericName       string          `json:"genericName"`
	Category          ProductCategory `json:"category"`
	Quantity          float64         `json:"quantity"`
	QuantityUnit      string          `json:"quantityUnit"`
	ProductCode       string          `json:"productCode"`
	Price             float64         `json:"price"`
	TotalPrice        float64         `json:"totalPrice"`
	DetectedAllergens []string        `json:"detectedAllergens"`
	Metadata          ProductMetadata `json:"metadata"`
}

// InvoiceScan references an uploaded scan of the invoice.
type InvoiceScan struct {
	ScanType ScanType          `json:"scanType"`
	Location string            `json:"location"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Invoice is a purchase receipt.
type Invoice struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Description        string             `json:"description"`
	UserIdentifier     string             `json:"userIdentifier"`
	SharedWith         []string           `json:"sharedWith"`
	Category           InvoiceCategory    `json:"category"`
	Scans              []InvoiceScan      `json:"scans"`
	PaymentInformation PaymentInformation `json:"paymentInformation"`
	MerchantReference  string             `json:"merchantReference"`
	Items              []Product          `json:"items"`
	AdditionalMetadata map[string]string  `json:"additionalMetadata,omitempty"`
	Auditable
}

// EntityID returns the invoice id.
func (i Invoice) EntityID() string { return i.ID }

// ItemsTotal sums the total price of the line items that are not soft
// deleted.
func (i Invoice) ItemsTotal() float64 {
	var total float64
	for _, p := range i.Items {
		if !p.Metadata.IsSoftDeleted {
			total += p.TotalPrice
		}
	}
	return total
}
