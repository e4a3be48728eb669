// Package entitystore builds persisted collection stores.
//
// New returns a Store holding an ordered entity collection, a selection set
// and a hydration flag. The collection is persisted to its own table through
// persist.EntityStorage; the selection and the flag live only in memory.
// Every concrete collection store (invoices, merchants, scans) is an
// instance of this factory.
//
// Usage:
//
//	s, err := entitystore.New[domain.Invoice](handle, entitystore.Options{
//		TableName:   tablestore.TableInvoices,
//		StoreName:   "InvoicesStore",
//		PersistName: "invoices-store",
//	})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	if err := s.WaitHydrated(ctx); err != nil {
//		return err
//	}
//	s.UpsertEntity(invoice)
package entitystore
