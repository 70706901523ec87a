package models

// AdminModels lists the control-plane tables.
func AdminModels() []any {
	return []any{&Tenant{}, &User{}}
}

// TenantModels lists the tables every tenant partition carries.
func TenantModels() []any {
	return []any{
		&Medicine{},
		&InventoryBatch{},
		&Sale{},
		&SaleItem{},
		&Purchase{},
		&PurchaseItem{},
		&PurchasePayment{},
		&Supplier{},
		&Customer{},
		&Counter{},
		&CounterSequence{},
		&DailySummary{},
	}
}
