package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (t *Tenant) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

func (u *User) BeforeCreate(*gorm.DB) error {
	ensureID(&u.ID)
	return nil
}

func (m *Medicine) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

func (b *InventoryBatch) BeforeCreate(*gorm.DB) error {
	ensureID(&b.ID)
	return nil
}

func (s *Sale) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

func (i *SaleItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

func (p *Purchase) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

func (i *PurchaseItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

func (p *PurchasePayment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

func (s *Supplier) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

func (c *Customer) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

func (c *Counter) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
