// Package models contains GORM persistence models that map to database tables.
// The domain layer stays free of ORM tags; repositories convert with the
// ToDomain / FromDomain mappers defined next to each model.
//
// Structure:
// - base.go: Record and VersionedRecord (id, timestamps, version)
// - billing.go: invoices, invoice items, payments, payment plans, installments
// - directory.go: read models of patients, doctors, branches and treatments
package models
