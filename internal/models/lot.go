package models

import "time"

// Lot is a parking lot published by an admin. Lots and slots are seeded from
// the catalog file and edited outside this service.
type Lot struct {
	ID       int64  `yaml:"id" json:"id"`
	AdminID  int64  `yaml:"admin_id" json:"admin_id"`
	Name     string `yaml:"name" json:"name"`
	Address  string `yaml:"address" json:"address"`
	IsActive bool   `yaml:"is_active" json:"is_active"`
	Slots    []Slot `yaml:"slots" json:"slots,omitempty"`
}

// Slot is a single physical parking space inside a lot.
type Slot struct {
	ID           int64  `yaml:"id" json:"id"`
	LotID        int64  `yaml:"lot_id" json:"lot_id"`
	Label        string `yaml:"label" json:"label"`
	VehicleClass string `yaml:"vehicle_class" json:"vehicle_class"`
	IsActive     bool   `yaml:"is_active" json:"is_active"`
	SortOrder    int64  `yaml:"sort_order" json:"sort_order"`
}

// SlotAvailability is a derived day-grid cell for browsing; the binding check
// at reservation time always re-derives availability from live bookings.
type SlotAvailability struct {
	Date         time.Time `json:"date"`
	LotID        int64     `json:"lot_id"`
	VehicleClass string    `json:"vehicle_class"`
	Free         int64     `json:"free"`
	Total        int64     `json:"total"`
}
