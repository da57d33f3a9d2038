package models

type EntityType string

const (
	EntityCustomers EntityType = "customers"
	EntitySales     EntityType = "sales"
	EntityExpenses  EntityType = "expenses"
)

func (e EntityType) Valid() bool {
	switch e {
	case EntityCustomers, EntitySales, EntityExpenses:
		return true
	}
	return false
}

func EntityTypes() []EntityType {
	return []EntityType{EntityCustomers, EntitySales, EntityExpenses}
}

type Customer struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	LastUpdated int64  `json:"lastUpdated"`
}

type Sale struct {
	ID          string  `json:"id"`
	CustomerID  string  `json:"customerId,omitempty"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description,omitempty"`
	Date        string  `json:"date,omitempty"`
	LastUpdated int64   `json:"lastUpdated"`
}

type Expense struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category,omitempty"`
	Date        string  `json:"date,omitempty"`
	LastUpdated int64   `json:"lastUpdated"`
}

func (c Customer) Key() string    { return c.ID }
func (c Customer) Version() int64 { return c.LastUpdated }

func (s Sale) Key() string    { return s.ID }
func (s Sale) Version() int64 { return s.LastUpdated }

func (e Expense) Key() string    { return e.ID }
func (e Expense) Version() int64 { return e.LastUpdated }

// Collections is the unit of sync. A nil slice means the entity type was
// absent from an inbound payload; an empty non-nil slice is an explicit
// empty collection.
type Collections struct {
	Customers []Customer `json:"customers"`
	Sales     []Sale     `json:"sales"`
	Expenses  []Expense  `json:"expenses"`
}

// Clone returns a copy that shares no slices with the receiver. Record
// structs are plain values, so copying the slices is enough.
func (c Collections) Clone() Collections {
	out := Collections{
		Customers: make([]Customer, len(c.Customers)),
		Sales:     make([]Sale, len(c.Sales)),
		Expenses:  make([]Expense, len(c.Expenses)),
	}
	copy(out.Customers, c.Customers)
	copy(out.Sales, c.Sales)
	copy(out.Expenses, c.Expenses)
	return out
}
