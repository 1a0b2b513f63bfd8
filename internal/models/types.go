package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType discriminates the two principal variants. The values match the
// account types users pick at signup.
type AccountType string

const (
	AccountIndividual   AccountType = "Personal"
	AccountOrganization AccountType = "Organization"
)

// Valid reports whether t names a known variant.
func (t AccountType) Valid() bool {
	switch t {
	case AccountIndividual, AccountOrganization:
		return true
	}
	return false
}

// DateOfBirth keeps the day/month/year exactly as entered.
type DateOfBirth struct {
	Day   string `json:"day"`
	Month string `json:"month"`
	Year  string `json:"year"`
}

type Address struct {
	FullAddress string `json:"full_address"`
	Region      string `json:"region"`
}

// Dependent is a family member attached to an individual account.
type Dependent struct {
	FullName    string      `json:"full_name"`
	NationalID  string      `json:"national_id"`
	DateOfBirth DateOfBirth `json:"date_of_birth"`
}

type Individual struct {
	FullName    string      `json:"full_name"`
	DateOfBirth DateOfBirth `json:"date_of_birth"`
	NationalID  string      `json:"national_id"`
	Address     Address     `json:"address"`
	Email       string      `json:"email"`
	Phone       string      `json:"phone"`
	Dependents  []Dependent `json:"dependents,omitempty"`
}

type Organization struct {
	Name                 string    `json:"name"`
	ProductType          string    `json:"product_type"`
	Address              Address   `json:"address"`
	Email                string    `json:"email"`
	Phone                string    `json:"phone"`
	RegistrationDocument string    `json:"registration_document,omitempty"`
	Facilities           []Address `json:"facilities,omitempty"`
}

// Principal is a signed-in actor. Type is set at signup and never changes;
// exactly one of Individual or Organization is populated and it matches Type.
type Principal struct {
	ID           string        `json:"id"`
	Type         AccountType   `json:"account_type"`
	Individual   *Individual   `json:"individual,omitempty"`
	Organization *Organization `json:"organization,omitempty"`
}

func NewIndividualPrincipal(id string, ind Individual) *Principal {
	return &Principal{ID: id, Type: AccountIndividual, Individual: &ind}
}

func NewOrganizationPrincipal(id string, org Organization) *Principal {
	return &Principal{ID: id, Type: AccountOrganization, Organization: &org}
}

// Validate checks the variant invariant.
func (p *Principal) Validate() error {
	if p == nil {
		return ErrNoPrincipal
	}
	switch p.Type {
	case AccountIndividual:
		if p.Individual == nil || p.Organization != nil {
			return ErrVariantMismatch
		}
	case AccountOrganization:
		if p.Organization == nil || p.Individual != nil {
			return ErrVariantMismatch
		}
	default:
		return ErrUnknownAccountType
	}
	return nil
}

func (p *Principal) DisplayName() string {
	switch p.Type {
	case AccountIndividual:
		return p.Individual.FullName
	case AccountOrganization:
		return p.Organization.Name
	}
	return ""
}

func (p *Principal) Email() string {
	switch p.Type {
	case AccountIndividual:
		return p.Individual.Email
	case AccountOrganization:
		return p.Organization.Email
	}
	return ""
}

func (p *Principal) Phone() string {
	switch p.Type {
	case AccountIndividual:
		return p.Individual.Phone
	case AccountOrganization:
		return p.Organization.Phone
	}
	return ""
}

func (p *Principal) Address() Address {
	switch p.Type {
	case AccountIndividual:
		return p.Individual.Address
	case AccountOrganization:
		return p.Organization.Address
	}
	return Address{}
}

// Clone returns a deep copy so callers can derive a new snapshot without
// touching one that is already shared.
func (p *Principal) Clone() *Principal {
	if p == nil {
		return nil
	}
	out := &Principal{ID: p.ID, Type: p.Type}
	if p.Individual != nil {
		ind := *p.Individual
		ind.Dependents = append([]Dependent(nil), p.Individual.Dependents...)
		out.Individual = &ind
	}
	if p.Organization != nil {
		org := *p.Organization
		org.Facilities = append([]Address(nil), p.Organization.Facilities...)
		out.Organization = &org
	}
	return out
}

// Identity is the credential record owned by the identity provider.
type Identity struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	PassHash  []byte    `json:"pass_hash"`
	CreatedAt time.Time `json:"created_at"`
}

// Category names one of the four usage categories a bill is attached to.
type Category string

const (
	CategoryElectricity Category = "electricity"
	CategoryGas         Category = "gas"
	CategoryFuel        Category = "fuel"
	CategoryCar         Category = "car"
)

// Categories lists every category in submission order.
var Categories = []Category{CategoryElectricity, CategoryGas, CategoryFuel, CategoryCar}

func (c Category) Valid() bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

// Usage holds the four monthly quantities: electricity in kWh, gas in ft³,
// fuel in gal and average miles driven per car.
type Usage struct {
	Electric decimal.Decimal `json:"electric_kwh"`
	Gas      decimal.Decimal `json:"gas_ft3"`
	Fuel     decimal.Decimal `json:"fuel_gal"`
	AvgMiles decimal.Decimal `json:"avg_miles"`
}

// UsageReading is one monthly submission. It is written once and never
// updated in place.
type UsageReading struct {
	ID          string              `json:"id"`
	PrincipalID string              `json:"principal_id"`
	AccountType AccountType         `json:"account_type"`
	PeriodKey   string              `json:"period"`
	Usage       Usage               `json:"usage"`
	EstimateLbs decimal.Decimal     `json:"estimate_lbs"`
	Attachments map[Category]string `json:"attachments"`
	CreatedAt   time.Time           `json:"created_at"`
}

// SubmissionHistory maps a year ("2024") to the readings of that year.
type SubmissionHistory map[string][]*UsageReading

// Blob is an uploaded file held in memory.
type Blob struct {
	Filename    string
	ContentType string
	Data        []byte
}
