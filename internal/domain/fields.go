package domain

import (
	"math"
	"strconv"
	"strings"
)

// Field names of the fixed extraction schema. These are also the JSON keys
// used in storage, API payloads, and the required-field configuration.
const (
	FieldFirstName              = "first_name"
	FieldLastName               = "last_name"
	FieldHomeAddress            = "home_address"
	FieldDateOfBirth            = "date_of_birth"
	FieldTravelStartDate        = "travel_start_date"
	FieldTravelEndDate          = "travel_end_date"
	FieldTripCost               = "trip_cost"
	FieldTripDestination        = "trip_destination"
	FieldOrigin                 = "origin"
	FieldInitialTripDepositDate = "initial_trip_deposit_date"
	FieldEmail                  = "email"
	FieldPhoneNumber            = "phone_number"
	FieldTravelers              = "travelers"
)

type Traveler struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
}

// ExtractedFields is the typed extraction schema. A scalar counts as missing
// when it is absent, empty, whitespace, or the sentinel "N/A" that the
// extraction model emits for unknown values.
type ExtractedFields struct {
	FirstName              string     `json:"first_name,omitempty"`
	LastName               string     `json:"last_name,omitempty"`
	HomeAddress            string     `json:"home_address,omitempty"`
	DateOfBirth            string     `json:"date_of_birth,omitempty"`
	TravelStartDate        string     `json:"travel_start_date,omitempty"`
	TravelEndDate          string     `json:"travel_end_date,omitempty"`
	TripCost               string     `json:"trip_cost,omitempty"`
	TripDestination        string     `json:"trip_destination,omitempty"`
	Origin                 string     `json:"origin,omitempty"`
	InitialTripDepositDate string     `json:"initial_trip_deposit_date,omitempty"`
	Email                  string     `json:"email,omitempty"`
	PhoneNumber            string     `json:"phone_number,omitempty"`
	Travelers              []Traveler `json:"travelers,omitempty"`
}

// IsBlankField reports whether a scalar field value counts as missing.
func IsBlankField(value string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return true
	}
	return strings.EqualFold(trimmed, "n/a")
}

type scalarField struct {
	name  string
	value *string
}

func (f *ExtractedFields) scalars() []scalarField {
	return []scalarField{
		{FieldFirstName, &f.FirstName},
		{FieldLastName, &f.LastName},
		{FieldHomeAddress, &f.HomeAddress},
		{FieldDateOfBirth, &f.DateOfBirth},
		{FieldTravelStartDate, &f.TravelStartDate},
		{FieldTravelEndDate, &f.TravelEndDate},
		{FieldTripCost, &f.TripCost},
		{FieldTripDestination, &f.TripDestination},
		{FieldOrigin, &f.Origin},
		{FieldInitialTripDepositDate, &f.InitialTripDepositDate},
		{FieldEmail, &f.Email},
		{FieldPhoneNumber, &f.PhoneNumber},
	}
}

// Value returns the scalar field with the given schema name.
func (f *ExtractedFields) Value(name string) (string, bool) {
	for _, field := range f.scalars() {
		if field.name == name {
			return *field.value, true
		}
	}
	return "", false
}

// Set assigns the scalar field with the given schema name. It reports false
// for names outside the schema (travelers is not settable by name).
func (f *ExtractedFields) Set(name, value string) bool {
	for _, field := range f.scalars() {
		if field.name == name {
			*field.value = value
			return true
		}
	}
	return false
}

// MergeFields folds incoming values into existing, first-known-value-wins: a
// field is adopted only where the existing value is missing. Populated fields
// are never overwritten, which makes the operation idempotent and, for
// disjoint field sets, commutative. The travelers list is adopted as a whole
// when none is known yet. Returns the names of adopted fields.
func MergeFields(existing *ExtractedFields, incoming ExtractedFields) []string {
	var adopted []string
	incomingScalars := incoming.scalars()
	for i, field := range existing.scalars() {
		next := *incomingScalars[i].value
		if IsBlankField(*field.value) && !IsBlankField(next) {
			*field.value = next
			adopted = append(adopted, field.name)
		}
	}
	if len(existing.Travelers) == 0 && len(incoming.Travelers) > 0 {
		existing.Travelers = append([]Traveler(nil), incoming.Travelers...)
		adopted = append(adopted, FieldTravelers)
	}
	return adopted
}

// MissingFields returns the required field names still missing, in the order
// of the required set.
func (f *ExtractedFields) MissingFields(required []string) []string {
	var missing []string
	for _, name := range required {
		value, ok := f.Value(name)
		if !ok || IsBlankField(value) {
			missing = append(missing, name)
		}
	}
	return missing
}

// IsComplete reports whether every required field carries a value.
func (f *ExtractedFields) IsComplete(required []string) bool {
	return len(f.MissingFields(required)) == 0
}

// IsEmpty reports whether no field at all carries a value.
func (f *ExtractedFields) IsEmpty() bool {
	for _, field := range f.scalars() {
		if !IsBlankField(*field.value) {
			return false
		}
	}
	return len(f.Travelers) == 0
}

// CostPerTraveler derives the per-person trip cost when both the total cost
// and the traveler list are known. The result is rounded to cents.
func (f *ExtractedFields) CostPerTraveler() (float64, bool) {
	cost, ok := parseMoney(f.TripCost)
	if !ok || cost <= 0 || len(f.Travelers) == 0 {
		return 0, false
	}
	per := cost / float64(len(f.Travelers))
	return math.Round(per*100) / 100, true
}

// Clone returns a deep copy safe to hand out from in-memory stores.
func (f ExtractedFields) Clone() ExtractedFields {
	clone := f
	if f.Travelers != nil {
		clone.Travelers = append([]Traveler(nil), f.Travelers...)
	}
	return clone
}

// DefaultRequiredFields is the completeness set used unless configured
// otherwise.
func DefaultRequiredFields() []string {
	return []string{
		FieldFirstName,
		FieldLastName,
		FieldTravelStartDate,
		FieldTravelEndDate,
		FieldTripDestination,
	}
}

// ExtendedRequiredFields additionally demands address, cost, and deposit
// date, for teams that only quote fully-specified trips.
func ExtendedRequiredFields() []string {
	return append(DefaultRequiredFields(),
		FieldHomeAddress,
		FieldTripCost,
		FieldInitialTripDepositDate,
	)
}

// ResolveRequiredFields turns the configured required-field list into schema
// names. An empty list and the keyword "default" select the default set,
// "extended" selects the extended set, and anything else is kept verbatim
// with names outside the schema dropped.
func ResolveRequiredFields(configured []string) []string {
	if len(configured) == 0 {
		return DefaultRequiredFields()
	}
	if len(configured) == 1 {
		switch strings.ToLower(strings.TrimSpace(configured[0])) {
		case "", "default":
			return DefaultRequiredFields()
		case "extended":
			return ExtendedRequiredFields()
		}
	}
	var probe ExtractedFields
	resolved := make([]string, 0, len(configured))
	for _, name := range configured {
		trimmed := strings.TrimSpace(name)
		if _, ok := probe.Value(trimmed); ok {
			resolved = append(resolved, trimmed)
		}
	}
	if len(resolved) == 0 {
		return DefaultRequiredFields()
	}
	return resolved
}

func parseMoney(raw string) (float64, bool) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
