package models

// Structure is a facility record, an independent top-level entity keyed by
// structure identifier. Structures are discovered while parsing professional
// rows but are not nested under professionals in storage.
type Structure struct {
	StructureID string

	SiteSIRET   string
	SiteSIREN   string
	SiteFINESS  string
	LegalFINESS string

	OfficialName   string
	CompanyName    string
	CommercialSign string

	AddressComplement   string
	StreetNumber        string
	RepetitionIndex     string
	StreetTypeCode      string
	StreetTypeLabel     string
	StreetLabel         string
	DistributionMention string
	CedexOffice         string
	PostalCode          string
	CommuneCode         string
	CommuneLabel        string
	CountryCode         string
	CountryLabel        string

	Phone          string
	Phone2         string
	Fax            string
	Email          string
	DepartmentCode string
}

// Equal reports field equality. Structures have no nested collections, so a
// differing structure is always replaced wholesale.
func (s Structure) Equal(other Structure) bool {
	return s == other
}
