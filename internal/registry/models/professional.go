package models

import "hash/fnv"

// Professional is a healthcare-professional record keyed by its national
// identifier. The first digit of the identifier encodes the issuing scheme
// (0 ADELI, 3 FINESS, 5 SIRET, 8 RPPS).
type Professional struct {
	IDType        string
	ID            string
	NationalID    string
	CivilityCode  string
	CivilityLabel string
	LastName      string
	FirstName     string

	Exercises []Exercise
}

// Exercise is one professional activity of its parent professional, keyed by
// profession identifier within that parent.
type Exercise struct {
	ProfessionID    string
	ProfessionCode  string
	ProfessionLabel string
	CategoryCode    string
	CategoryLabel   string

	Expertises     []Expertise
	WorkSituations []WorkSituation
}

// Expertise is a leaf record under an exercise, keyed by expertise identifier.
type Expertise struct {
	ExpertiseID string
	TypeCode    string
	TypeLabel   string
	Code        string
	Label       string
}

// WorkSituation describes where and how an exercise is practiced, keyed by
// situation identifier. Its structure references are part of its value: a
// situation is always replaced wholesale, never reconciled field by field.
type WorkSituation struct {
	SituationID            string
	ModeCode               string
	ModeLabel              string
	SectorCode             string
	SectorLabel            string
	PharmacistSectionCode  string
	PharmacistSectionLabel string

	Structures []StructureRef
}

// StructureRef is a back-reference to a top-level Structure.
type StructureRef struct {
	StructureID string
}

// NakedHash hashes the professional's own scalar attributes, excluding the
// nested exercise list. Two versions with the same naked hash need no shallow
// update even when their exercises differ.
func (p Professional) NakedHash() uint64 {
	return hashFields(p.IDType, p.ID, p.NationalID, p.CivilityCode, p.CivilityLabel, p.LastName, p.FirstName)
}

// NakedHash hashes the exercise's own scalar attributes, excluding expertises
// and work situations.
func (e Exercise) NakedHash() uint64 {
	return hashFields(e.ProfessionID, e.ProfessionCode, e.ProfessionLabel, e.CategoryCode, e.CategoryLabel)
}

// Equal reports deep equality including nested collections, order-sensitive.
func (p Professional) Equal(other Professional) bool {
	if p.NakedHash() != other.NakedHash() || len(p.Exercises) != len(other.Exercises) {
		return false
	}
	for i := range p.Exercises {
		if !p.Exercises[i].Equal(other.Exercises[i]) {
			return false
		}
	}
	return true
}

// Equal reports deep equality including nested collections, order-sensitive.
func (e Exercise) Equal(other Exercise) bool {
	if e.NakedHash() != other.NakedHash() ||
		len(e.Expertises) != len(other.Expertises) ||
		len(e.WorkSituations) != len(other.WorkSituations) {
		return false
	}
	for i := range e.Expertises {
		if e.Expertises[i] != other.Expertises[i] {
			return false
		}
	}
	for i := range e.WorkSituations {
		if !e.WorkSituations[i].Equal(other.WorkSituations[i]) {
			return false
		}
	}
	return true
}

// Equal reports equality of the situation including its structure references.
func (s WorkSituation) Equal(other WorkSituation) bool {
	if s.SituationID != other.SituationID ||
		s.ModeCode != other.ModeCode ||
		s.ModeLabel != other.ModeLabel ||
		s.SectorCode != other.SectorCode ||
		s.SectorLabel != other.SectorLabel ||
		s.PharmacistSectionCode != other.PharmacistSectionCode ||
		s.PharmacistSectionLabel != other.PharmacistSectionLabel ||
		len(s.Structures) != len(other.Structures) {
		return false
	}
	for i := range s.Structures {
		if s.Structures[i] != other.Structures[i] {
			return false
		}
	}
	return true
}

// Naked returns a copy stripped of nested collections, for shallow updates.
func (p Professional) Naked() Professional {
	p.Exercises = nil
	return p
}

// Naked returns a copy stripped of nested collections, for shallow updates.
func (e Exercise) Naked() Exercise {
	e.Expertises = nil
	e.WorkSituations = nil
	return e
}

func hashFields(fields ...string) uint64 {
	h := fnv.New64a()
	for _, f := range fields {
		h.Write([]byte(f))
		h.Write([]byte{0x1f})
	}
	return h.Sum64()
}
