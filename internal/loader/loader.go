// Package loader parses raw registry extracts into the natural-keyed maps
// the diff engine consumes. Extracts are pipe-delimited with one row per
// (professional, exercise, expertise, situation, structure) combination;
// rows sharing a professional key are folded into a single record.
package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"regsync/internal/registry/models"
)

// Extract rows carry exactly this many pipe-delimited columns.
const RowLength = 50

// Toggle tables carry exactly this many semicolon-delimited columns.
const ToggleRowLength = 2

// Column indices of the extract layout.
const (
	colIDType = iota
	colID
	colNationalID
	colCivilityCode
	colCivilityLabel
	colLastName
	colFirstName
	colProfessionID
	colProfessionCode
	colProfessionLabel
	colCategoryCode
	colCategoryLabel
	colExpertiseID
	colExpertiseTypeCode
	colExpertiseTypeLabel
	colExpertiseCode
	colExpertiseLabel
	colSituationID
	colModeCode
	colModeLabel
	colSectorCode
	colSectorLabel
	colPharmacistSectionCode
	colPharmacistSectionLabel
	colSiteSIRET
	colSiteSIREN
	colSiteFINESS
	colLegalFINESS
	colStructureID
	colOfficialName
	colCompanyName
	colCommercialSign
	colAddressComplement
	colStreetNumber
	colRepetitionIndex
	colStreetTypeCode
	colStreetTypeLabel
	colStreetLabel
	colDistributionMention
	colCedexOffice
	colPostalCode
	colCommuneCode
	colCommuneLabel
	colCountryCode
	colCountryLabel
	colPhone
	colPhone2
	colFax
	colEmail
	colDepartmentCode
)

// Loader parses extracts and correspondence tables. The source charset is
// fixed by configuration; the extract is not UTF-8.
type Loader struct {
	decoder *encoding.Decoder
	logger  *slog.Logger
}

// New builds a Loader decoding the given IANA charset name.
func New(charset string, logger *slog.Logger) (*Loader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unknown charset %q: %w", charset, err)
	}
	return &Loader{decoder: enc.NewDecoder(), logger: logger}, nil
}

// LoadExtract parses the extract at path into a snapshot. Any row whose
// column count differs from RowLength fails the whole load; no partial
// snapshot is produced.
func (l *Loader) LoadExtract(path string) (models.Snapshot, error) {
	l.logger.Info("loading extract", "file", path)

	file, err := os.Open(path)
	if err != nil {
		return models.Snapshot{}, err
	}
	defer file.Close()

	reader := csv.NewReader(l.decoder.Reader(file))
	reader.Comma = '|'
	reader.FieldsPerRecord = RowLength
	reader.LazyQuotes = true

	snapshot := models.NewSnapshot()
	header := true
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return models.Snapshot{}, fmt.Errorf("malformed extract row: %w", err)
		}
		if header {
			header = false
			continue
		}
		mergeRow(snapshot, row)
	}

	l.logger.Info("extract loaded",
		"professionals", len(snapshot.Professionals),
		"structures", len(snapshot.Structures),
	)
	return snapshot, nil
}

// mergeRow folds one row into the snapshot. The professional fragment is
// inserted or merged into the existing record; the row's structure is
// registered once per structure identifier.
func mergeRow(snapshot models.Snapshot, row []string) {
	candidate := professionalFromRow(row)

	existing, ok := snapshot.Professionals[candidate.NationalID]
	if !ok {
		snapshot.Professionals[candidate.NationalID] = candidate
	} else {
		mergeExercise(&existing, candidate.Exercises[0])
		snapshot.Professionals[candidate.NationalID] = existing
	}

	if _, seen := snapshot.Structures[row[colStructureID]]; !seen {
		structure := structureFromRow(row)
		snapshot.Structures[structure.StructureID] = structure
	}
}

// mergeExercise locates the row's exercise in the record. Unseen exercises
// are appended; known ones merge their expertise and situation lists with
// first-occurrence-wins semantics.
func mergeExercise(p *models.Professional, row models.Exercise) {
	for i := range p.Exercises {
		if p.Exercises[i].ProfessionID == row.ProfessionID {
			mergeExpertiseAndSituation(&p.Exercises[i], row)
			return
		}
	}
	p.Exercises = append(p.Exercises, row)
}

func mergeExpertiseAndSituation(exercise *models.Exercise, row models.Exercise) {
	expertise := row.Expertises[0]
	if !hasExpertise(exercise.Expertises, expertise.ExpertiseID) {
		exercise.Expertises = append(exercise.Expertises, expertise)
	}

	situation := row.WorkSituations[0]
	for i := range exercise.WorkSituations {
		if exercise.WorkSituations[i].SituationID == situation.SituationID {
			mergeStructureRef(&exercise.WorkSituations[i], situation.Structures[0])
			return
		}
	}
	exercise.WorkSituations = append(exercise.WorkSituations, situation)
}

func mergeStructureRef(situation *models.WorkSituation, ref models.StructureRef) {
	for _, existing := range situation.Structures {
		if existing.StructureID == ref.StructureID {
			return
		}
	}
	situation.Structures = append(situation.Structures, ref)
}

func hasExpertise(expertises []models.Expertise, id string) bool {
	for _, e := range expertises {
		if e.ExpertiseID == id {
			return true
		}
	}
	return false
}

func professionalFromRow(row []string) models.Professional {
	return models.Professional{
		IDType:        row[colIDType],
		ID:            row[colID],
		NationalID:    row[colNationalID],
		CivilityCode:  row[colCivilityCode],
		CivilityLabel: row[colCivilityLabel],
		LastName:      row[colLastName],
		FirstName:     row[colFirstName],
		Exercises: []models.Exercise{{
			ProfessionID:    row[colProfessionID],
			ProfessionCode:  row[colProfessionCode],
			ProfessionLabel: row[colProfessionLabel],
			CategoryCode:    row[colCategoryCode],
			CategoryLabel:   row[colCategoryLabel],
			Expertises: []models.Expertise{{
				ExpertiseID: row[colExpertiseID],
				TypeCode:    row[colExpertiseTypeCode],
				TypeLabel:   row[colExpertiseTypeLabel],
				Code:        row[colExpertiseCode],
				Label:       row[colExpertiseLabel],
			}},
			WorkSituations: []models.WorkSituation{{
				SituationID:            row[colSituationID],
				ModeCode:               row[colModeCode],
				ModeLabel:              row[colModeLabel],
				SectorCode:             row[colSectorCode],
				SectorLabel:            row[colSectorLabel],
				PharmacistSectionCode:  row[colPharmacistSectionCode],
				PharmacistSectionLabel: row[colPharmacistSectionLabel],
				Structures: []models.StructureRef{{
					StructureID: row[colStructureID],
				}},
			}},
		}},
	}
}

func structureFromRow(row []string) models.Structure {
	return models.Structure{
		StructureID:         row[colStructureID],
		SiteSIRET:           row[colSiteSIRET],
		SiteSIREN:           row[colSiteSIREN],
		SiteFINESS:          row[colSiteFINESS],
		LegalFINESS:         row[colLegalFINESS],
		OfficialName:        row[colOfficialName],
		CompanyName:         row[colCompanyName],
		CommercialSign:      row[colCommercialSign],
		AddressComplement:   row[colAddressComplement],
		StreetNumber:        row[colStreetNumber],
		RepetitionIndex:     row[colRepetitionIndex],
		StreetTypeCode:      row[colStreetTypeCode],
		StreetTypeLabel:     row[colStreetTypeLabel],
		StreetLabel:         row[colStreetLabel],
		DistributionMention: row[colDistributionMention],
		CedexOffice:         row[colCedexOffice],
		PostalCode:          row[colPostalCode],
		CommuneCode:         row[colCommuneCode],
		CommuneLabel:        row[colCommuneLabel],
		CountryCode:         row[colCountryCode],
		CountryLabel:        row[colCountryLabel],
		Phone:               row[colPhone],
		Phone2:              row[colPhone2],
		Fax:                 row[colFax],
		Email:               row[colEmail],
		DepartmentCode:      row[colDepartmentCode],
	}
}
