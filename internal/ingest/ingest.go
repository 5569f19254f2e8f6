// Package ingest streams the four registry tables out of a downloaded
// archive, normalizes each record and stages it in deduplicated chunks, then
// promotes the staged rows with the six dependency-ordered merges.
package ingest

import (
	"context"
	"fmt"

	"aircraft_registry/internal/archive"
	"aircraft_registry/internal/normalize"
	"aircraft_registry/internal/store"
)

// flushLimit bounds how many deduplicated rows accumulate before a staging
// write. The store splits further to fit its dialect's parameter ceiling.
const flushLimit = 1000

// AircraftRefRecord is one ACFTREF row: an aircraft model and its maker.
type AircraftRefRecord struct {
	Code               string `csv:"CODE"`
	Manufacturer       string `csv:"MFR"`
	Model              string `csv:"MODEL"`
	TypeAircraft       string `csv:"TYPE-ACFT"`
	TypeEngine         string `csv:"TYPE-ENG"`
	Category           string `csv:"AC-CAT"`
	BuildCertification string `csv:"BUILD-CERT-IND"`
	NumberOfEngines    string `csv:"NO-ENG"`
	NumberOfSeats      string `csv:"NO-SEATS"`
	WeightClass        string `csv:"AC-WEIGHT"`
	CruiseSpeed        string `csv:"SPEED"`
}

// EngineRecord is one ENGINE row.
type EngineRecord struct {
	Code         string `csv:"CODE"`
	Manufacturer string `csv:"MFR"`
	Model        string `csv:"MODEL"`
	Type         string `csv:"TYPE"`
	Horsepower   string `csv:"HORSEPOWER"`
	Thrust       string `csv:"THRUST"`
}

// MasterRecord is one MASTER row: a registered aircraft.
type MasterRecord struct {
	TailNumber             string `csv:"N-NUMBER"`
	SerialNumber           string `csv:"SERIAL NUMBER"`
	ModelCode              string `csv:"MFR MDL CODE"`
	EngineCode             string `csv:"ENG MFR MDL"`
	YearManufactured       string `csv:"YEAR MFR"`
	RegistrantType         string `csv:"TYPE REGISTRANT"`
	Certification          string `csv:"CERTIFICATION"`
	AircraftType           string `csv:"TYPE AIRCRAFT"`
	EngineType             string `csv:"TYPE ENGINE"`
	StatusCode             string `csv:"STATUS CODE"`
	ModeSCode              string `csv:"MODE S CODE"`
	ModeSCodeHex           string `csv:"MODE S CODE HEX"`
	FractionalOwnership    string `csv:"FRACT OWNER"`
	AirworthinessClass     string `csv:"AIR WORTH CLASS"`
	ExpirationDate         string `csv:"EXPIRATION DATE"`
	LastActivityDate       string `csv:"LAST ACTIVITY DATE"`
	CertificationIssueDate string `csv:"CERT ISSUE DATE"`
	KitManufacturer        string `csv:"KIT MFR"`
	KitModel               string `csv:"KIT MODEL"`
	StatusCodeChangeDate   string `csv:"STATUS CODE CHANGE DATE"`
}

// OwnerRecord is one OWNER row: a registrant tied to a tail number. The
// last-action column header varies between dataset revisions, so both
// spellings are mapped.
type OwnerRecord struct {
	TailNumber     string `csv:"N-NUMBER"`
	Name           string `csv:"NAME"`
	Street         string `csv:"STREET"`
	Street2        string `csv:"STREET2"`
	City           string `csv:"CITY"`
	State          string `csv:"STATE"`
	ZipCode        string `csv:"ZIP CODE"`
	Country        string `csv:"COUNTRY"`
	Region         string `csv:"REGION"`
	County         string `csv:"COUNTY"`
	OwnershipType  string `csv:"OWNERSHIP TYPE"`
	LastActionDate string `csv:"LAST ACTION DATE"`
	LastActionDT   string `csv:"LAST ACTION DT"`
}

// batcher accumulates rows deduplicated by natural key and flushes them in
// chunks. A repeated key before the flush overwrites in place so one staging
// statement never touches the same key twice.
type batcher[T any] struct {
	limit int
	keys  map[string]int
	rows  []T
	flush func(rows []T) error
}

func newBatcher[T any](flush func(rows []T) error) *batcher[T] {
	return &batcher[T]{
		limit: flushLimit,
		keys:  make(map[string]int, flushLimit),
		flush: flush,
	}
}

func (b *batcher[T]) add(key string, row T) error {
	if i, ok := b.keys[key]; ok {
		b.rows[i] = row
		return nil
	}
	b.keys[key] = len(b.rows)
	b.rows = append(b.rows, row)
	if len(b.rows) >= b.limit {
		return b.drain()
	}
	return nil
}

func (b *batcher[T]) drain() error {
	if len(b.rows) == 0 {
		return nil
	}
	if err := b.flush(b.rows); err != nil {
		return err
	}
	b.rows = b.rows[:0]
	clear(b.keys)
	return nil
}

// Run streams the four tables in order (ACFTREF, ENGINE, MASTER, OWNER),
// stages every normalized row, then merges in dependency order and returns
// the per-entity merge totals.
func Run(ctx context.Context, archivePath string, st store.Store, ingestionID int64) (store.Stats, error) {
	var stats store.Stats

	arc, err := archive.Open(archivePath)
	if err != nil {
		return stats, err
	}
	defer arc.Close()

	if err := stageModels(ctx, arc, st, ingestionID); err != nil {
		return stats, err
	}
	if err := stageEngines(ctx, arc, st, ingestionID); err != nil {
		return stats, err
	}
	seenTails, err := stageAircraft(ctx, arc, st, ingestionID)
	if err != nil {
		return stats, err
	}
	if err := stageOwners(ctx, arc, st, ingestionID, seenTails); err != nil {
		return stats, err
	}

	// Manufacturer -> AircraftModel -> Engine -> Aircraft -> Owner -> link.
	// The merges resolve foreign keys by join, so this order is a
	// correctness requirement, not a preference.
	if stats.Manufacturers, err = st.MergeManufacturers(ctx, ingestionID); err != nil {
		return stats, err
	}
	if stats.AircraftModels, err = st.MergeModels(ctx, ingestionID); err != nil {
		return stats, err
	}
	if stats.Engines, err = st.MergeEngines(ctx, ingestionID); err != nil {
		return stats, err
	}
	if stats.Aircraft, err = st.MergeAircraft(ctx, ingestionID); err != nil {
		return stats, err
	}
	if stats.Owners, err = st.MergeOwners(ctx, ingestionID); err != nil {
		return stats, err
	}
	if stats.OwnerLinks, err = st.MergeOwnerLinks(ctx, ingestionID); err != nil {
		return stats, err
	}
	return stats, nil
}

func stageModels(ctx context.Context, arc *archive.Archive, st store.Store, ingestionID int64) error {
	table, err := arc.Table("ACFTREF")
	if err != nil {
		return err
	}

	manufacturers := newBatcher(func(rows []store.StagedManufacturer) error {
		return st.StageManufacturers(ctx, ingestionID, rows)
	})
	models := newBatcher(func(rows []store.StagedModel) error {
		return st.StageModels(ctx, ingestionID, rows)
	})

	err = archive.ForEach(table, func(rec AircraftRefRecord) error {
		code := normalize.ToNullableString(rec.Code)
		manufacturer := normalize.ToNullableString(rec.Manufacturer)
		if code == nil || manufacturer == nil {
			return nil
		}
		if err := manufacturers.add(*manufacturer, store.StagedManufacturer{Name: *manufacturer}); err != nil {
			return err
		}
		modelName := *code
		if name := normalize.ToNullableString(rec.Model); name != nil {
			modelName = *name
		}
		return models.add(*code, store.StagedModel{
			Code:               *code,
			ManufacturerName:   *manufacturer,
			ModelName:          modelName,
			TypeAircraft:       normalize.ToNullableString(rec.TypeAircraft),
			TypeEngine:         normalize.ToNullableString(rec.TypeEngine),
			Category:           normalize.ToNullableString(rec.Category),
			BuildCertification: normalize.ToNullableString(rec.BuildCertification),
			NumberOfEngines:    normalize.ToNullableInt(rec.NumberOfEngines),
			NumberOfSeats:      normalize.ToNullableInt(rec.NumberOfSeats),
			WeightClass:        normalize.ToNullableString(rec.WeightClass),
			CruiseSpeed:        normalize.ToNullableInt(rec.CruiseSpeed),
		})
	})
	if err != nil {
		return fmt.Errorf("ingest ACFTREF: %w", err)
	}
	if err := manufacturers.drain(); err != nil {
		return fmt.Errorf("flush manufacturers: %w", err)
	}
	if err := models.drain(); err != nil {
		return fmt.Errorf("flush models: %w", err)
	}
	return nil
}

func stageEngines(ctx context.Context, arc *archive.Archive, st store.Store, ingestionID int64) error {
	table, err := arc.Table("ENGINE")
	if err != nil {
		return err
	}

	engines := newBatcher(func(rows []store.StagedEngine) error {
		return st.StageEngines(ctx, ingestionID, rows)
	})

	err = archive.ForEach(table, func(rec EngineRecord) error {
		code := normalize.ToNullableString(rec.Code)
		if code == nil {
			return nil
		}
		return engines.add(*code, store.StagedEngine{
			Code:         *code,
			Manufacturer: normalize.ToNullableString(rec.Manufacturer),
			Model:        normalize.ToNullableString(rec.Model),
			Type:         normalize.ToNullableString(rec.Type),
			Horsepower:   normalize.ToNullableInt(rec.Horsepower),
			Thrust:       normalize.ToNullableInt(rec.Thrust),
		})
	})
	if err != nil {
		return fmt.Errorf("ingest ENGINE: %w", err)
	}
	if err := engines.drain(); err != nil {
		return fmt.Errorf("flush engines: %w", err)
	}
	return nil
}

func stageAircraft(ctx context.Context, arc *archive.Archive, st store.Store, ingestionID int64) (map[string]struct{}, error) {
	table, err := arc.Table("MASTER")
	if err != nil {
		return nil, err
	}

	aircraft := newBatcher(func(rows []store.StagedAircraft) error {
		return st.StageAircraft(ctx, ingestionID, rows)
	})
	seenTails := make(map[string]struct{})

	err = archive.ForEach(table, func(rec MasterRecord) error {
		tail := normalize.TailNumber(rec.TailNumber)
		if tail == "" {
			return nil
		}
		seenTails[tail] = struct{}{}
		return aircraft.add(tail, store.StagedAircraft{
			TailNumber:             tail,
			SerialNumber:           normalize.ToNullableString(rec.SerialNumber),
			ModelCode:              normalize.ToNullableString(rec.ModelCode),
			EngineCode:             normalize.ToNullableString(rec.EngineCode),
			YearManufactured:       normalize.ToNullableInt(rec.YearManufactured),
			RegistrantType:         normalize.ToNullableString(rec.RegistrantType),
			Certification:          normalize.ToNullableString(rec.Certification),
			AircraftType:           normalize.ToNullableString(rec.AircraftType),
			EngineType:             normalize.ToNullableString(rec.EngineType),
			StatusCode:             normalize.ToNullableString(rec.StatusCode),
			ModeSCode:              normalize.ToNullableString(rec.ModeSCode),
			ModeSCodeHex:           normalize.ToNullableString(rec.ModeSCodeHex),
			FractionalOwnership:    normalize.ToNullableBoolYN(rec.FractionalOwnership),
			AirworthinessClass:     normalize.ToNullableString(rec.AirworthinessClass),
			ExpirationDate:         normalize.ToNullableDateYYYYMMDD(rec.ExpirationDate),
			LastActivityDate:       normalize.ToNullableDateYYYYMMDD(rec.LastActivityDate),
			CertificationIssueDate: normalize.ToNullableDateYYYYMMDD(rec.CertificationIssueDate),
			KitManufacturer:        normalize.ToNullableString(rec.KitManufacturer),
			KitModel:               normalize.ToNullableString(rec.KitModel),
			StatusCodeChangeDate:   normalize.ToNullableDateYYYYMMDD(rec.StatusCodeChangeDate),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("ingest MASTER: %w", err)
	}
	if err := aircraft.drain(); err != nil {
		return nil, fmt.Errorf("flush aircraft: %w", err)
	}
	return seenTails, nil
}

func stageOwners(ctx context.Context, arc *archive.Archive, st store.Store, ingestionID int64, seenTails map[string]struct{}) error {
	table, err := arc.Table("OWNER")
	if err != nil {
		return err
	}

	owners := newBatcher(func(rows []store.StagedOwner) error {
		return st.StageOwners(ctx, ingestionID, rows)
	})
	links := newBatcher(func(rows []store.StagedOwnerLink) error {
		return st.StageOwnerLinks(ctx, ingestionID, rows)
	})

	err = archive.ForEach(table, func(rec OwnerRecord) error {
		tail := normalize.TailNumber(rec.TailNumber)
		if tail == "" {
			return nil
		}
		// Rows for tail numbers absent from MASTER carry no aircraft to
		// link to and are skipped entirely.
		if _, ok := seenTails[tail]; !ok {
			return nil
		}

		name := normalize.ToNullableString(rec.Name)
		addressLine1 := normalize.ToNullableString(rec.Street)
		addressLine2 := normalize.ToNullableString(rec.Street2)
		city := normalize.ToNullableString(rec.City)
		state := normalize.ToNullableString(rec.State)
		postalCode := normalize.ToNullableString(rec.ZipCode)
		country := normalize.ToNullableString(rec.Country)

		ownerName := "UNKNOWN OWNER"
		if name != nil {
			ownerName = *name
		}
		externalKey := normalize.OwnerExternalKey(&ownerName, addressLine1, addressLine2, city, state, postalCode, country)

		if err := owners.add(externalKey, store.StagedOwner{
			ExternalKey:  externalKey,
			Name:         ownerName,
			AddressLine1: addressLine1,
			AddressLine2: addressLine2,
			City:         city,
			State:        state,
			PostalCode:   postalCode,
			Country:      country,
			Region:       normalize.ToNullableString(rec.Region),
			County:       normalize.ToNullableString(rec.County),
		}); err != nil {
			return err
		}

		lastAction := normalize.ToNullableDateYYYYMMDD(rec.LastActionDate)
		if lastAction == nil {
			lastAction = normalize.ToNullableDateYYYYMMDD(rec.LastActionDT)
		}
		return links.add(tail+"\x00"+externalKey, store.StagedOwnerLink{
			TailNumber:       tail,
			OwnerExternalKey: externalKey,
			OwnershipType:    normalize.ToNullableString(rec.OwnershipType),
			LastActionDate:   lastAction,
		})
	})
	if err != nil {
		return fmt.Errorf("ingest OWNER: %w", err)
	}
	if err := owners.drain(); err != nil {
		return fmt.Errorf("flush owners: %w", err)
	}
	if err := links.drain(); err != nil {
		return fmt.Errorf("flush owner links: %w", err)
	}
	return nil
}
