// Package requester manages the citizens who book advisory appointments:
// identity records, demographic intake and contact verification.
package requester

import (
	"time"

	"github.com/google/uuid"
)

// Document types accepted for identification.
const (
	DocTypeCC  = "CC"  // cédula de ciudadanía
	DocTypeCE  = "CE"  // cédula de extranjería
	DocTypeTI  = "TI"  // tarjeta de identidad
	DocTypePEP = "PEP" // permiso especial de permanencia
	DocTypeRC  = "RC"  // registro civil
	DocTypePA  = "PA"  // pasaporte
)

// Requester is an immutable intake record. Booking again with the same
// document creates a new record rather than mutating the old one; the latest
// record by creation time is the current identity.
type Requester struct {
	ID             uuid.UUID `db:"id" json:"id"`
	DocumentType   string    `db:"document_type" json:"document_type"`
	DocumentNumber string    `db:"document_number" json:"document_number"`
	FirstName      string    `db:"first_name" json:"first_name"`
	LastName       string    `db:"last_name" json:"last_name"`
	Phone          string    `db:"phone" json:"phone"`
	Email          string    `db:"email" json:"email"`

	// Demographic intake
	Sex               string  `db:"sex" json:"sex"`
	Gender            string  `db:"gender" json:"gender"`
	SexualOrientation string  `db:"sexual_orientation" json:"sexual_orientation"`
	AgeRange          string  `db:"age_range" json:"age_range"`
	EducationLevel    string  `db:"education_level" json:"education_level"`
	EthnicGroup       string  `db:"ethnic_group" json:"ethnic_group"`
	PopulationGroup   string  `db:"population_group" json:"population_group"`
	Stratum           string  `db:"stratum" json:"stratum"`
	Locality          string  `db:"locality" json:"locality"`
	ContactCapacity   string  `db:"contact_capacity" json:"contact_capacity"`
	HasDisability     bool    `db:"has_disability" json:"has_disability"`
	DisabilityType    *string `db:"disability_type" json:"disability_type,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// FullName joins first and last names for display and meeting invitations.
func (r *Requester) FullName() string {
	if r.FirstName == "" {
		return r.LastName
	}
	if r.LastName == "" {
		return r.FirstName
	}
	return r.FirstName + " " + r.LastName
}

var validDocumentTypes = map[string]bool{
	DocTypeCC:  true,
	DocTypeCE:  true,
	DocTypeTI:  true,
	DocTypePEP: true,
	DocTypeRC:  true,
	DocTypePA:  true,
}

var validSexes = map[string]bool{
	"masculino":         true,
	"femenino":          true,
	"intersexual":       true,
	"prefiere_no_decir": true,
}

var validGenders = map[string]bool{
	"masculino":         true,
	"femenino":          true,
	"transgenero":       true,
	"no_binario":        true,
	"otro":              true,
	"prefiere_no_decir": true,
}

var validSexualOrientations = map[string]bool{
	"heterosexual":      true,
	"homosexual":        true,
	"bisexual":          true,
	"otro":              true,
	"prefiere_no_decir": true,
}

var validAgeRanges = map[string]bool{
	"14_17":  true,
	"18_26":  true,
	"27_35":  true,
	"36_45":  true,
	"46_59":  true,
	"60_mas": true,
}

var validEducationLevels = map[string]bool{
	"ninguno":       true,
	"primaria":      true,
	"secundaria":    true,
	"tecnico":       true,
	"tecnologo":     true,
	"universitario": true,
	"posgrado":      true,
}

var validEthnicGroups = map[string]bool{
	"ninguno":          true,
	"indigena":         true,
	"afrodescendiente": true,
	"raizal":           true,
	"palenquero":       true,
	"rrom":             true,
}

var validPopulationGroups = map[string]bool{
	"ninguno":           true,
	"victima_conflicto": true,
	"desplazado":        true,
	"migrante":          true,
	"habitante_calle":   true,
	"privado_libertad":  true,
	"lgbtiq":            true,
	"cuidador":          true,
}

var validStrata = map[string]bool{
	"1": true, "2": true, "3": true, "4": true, "5": true, "6": true,
}

// The 20 localities of Bogotá plus a catch-all for out-of-city requesters.
var validLocalities = map[string]bool{
	"usaquen":            true,
	"chapinero":          true,
	"santa_fe":           true,
	"san_cristobal":      true,
	"usme":               true,
	"tunjuelito":         true,
	"bosa":               true,
	"kennedy":            true,
	"fontibon":           true,
	"engativa":           true,
	"suba":               true,
	"barrios_unidos":     true,
	"teusaquillo":        true,
	"los_martires":       true,
	"antonio_narino":     true,
	"puente_aranda":      true,
	"la_candelaria":      true,
	"rafael_uribe_uribe": true,
	"ciudad_bolivar":     true,
	"sumapaz":            true,
	"fuera_bogota":       true,
}

var validContactCapacities = map[string]bool{
	"llamada":    true,
	"mensaje":    true,
	"correo":     true,
	"cualquiera": true,
}
