package requester

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Service implements requester intake and identity checks.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register validates the intake form and stores a new identity record. Records
// are append-only: registering the same document again creates a newer record.
func (s *Service) Register(ctx context.Context, q *Requester) error {
	q.DocumentType = strings.ToUpper(strings.TrimSpace(q.DocumentType))
	q.DocumentNumber = strings.TrimSpace(q.DocumentNumber)
	q.Email = strings.ToLower(strings.TrimSpace(q.Email))
	q.Phone = strings.TrimSpace(q.Phone)

	if err := s.validate(q); err != nil {
		return err
	}
	return s.repo.Create(ctx, q)
}

func (s *Service) validate(q *Requester) error {
	if !validDocumentTypes[q.DocumentType] {
		return fmt.Errorf("invalid document type: %s", q.DocumentType)
	}
	if q.DocumentNumber == "" {
		return fmt.Errorf("document number is required")
	}
	if q.FirstName == "" || q.LastName == "" {
		return fmt.Errorf("first and last name are required")
	}
	if q.Phone == "" {
		return fmt.Errorf("phone is required")
	}
	if q.Email == "" || !strings.Contains(q.Email, "@") {
		return fmt.Errorf("a valid email is required")
	}
	if !validSexes[q.Sex] {
		return fmt.Errorf("invalid sex: %s", q.Sex)
	}
	if !validGenders[q.Gender] {
		return fmt.Errorf("invalid gender: %s", q.Gender)
	}
	if !validSexualOrientations[q.SexualOrientation] {
		return fmt.Errorf("invalid sexual orientation: %s", q.SexualOrientation)
	}
	if !validAgeRanges[q.AgeRange] {
		return fmt.Errorf("invalid age range: %s", q.AgeRange)
	}
	if !validEducationLevels[q.EducationLevel] {
		return fmt.Errorf("invalid education level: %s", q.EducationLevel)
	}
	if !validEthnicGroups[q.EthnicGroup] {
		return fmt.Errorf("invalid ethnic group: %s", q.EthnicGroup)
	}
	if !validPopulationGroups[q.PopulationGroup] {
		return fmt.Errorf("invalid population group: %s", q.PopulationGroup)
	}
	if !validStrata[q.Stratum] {
		return fmt.Errorf("invalid stratum: %s", q.Stratum)
	}
	if !validLocalities[q.Locality] {
		return fmt.Errorf("invalid locality: %s", q.Locality)
	}
	if !validContactCapacities[q.ContactCapacity] {
		return fmt.Errorf("invalid contact capacity: %s", q.ContactCapacity)
	}
	if q.HasDisability && (q.DisabilityType == nil || *q.DisabilityType == "") {
		return fmt.Errorf("disability type is required when a disability is reported")
	}
	if !q.HasDisability {
		q.DisabilityType = nil
	}
	return nil
}

// Get returns a requester record by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Requester, error) {
	return s.repo.GetByID(ctx, id)
}

// Latest returns the current identity record for a document.
func (s *Service) Latest(ctx context.Context, docType, docNumber string) (*Requester, error) {
	return s.repo.Latest(ctx, strings.ToUpper(strings.TrimSpace(docType)), strings.TrimSpace(docNumber))
}

// History lists every intake record for a document, newest first.
func (s *Service) History(ctx context.Context, docType, docNumber string, limit, offset int) ([]*Requester, int, error) {
	return s.repo.History(ctx, strings.ToUpper(strings.TrimSpace(docType)), strings.TrimSpace(docNumber), limit, offset)
}

// Remove deletes an identity record. Used to roll back intake when the
// paired appointment cannot be created.
func (s *Service) Remove(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// VerifyContact checks that both phone and email match the record. On any
// mismatch it returns IdentityMismatchError without revealing which field
// failed.
func (s *Service) VerifyContact(q *Requester, phone, email string) error {
	phone = strings.TrimSpace(phone)
	email = strings.ToLower(strings.TrimSpace(email))
	if q == nil || q.Phone != phone || q.Email != email {
		return &IdentityMismatchError{}
	}
	return nil
}
