package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"petshop/core"
	"petshop/metrics"
	"petshop/storage"
)

// ErrPetNotAvailable is returned when purchasing a pet that is already sold.
var ErrPetNotAvailable = errors.New("pet is not available")

// PetStorage defines the document store operations needed by PetService.
// Defined here (consumer package) so tests can substitute a narrow fake.
type PetStorage interface {
	Create(ctx context.Context, pet *core.Pet) error
	Update(ctx context.Context, pet *core.Pet) error
	Delete(ctx context.Context, id, rev string) error
	Get(ctx context.Context, id string) (*core.Pet, error)
	All(ctx context.Context) ([]core.Pet, error)
	FindBy(ctx context.Context, selector storage.Selector) ([]core.Pet, error)
	RemoveAll(ctx context.Context) error
}

// ListQuery filters a pet listing. Only the highest precedence filter that is set applies:
// Category, then Name, then Available, then Gender. An empty query lists every pet.
type ListQuery struct {
	Category  string
	Name      string
	Available *bool
	Gender    *core.Gender
}

// PetService implements the pet shop's business operations on top of a document store.
type PetService struct {
	store  PetStorage
	logger *zap.SugaredLogger
	tracer trace.Tracer
}

// NewPetService creates a new PetService instance.
//
// PARAMETERS:
//   - store: Pet persistence layer (required, panics if nil)
//   - logger: Structured logger (required, panics if nil)
func NewPetService(store PetStorage, logger *zap.SugaredLogger) *PetService {
	if store == nil {
		panic("store is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &PetService{store: store, logger: logger, tracer: otel.Tracer("petshop/service")}
}

// begin opens a span for operation. The returned func ends it and counts the outcome.
func (s *PetService) begin(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "PetService."+operation, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		outcome := "success"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.PetOperations.WithLabelValues(operation, outcome).Inc()
		span.End()
	}
}

func petID(id string) attribute.KeyValue {
	return attribute.String("pet.id", id)
}

// Create stores a new pet and assigns its ID and revision.
//
// ERRORS:
//   - core.DataValidationError: name is empty or attributes fail validation
//   - core.DatabaseConnectionError: the store could not be reached
func (s *PetService) Create(ctx context.Context, pet *core.Pet) (err error) {
	ctx, end := s.begin(ctx, "create", attribute.String("pet.name", pet.Name))
	defer func() { end(err) }()

	if pet.Name == "" {
		return core.NewDataValidationError("name attribute is not set", nil)
	}
	if err := pet.Validate(); err != nil {
		return err
	}

	s.logger.Infow("Creating pet", "name", pet.Name)
	// A client supplied ID is kept; a revision never is
	pet.Rev = ""
	if err := s.store.Create(ctx, pet); err != nil {
		return fmt.Errorf("failed to create pet: %w", err)
	}
	trace.SpanFromContext(ctx).SetAttributes(petID(pet.ID))
	s.logger.Infow("Pet created", "id", pet.ID, "name", pet.Name)
	return nil
}

// Get returns the pet with the given ID or storage.ErrPetNotFound.
func (s *PetService) Get(ctx context.Context, id string) (*core.Pet, error) {
	ctx, end := s.begin(ctx, "get", petID(id))
	pet, err := s.store.Get(ctx, id)
	end(ignoreNotFound(err))
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve pet %s: %w", id, err)
	}
	return pet, nil
}

// Update replaces the attributes of an existing pet with data, a decoded JSON document.
//
// BUSINESS LOGIC:
// 1. Find the pet (storage.ErrPetNotFound if missing)
// 2. Deserialize data onto it; the path ID always wins over any _id in the body
// 3. Validate and write it with the stored revision (or a _rev from data)
func (s *PetService) Update(ctx context.Context, id string, data interface{}) (pet *core.Pet, err error) {
	ctx, end := s.begin(ctx, "update", petID(id))
	defer func() { end(ignoreNotFound(err)) }()

	pet, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve pet %s: %w", id, err)
	}

	if err := pet.Deserialize(data); err != nil {
		return nil, err
	}
	pet.ID = id
	if err := pet.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.Update(ctx, pet); err != nil {
		return nil, fmt.Errorf("failed to update pet %s: %w", id, err)
	}
	s.logger.Infow("Pet updated", "id", id)
	return pet, nil
}

// Delete removes the pet with the given ID. Deleting a missing pet succeeds.
func (s *PetService) Delete(ctx context.Context, id string) (err error) {
	ctx, end := s.begin(ctx, "delete", petID(id))
	defer func() { end(err) }()

	pet, err := s.store.Get(ctx, id)
	if errors.Is(err, storage.ErrPetNotFound) {
		s.logger.Debugw("Delete of missing pet ignored", "id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to retrieve pet %s: %w", id, err)
	}

	if err := s.store.Delete(ctx, pet.ID, pet.Rev); err != nil {
		if errors.Is(err, storage.ErrPetNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete pet %s: %w", id, err)
	}
	s.logger.Infow("Pet deleted", "id", id)
	return nil
}

// List returns the pets matching the single highest precedence filter in q.
func (s *PetService) List(ctx context.Context, q ListQuery) (pets []core.Pet, err error) {
	ctx, end := s.begin(ctx, "list")
	defer func() { end(err) }()

	switch {
	case q.Category != "":
		return s.FindByCategory(ctx, q.Category)
	case q.Name != "":
		return s.FindByName(ctx, q.Name)
	case q.Available != nil:
		return s.FindByAvailability(ctx, *q.Available)
	case q.Gender != nil:
		return s.FindByGender(ctx, *q.Gender)
	}

	pets, err = s.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pets: %w", err)
	}
	return nonNil(pets), nil
}

// Purchase marks an available pet as sold.
//
// ERRORS:
//   - storage.ErrPetNotFound: pet doesn't exist
//   - ErrPetNotAvailable: pet was already purchased
func (s *PetService) Purchase(ctx context.Context, id string) (pet *core.Pet, err error) {
	ctx, end := s.begin(ctx, "purchase", petID(id))
	defer func() { end(ignoreNotFound(err)) }()

	pet, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve pet %s: %w", id, err)
	}
	if !pet.Available {
		return nil, ErrPetNotAvailable
	}

	pet.Available = false
	if err := s.store.Update(ctx, pet); err != nil {
		return nil, fmt.Errorf("failed to purchase pet %s: %w", id, err)
	}
	s.logger.Infow("Pet purchased", "id", id, "name", pet.Name)
	return pet, nil
}

// RemoveAll deletes every pet. Intended for tests and environment resets.
func (s *PetService) RemoveAll(ctx context.Context) (err error) {
	ctx, end := s.begin(ctx, "remove_all")
	defer func() { end(err) }()

	if err := s.store.RemoveAll(ctx); err != nil {
		return fmt.Errorf("failed to remove pets: %w", err)
	}
	s.logger.Warnw("All pets removed")
	return nil
}

func (s *PetService) FindByName(ctx context.Context, name string) ([]core.Pet, error) {
	s.logger.Debugw("Finding pets by name", "name", name)
	return s.findBy(ctx, storage.Selector{core.FieldName: name})
}

func (s *PetService) FindByCategory(ctx context.Context, category string) ([]core.Pet, error) {
	s.logger.Debugw("Finding pets by category", "category", category)
	return s.findBy(ctx, storage.Selector{core.FieldCategory: category})
}

func (s *PetService) FindByAvailability(ctx context.Context, available bool) ([]core.Pet, error) {
	s.logger.Debugw("Finding pets by availability", "available", available)
	return s.findBy(ctx, storage.Selector{core.FieldAvailable: available})
}

func (s *PetService) FindByGender(ctx context.Context, gender core.Gender) ([]core.Pet, error) {
	s.logger.Debugw("Finding pets by gender", "gender", gender)
	return s.findBy(ctx, storage.Selector{core.FieldGender: gender.String()})
}

func (s *PetService) findBy(ctx context.Context, selector storage.Selector) ([]core.Pet, error) {
	pets, err := s.store.FindBy(ctx, selector)
	if err != nil {
		return nil, fmt.Errorf("failed to query pets: %w", err)
	}
	return nonNil(pets), nil
}

// nonNil keeps empty results encoding as [] rather than null
func nonNil(pets []core.Pet) []core.Pet {
	if pets == nil {
		return []core.Pet{}
	}
	return pets
}

// ignoreNotFound keeps lookups of missing pets out of the error metric
func ignoreNotFound(err error) error {
	if errors.Is(err, storage.ErrPetNotFound) {
		return nil
	}
	return err
}
