package franchises

import "context"

// Service wraps franchise master operations.
type Service struct {
	repo Repository
}

// NewService constructs the service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns franchises matching the search string.
func (s *Service) List(ctx context.Context, search string, limit, offset int) ([]Franchise, int, error) {
	return s.repo.List(ctx, search, limit, offset)
}

// Get loads one franchise.
func (s *Service) Get(ctx context.Context, id int64) (Franchise, error) {
	return s.repo.Get(ctx, id)
}

// Create records a franchise. New franchises default to active.
func (s *Service) Create(ctx context.Context, input Input) (Franchise, error) {
	f := Franchise{
		Code:         input.Code,
		Name:         input.Name,
		Address:      input.Address,
		ContactPhone: input.ContactPhone,
		IsActive:     true,
	}
	if input.IsActive != nil {
		f.IsActive = *input.IsActive
	}
	return s.repo.Create(ctx, f)
}

// Update replaces the stored fields.
func (s *Service) Update(ctx context.Context, id int64, input Input) (Franchise, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Franchise{}, err
	}
	current.Code = input.Code
	current.Name = input.Name
	current.Address = input.Address
	current.ContactPhone = input.ContactPhone
	if input.IsActive != nil {
		current.IsActive = *input.IsActive
	}
	if err := s.repo.Update(ctx, id, current); err != nil {
		return Franchise{}, err
	}
	return current, nil
}
