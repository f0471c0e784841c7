package medicines

import "context"

// Service wraps medicine master operations.
type Service struct {
	repo Repository
}

// NewService constructs the service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns medicines matching the search string.
func (s *Service) List(ctx context.Context, search string, limit, offset int) ([]Medicine, int, error) {
	return s.repo.List(ctx, search, limit, offset)
}

// Get loads one medicine.
func (s *Service) Get(ctx context.Context, id int64) (Medicine, error) {
	return s.repo.Get(ctx, id)
}

// Create records a medicine. New medicines default to active.
func (s *Service) Create(ctx context.Context, input Input) (Medicine, error) {
	m := Medicine{
		Code:         input.Code,
		Name:         input.Name,
		Manufacturer: input.Manufacturer,
		Unit:         input.Unit,
		IsActive:     true,
	}
	if input.IsActive != nil {
		m.IsActive = *input.IsActive
	}
	return s.repo.Create(ctx, m)
}

// Update replaces the stored fields.
func (s *Service) Update(ctx context.Context, id int64, input Input) (Medicine, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Medicine{}, err
	}
	current.Code = input.Code
	current.Name = input.Name
	current.Manufacturer = input.Manufacturer
	current.Unit = input.Unit
	if input.IsActive != nil {
		current.IsActive = *input.IsActive
	}
	if err := s.repo.Update(ctx, id, current); err != nil {
		return Medicine{}, err
	}
	return current, nil
}
