package patients

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu        sync.Mutex
	patients  map[string]Patient
	referrers map[string]Referrer
	contacts  map[string]Contact
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		patients:  make(map[string]Patient),
		referrers: make(map[string]Referrer),
		contacts:  make(map[string]Contact),
	}
}

func (r *MemoryRepo) CreatePatient(ctx context.Context, p Patient) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = p
	return nil
}

func (r *MemoryRepo) GetPatient(ctx context.Context, practiceID, id string) (Patient, error) {
	if err := ctx.Err(); err != nil {
		return Patient{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok || p.PracticeID != practiceID {
		return Patient{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepo) ListByPractice(ctx context.Context, practiceID string) ([]Patient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Patient
	for _, p := range r.patients {
		if p.PracticeID == practiceID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) CreateReferrer(ctx context.Context, ref Referrer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.referrers[ref.ID] = ref
	return nil
}

func (r *MemoryRepo) FindReferrerByName(ctx context.Context, practiceID, name string) (Referrer, error) {
	if err := ctx.Err(); err != nil {
		return Referrer{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	want := strings.ToLower(strings.TrimSpace(name))
	for _, ref := range r.referrers {
		if ref.PracticeID == practiceID && strings.ToLower(strings.TrimSpace(ref.Name)) == want {
			return ref, nil
		}
	}
	return Referrer{}, ErrNotFound
}

func (r *MemoryRepo) CreateContact(ctx context.Context, c Contact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts[c.ID] = c
	return nil
}

func (r *MemoryRepo) FindContactByName(ctx context.Context, patientID, kind, name string) (Contact, error) {
	if err := ctx.Err(); err != nil {
		return Contact{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	want := strings.ToLower(strings.TrimSpace(name))
	for _, c := range r.contacts {
		if c.PatientID == patientID && c.Kind == kind && strings.ToLower(strings.TrimSpace(c.Name)) == want {
			return c, nil
		}
	}
	return Contact{}, ErrNotFound
}

var _ Repo = (*MemoryRepo)(nil)
