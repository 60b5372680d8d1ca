package patients

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) CreatePatient(ctx context.Context, p Patient) error {
	const query = `
INSERT INTO patients (id, practice_id, encrypted_name, encrypted_dob, encrypted_medicare, encrypted_mrn, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.DB.ExecContext(ctx, query,
		p.ID, p.PracticeID, p.EncryptedName, p.EncryptedDateOfBirth, p.EncryptedMedicare, p.EncryptedMRN, p.CreatedAt)
	return err
}

func (r *PGRepo) GetPatient(ctx context.Context, practiceID, id string) (Patient, error) {
	const query = `
SELECT id, practice_id, encrypted_name, encrypted_dob, encrypted_medicare, encrypted_mrn, created_at
FROM patients
WHERE practice_id = $1 AND id = $2`
	var p Patient
	err := r.DB.QueryRowContext(ctx, query, practiceID, id).Scan(
		&p.ID, &p.PracticeID, &p.EncryptedName, &p.EncryptedDateOfBirth, &p.EncryptedMedicare, &p.EncryptedMRN, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Patient{}, ErrNotFound
	}
	if err != nil {
		return Patient{}, err
	}
	return p, nil
}

func (r *PGRepo) ListByPractice(ctx context.Context, practiceID string) ([]Patient, error) {
	const query = `
SELECT id, practice_id, encrypted_name, encrypted_dob, encrypted_medicare, encrypted_mrn, created_at
FROM patients
WHERE practice_id = $1
ORDER BY created_at`
	rows, err := r.DB.QueryContext(ctx, query, practiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.PracticeID, &p.EncryptedName, &p.EncryptedDateOfBirth, &p.EncryptedMedicare, &p.EncryptedMRN, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PGRepo) CreateReferrer(ctx context.Context, ref Referrer) error {
	const query = `
INSERT INTO referrers (id, practice_id, name, specialty, provider_number, organization, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.DB.ExecContext(ctx, query,
		ref.ID, ref.PracticeID, ref.Name, ref.Specialty, ref.ProviderNumber, ref.Organization, ref.CreatedAt)
	return err
}

func (r *PGRepo) FindReferrerByName(ctx context.Context, practiceID, name string) (Referrer, error) {
	const query = `
SELECT id, practice_id, name, specialty, provider_number, organization, created_at
FROM referrers
WHERE practice_id = $1 AND LOWER(TRIM(name)) = LOWER(TRIM($2))
LIMIT 1`
	var ref Referrer
	err := r.DB.QueryRowContext(ctx, query, practiceID, name).Scan(
		&ref.ID, &ref.PracticeID, &ref.Name, &ref.Specialty, &ref.ProviderNumber, &ref.Organization, &ref.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Referrer{}, ErrNotFound
	}
	if err != nil {
		return Referrer{}, err
	}
	return ref, nil
}

func (r *PGRepo) CreateContact(ctx context.Context, c Contact) error {
	const query = `
INSERT INTO patient_contacts (id, patient_id, kind, name, practice_name, provider_number, phone, fax, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.DB.ExecContext(ctx, query,
		c.ID, c.PatientID, c.Kind, c.Name, c.PracticeName, c.ProviderNumber, c.Phone, c.Fax, c.CreatedAt)
	return err
}

func (r *PGRepo) FindContactByName(ctx context.Context, patientID, kind, name string) (Contact, error) {
	const query = `
SELECT id, patient_id, kind, name, practice_name, provider_number, phone, fax, created_at
FROM patient_contacts
WHERE patient_id = $1 AND kind = $2 AND LOWER(TRIM(name)) = LOWER(TRIM($3))
LIMIT 1`
	var c Contact
	err := r.DB.QueryRowContext(ctx, query, patientID, kind, name).Scan(
		&c.ID, &c.PatientID, &c.Kind, &c.Name, &c.PracticeName, &c.ProviderNumber, &c.Phone, &c.Fax, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	if err != nil {
		return Contact{}, err
	}
	return c, nil
}

var _ Repo = (*PGRepo)(nil)
