package patient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pm/patient-service/internal/platform/db"
)

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patientCols = `id, medical_record_number, first_name, last_name, date_of_birth, gender,
	address_street, address_city, address_state, address_zip_code, address_country,
	phone_number, email, alternative_phone_number,
	emergency_contacts, insurance_info,
	created_at, updated_at`

func (r *patientRepoPG) ExistsByID(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM patient WHERE id = $1)`, id)
}

func (r *patientRepoPG) ExistsByMRN(ctx context.Context, mrn string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM patient WHERE medical_record_number = $1)`, mrn)
}

func (r *patientRepoPG) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM patient WHERE email = $1)`, email)
}

func (r *patientRepoPG) ExistsByPhone(ctx context.Context, phone string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM patient WHERE phone_number = $1)`, phone)
}

func (r *patientRepoPG) exists(ctx context.Context, sql string, arg interface{}) (bool, error) {
	var ok bool
	if err := r.conn(ctx).QueryRow(ctx, sql, arg).Scan(&ok); err != nil {
		return false, fmt.Errorf("patient exists: %w", err)
	}
	return ok, nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrNotFoundByID(id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("patient get by id: %w", err)
	}
	return p, nil
}

func (r *patientRepoPG) GetByMRN(ctx context.Context, mrn string) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE medical_record_number = $1`, mrn))
	if db.IsNoRows(err) {
		return nil, ErrNotFoundByMRN(mrn)
	}
	if err != nil {
		return nil, fmt.Errorf("patient get by mrn: %w", err)
	}
	return p, nil
}

func (r *patientRepoPG) List(ctx context.Context) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patient ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("patient list: %w", err)
	}
	defer rows.Close()

	patients := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("patient list: %w", err)
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("patient list: %w", err)
	}
	return patients, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	args, err := patientArgs(p)
	if err != nil {
		return fmt.Errorf("patient create: %w", err)
	}

	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (`+patientCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		args...,
	)
	if err != nil {
		return translateWriteErr("patient create", p, err)
	}
	return nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	args, err := patientArgs(p)
	if err != nil {
		return fmt.Errorf("patient update: %w", err)
	}

	// created_at is never rewritten.
	args = append(args[:16], p.UpdatedAt)

	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET
			medical_record_number=$2, first_name=$3, last_name=$4, date_of_birth=$5, gender=$6,
			address_street=$7, address_city=$8, address_state=$9, address_zip_code=$10, address_country=$11,
			phone_number=$12, email=$13, alternative_phone_number=$14,
			emergency_contacts=$15, insurance_info=$16,
			updated_at=$17
		WHERE id = $1`,
		args...,
	)
	if err != nil {
		return translateWriteErr("patient update", p, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFoundByID(p.ID.String())
	}
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("patient delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFoundByID(id.String())
	}
	return nil
}

// translateWriteErr maps a unique-constraint violation to the duplicate kind
// for the offending column.
func translateWriteErr(op string, p *Patient, err error) error {
	switch constraint, ok := db.UniqueViolation(err); {
	case !ok:
		return fmt.Errorf("%s: %w", op, err)
	case constraint == "uq_patient_mrn":
		return ErrDuplicateMRN(p.MedicalRecordNumber)
	case constraint == "uq_patient_email":
		return ErrDuplicateEmail(p.email())
	case constraint == "uq_patient_phone":
		return ErrDuplicatePhone(p.phone())
	default:
		return &Error{Kind: KindAlreadyExists, Message: "Patient already exists", Err: err}
	}
}

func patientArgs(p *Patient) ([]interface{}, error) {
	var street, city, state, zip, country *string
	if a := p.Address; a != nil {
		street, city, state, zip, country = &a.Street, &a.City, &a.State, &a.ZipCode, &a.Country
	}
	var phone, email, alt *string
	if c := p.ContactInfo; c != nil {
		phone, email = &c.PhoneNumber, &c.Email
		if c.AlternativePhoneNumber != "" {
			alt = &c.AlternativePhoneNumber
		}
	}
	contacts, err := marshalNullable(p.EmergencyContacts == nil, p.EmergencyContacts)
	if err != nil {
		return nil, fmt.Errorf("encode emergency contacts: %w", err)
	}
	insurance, err := marshalNullable(p.InsuranceInfo == nil, p.InsuranceInfo)
	if err != nil {
		return nil, fmt.Errorf("encode insurance info: %w", err)
	}
	return []interface{}{
		p.ID, p.MedicalRecordNumber, p.FirstName, p.LastName, p.DateOfBirth.Time(), p.Gender,
		street, city, state, zip, country,
		phone, email, alt,
		contacts, insurance,
		p.CreatedAt, p.UpdatedAt,
	}, nil
}

// marshalNullable encodes v as JSON, or SQL NULL when isNil is set.
func marshalNullable(isNil bool, v interface{}) ([]byte, error) {
	if isNil {
		return nil, nil
	}
	return json.Marshal(v)
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var (
		p                                 Patient
		dob                               time.Time
		street, city, state, zip, country *string
		phone, email, alt                 *string
		contacts, insurance               []byte
	)
	err := row.Scan(
		&p.ID, &p.MedicalRecordNumber, &p.FirstName, &p.LastName, &dob, &p.Gender,
		&street, &city, &state, &zip, &country,
		&phone, &email, &alt,
		&contacts, &insurance,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.DateOfBirth = DateOf(dob)
	if street != nil || city != nil || state != nil || zip != nil || country != nil {
		p.Address = &Address{Street: deref(street), City: deref(city), State: deref(state), ZipCode: deref(zip), Country: deref(country)}
	}
	if phone != nil || email != nil || alt != nil {
		p.ContactInfo = &ContactInfo{PhoneNumber: deref(phone), Email: deref(email), AlternativePhoneNumber: deref(alt)}
	}
	if contacts != nil {
		if err := json.Unmarshal(contacts, &p.EmergencyContacts); err != nil {
			return nil, fmt.Errorf("decode emergency contacts: %w", err)
		}
	}
	if insurance != nil {
		p.InsuranceInfo = &InsuranceInfo{}
		if err := json.Unmarshal(insurance, p.InsuranceInfo); err != nil {
			return nil, fmt.Errorf("decode insurance info: %w", err)
		}
	}
	return &p, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
