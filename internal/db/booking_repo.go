package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"puppyday/internal/types"
)

// BookingRepository provides read-only access to the booking system's tables
// (appointments, customers, pets, breeds, waitlist_entries). The notification
// service never writes to these tables.
type BookingRepository struct {
	db DBTX
}

// NewBookingRepository creates a new BookingRepository backed by the given
// database connection.
func NewBookingRepository(db DBTX) *BookingRepository {
	return &BookingRepository{db: db}
}

// ListUpcomingAppointments retrieves active appointments scheduled within
// [from, to), ordered by scheduled time. Cancelled, completed, and no-show
// appointments never qualify for a reminder.
func (r *BookingRepository) ListUpcomingAppointments(ctx context.Context, from, to time.Time) ([]*types.Appointment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, customer_id, pet_id, service_name, scheduled_at, status
		 FROM appointments
		 WHERE status IN ('pending', 'confirmed')
		   AND scheduled_at >= $1
		   AND scheduled_at < $2
		 ORDER BY scheduled_at`,
		from,
		to,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list upcoming appointments", err)
	}
	defer rows.Close()

	var results []*types.Appointment
	for rows.Next() {
		var (
			a      types.Appointment
			status string
		)
		if err := rows.Scan(&a.ID, &a.CustomerID, &a.PetID, &a.ServiceName, &a.ScheduledAt, &status); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan appointment row", err)
		}
		a.Status = types.AppointmentStatus(status)
		results = append(results, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating appointment rows", err)
	}

	return results, nil
}

// GetAppointment retrieves a single appointment by ID.
func (r *BookingRepository) GetAppointment(ctx context.Context, appointmentID string) (*types.Appointment, error) {
	var (
		a      types.Appointment
		status string
	)

	row := r.db.QueryRow(ctx,
		`SELECT id, customer_id, pet_id, service_name, scheduled_at, status
		 FROM appointments
		 WHERE id = $1`,
		appointmentID,
	)
	err := row.Scan(&a.ID, &a.CustomerID, &a.PetID, &a.ServiceName, &a.ScheduledAt, &status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, types.NewAppError(types.ErrCodeNotFoundAppt, "appointment not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get appointment", err)
	}

	a.Status = types.AppointmentStatus(status)
	return &a, nil
}

// GetCustomer retrieves a customer's contact fields and opt-out flags.
func (r *BookingRepository) GetCustomer(ctx context.Context, customerID string) (*types.Customer, error) {
	var (
		c     types.Customer
		email *string
		phone *string
	)

	row := r.db.QueryRow(ctx,
		`SELECT id, first_name, last_name, email, phone,
		        email_opt_out, sms_opt_out, marketing_opt_out
		 FROM customers
		 WHERE id = $1`,
		customerID,
	)
	err := row.Scan(
		&c.ID,
		&c.FirstName,
		&c.LastName,
		&email,
		&phone,
		&c.EmailOptOut,
		&c.SMSOptOut,
		&c.MarketingOptOut,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, types.NewAppError(types.ErrCodeNotFoundCustomer, "customer not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get customer", err)
	}

	c.Email = derefString(email)
	c.Phone = derefString(phone)
	return &c, nil
}

// GetPet retrieves a pet record.
func (r *BookingRepository) GetPet(ctx context.Context, petID string) (*types.Pet, error) {
	var (
		p       types.Pet
		breedID *string
	)

	row := r.db.QueryRow(ctx,
		`SELECT id, customer_id, name, breed_id
		 FROM pets
		 WHERE id = $1`,
		petID,
	)
	if err := row.Scan(&p.ID, &p.CustomerID, &p.Name, &breedID); err != nil {
		if err == pgx.ErrNoRows {
			return nil, types.NewAppError(types.ErrCodeNotFoundCustomer, "pet not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get pet", err)
	}

	p.BreedID = derefString(breedID)
	return &p, nil
}

// ListRetentionCandidates joins pets against their breed's recommended
// grooming cadence and the most recent completed appointment. The owner is
// fetched via LEFT JOIN and may be nil when the customer record is missing;
// the eligibility scan classifies that as a skip rather than failing the job.
//
// Pets whose breed has no cadence configured use the default passed in.
func (r *BookingRepository) ListRetentionCandidates(ctx context.Context, defaultFrequencyWeeks int) ([]*types.RetentionCandidateRow, error) {
	rows, err := r.db.Query(ctx,
		`SELECT p.id, p.customer_id, p.name, p.breed_id,
		        c.id, c.first_name, c.last_name, c.email, c.phone,
		        c.email_opt_out, c.sms_opt_out, c.marketing_opt_out,
		        COALESCE(b.grooming_frequency_weeks, $1),
		        last_appt.completed_at
		 FROM pets p
		 LEFT JOIN customers c ON c.id = p.customer_id
		 LEFT JOIN breeds b ON b.id = p.breed_id
		 LEFT JOIN LATERAL (
		     SELECT MAX(a.scheduled_at) AS completed_at
		     FROM appointments a
		     WHERE a.pet_id = p.id AND a.status = 'completed'
		 ) last_appt ON TRUE
		 ORDER BY p.id`,
		defaultFrequencyWeeks,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list retention candidates", err)
	}
	defer rows.Close()

	var results []*types.RetentionCandidateRow
	for rows.Next() {
		var (
			row     types.RetentionCandidateRow
			breedID *string

			custID        *string
			firstName     *string
			lastName      *string
			email         *string
			phone         *string
			emailOptOut   *bool
			smsOptOut     *bool
			mktOptOut     *bool
			lastCompleted *time.Time
		)

		err := rows.Scan(
			&row.Pet.ID,
			&row.Pet.CustomerID,
			&row.Pet.Name,
			&breedID,
			&custID,
			&firstName,
			&lastName,
			&email,
			&phone,
			&emailOptOut,
			&smsOptOut,
			&mktOptOut,
			&row.GroomingFrequencyWeeks,
			&lastCompleted,
		)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan retention candidate row", err)
		}

		row.Pet.BreedID = derefString(breedID)
		row.LastCompletedAt = derefTime(lastCompleted)

		if custID != nil {
			row.Owner = &types.Customer{
				ID:              *custID,
				FirstName:       derefString(firstName),
				LastName:        derefString(lastName),
				Email:           derefString(email),
				Phone:           derefString(phone),
				EmailOptOut:     emailOptOut != nil && *emailOptOut,
				SMSOptOut:       smsOptOut != nil && *smsOptOut,
				MarketingOptOut: mktOptOut != nil && *mktOptOut,
			}
		}

		results = append(results, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating retention candidate rows", err)
	}

	return results, nil
}

// NextWaitlistEntry returns the highest-priority waitlist entry for a service,
// or nil when the waitlist is empty. Priority ascending, then FIFO.
func (r *BookingRepository) NextWaitlistEntry(ctx context.Context, serviceName string) (*types.WaitlistEntry, error) {
	var (
		e           types.WaitlistEntry
		petID       *string
		preferredAt *time.Time
	)

	row := r.db.QueryRow(ctx,
		`SELECT id, customer_id, pet_id, service_name, preferred_at, priority, created_at
		 FROM waitlist_entries
		 WHERE service_name = $1
		 ORDER BY priority, created_at
		 LIMIT 1`,
		serviceName,
	)
	err := row.Scan(&e.ID, &e.CustomerID, &petID, &e.ServiceName, &preferredAt, &e.Priority, &e.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get next waitlist entry", err)
	}

	e.PetID = derefString(petID)
	e.PreferredAt = derefTime(preferredAt)
	return &e, nil
}
