package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	LeavePending  = "Pending"
	LeaveApproved = "Approved"
	LeaveRejected = "Rejected"
)

var leaveTypes = []string{"Annual", "Sick", "Personal", "Unpaid", "Maternity", "Paternity"}

type Employee struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	EmployeeNumber string          `db:"employee_number" json:"employee_number"`
	FirstName      string          `db:"first_name" json:"first_name"`
	LastName       string          `db:"last_name" json:"last_name"`
	Email          string          `db:"email" json:"email"`
	Department     string          `db:"department" json:"department"`
	Position       string          `db:"position" json:"position"`
	HireDate       *time.Time      `db:"hire_date" json:"hire_date"`
	Salary         decimal.Decimal `db:"salary" json:"salary"`
	Status         string          `db:"status" json:"status"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// EmployeeInput creates an employee. Salary is monthly.
type EmployeeInput struct {
	EmployeeNumber string          `json:"employee_number"`
	FirstName      string          `json:"first_name"`
	LastName       string          `json:"last_name"`
	Email          string          `json:"email"`
	Department     string          `json:"department"`
	Position       string          `json:"position"`
	HireDate       string          `json:"hire_date"`
	Salary         decimal.Decimal `json:"salary"`
}

type Attendance struct {
	ID          uuid.UUID        `db:"id" json:"id"`
	EmployeeID  uuid.UUID        `db:"employee_id" json:"employee_id"`
	WorkDate    time.Time        `db:"work_date" json:"work_date"`
	CheckIn     time.Time        `db:"check_in" json:"check_in"`
	CheckOut    *time.Time       `db:"check_out" json:"check_out"`
	HoursWorked *decimal.Decimal `db:"hours_worked" json:"hours_worked"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}

type LeaveRequest struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	EmployeeID uuid.UUID  `db:"employee_id" json:"employee_id"`
	LeaveType  string     `db:"leave_type" json:"leave_type"`
	StartDate  time.Time  `db:"start_date" json:"start_date"`
	EndDate    time.Time  `db:"end_date" json:"end_date"`
	Days       int        `db:"days" json:"days"`
	Reason     string     `db:"reason" json:"reason"`
	Status     string     `db:"status" json:"status"`
	DecidedBy  *uuid.UUID `db:"decided_by" json:"decided_by"`
	DecidedAt  *time.Time `db:"decided_at" json:"decided_at"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

type LeaveRequestInput struct {
	EmployeeID uuid.UUID `json:"employee_id"`
	LeaveType  string    `json:"leave_type"`
	StartDate  string    `json:"start_date"`
	EndDate    string    `json:"end_date"`
	Reason     string    `json:"reason"`
}

type PayrollRun struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	RunNumber     string          `db:"run_number" json:"run_number"`
	PeriodStart   time.Time       `db:"period_start" json:"period_start"`
	PeriodEnd     time.Time       `db:"period_end" json:"period_end"`
	EmployeeCount int             `db:"employee_count" json:"employee_count"`
	GrossTotal    decimal.Decimal `db:"gross_total" json:"gross_total"`
	Status        string          `db:"status" json:"status"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

type PayrollInput struct {
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

// LeaveDays counts calendar days from start to end inclusive.
func LeaveDays(start, end time.Time) int {
	return int(end.Sub(start).Hours()/24) + 1
}

// HoursWorked is the elapsed time between check-in and check-out in hours,
// rounded to two decimals.
func HoursWorked(in, out time.Time) decimal.Decimal {
	return round2(decimal.NewFromFloat(out.Sub(in).Hours()))
}
