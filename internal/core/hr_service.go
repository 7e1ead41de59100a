package core

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type HRService interface {
	ListEmployees(ctx context.Context, p ListParams) (Page[Employee], error)
	CreateEmployee(ctx context.Context, in EmployeeInput) (Employee, error)
	GetEmployee(ctx context.Context, id uuid.UUID) (Employee, error)

	ListAttendance(ctx context.Context, p ListParams) (Page[Attendance], error)
	CheckIn(ctx context.Context, employeeID uuid.UUID) (Attendance, error)
	CheckOut(ctx context.Context, employeeID uuid.UUID) (Attendance, error)

	ListLeave(ctx context.Context, p ListParams) (Page[LeaveRequest], error)
	CreateLeave(ctx context.Context, in LeaveRequestInput) (LeaveRequest, error)
	GetLeave(ctx context.Context, id uuid.UUID) (LeaveRequest, error)
	ApproveLeave(ctx context.Context, id uuid.UUID) (LeaveRequest, error)
	RejectLeave(ctx context.Context, id uuid.UUID) (LeaveRequest, error)

	ListPayroll(ctx context.Context, p ListParams) (Page[PayrollRun], error)
	CreatePayroll(ctx context.Context, in PayrollInput) (PayrollRun, error)
	GetPayroll(ctx context.Context, id uuid.UUID) (PayrollRun, error)
}

type hrService struct {
	pool       *pgxpool.Pool
	employees  *Resource[Employee]
	attendance *Resource[Attendance]
	leave      *Resource[LeaveRequest]
	payroll    *Resource[PayrollRun]
	audit      AuditService
	log        zerolog.Logger
}

func NewHRService(pool *pgxpool.Pool, audit AuditService, log zerolog.Logger) HRService {
	return &hrService{
		pool: pool,
		employees: NewResource[Employee](pool, ResourceSpec{
			Table: "employees", Entity: "employee",
			Filters: map[string]string{"status": "status", "department": "department"},
			Search:  []string{"employee_number", "first_name", "last_name", "email"},
			OrderBy: "employee_number",
			Touch:   true,
		}),
		attendance: NewResource[Attendance](pool, ResourceSpec{
			Table: "attendance", Entity: "attendance record",
			Filters: map[string]string{"employee_id": "employee_id"},
			OrderBy: "check_in DESC",
		}),
		leave: NewResource[LeaveRequest](pool, ResourceSpec{
			Table: "leave_requests", Entity: "leave request",
			Filters: map[string]string{"employee_id": "employee_id", "status": "status"},
		}),
		payroll: NewResource[PayrollRun](pool, ResourceSpec{
			Table: "payroll_runs", Entity: "payroll run",
			OrderBy: "period_start DESC",
		}),
		audit: audit,
		log:   log,
	}
}

// ── Employees ─────────────────────────────────────────────────────────────────

func (s *hrService) ListEmployees(ctx context.Context, p ListParams) (Page[Employee], error) {
	return s.employees.List(ctx, p)
}

func (s *hrService) GetEmployee(ctx context.Context, id uuid.UUID) (Employee, error) {
	return s.employees.Get(ctx, id)
}

func (s *hrService) CreateEmployee(ctx context.Context, in EmployeeInput) (Employee, error) {
	err := requireFields("employee_number", in.EmployeeNumber, "first_name", in.FirstName,
		"last_name", in.LastName, "email", in.Email)
	if err != nil {
		return Employee{}, err
	}
	email := strings.TrimSpace(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return Employee{}, validationf("invalid email %q", email)
	}
	if in.Salary.IsNegative() {
		return Employee{}, validationf("salary cannot be negative")
	}
	hired, err := optionalDate(in.HireDate)
	if err != nil {
		return Employee{}, err
	}
	e, err := s.employees.Insert(ctx, map[string]any{
		"employee_number": strings.TrimSpace(in.EmployeeNumber),
		"first_name":      strings.TrimSpace(in.FirstName),
		"last_name":       strings.TrimSpace(in.LastName),
		"email":           email,
		"department":      in.Department,
		"position":        in.Position,
		"hire_date":       hired,
		"salary":          in.Salary,
	})
	if errors.Is(err, ErrConflict) {
		return Employee{}, conflictf("an employee with this number or email already exists")
	}
	if err != nil {
		return Employee{}, err
	}
	s.audit.Record(ctx, "employee", e.ID, "create", e)
	return e, nil
}

// ── Attendance ────────────────────────────────────────────────────────────────

func (s *hrService) ListAttendance(ctx context.Context, p ListParams) (Page[Attendance], error) {
	return s.attendance.List(ctx, p)
}

func (s *hrService) CheckIn(ctx context.Context, employeeID uuid.UUID) (Attendance, error) {
	e, err := s.employees.Get(ctx, employeeID)
	if err != nil {
		return Attendance{}, err
	}
	if e.Status != StatusActive {
		return Attendance{}, businessf("employee %s is not active", e.EmployeeNumber)
	}
	a, err := s.attendance.Insert(ctx, map[string]any{
		"employee_id": employeeID,
		"work_date":   todayUTC(),
		"check_in":    nowUTC(),
	})
	if errors.Is(err, ErrConflict) {
		return Attendance{}, conflictf("employee %s is already checked in", e.EmployeeNumber)
	}
	if err != nil {
		return Attendance{}, err
	}
	s.audit.Record(ctx, "attendance", a.ID, "check_in", nil)
	return a, nil
}

func (s *hrService) CheckOut(ctx context.Context, employeeID uuid.UUID) (Attendance, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Attendance{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var openID uuid.UUID
	var checkIn time.Time
	err = tx.QueryRow(ctx, `
		SELECT id, check_in FROM attendance
		WHERE employee_id = $1 AND check_out IS NULL
		FOR UPDATE`, employeeID).Scan(&openID, &checkIn)
	if errors.Is(err, pgx.ErrNoRows) {
		return Attendance{}, businessf("employee has no open attendance record")
	}
	if err != nil {
		return Attendance{}, fmt.Errorf("failed to find open attendance: %w", err)
	}
	now := nowUTC()
	a, err := s.attendance.With(tx).Update(ctx, openID, map[string]any{
		"check_out":    now,
		"hours_worked": HoursWorked(checkIn, now),
	})
	if err != nil {
		return Attendance{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Attendance{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.audit.Record(ctx, "attendance", a.ID, "check_out", map[string]any{"hours_worked": a.HoursWorked})
	return a, nil
}

// ── Leave ─────────────────────────────────────────────────────────────────────

func (s *hrService) ListLeave(ctx context.Context, p ListParams) (Page[LeaveRequest], error) {
	return s.leave.List(ctx, p)
}

func (s *hrService) GetLeave(ctx context.Context, id uuid.UUID) (LeaveRequest, error) {
	return s.leave.Get(ctx, id)
}

func (s *hrService) CreateLeave(ctx context.Context, in LeaveRequestInput) (LeaveRequest, error) {
	if in.EmployeeID == uuid.Nil {
		return LeaveRequest{}, validationf("employee_id is required")
	}
	if err := requireFields("leave_type", in.LeaveType, "start_date", in.StartDate, "end_date", in.EndDate); err != nil {
		return LeaveRequest{}, err
	}
	if err := oneOf("leave_type", in.LeaveType, leaveTypes...); err != nil {
		return LeaveRequest{}, err
	}
	start, err := ParseDate(in.StartDate)
	if err != nil {
		return LeaveRequest{}, err
	}
	end, err := ParseDate(in.EndDate)
	if err != nil {
		return LeaveRequest{}, err
	}
	if end.Before(start) {
		return LeaveRequest{}, validationf("end_date cannot be before start_date")
	}
	if _, err := s.employees.Get(ctx, in.EmployeeID); err != nil {
		return LeaveRequest{}, err
	}
	l, err := s.leave.Insert(ctx, map[string]any{
		"employee_id": in.EmployeeID,
		"leave_type":  in.LeaveType,
		"start_date":  start,
		"end_date":    end,
		"days":        LeaveDays(start, end),
		"reason":      in.Reason,
	})
	if err != nil {
		return LeaveRequest{}, err
	}
	s.audit.Record(ctx, "leave_request", l.ID, "create", l)
	return l, nil
}

func (s *hrService) decideLeave(ctx context.Context, id uuid.UUID, next string) (LeaveRequest, error) {
	l, err := s.leave.Transition(ctx, id, []string{LeavePending}, next, map[string]any{
		"decided_by": actorID(ctx),
		"decided_at": nowUTC(),
	})
	if err != nil {
		return LeaveRequest{}, err
	}
	s.audit.Record(ctx, "leave_request", id, strings.ToLower(next), map[string]any{"status": next})
	return l, nil
}

func (s *hrService) ApproveLeave(ctx context.Context, id uuid.UUID) (LeaveRequest, error) {
	return s.decideLeave(ctx, id, LeaveApproved)
}

func (s *hrService) RejectLeave(ctx context.Context, id uuid.UUID) (LeaveRequest, error) {
	return s.decideLeave(ctx, id, LeaveRejected)
}

// ── Payroll ───────────────────────────────────────────────────────────────────

func (s *hrService) ListPayroll(ctx context.Context, p ListParams) (Page[PayrollRun], error) {
	return s.payroll.List(ctx, p)
}

func (s *hrService) GetPayroll(ctx context.Context, id uuid.UUID) (PayrollRun, error) {
	return s.payroll.Get(ctx, id)
}

func (s *hrService) CreatePayroll(ctx context.Context, in PayrollInput) (PayrollRun, error) {
	if err := requireFields("period_start", in.PeriodStart, "period_end", in.PeriodEnd); err != nil {
		return PayrollRun{}, err
	}
	start, err := ParseDate(in.PeriodStart)
	if err != nil {
		return PayrollRun{}, err
	}
	end, err := ParseDate(in.PeriodEnd)
	if err != nil {
		return PayrollRun{}, err
	}
	if end.Before(start) {
		return PayrollRun{}, validationf("period_end cannot be before period_start")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return PayrollRun{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var run PayrollRun
	err = tx.QueryRow(ctx, `
		SELECT count(*), COALESCE(SUM(salary), 0) FROM employees WHERE status = 'Active'`,
	).Scan(&run.EmployeeCount, &run.GrossTotal)
	if err != nil {
		return PayrollRun{}, fmt.Errorf("failed to total salaries: %w", err)
	}
	number, err := NextDocumentNumber(ctx, tx, DocPayroll, end)
	if err != nil {
		return PayrollRun{}, err
	}
	run, err = s.payroll.With(tx).Insert(ctx, map[string]any{
		"run_number":     number,
		"period_start":   start,
		"period_end":     end,
		"employee_count": run.EmployeeCount,
		"gross_total":    run.GrossTotal,
	})
	if err != nil {
		return PayrollRun{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return PayrollRun{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info().Str("run_number", run.RunNumber).Int("employees", run.EmployeeCount).
		Str("gross", run.GrossTotal.StringFixed(2)).Msg("payroll run created")
	s.audit.Record(ctx, "payroll_run", run.ID, "create", run)
	return run, nil
}
