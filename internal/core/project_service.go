package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	ProjectPlanning  = "Planning"
	ProjectActive    = "Active"
	ProjectOnHold    = "OnHold"
	ProjectCompleted = "Completed"
	ProjectCancelled = "Cancelled"
)

var maxTimesheetHours = decimal.NewFromInt(24)

type Project struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	Code        string          `db:"code" json:"code"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Status      string          `db:"status" json:"status"`
	StartDate   *time.Time      `db:"start_date" json:"start_date"`
	EndDate     *time.Time      `db:"end_date" json:"end_date"`
	Budget      decimal.Decimal `db:"budget" json:"budget"`
	ManagerID   *uuid.UUID      `db:"manager_id" json:"manager_id"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

type ProjectInput struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	StartDate   string          `json:"start_date"`
	EndDate     string          `json:"end_date"`
	Budget      decimal.Decimal `json:"budget"`
	ManagerID   *uuid.UUID      `json:"manager_id"`
}

type ProjectTask struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	ProjectID   uuid.UUID  `db:"project_id" json:"project_id"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	Status      string     `db:"status" json:"status"`
	AssignedTo  *uuid.UUID `db:"assigned_to" json:"assigned_to"`
	DueDate     *time.Time `db:"due_date" json:"due_date"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

type ProjectTaskInput struct {
	ProjectID   uuid.UUID  `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AssignedTo  *uuid.UUID `json:"assigned_to"`
	DueDate     string     `json:"due_date"`
}

type Milestone struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	ProjectID   uuid.UUID  `db:"project_id" json:"project_id"`
	Name        string     `db:"name" json:"name"`
	DueDate     time.Time  `db:"due_date" json:"due_date"`
	Status      string     `db:"status" json:"status"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

type MilestoneInput struct {
	ProjectID uuid.UUID `json:"project_id"`
	Name      string    `json:"name"`
	DueDate   string    `json:"due_date"`
}

type Timesheet struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	ProjectID   uuid.UUID       `db:"project_id" json:"project_id"`
	EmployeeID  uuid.UUID       `db:"employee_id" json:"employee_id"`
	TaskID      *uuid.UUID      `db:"task_id" json:"task_id"`
	WorkDate    time.Time       `db:"work_date" json:"work_date"`
	Hours       decimal.Decimal `db:"hours" json:"hours"`
	Description string          `db:"description" json:"description"`
	Status      string          `db:"status" json:"status"`
	ApprovedBy  *uuid.UUID      `db:"approved_by" json:"approved_by"`
	ApprovedAt  *time.Time      `db:"approved_at" json:"approved_at"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

type TimesheetInput struct {
	ProjectID   uuid.UUID       `json:"project_id"`
	EmployeeID  uuid.UUID       `json:"employee_id"`
	TaskID      *uuid.UUID      `json:"task_id"`
	WorkDate    string          `json:"work_date"`
	Hours       decimal.Decimal `json:"hours"`
	Description string          `json:"description"`
}

type ProjectService interface {
	ListProjects(ctx context.Context, p ListParams) (Page[Project], error)
	CreateProject(ctx context.Context, in ProjectInput) (Project, error)
	GetProject(ctx context.Context, id uuid.UUID) (Project, error)
	// SetProjectStatus moves a project to any status; Completed and Cancelled are final.
	SetProjectStatus(ctx context.Context, id uuid.UUID, status string) (Project, error)

	ListTasks(ctx context.Context, p ListParams) (Page[ProjectTask], error)
	CreateTask(ctx context.Context, in ProjectTaskInput) (ProjectTask, error)
	CompleteTask(ctx context.Context, id uuid.UUID) (ProjectTask, error)

	ListMilestones(ctx context.Context, p ListParams) (Page[Milestone], error)
	CreateMilestone(ctx context.Context, in MilestoneInput) (Milestone, error)
	CompleteMilestone(ctx context.Context, id uuid.UUID) (Milestone, error)

	ListTimesheets(ctx context.Context, p ListParams) (Page[Timesheet], error)
	CreateTimesheet(ctx context.Context, in TimesheetInput) (Timesheet, error)
	ApproveTimesheet(ctx context.Context, id uuid.UUID) (Timesheet, error)
}

type projectService struct {
	projects   *Resource[Project]
	tasks      *Resource[ProjectTask]
	milestones *Resource[Milestone]
	timesheets *Resource[Timesheet]
	audit      AuditService
	log        zerolog.Logger
}

func NewProjectService(pool *pgxpool.Pool, audit AuditService, log zerolog.Logger) ProjectService {
	return &projectService{
		projects: NewResource[Project](pool, ResourceSpec{
			Table: "projects", Entity: "project",
			Filters: map[string]string{"status": "status", "manager_id": "manager_id"},
			Search:  []string{"code", "name"},
			OrderBy: "code",
			Touch:   true,
		}),
		tasks: NewResource[ProjectTask](pool, ResourceSpec{
			Table: "project_tasks", Entity: "task",
			Filters: map[string]string{"project_id": "project_id", "status": "status", "assigned_to": "assigned_to"},
			Search:  []string{"title"},
		}),
		milestones: NewResource[Milestone](pool, ResourceSpec{
			Table: "project_milestones", Entity: "milestone",
			Filters: map[string]string{"project_id": "project_id", "status": "status"},
			OrderBy: "due_date",
		}),
		timesheets: NewResource[Timesheet](pool, ResourceSpec{
			Table: "timesheets", Entity: "timesheet",
			Filters: map[string]string{"project_id": "project_id", "employee_id": "employee_id", "status": "status"},
			OrderBy: "work_date DESC",
		}),
		audit: audit,
		log:   log,
	}
}

func (s *projectService) ListProjects(ctx context.Context, p ListParams) (Page[Project], error) {
	return s.projects.List(ctx, p)
}

func (s *projectService) GetProject(ctx context.Context, id uuid.UUID) (Project, error) {
	return s.projects.Get(ctx, id)
}

func (s *projectService) CreateProject(ctx context.Context, in ProjectInput) (Project, error) {
	if err := requireFields("code", in.Code, "name", in.Name); err != nil {
		return Project{}, err
	}
	if in.Budget.IsNegative() {
		return Project{}, validationf("budget cannot be negative")
	}
	start, err := optionalDate(in.StartDate)
	if err != nil {
		return Project{}, err
	}
	end, err := optionalDate(in.EndDate)
	if err != nil {
		return Project{}, err
	}
	if start != nil && end != nil && end.Before(*start) {
		return Project{}, validationf("end_date cannot be before start_date")
	}
	pr, err := s.projects.Insert(ctx, map[string]any{
		"code":        strings.TrimSpace(in.Code),
		"name":        strings.TrimSpace(in.Name),
		"description": in.Description,
		"start_date":  start,
		"end_date":    end,
		"budget":      in.Budget,
		"manager_id":  in.ManagerID,
	})
	if errors.Is(err, ErrConflict) {
		return Project{}, conflictf("project code %s already exists", strings.TrimSpace(in.Code))
	}
	if err != nil {
		return Project{}, err
	}
	s.audit.Record(ctx, "project", pr.ID, "create", pr)
	return pr, nil
}

func (s *projectService) SetProjectStatus(ctx context.Context, id uuid.UUID, status string) (Project, error) {
	err := oneOf("status", status, ProjectPlanning, ProjectActive, ProjectOnHold, ProjectCompleted, ProjectCancelled)
	if err != nil {
		return Project{}, err
	}
	pr, err := s.projects.Transition(ctx, id, []string{ProjectPlanning, ProjectActive, ProjectOnHold}, status, nil)
	if err != nil {
		return Project{}, err
	}
	s.audit.Record(ctx, "project", id, "status", map[string]any{"status": status})
	return pr, nil
}

func (s *projectService) ListTasks(ctx context.Context, p ListParams) (Page[ProjectTask], error) {
	return s.tasks.List(ctx, p)
}

func (s *projectService) CreateTask(ctx context.Context, in ProjectTaskInput) (ProjectTask, error) {
	if in.ProjectID == uuid.Nil {
		return ProjectTask{}, validationf("project_id is required")
	}
	if err := requireFields("title", in.Title); err != nil {
		return ProjectTask{}, err
	}
	due, err := optionalDate(in.DueDate)
	if err != nil {
		return ProjectTask{}, err
	}
	t, err := s.tasks.Insert(ctx, map[string]any{
		"project_id":  in.ProjectID,
		"title":       strings.TrimSpace(in.Title),
		"description": in.Description,
		"assigned_to": in.AssignedTo,
		"due_date":    due,
	})
	if err != nil {
		return ProjectTask{}, err
	}
	s.audit.Record(ctx, "project_task", t.ID, "create", t)
	return t, nil
}

func (s *projectService) CompleteTask(ctx context.Context, id uuid.UUID) (ProjectTask, error) {
	t, err := s.tasks.Transition(ctx, id, []string{"Open", "InProgress"}, "Done", map[string]any{"completed_at": nowUTC()})
	if err != nil {
		return ProjectTask{}, err
	}
	s.audit.Record(ctx, "project_task", id, "complete", nil)
	return t, nil
}

func (s *projectService) ListMilestones(ctx context.Context, p ListParams) (Page[Milestone], error) {
	return s.milestones.List(ctx, p)
}

func (s *projectService) CreateMilestone(ctx context.Context, in MilestoneInput) (Milestone, error) {
	if in.ProjectID == uuid.Nil {
		return Milestone{}, validationf("project_id is required")
	}
	if err := requireFields("name", in.Name, "due_date", in.DueDate); err != nil {
		return Milestone{}, err
	}
	due, err := ParseDate(in.DueDate)
	if err != nil {
		return Milestone{}, err
	}
	m, err := s.milestones.Insert(ctx, map[string]any{
		"project_id": in.ProjectID,
		"name":       strings.TrimSpace(in.Name),
		"due_date":   due,
	})
	if err != nil {
		return Milestone{}, err
	}
	s.audit.Record(ctx, "milestone", m.ID, "create", m)
	return m, nil
}

func (s *projectService) CompleteMilestone(ctx context.Context, id uuid.UUID) (Milestone, error) {
	m, err := s.milestones.Transition(ctx, id, []string{"Pending"}, "Completed", map[string]any{"completed_at": nowUTC()})
	if err != nil {
		return Milestone{}, err
	}
	s.audit.Record(ctx, "milestone", id, "complete", nil)
	return m, nil
}

func (s *projectService) ListTimesheets(ctx context.Context, p ListParams) (Page[Timesheet], error) {
	return s.timesheets.List(ctx, p)
}

func (s *projectService) CreateTimesheet(ctx context.Context, in TimesheetInput) (Timesheet, error) {
	if in.ProjectID == uuid.Nil || in.EmployeeID == uuid.Nil {
		return Timesheet{}, validationf("project_id and employee_id are required")
	}
	if err := checkTimesheetHours(in.Hours); err != nil {
		return Timesheet{}, err
	}
	date, err := dateOrToday(in.WorkDate)
	if err != nil {
		return Timesheet{}, err
	}
	ts, err := s.timesheets.Insert(ctx, map[string]any{
		"project_id":  in.ProjectID,
		"employee_id": in.EmployeeID,
		"task_id":     in.TaskID,
		"work_date":   date,
		"hours":       in.Hours,
		"description": in.Description,
	})
	if err != nil {
		return Timesheet{}, err
	}
	s.audit.Record(ctx, "timesheet", ts.ID, "create", ts)
	return ts, nil
}

// checkTimesheetHours accepts hours in (0, 24].
func checkTimesheetHours(h decimal.Decimal) error {
	if !h.IsPositive() || h.GreaterThan(maxTimesheetHours) {
		return validationf("hours must be greater than 0 and at most 24")
	}
	return nil
}

func (s *projectService) ApproveTimesheet(ctx context.Context, id uuid.UUID) (Timesheet, error) {
	ts, err := s.timesheets.Transition(ctx, id, []string{"Submitted"}, "Approved", map[string]any{
		"approved_by": actorID(ctx),
		"approved_at": nowUTC(),
	})
	if err != nil {
		return Timesheet{}, err
	}
	s.audit.Record(ctx, "timesheet", id, "approve", nil)
	return ts, nil
}
