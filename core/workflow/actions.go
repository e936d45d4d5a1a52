package workflow

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/flowboard/core"
)

// Models exposed to the host UI by the descriptors of this package.
const (
	WorkflowModel   = "workflow.workflow"
	StageModel      = "workflow.stage"
	AnalyticsModel  = "workflow.analytics"
	DashboardTag    = "workflow_dashboard"
	NotificationTag = "display_notification"
)

type ActionType string

const (
	WindowAction ActionType = "ir.actions.act_window"
	ClientAction ActionType = "ir.actions.client"
)

type NotificationLevel string

const (
	NotifyInfo    NotificationLevel = "info"
	NotifySuccess NotificationLevel = "success"
	NotifyWarning NotificationLevel = "warning"
	NotifyDanger  NotificationLevel = "danger"
)

type Notification struct {
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Type    NotificationLevel `json:"type"`
	Sticky  bool              `json:"sticky"`
}

// DomainTerm is a record filter, serialized as a [field, operator, value] triple.
type DomainTerm struct {
	Field    string
	Operator string
	Value    interface{}
}

func (d DomainTerm) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{d.Field, d.Operator, d.Value})
}

func (d *DomainTerm) UnmarshalJSON(b []byte) error {
	var raw []interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	term, err := domainTermFromSlice(raw)
	if err != nil {
		return err
	}
	*d = term
	return nil
}

func domainTermFromSlice(raw []interface{}) (DomainTerm, error) {
	if len(raw) != 3 {
		return DomainTerm{}, fmt.Errorf("domain term must have 3 elements, got %d", len(raw))
	}
	field, ok1 := raw[0].(string)
	op, ok2 := raw[1].(string)
	if !ok1 || !ok2 {
		return DomainTerm{}, errors.New("domain term field and operator must be strings")
	}
	return DomainTerm{Field: field, Operator: op, Value: raw[2]}, nil
}

// ActionDescriptor tells the host UI what to do. It is either a window (open a view of a model)
// or a client action (a notification, or a dashboard tag).
type ActionDescriptor struct {
	Type     ActionType             `json:"type"`
	Name     string                 `json:"name,omitempty"`
	Model    string                 `json:"res_model,omitempty"`
	ResID    string                 `json:"res_id,omitempty"`
	ViewMode string                 `json:"view_mode,omitempty"`
	Domain   []DomainTerm           `json:"domain,omitempty"`
	Target   string                 `json:"target,omitempty"`
	Context  map[string]interface{} `json:"context,omitempty"`
	Tag      string                 `json:"tag,omitempty"`
	Params   *Notification          `json:"params,omitempty"`
}

func (a ActionDescriptor) IsWindow() bool { return a.Type == WindowAction }

func (a ActionDescriptor) IsNotification() bool {
	return a.Type == ClientAction && a.Tag == NotificationTag && a.Params != nil
}

func (a ActionDescriptor) clone() ActionDescriptor {
	c := a
	if a.Domain != nil {
		c.Domain = append([]DomainTerm(nil), a.Domain...)
	}
	if a.Context != nil {
		c.Context = make(map[string]interface{}, len(a.Context))
		for k, v := range a.Context {
			c.Context[k] = v
		}
	}
	if a.Params != nil {
		p := *a.Params
		c.Params = &p
	}
	return c
}

// WindowDescriptor opens `model` in the current target.
func WindowDescriptor(name, model, viewMode string, domain ...DomainTerm) ActionDescriptor {
	return ActionDescriptor{
		Type:     WindowAction,
		Name:     name,
		Model:    model,
		ViewMode: viewMode,
		Domain:   domain,
		Target:   "current",
	}
}

// RecordDescriptor opens the form of a single record.
func RecordDescriptor(name, model, id string) ActionDescriptor {
	return ActionDescriptor{
		Type:     WindowAction,
		Name:     name,
		Model:    model,
		ResID:    id,
		ViewMode: "form",
		Target:   "current",
	}
}

func NotificationDescriptor(title, message string, level NotificationLevel) ActionDescriptor {
	return ActionDescriptor{
		Type:   ClientAction,
		Tag:    NotificationTag,
		Params: &Notification{Title: title, Message: message, Type: level},
	}
}

// Registry maps opaque action keys to descriptors. It is filled at startup and read afterwards.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]ActionDescriptor
}

func NewRegistry(actions map[string]ActionDescriptor) *Registry {
	r := &Registry{actions: make(map[string]ActionDescriptor, len(actions))}
	for k, a := range actions {
		r.actions[k] = a.clone()
	}
	return r
}

// DefaultRegistry holds the built-in actions of the education back-office.
func DefaultRegistry() *Registry {
	return NewRegistry(DefaultActions())
}

// Register adds or replaces an action.
func (r *Registry) Register(key string, a ActionDescriptor) error {
	key = core.CleanString(key)
	if key == "" {
		return errors.New("action key is required")
	}
	if a.Type != WindowAction && a.Type != ClientAction {
		return fmt.Errorf("action %q: unsupported type %q", key, a.Type)
	}
	if a.Type == WindowAction && a.Model == "" {
		return fmt.Errorf("action %q: window actions need a model", key)
	}
	r.mu.Lock()
	r.actions[key] = a.clone()
	r.mu.Unlock()
	return nil
}

// LoadConfig registers the administrator-defined window actions.
func (r *Registry) LoadConfig(entries []core.ActionConfig) error {
	for _, e := range entries {
		domain := make([]DomainTerm, 0, len(e.Domain))
		for _, raw := range e.Domain {
			term, err := domainTermFromSlice(raw)
			if err != nil {
				return errors.Wrapf(err, "action %q", e.Key)
			}
			domain = append(domain, term)
		}
		a := WindowDescriptor(e.Name, e.Model, stringOr(e.ViewMode, "list,form"), domain...)
		if e.Target != "" {
			a.Target = e.Target
		}
		if len(domain) == 0 {
			a.Domain = nil
		}
		if err := r.Register(e.Key, a); err != nil {
			return err
		}
	}
	return nil
}

// Resolve returns a copy of the action registered under key.
func (r *Registry) Resolve(key string) (ActionDescriptor, bool) {
	if key == "" {
		return ActionDescriptor{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[key]
	if !ok {
		return ActionDescriptor{}, false
	}
	return a.clone(), true
}

// Keys returns the registered keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.actions))
	for k := range r.actions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ModelOf returns the model opened by the window action registered under key.
func (r *Registry) ModelOf(key string) (string, bool) {
	a, ok := r.Resolve(key)
	if !ok || !a.IsWindow() || a.Model == "" {
		return "", false
	}
	return a.Model, true
}

// DefaultActions is the action table of the education back-office modules.
func DefaultActions() map[string]ActionDescriptor {
	list := func(name, model string, domain ...DomainTerm) ActionDescriptor {
		return WindowDescriptor(name, model, "list,form", domain...)
	}
	return map[string]ActionDescriptor{
		// admissions & students
		"action_open_admission_applications": list("Admission Applications", "op.admission"),
		"action_open_admission_registers":    list("Admission Registers", "op.admission.register"),
		"action_open_module":                 list("Student Management", "op.student"),
		"action_open_students":               list("Students", "op.student"),
		"action_open_faculty":                list("Faculty", "op.faculty"),
		"action_open_courses":                list("Courses", "op.course"),
		"action_open_batches":                list("Batches", "op.batch"),

		// academics
		"action_open_assignment_main":    list("Assignments", "op.assignment"),
		"action_open_exam_results":       list("Exam Results", "op.result.template"),
		"action_open_timetable_main":     list("Timetables", "op.session"),
		"action_open_timetable_sessions": list("Timetable Sessions", "op.session"),
		"action_open_timetable_schedule": list("Schedule Planning", "op.timing"),
		"action_open_attendance_main":    list("Attendance", "op.attendance.sheet"),

		// finance
		"action_open_fees_main":         list("Fee Terms", "op.fees.terms"),
		"action_open_fees_collection":   list("Student Fees", "op.student.fees.details"),
		"action_open_fees_payments":     list("Fee Payments", "op.student.fees.details", DomainTerm{"state", "=", "paid"}),
		"action_open_accounting_main":   list("Accounting", "account.move"),
		"action_open_financial_reports": list("Fees Analysis", "op.student.fees.details"),

		// facilities & activities
		"action_open_facility_main":        list("Facilities", "op.facility"),
		"action_open_facility_lines":       list("Facility Lines", "op.facility.line"),
		"action_open_facility_maintenance": list("Facility Maintenance", "op.facility.line"),
		"action_open_classroom_main":       list("Classrooms", "op.classroom"),
		"action_open_classroom_types":      list("Classroom Types", "op.classroom.type"),
		"action_open_room_booking":         list("Room Booking", "op.classroom.booking"),
		"action_open_activity_main":        list("Activities", "op.activity"),
		"action_open_activity_types":       list("Activity Types", "op.activity.type"),
		"action_open_activity_logs":        list("Activity Logs", "op.activity.log"),
		"action_open_library_main":         list("Library Media", "op.media"),

		// student support
		"action_open_parent_main":           list("Student Support Services", "res.partner", DomainTerm{"is_parent", "=", true}),
		"action_open_parent_meetings":       list("Student Guidance Sessions", "op.parent.meeting"),
		"action_open_parent_communications": list("Student Communications", "mail.message"),
	}
}

// DashboardAction opens the dashboard of wf.
func DashboardAction(wf Workflow) ActionDescriptor {
	return ActionDescriptor{
		Type:    ClientAction,
		Name:    wf.Name + " Dashboard",
		Tag:     DashboardTag,
		Target:  "current",
		Context: map[string]interface{}{"workflow_id": wf.ID},
	}
}

// StagesAction lists the stages of wf.
func StagesAction(wf Workflow) ActionDescriptor {
	a := WindowDescriptor(wf.Name+" - Stages", StageModel, "kanban,list,form", DomainTerm{"workflow_id", "=", wf.ID})
	a.Context = map[string]interface{}{"default_workflow_id": wf.ID}
	return a
}

// AnalyticsAction lists the analytics records of wf.
func AnalyticsAction(wf Workflow) ActionDescriptor {
	a := WindowDescriptor(wf.Name+" - Analytics", AnalyticsModel, "list,form", DomainTerm{"workflow_id", "=", wf.ID})
	a.Context = map[string]interface{}{"default_workflow_id": wf.ID}
	return a
}
