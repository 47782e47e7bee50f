package project

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"cortex/internal/logging"
)

// ErrActiveProjectExists is returned by CreateProject/PromoteIdea when a
// project is already in planning or in_progress, enforcing the
// single-active-project invariant.
var ErrActiveProjectExists = errors.New("project: an active project already exists")

// ErrNotFound is returned by lookups with no matching row.
var ErrNotFound = errors.New("project: not found")

// ActiveProject returns the current planning/in_progress project, if any.
func (s *Store) ActiveProject() (*Project, error) {
	row := s.conn.QueryRow(`SELECT id, name, description, spec, status, domain FROM projects
		WHERE status IN (?, ?) LIMIT 1`, string(ProjectPlanning), string(ProjectInProgress))
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// CreateProject inserts a new project, refusing if one is already active.
func (s *Store) CreateProject(name, description, spec, domain string) (*Project, error) {
	active, err := s.ActiveProject()
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, ErrActiveProjectExists
	}

	p := &Project{ID: uuid.NewString(), Name: name, Description: description, Spec: spec, Status: ProjectPlanning, Domain: domain}
	_, err = s.conn.Exec(`INSERT INTO projects (id, name, description, spec, status, domain, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.Spec, string(p.Status), p.Domain, nowStamp())
	if err != nil {
		return nil, fmt.Errorf("project: creating project: %w", err)
	}
	logging.Project("CreateProject: id=%s name=%q", p.ID, p.Name)
	return p, nil
}

// AddIdea inserts a backlog idea.
func (s *Store) AddIdea(title, description, domain string) (*Idea, error) {
	idea := &Idea{ID: uuid.NewString(), Title: title, Description: description, Domain: domain, Status: IdeaBacklog}
	_, err := s.conn.Exec(`INSERT INTO ideas (id, title, description, domain, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		idea.ID, idea.Title, idea.Description, idea.Domain, string(idea.Status), nowStamp())
	if err != nil {
		return nil, fmt.Errorf("project: adding idea: %w", err)
	}
	return idea, nil
}

// PromoteIdea marks an idea promoted and creates a project from it with an
// empty spec, refusing if a project is already active.
func (s *Store) PromoteIdea(ideaID string) (*Project, error) {
	idea, err := s.getIdea(ideaID)
	if err != nil {
		return nil, err
	}

	project, err := s.CreateProject(idea.Title, idea.Description, "", idea.Domain)
	if err != nil {
		return nil, err
	}

	if _, err := s.conn.Exec(`UPDATE ideas SET status = ? WHERE id = ?`, string(IdeaPromoted), ideaID); err != nil {
		return nil, fmt.Errorf("project: promoting idea: %w", err)
	}
	return project, nil
}

// ArchiveIdea marks an idea archived.
func (s *Store) ArchiveIdea(ideaID string) error {
	_, err := s.conn.Exec(`UPDATE ideas SET status = ? WHERE id = ?`, string(IdeaArchived), ideaID)
	return err
}

// ListBacklogIdeas returns every idea still in the backlog, ordered oldest
// first so its position matches the 1-based ordinal a user refers to it by
// ("promote idea 2").
func (s *Store) ListBacklogIdeas() ([]*Idea, error) {
	rows, err := s.conn.Query(`SELECT id, title, description, domain, status FROM ideas WHERE status = ? ORDER BY created_at ASC`, string(IdeaBacklog))
	if err != nil {
		return nil, fmt.Errorf("project: listing backlog ideas: %w", err)
	}
	defer rows.Close()

	var out []*Idea
	for rows.Next() {
		var idea Idea
		var status string
		if err := rows.Scan(&idea.ID, &idea.Title, &idea.Description, &idea.Domain, &status); err != nil {
			return nil, fmt.Errorf("project: scanning idea: %w", err)
		}
		idea.Status = IdeaStatus(status)
		out = append(out, &idea)
	}
	return out, rows.Err()
}

func (s *Store) getIdea(id string) (*Idea, error) {
	row := s.conn.QueryRow(`SELECT id, title, description, domain, status FROM ideas WHERE id = ?`, id)
	var idea Idea
	var status string
	err := row.Scan(&idea.ID, &idea.Title, &idea.Description, &idea.Domain, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	idea.Status = IdeaStatus(status)
	return &idea, nil
}

// AddFeatures inserts features for a project, assigning IDs if absent.
func (s *Store) AddFeatures(projectID string, features []*Feature) error {
	for _, f := range features {
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		f.ProjectID = projectID
		if f.Status == "" {
			f.Status = FeaturePending
		}
		_, err := s.conn.Exec(`INSERT INTO features (id, project_id, title, description, ord, status) VALUES (?, ?, ?, ?, ?, ?)`,
			f.ID, f.ProjectID, f.Title, f.Description, f.Order, string(f.Status))
		if err != nil {
			return fmt.Errorf("project: adding feature %q: %w", f.Title, err)
		}
	}
	return nil
}

// DecomposeIntoTasks inserts tasks and transitions the project to
// in_progress.
func (s *Store) DecomposeIntoTasks(projectID string, tasks []*Task) error {
	for _, t := range tasks {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.ProjectID = projectID
		if t.Status == "" {
			t.Status = TaskPending
		}
		if t.Agent == "" {
			t.Agent = "builder"
		}
		dependsJSON, err := json.Marshal(nonNilStrings(t.DependsOn))
		if err != nil {
			return fmt.Errorf("project: marshaling task dependencies: %w", err)
		}
		_, err = s.conn.Exec(`INSERT INTO tasks (id, feature_id, project_id, title, description, agent, depends_on, status, result, ord)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.FeatureID, t.ProjectID, t.Title, t.Description, t.Agent, string(dependsJSON), string(t.Status), t.Result, t.Order)
		if err != nil {
			return fmt.Errorf("project: adding task %q: %w", t.Title, err)
		}
	}
	_, err := s.conn.Exec(`UPDATE projects SET status = ? WHERE id = ?`, string(ProjectInProgress), projectID)
	if err != nil {
		return fmt.Errorf("project: transitioning project to in_progress: %w", err)
	}
	return nil
}

// GetNextTask returns the lowest-order pending task whose dependencies are
// all terminal, or nil if none is actionable.
func (s *Store) GetNextTask(projectID string) (*Task, error) {
	tasks, err := s.listTasks(projectID)
	if err != nil {
		return nil, err
	}
	statusByID := make(map[string]TaskStatus, len(tasks))
	for _, t := range tasks {
		statusByID[t.ID] = t.Status
	}
	for _, t := range tasks {
		if t.Status != TaskPending {
			continue
		}
		ready := true
		for _, dep := range t.DependsOn {
			if !isTerminalTask(statusByID[dep]) {
				ready = false
				break
			}
		}
		if ready {
			return t, nil
		}
	}
	return nil, nil
}

// SetTaskInProgress transitions a task to in_progress.
func (s *Store) SetTaskInProgress(taskID string) error {
	_, err := s.conn.Exec(`UPDATE tasks SET status = ? WHERE id = ?`, string(TaskInProgress), taskID)
	return err
}

// CompleteTask marks a task completed with its result, then cascades
// completion up to the owning feature and project when every sibling task
// has reached a terminal state.
func (s *Store) CompleteTask(taskID, result string) error {
	return s.finishTask(taskID, TaskCompleted, result)
}

// FailTask marks a task failed. Failure does not cascade — a failed task
// blocks any pending task that depends on it, surfaced by GetStatus.
func (s *Store) FailTask(taskID, errMsg string) error {
	_, err := s.conn.Exec(`UPDATE tasks SET status = ?, result = ? WHERE id = ?`, string(TaskFailed), errMsg, taskID)
	return err
}

func (s *Store) finishTask(taskID string, status TaskStatus, result string) error {
	task, err := s.getTask(taskID)
	if err != nil {
		return err
	}
	if _, err := s.conn.Exec(`UPDATE tasks SET status = ?, result = ? WHERE id = ?`, string(status), result, taskID); err != nil {
		return fmt.Errorf("project: finishing task: %w", err)
	}

	if task.FeatureID != "" {
		if err := s.maybeCompleteFeature(task.FeatureID); err != nil {
			return err
		}
	}
	return s.maybeCompleteProject(task.ProjectID)
}

func (s *Store) maybeCompleteFeature(featureID string) error {
	var pending int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM tasks WHERE feature_id = ? AND status NOT IN (?, ?, ?)`,
		featureID, string(TaskCompleted), string(TaskSkipped), string(TaskFailed)).Scan(&pending)
	if err != nil {
		return fmt.Errorf("project: counting pending feature tasks: %w", err)
	}
	if pending > 0 {
		return nil
	}
	_, err = s.conn.Exec(`UPDATE features SET status = ? WHERE id = ?`, string(FeatureCompleted), featureID)
	return err
}

func (s *Store) maybeCompleteProject(projectID string) error {
	var pending int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM tasks WHERE project_id = ? AND status NOT IN (?, ?, ?)`,
		projectID, string(TaskCompleted), string(TaskSkipped), string(TaskFailed)).Scan(&pending)
	if err != nil {
		return fmt.Errorf("project: counting pending project tasks: %w", err)
	}
	if pending > 0 {
		return nil
	}
	_, err = s.conn.Exec(`UPDATE projects SET status = ? WHERE id = ?`, string(ProjectCompleted), projectID)
	if err == nil {
		logging.Project("maybeCompleteProject: project=%s auto-completed", projectID)
	}
	return err
}

// GetStatus summarizes a project's task counts, current task, and blocked
// tasks.
func (s *Store) GetStatus(projectID string) (*Status, error) {
	tasks, err := s.listTasks(projectID)
	if err != nil {
		return nil, err
	}
	failedIDs := map[string]bool{}
	for _, t := range tasks {
		if t.Status == TaskFailed {
			failedIDs[t.ID] = true
		}
	}

	status := &Status{ProjectID: projectID, TotalTasks: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case TaskCompleted:
			status.CompletedTasks++
		case TaskFailed:
			status.FailedTasks++
		case TaskInProgress:
			if status.CurrentTask == nil {
				status.CurrentTask = t
			}
		}
		if t.Status == TaskPending {
			var blockingOn []string
			for _, dep := range t.DependsOn {
				if failedIDs[dep] {
					blockingOn = append(blockingOn, dep)
				}
			}
			if len(blockingOn) > 0 {
				status.BlockedTasks = append(status.BlockedTasks, BlockedTask{Task: *t, BlockingOn: blockingOn})
			}
		}
	}
	return status, nil
}

// GetFullStatus extends GetStatus with a per-feature breakdown.
func (s *Store) GetFullStatus(projectID string) (*FullStatus, error) {
	base, err := s.GetStatus(projectID)
	if err != nil {
		return nil, err
	}
	features, err := s.listFeatures(projectID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.listTasks(projectID)
	if err != nil {
		return nil, err
	}

	byFeature := map[string][]*Task{}
	for _, t := range tasks {
		byFeature[t.FeatureID] = append(byFeature[t.FeatureID], t)
	}

	full := &FullStatus{Status: *base}
	for _, f := range features {
		breakdown := FeatureBreakdown{Feature: *f}
		for _, t := range byFeature[f.ID] {
			breakdown.TotalTasks++
			if t.Status == TaskCompleted {
				breakdown.CompletedTasks++
			}
		}
		full.Features = append(full.Features, breakdown)
	}
	return full, nil
}

func (s *Store) getTask(id string) (*Task, error) {
	row := s.conn.QueryRow(`SELECT id, feature_id, project_id, title, description, agent, depends_on, status, result, ord
		FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

func (s *Store) listTasks(projectID string) ([]*Task, error) {
	rows, err := s.conn.Query(`SELECT id, feature_id, project_id, title, description, agent, depends_on, status, result, ord
		FROM tasks WHERE project_id = ? ORDER BY ord ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("project: listing tasks: %w", err)
	}
	defer rows.Close()
	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("project: scanning task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) listFeatures(projectID string) ([]*Feature, error) {
	rows, err := s.conn.Query(`SELECT id, project_id, title, description, ord, status FROM features WHERE project_id = ? ORDER BY ord ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("project: listing features: %w", err)
	}
	defer rows.Close()
	var out []*Feature
	for rows.Next() {
		var f Feature
		var status string
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.Title, &f.Description, &f.Order, &status); err != nil {
			return nil, fmt.Errorf("project: scanning feature: %w", err)
		}
		f.Status = FeatureStatus(status)
		out = append(out, &f)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanProject(row scannable) (*Project, error) {
	var p Project
	var status string
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Spec, &status, &p.Domain)
	if err != nil {
		return nil, err
	}
	p.Status = ProjectStatus(status)
	return &p, nil
}

func scanTask(row scannable) (*Task, error) {
	var t Task
	var status, dependsJSON string
	err := row.Scan(&t.ID, &t.FeatureID, &t.ProjectID, &t.Title, &t.Description, &t.Agent, &dependsJSON, &status, &t.Result, &t.Order)
	if err != nil {
		return nil, err
	}
	t.Status = TaskStatus(status)
	if err := json.Unmarshal([]byte(dependsJSON), &t.DependsOn); err != nil {
		return nil, fmt.Errorf("project: unmarshaling depends_on: %w", err)
	}
	return &t, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
