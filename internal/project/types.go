package project

// Project is a unit of sustained work with a single-active-project
// invariant: at most one project may be in planning or in_progress at once.
type Project struct {
	ID          string
	Name        string
	Description string
	Spec        string
	Status      ProjectStatus
	Domain      string
}

// Feature is an ordered grouping of tasks within a project.
type Feature struct {
	ID          string
	ProjectID   string
	Title       string
	Description string
	Order       int
	Status      FeatureStatus
}

// Task is one delegatable unit of work, optionally gated by sibling
// dependencies.
type Task struct {
	ID          string
	FeatureID   string
	ProjectID   string
	Title       string
	Description string
	Agent       string
	DependsOn   []string
	Status      TaskStatus
	Result      string
	Order       int
}

// Idea is a backlog entry that can be promoted into a project.
type Idea struct {
	ID          string
	Title       string
	Description string
	Domain      string
	Status      IdeaStatus
}

// Status is a project's progress summary.
type Status struct {
	ProjectID      string
	TotalTasks     int
	CompletedTasks int
	FailedTasks    int
	CurrentTask    *Task
	BlockedTasks   []BlockedTask
}

// BlockedTask names a pending task whose dependencies include failed tasks.
type BlockedTask struct {
	Task       Task
	BlockingOn []string
}

// FullStatus extends Status with a per-feature breakdown.
type FullStatus struct {
	Status
	Features []FeatureBreakdown
}

// FeatureBreakdown summarizes one feature's task counts.
type FeatureBreakdown struct {
	Feature        Feature
	TotalTasks     int
	CompletedTasks int
}
