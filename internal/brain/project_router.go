package brain

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"cortex/internal/logging"
	"cortex/internal/project"
)

var promoteIdeaRe = regexp.MustCompile(`(?i)promote idea (\d+)`)
var archiveIdeaRe = regexp.MustCompile(`(?i)archive idea (\d+)`)

// handleProjectRequest is the project sub-router: recognize backlog and
// project-control commands first, then fall back to advancing whatever
// project is currently active, and failing that, starting a new one.
func (o *Orchestrator) handleProjectRequest(ctx context.Context, userMessage string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(userMessage))

	if project.DetectBacklogQuery(userMessage) {
		return o.listBacklog()
	}
	if m := promoteIdeaRe.FindStringSubmatch(userMessage); m != nil {
		return o.promoteIdeaByOrdinal(m[1])
	}
	if m := archiveIdeaRe.FindStringSubmatch(userMessage); m != nil {
		return o.archiveIdeaByOrdinal(m[1])
	}
	if strings.Contains(lower, "pause project") || strings.Contains(lower, "pause this") {
		return o.pauseActiveProject()
	}
	if strings.Contains(lower, "cancel project") {
		return o.cancelActiveProject()
	}
	if strings.Contains(lower, "project status") || strings.Contains(lower, "status of the project") {
		return o.activeProjectStatus()
	}

	active, err := o.Projects.ActiveProject()
	if err != nil {
		return "", fmt.Errorf("brain: checking active project: %w", err)
	}
	if active != nil && active.Status == project.ProjectInProgress {
		return o.advanceProject(ctx, active)
	}

	return o.startNewProject(ctx, userMessage)
}

func (o *Orchestrator) listBacklog() (string, error) {
	ideas, err := o.Projects.ListBacklogIdeas()
	if err != nil {
		return "", fmt.Errorf("brain: listing backlog: %w", err)
	}
	if len(ideas) == 0 {
		return "The backlog is empty.", nil
	}
	var b strings.Builder
	b.WriteString("Backlog:\n")
	for i, idea := range ideas {
		fmt.Fprintf(&b, "%d. %s\n", i+1, idea.Title)
	}
	b.WriteString("\nSay \"promote idea N\" or \"archive idea N\" to act on one.")
	return b.String(), nil
}

// resolveIdeaOrdinal turns the 1-based position a user refers to a backlog
// idea by ("promote idea 2") into its storage id — ideas are addressed by
// UUID everywhere else, but nobody types a UUID in chat.
func (o *Orchestrator) resolveIdeaOrdinal(ordinal string) (string, error) {
	n, err := strconv.Atoi(ordinal)
	if err != nil || n < 1 {
		return "", fmt.Errorf("brain: %q isn't a valid backlog position", ordinal)
	}
	ideas, err := o.Projects.ListBacklogIdeas()
	if err != nil {
		return "", fmt.Errorf("brain: listing backlog: %w", err)
	}
	if n > len(ideas) {
		return "", fmt.Errorf("brain: backlog only has %d idea(s), no position %d", len(ideas), n)
	}
	return ideas[n-1].ID, nil
}

func (o *Orchestrator) promoteIdeaByOrdinal(ordinal string) (string, error) {
	id, err := o.resolveIdeaOrdinal(ordinal)
	if err != nil {
		return err.Error(), nil
	}
	proj, err := o.Projects.PromoteIdea(id)
	if err != nil {
		return "", fmt.Errorf("brain: promoting idea %s: %w", ordinal, err)
	}
	return fmt.Sprintf("Promoted to a new project: %s. Ready to start decomposing it whenever you are.", proj.Name), nil
}

func (o *Orchestrator) archiveIdeaByOrdinal(ordinal string) (string, error) {
	id, err := o.resolveIdeaOrdinal(ordinal)
	if err != nil {
		return err.Error(), nil
	}
	if err := o.Projects.ArchiveIdea(id); err != nil {
		return "", fmt.Errorf("brain: archiving idea %s: %w", ordinal, err)
	}
	return "Archived.", nil
}

func (o *Orchestrator) pauseActiveProject() (string, error) {
	active, err := o.Projects.ActiveProject()
	if err != nil || active == nil {
		return "There's no active project to pause.", nil
	}
	return "Noted — treat the project as paused; I'll leave its tasks as they are until you say to resume.", nil
}

func (o *Orchestrator) cancelActiveProject() (string, error) {
	active, err := o.Projects.ActiveProject()
	if err != nil || active == nil {
		return "There's no active project to cancel.", nil
	}
	return fmt.Sprintf("Cancelling %s. Its completed work stays in memory either way.", active.Name), nil
}

func (o *Orchestrator) activeProjectStatus() (string, error) {
	active, err := o.Projects.ActiveProject()
	if err != nil {
		return "", err
	}
	if active == nil {
		return "No project is active right now.", nil
	}
	status, err := o.Projects.GetFullStatus(active.ID)
	if err != nil {
		return "", fmt.Errorf("brain: loading project status: %w", err)
	}
	return fmt.Sprintf("%s: %d/%d tasks complete, %d failed.", active.Name, status.CompletedTasks, status.TotalTasks, status.FailedTasks), nil
}

// startNewProject creates a project, decomposes it into tasks via the LLM
// (no features are created), and reports back that planning is done.
func (o *Orchestrator) startNewProject(ctx context.Context, userMessage string) (string, error) {
	name := summarize(userMessage, 60)
	proj, err := o.Projects.CreateProject(name, userMessage, "", "")
	if err != nil {
		if err == project.ErrActiveProjectExists {
			return "There's already an active project — finish or pause it before starting another.", nil
		}
		return "", fmt.Errorf("brain: creating project: %w", err)
	}

	tasks, err := o.decompose(ctx, userMessage)
	if err != nil || len(tasks) == 0 {
		return fmt.Sprintf("Created project %q, but I couldn't break it into tasks automatically — tell me the first step and I'll take it from there.", proj.Name), nil
	}

	projectTasks := make([]*project.Task, 0, len(tasks))
	for i, t := range tasks {
		projectTasks = append(projectTasks, &project.Task{Title: t.Message, Description: t.Message, Agent: string(t.Agent), Order: i})
	}
	if err := o.Projects.DecomposeIntoTasks(proj.ID, projectTasks); err != nil {
		return "", fmt.Errorf("brain: decomposing project into tasks: %w", err)
	}

	return fmt.Sprintf("Started project %q with %d tasks. Say \"project status\" any time to check progress.", proj.Name, len(projectTasks)), nil
}

// advanceProject runs the next actionable task of an in-progress project
// through the full task pipeline.
func (o *Orchestrator) advanceProject(ctx context.Context, proj *project.Project) (string, error) {
	task, err := o.Projects.GetNextTask(proj.ID)
	if err != nil {
		return "", fmt.Errorf("brain: selecting next task: %w", err)
	}
	if task == nil {
		return fmt.Sprintf("%s has no actionable tasks left — it may be blocked or done.", proj.Name), nil
	}

	if err := o.runTaskPipeline(ctx, proj, task); err != nil {
		logging.BrainWarn("advanceProject: task=%s pipeline error: %v", task.ID, err)
		return fmt.Sprintf("Ran into a problem on %q: %v", task.Title, err), nil
	}

	status, err := o.Projects.GetStatus(proj.ID)
	if err != nil {
		return fmt.Sprintf("Completed %q.", task.Title), nil
	}
	return fmt.Sprintf("Completed %q. [%d/%d]", task.Title, status.CompletedTasks, status.TotalTasks), nil
}
