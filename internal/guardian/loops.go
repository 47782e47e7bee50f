package guardian

import (
	"context"
	"encoding/json"
	"time"

	"cortex/internal/bus"
	"cortex/internal/logging"
	"cortex/internal/metrics"
	"cortex/internal/store"
)

// AgentName is the bus recipient identity the guardian listens on for
// direct requests (Loop B).
const AgentName = "guardian"

// Guardian runs the three cooperating loops described in the interceptor
// design: intercepting every bus row for security issues, answering direct
// requests addressed to it, and rotating its budget counters.
type Guardian struct {
	Bus     *bus.Bus
	Store   *store.DB
	Scanner *Scanner
	Budget  *BudgetTracker
	Ring    *RingBuffer
	FanOut  *bus.FanOut

	highWaterMark int64
}

// New constructs a Guardian over the given bus/store/scanner/budget.
func New(b *bus.Bus, db *store.DB, scanner *Scanner, budget *BudgetTracker) *Guardian {
	return &Guardian{Bus: b, Store: db, Scanner: scanner, Budget: budget, Ring: NewRingBuffer()}
}

// Run starts all three loops and blocks until ctx is cancelled.
func (g *Guardian) Run(ctx context.Context) {
	interceptTicker := time.NewTicker(1 * time.Second)
	directTicker := time.NewTicker(1 * time.Second)
	rotateTicker := time.NewTicker(1 * time.Minute)
	defer interceptTicker.Stop()
	defer directTicker.Stop()
	defer rotateTicker.Stop()

	logging.Guardian("Run: guardian loops starting")
	for {
		select {
		case <-ctx.Done():
			logging.Guardian("Run: guardian loops stopping")
			return
		case <-interceptTicker.C:
			g.runLoopA(ctx)
		case <-directTicker.C:
			g.runLoopB(ctx)
		case <-rotateTicker.C:
			g.runLoopC(ctx)
		}
	}
}

// runLoopA is the intercept pass: scan every new bus row not sent by the
// guardian itself.
func (g *Guardian) runLoopA(ctx context.Context) {
	messages, err := g.Bus.ListSince(g.highWaterMark, 100)
	if err != nil {
		logging.GuardianWarn("runLoopA: listing bus rows: %v", err)
		return
	}
	for _, m := range messages {
		if m.ID > g.highWaterMark {
			g.highWaterMark = m.ID
		}
		if m.FromAgent == AgentName {
			continue
		}
		g.intercept(ctx, m)
	}
}

func (g *Guardian) intercept(ctx context.Context, m *bus.Message) {
	payloadJSON, _ := json.Marshal(m.Payload)
	issues := g.Scanner.Scan(ctx, ScanInput{
		TaskID: m.TaskID, FromAgent: m.FromAgent, ToAgent: m.ToAgent,
		Payload: string(payloadJSON), Result: m.Result,
		IsBuilderCode: m.FromAgent == "builder" && m.Result != "",
	})

	if g.Budget != nil {
		if issue, err := g.budgetIssueFor(ctx, m); err == nil && issue != nil {
			issues = append(issues, *issue)
		}
	}

	verdict := Classify(issues)
	g.Ring.Append(ScanEvent{TaskID: m.TaskID, ToAgent: m.ToAgent, Verdict: verdict, Issues: issues, ScanTime: time.Now().UTC().Format(time.RFC3339Nano)})
	metrics.GuardianVerdictsTotal.WithLabelValues(string(verdict)).Inc()

	switch verdict {
	case VerdictBlock:
		reason := concatenateReasons(issues)
		if err := g.Bus.SetBlocked(m.TaskID, reason); err != nil {
			logging.GuardianWarn("intercept: task=%s blocking failed: %v", m.TaskID, err)
		} else {
			logging.GuardianWarn("intercept: task=%s BLOCKED: %s", m.TaskID, reason)
		}
		g.FanOut.Publish(m.TaskID, m.ToAgent, bus.StatusBlocked)
		g.recordActivity("guardian_block", m.TaskID, reason)
	case VerdictFlag:
		issuesJSON, _ := json.Marshal(issues)
		if err := g.Bus.SetFlagged(m.TaskID, string(issuesJSON)); err != nil {
			logging.GuardianWarn("intercept: task=%s flagging failed: %v", m.TaskID, err)
		}
		g.recordActivity("guardian_flag", m.TaskID, concatenateReasons(issues))
	}
}

// budgetIssueFor estimates token spend from the message's usage fields, if
// present in its payload, and records it against the daily budget.
func (g *Guardian) budgetIssueFor(ctx context.Context, m *bus.Message) (*Issue, error) {
	var tokens int64
	if v, ok := m.Payload["total_tokens"]; ok {
		if f, ok := v.(float64); ok {
			tokens = int64(f)
		}
	}
	if tokens == 0 {
		return nil, nil
	}
	return g.Budget.Record(ctx, tokens)
}

// runLoopB answers direct requests addressed to the guardian (cost reports,
// audit requests, manual scans).
func (g *Guardian) runLoopB(ctx context.Context) {
	requests, err := g.Bus.Receive(AgentName, 10)
	if err != nil {
		logging.GuardianWarn("runLoopB: receiving direct requests: %v", err)
		return
	}
	for _, req := range requests {
		result := g.handleDirectRequest(req)
		if err := g.Bus.UpdateStatus(req.TaskID, bus.StatusCompleted, result, ""); err != nil {
			logging.GuardianWarn("runLoopB: task=%s updating status: %v", req.TaskID, err)
		}
	}
}

func (g *Guardian) handleDirectRequest(req *bus.Message) string {
	action, _ := req.Payload["action"].(string)
	switch action {
	case "cost_report":
		stats := g.Ring.Stats()
		report, _ := json.Marshal(stats)
		return string(report)
	case "audit_request":
		recent := g.Ring.Recent()
		report, _ := json.Marshal(recent)
		return string(report)
	default:
		stats := g.Ring.Stats()
		report, _ := json.Marshal(stats)
		return string(report)
	}
}

// runLoopC zeroes the hourly counter when it runs during minute 0 of an
// hour and does nothing at any other minute; the daily rotation is handled
// lazily inside BudgetTracker.Record based on the stamped reset date.
func (g *Guardian) runLoopC(ctx context.Context) {
	if g.Budget == nil {
		return
	}
	now := time.Now().UTC()
	if now.Minute() == 0 {
		g.Budget.RotateHourly(ctx)
		logging.GuardianDebug("runLoopC: hourly counter rotated")
	}
}

func (g *Guardian) recordActivity(eventType, taskID, summary string) {
	if g.Store == nil {
		return
	}
	_ = g.Store.RecordActivity(&store.ActivityEvent{
		EventType: eventType, Agent: AgentName, Summary: summary,
		Metadata: map[string]any{"task_id": taskID},
	})
}

func concatenateReasons(issues []Issue) string {
	var out string
	for i, iss := range issues {
		if i > 0 {
			out += "; "
		}
		out += string(iss.Severity) + ":" + iss.Description
	}
	return out
}
