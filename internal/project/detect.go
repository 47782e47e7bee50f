package project

import "strings"

// projectTriggers, ideaTriggers, and backlogTriggers are the exact phrase
// lists from the conversational trigger heuristics this state machine was
// distilled from.
var projectTriggers = []string{
	"i want to build", "let's create", "let's build", "can you make", "can you build",
	"build me", "create a", "develop a", "i need an app", "i need a tool", "i need a system",
	"make me a", "help me build", "let's make", "start a project", "new project",
	"build this now", "start project",
}

var ideaTriggers = []string{
	"we should build", "idea:", "what if we", "maybe we could", "how about we build",
	"wouldn't it be cool", "i've been thinking about", "here's an idea",
}

var backlogTriggers = []string{
	"what's in my backlog", "show ideas", "show backlog", "list ideas",
	"what ideas do i have", "my ideas", "idea backlog",
}

var multiStepIndicators = []string{
	"with", "that has", "including", "and also", "step 1", "first", "then", "finally",
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// DetectProject reports whether msg reads as a request to start a new
// project: it must contain a project trigger phrase, and either name
// multiple steps or simply run long enough to imply real scope.
func DetectProject(msg string) bool {
	lower := strings.ToLower(msg)
	if !containsAny(lower, projectTriggers) {
		return false
	}
	complexity := 0
	for _, ind := range multiStepIndicators {
		if strings.Contains(lower, ind) {
			complexity++
		}
	}
	return complexity >= 1 || len(lower) > 80
}

// DetectIdea reports whether msg reads as a backlog idea rather than an
// immediate build request.
func DetectIdea(msg string) bool {
	return containsAny(strings.ToLower(msg), ideaTriggers)
}

// DetectBacklogQuery reports whether msg is asking to see the idea backlog.
func DetectBacklogQuery(msg string) bool {
	return containsAny(strings.ToLower(msg), backlogTriggers)
}
