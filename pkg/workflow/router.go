package workflow

import "github.com/mahir/coursebot/pkg/agent"

// routes is the dispatch table from classification label to tutor agent.
// Labels outside the table, including "None", fall through to the fallback.
var routes = map[agent.Label]string{
	agent.LabelSPL:     agent.TutorSPL,
	agent.LabelEnglish: agent.TutorEnglish,
	agent.LabelPhysics: agent.TutorPhysics,
}

// Route maps a classification label to a tutor agent identifier. Pure
// function; unrecognized labels route to the fallback tutor.
func Route(label agent.Label) string {
	if id, ok := routes[label]; ok {
		return id
	}
	return agent.TutorFallback
}
