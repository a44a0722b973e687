package teams

import "fmt"

// Presets returns the library of named team templates the gateway ships
// with, each built from the fixed AgentType vocabulary.
func Presets() map[string][]Member {
	return map[string][]Member{
		"review":   membersOfType(AgentTypeReviewer, 3, "reviewer"),
		"debug":    membersOfType(AgentTypeDebugger, 3, "debugger"),
		"feature":  leadImplementersReviewer(2),
		"fullstack": []Member{
			{Name: "lead", AgentType: AgentTypeLead},
			{Name: "frontend", AgentType: AgentTypeImplementer},
			{Name: "backend", AgentType: AgentTypeImplementer},
			{Name: "reviewer", AgentType: AgentTypeReviewer},
		},
		"research":  membersOfType(AgentTypeGeneral, 3, "researcher"),
		"security":  membersOfType(AgentTypeReviewer, 4, "reviewer"),
		"migration": leadImplementersReviewer(2),
		"custom":    nil,
	}
}

// leadImplementersReviewer composes a team-lead, n team-implementers, and
// one team-reviewer -- the shape the "migration" preset requires and that
// "feature" reuses.
func leadImplementersReviewer(nImplementers int) []Member {
	members := []Member{{Name: "lead", AgentType: AgentTypeLead}}
	members = append(members, membersOfType(AgentTypeImplementer, nImplementers, "implementer")...)
	members = append(members, Member{Name: "reviewer", AgentType: AgentTypeReviewer})
	return members
}

func membersOfType(t AgentType, n int, prefix string) []Member {
	members := make([]Member, n)
	for i := range members {
		members[i] = Member{Name: fmt.Sprintf("%s-%d", prefix, i+1), AgentType: t}
	}
	return members
}

// LookupPreset returns the named preset's members, or ok=false if the
// preset doesn't exist.
func LookupPreset(name string) ([]Member, bool) {
	members, ok := Presets()[name]
	return members, ok
}
