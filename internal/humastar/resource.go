package humastar

import "fmt"

// ActionDef is an action template. Pattern takes the identifiers of the
// resource as fmt verbs, outermost first.
type ActionDef struct {
	Rel     string
	Pattern string // e.g. "/api/v1/projects/%s/basemaps/%d"
	Method  string
	Title   string
	Schema  string
}

// ActionsFor expands defs for one resource.
func ActionsFor(defs []ActionDef, ids ...any) []Action {
	actions := make([]Action, len(defs))
	for i, d := range defs {
		actions[i] = Action{
			Rel:    d.Rel,
			Href:   fmt.Sprintf(d.Pattern, ids...),
			Method: d.Method,
			Title:  d.Title,
			Schema: d.Schema,
		}
	}
	return actions
}
