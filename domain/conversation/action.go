package conversation

// Action is one capability invocation of a turn.
//
// A nil Result means the action has not been executed. Once set, a result is
// never overwritten.
type Action struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Result    map[string]any `json:"result"`
}

// NewAction returns an unexecuted action.
func NewAction(name string, args map[string]any) Action {
	if args == nil {
		args = map[string]any{}
	}
	return Action{Name: name, Arguments: args}
}

// Executed reports whether the action carries a result.
func (a Action) Executed() bool {
	return a.Result != nil
}

// Failed reports whether the result records an error.
func (a Action) Failed() bool {
	_, ok := a.Result["error"]
	return ok
}

// ErrorResult builds the result map recorded for a failed invocation.
func ErrorResult(msg string) map[string]any {
	return map[string]any{"error": msg}
}
