package tool

// Registry collects the tools an agent may be built with. It is mutable
// while an agent is assembled; FromRegistry freezes it into a Set.
// Implementations must be safe for concurrent use.
type Registry interface {
	// Register adds a tool. Names are unique.
	Register(tool Tool) error

	// Replace swaps the tool of the same name in place, keeping its
	// position, or appends it when the name is new.
	Replace(tool Tool) error

	// Unregister removes a tool.
	Unregister(name string) error

	// Get retrieves a tool by name.
	Get(name string) (Tool, bool)

	// List returns the tools in registration order.
	List() []Tool
}
