package dag

// Parser produces a set of tasks from a configuration source. It is an
// external collaborator (spec.md §1, §4.6): the engine only depends on
// this interface, never on how a particular format is read or
// validated. Any I/O, syntax, or validation failure must be returned as
// an error - the engine wraps it into its initialization result and
// never invokes a Parser after construction.
type Parser interface {
	ParseTasks(path string, vars map[string]string) ([]Task, error)
}

// yamlParserFactory backs WithYAML. A concrete YAML Parser implementation
// cannot live in this package without an import cycle (it needs Task,
// DefaultTask, Action and friends), so it registers itself here instead -
// the same registration idiom database/sql uses for drivers.
var yamlParserFactory func(vars map[string]string) Parser

// RegisterYAMLParser installs the factory WithYAML uses to build its
// Parser. Intended to be called from a single init() in a Parser
// implementation package that callers blank-import for the side effect,
// e.g. `import _ "github.com/hrygo/taskdag/yamlparser"`.
func RegisterYAMLParser(factory func(vars map[string]string) Parser) {
	yamlParserFactory = factory
}
