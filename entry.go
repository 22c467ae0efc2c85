package archmod

// Entry identifies one addressable unit, such as a class file, inside a Module.
//
// Entries are immutable values produced by [Module.Entries]. They carry no
// content; read it with [Module.ReadEntry].
type Entry struct {
	name   string
	module *Module
}

// Name returns the path of the entry within its archive.
func (e Entry) Name() string {
	return e.name
}

// Module returns the module the entry was enumerated from.
func (e Entry) Module() *Module {
	return e.module
}

// String returns the entry as "location!name".
func (e Entry) String() string {
	if e.module == nil {
		return e.name
	}
	return e.module.location + "!" + e.name
}
