package magic

// Directive is an instruction to the router parsed from a statement header.
type Directive interface {
	directive()
}

// UseKernel switches the active kernel, creating its session on demand.
// Qualifiers are kept verbatim for the kernel starter.
type UseKernel struct {
	Kernel     string
	Qualifiers []string
}

// GetVariable copies Name from the From kernel into the active session.
type GetVariable struct {
	Name string
	From string
}

// PutVariable copies Name from the active session into the To kernel.
type PutVariable struct {
	Name string
	To   string
}

// Preview displays a summary of the named variables after execution. An
// empty Names previews every variable.
type Preview struct {
	Names []string
}

// With runs the statement in Kernel without changing the active session.
// In is copied into Kernel beforehand and Out copied back afterwards.
type With struct {
	Kernel string
	In     []string
	Out    []string
}

// ClearHistory clears the console history of every session.
type ClearHistory struct{}

func (UseKernel) directive()    {}
func (GetVariable) directive()  {}
func (PutVariable) directive()  {}
func (Preview) directive()      {}
func (With) directive()         {}
func (ClearHistory) directive() {}
