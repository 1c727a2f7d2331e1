package progress

// Display creates one visual handle per transfer.
type Display interface {
	// NewHandle registers a transfer named name.
	NewHandle(name string) Handle

	// Wait blocks until every handle has been finished or abandoned and
	// the display has flushed its final output.
	Wait()
}

// Handle is the visual representation of a single transfer.
// Implementations must be safe for concurrent use and must ignore calls
// made after Finish or Abandon.
type Handle interface {
	SetTotal(total int64)
	SetCurrent(current int64)
	SetStatus(msg string)

	// Finish marks the transfer as successfully completed.
	Finish(msg string)

	// Abandon marks the transfer as ended without success.
	Abandon(msg string)
}

// Nop returns a Display that discards everything.
func Nop() Display { return nopDisplay{} }

type nopDisplay struct{}

func (nopDisplay) NewHandle(string) Handle { return nopHandle{} }
func (nopDisplay) Wait()                   {}

type nopHandle struct{}

func (nopHandle) SetTotal(int64)   {}
func (nopHandle) SetCurrent(int64) {}
func (nopHandle) SetStatus(string) {}
func (nopHandle) Finish(string)    {}
func (nopHandle) Abandon(string)   {}
