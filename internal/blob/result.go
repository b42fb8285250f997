package blob

// FetchOutcome distinguishes the three ways a download can end.
type FetchOutcome int

const (
	Fetched FetchOutcome = iota
	NotFound
	TransferError
)

func (o FetchOutcome) String() string {
	switch o {
	case Fetched:
		return "fetched"
	case NotFound:
		return "not_found"
	case TransferError:
		return "transfer_error"
	default:
		return "unknown"
	}
}

// FetchResult reports where a raw object landed or why it did not.
type FetchResult struct {
	Outcome FetchOutcome
	Path    string
	Size    int64
	Err     error
}

// OK reports whether the object is staged locally.
func (r FetchResult) OK() bool {
	return r.Outcome == Fetched
}
