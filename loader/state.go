package loader

// State is the progress of a phone through the boot sequence. States are
// ordered; Error is absorbing.
type State int32

const (
	Prompt1 State = iota
	Prompt2
	Chainloader
	Ident
	Param
	DownloadAppBlocks
	AppChecksum
	Branch
	AppRunning
	Error
)

func (s State) String() string {
	switch s {
	case Prompt1:
		return "prompt1"
	case Prompt2:
		return "prompt2"
	case Chainloader:
		return "chainloader"
	case Ident:
		return "ident"
	case Param:
		return "param"
	case DownloadAppBlocks:
		return "download_app_blocks"
	case AppChecksum:
		return "app_checksum"
	case Branch:
		return "branch"
	case AppRunning:
		return "app_running"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is reported on every state change and after each acknowledged
// block.
type Status struct {
	State      State `json:"state"`
	BytesSent  int   `json:"bytes_sent"`
	BytesTotal int   `json:"bytes_total"`
}
