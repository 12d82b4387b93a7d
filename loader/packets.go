package loader

// Bootloader packets are seven bytes starting with 0x1b.
var (
	prompt1   = []byte{0x1b, 0xf6, 0x02, 0x00, 0x41, 0x01, 0x40}
	prompt2   = []byte{0x1b, 0xf6, 0x02, 0x00, 0x41, 0x02, 0x43}
	dnload    = []byte{0x1b, 0xf6, 0x02, 0x00, 0x52, 0x01, 0x53}
	ack       = []byte{0x1b, 0xf6, 0x02, 0x00, 0x41, 0x03, 0x42}
	nack      = []byte{0x1b, 0xf6, 0x02, 0x00, 0x45, 0x53, 0x16}
	nackMagic = []byte{0x1b, 0xf6, 0x02, 0x00, 0x41, 0x03, 0x57}
)

// Romloader commands start with '<', replies with '>'.
var (
	romIdent     = []byte{'<', 'i'}
	romIdentAck  = []byte{'>', 'i'}
	romParam     = []byte{'<', 'p', 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00}
	romBlockAck  = []byte{'>', 'w'}
	romBranch    = []byte{'<', 'b', 0x00, 0x82, 0x00, 0x00}
	romBranchAck = []byte{'>', 'b'}
)

const (
	// blockHeaderLen is '<' 'w' 01 01 len(2) addr(4).
	blockHeaderLen = 10
	// blockSumSeed and blockSumStart define the per-block byte sum.
	blockSumSeed  = 5
	blockSumStart = 5

	// DefaultLoadAddress is where the romloader places the application.
	DefaultLoadAddress uint32 = 0x820000

	identBaud    = 19200
	downloadBaud = 115200
)
