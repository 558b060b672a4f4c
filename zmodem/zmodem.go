// Package zmodem speaks the ZMODEM file transfer protocol in-band, over an
// already established terminal stream.
//
// The package is built around three pieces: a Sentry that spots the hex
// headers a remote rz/sz emits when it wants to start a transfer, a Feed
// that queues the inbound bytes of a running transfer, and a Session that
// drives a Sender or Receiver over that feed. Frames, CRCs and escaping are
// wire compatible with lrzsz.
package zmodem

// Frame format indicators
const (
	ZPAD   = '*'  // pad character, begins frames
	ZDLE   = 0x18 // escape character (Ctrl-X)
	ZDLEE  = ZDLE ^ 0x40
	ZBIN   = 'A' // binary frame, CRC-16
	ZHEX   = 'B' // hex frame, CRC-16
	ZBIN32 = 'C' // binary frame, CRC-32
)

// Frame types
const (
	ZRQINIT    = iota // request receive init
	ZRINIT            // receive init
	ZSINIT            // send init sequence
	ZACK              // ack
	ZFILE             // file name from sender
	ZSKIP             // to sender: skip this file
	ZNAK              // last packet was garbled
	ZABORT            // abort batch transfers
	ZFIN              // finish session
	ZRPOS             // resume data at this position
	ZDATA             // data packets follow
	ZEOF              // end of file
	ZFERR             // fatal read or write error
	ZCRC              // file CRC request and response
	ZCHALLENGE        // receiver's challenge
	ZCOMPL            // request is complete
	ZCAN              // other end canned session with CAN*5
	ZFREECNT          // free bytes request
	ZCOMMAND          // command from sending program
	ZSTDERR           // output to stderr, data follows
)

// Data subpacket terminators, sent after ZDLE
const (
	ZCRCE = 'h' // frame ends, header follows
	ZCRCG = 'i' // frame continues nonstop
	ZCRCQ = 'j' // frame continues, ZACK expected
	ZCRCW = 'k' // ZACK expected, end of frame
	ZRUB0 = 'l' // translate to 0177
	ZRUB1 = 'm' // translate to 0377
)

// Values returned by the unescaper beyond the byte range
const (
	GOTOR   = 0x400
	GOTCRCE = ZCRCE | GOTOR
	GOTCRCG = ZCRCG | GOTOR
	GOTCRCQ = ZCRCQ | GOTOR
	GOTCRCW = ZCRCW | GOTOR
	GOTCAN  = GOTOR | 0x18 // CAN*5 seen
)

// Header byte positions. Flags count down, positions count up.
const (
	ZF0 = 3
	ZF1 = 2
	ZF2 = 1
	ZF3 = 0

	ZP0 = 0
	ZP1 = 1
	ZP2 = 2
	ZP3 = 3
)

// ZRINIT ZF0 capability bits
const (
	CANFDX  = 0x01 // full duplex
	CANOVIO = 0x02 // can receive data during disk I/O
	CANBRK  = 0x04 // can send a break
	CANFC32 = 0x20 // 32 bit frame check
	ESCCTL  = 0x40 // expects control characters escaped
	ESC8    = 0x80 // expects 8th bit escaped
)

// ZATTNLEN is the max length of the ZSINIT attention string
const ZATTNLEN = 32

// TESCCTL is the ZSINIT ZF0 bit asking for escaped control characters
const TESCCTL = 0x40

// ZFILE ZF0 conversion option and ZF1 management option
const (
	ZCBIN      = 1
	ZF1_ZMCLOB = 4
)

// Control characters
const (
	CAN  = 'X' & 0x1F
	XOFF = 's' & 0x1F
	XON  = 'q' & 0x1F
)

// TIMEOUT is the pseudo frame type getHeader reports when a read times out
const TIMEOUT = -2

// AbortSequence is what lrzsz sends to cancel a session: ten CANs to stop
// the peer, then ten backspaces to erase them from a terminal.
var AbortSequence = []byte{
	CAN, CAN, CAN, CAN, CAN, CAN, CAN, CAN, CAN, CAN,
	0x08, 0x08, 0x08, 0x08, 0x08, 0x08, 0x08, 0x08, 0x08, 0x08,
}

var frametypes = []string{
	"Carrier Lost", // -3
	"TIMEOUT",      // -2
	"ERROR",        // -1
	"ZRQINIT",
	"ZRINIT",
	"ZSINIT",
	"ZACK",
	"ZFILE",
	"ZSKIP",
	"ZNAK",
	"ZABORT",
	"ZFIN",
	"ZRPOS",
	"ZDATA",
	"ZEOF",
	"ZFERR",
	"ZCRC",
	"ZCHALLENGE",
	"ZCOMPL",
	"ZCAN",
	"ZFREECNT",
	"ZCOMMAND",
	"ZSTDERR",
}

// FrameTypeName returns the name of a frame type, or "UNKNOWN".
func FrameTypeName(frameType int) string {
	offset := 3
	if frameType < -3 || frameType >= len(frametypes)-offset {
		return "UNKNOWN"
	}
	return frametypes[frameType+offset]
}
