package telnet

// Commands
const (
	SE   = 240
	NOP  = 241
	GA   = 249
	SB   = 250
	WILL = 251
	WONT = 252
	DO   = 253
	DONT = 254
	IAC  = 255
)

// Options
const (
	BINARY = 0
	ECHO   = 1
	SGA    = 3
	STATUS = 5
	TM     = 6
	TTYPE  = 24
	EOR    = 25
	NAWS   = 31
	TSPEED = 32
	LFLOW  = 33

	LINEMODE    = 34
	XDISPLOC    = 35
	OLD_ENVIRON = 36
	NEW_ENVIRON = 39
)

// TTYPE subnegotiation verbs
const (
	IS   = 0
	SEND = 1
)

var CodeName = map[byte]string{
	SE:          "SE",
	NOP:         "NOP",
	GA:          "GA",
	SB:          "SB",
	WILL:        "WILL",
	WONT:        "WONT",
	DO:          "DO",
	DONT:        "DONT",
	IAC:         "IAC",
	BINARY:      "BINARY",
	ECHO:        "ECHO",
	SGA:         "SGA",
	STATUS:      "STATUS",
	TM:          "TM",
	TTYPE:       "TTYPE",
	EOR:         "EOR",
	NAWS:        "NAWS",
	TSPEED:      "TSPEED",
	LFLOW:       "LFLOW",
	LINEMODE:    "LINEMODE",
	XDISPLOC:    "XDISPLOC",
	OLD_ENVIRON: "OLD_ENVIRON",
	NEW_ENVIRON: "NEW_ENVIRON",
}

// optionName names an option code for logs and metrics labels. Commands
// and options share a numeric space, so only option codes are looked up.
func optionName(opt byte) string {
	if opt < SE {
		if name, ok := CodeName[opt]; ok {
			return name
		}
	}
	return "OTHER"
}
