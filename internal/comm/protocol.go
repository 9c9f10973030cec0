// Package comm implements the gebr client/daemon wire protocol: the closed
// opcode set, length-prefixed argument framing and the incremental framer.
package comm

// Opcode identifies a protocol message. The set is closed; unknown codes are
// rejected when a frame is decoded and never reach a dispatcher.
type Opcode uint8

const (
	OpInvalid Opcode = iota
	OpIni            // login: version, hostname, display, cookie
	OpRet            // reply to INI or RUN
	OpLst            // list jobs
	OpRun            // run flow: flow_xml [, queue_id]
	OpFlw            // reserved
	OpClr            // clear job: job_id
	OpEnd            // cancel job: job_id
	OpKil            // kill job: [job_id]
	OpQut            // quit
	OpJob            // job snapshot push
	OpOut            // output chunk push: job_id, chunk
	OpFin            // status push: job_id, status, parameter
)

// ProtocolVersion is sent as the first INI argument.
const ProtocolVersion = "0.9"

var opcodeNames = [...]string{
	OpInvalid: "???",
	OpIni:     "INI",
	OpRet:     "RET",
	OpLst:     "LST",
	OpRun:     "RUN",
	OpFlw:     "FLW",
	OpClr:     "CLR",
	OpEnd:     "END",
	OpKil:     "KIL",
	OpQut:     "QUT",
	OpJob:     "JOB",
	OpOut:     "OUT",
	OpFin:     "FIN",
}

var opcodeByName = map[string]Opcode{
	"INI": OpIni,
	"RET": OpRet,
	"LST": OpLst,
	"RUN": OpRun,
	"FLW": OpFlw,
	"CLR": OpClr,
	"END": OpEnd,
	"KIL": OpKil,
	"QUT": OpQut,
	"JOB": OpJob,
	"OUT": OpOut,
	"FIN": OpFin,
}

// arity holds the accepted argument counts; max < 0 means unbounded.
var arity = [...]struct{ min, max int }{
	OpInvalid: {0, 0},
	OpIni:     {4, 4},
	OpRet:     {0, -1},
	OpLst:     {0, 0},
	OpRun:     {1, 2},
	OpFlw:     {0, -1},
	OpClr:     {1, 1},
	OpEnd:     {1, 1},
	OpKil:     {0, 1},
	OpQut:     {0, 0},
	OpJob:     {9, 9},
	OpOut:     {2, 2},
	OpFin:     {3, 3},
}

// String returns the three-letter wire code.
func (o Opcode) String() string {
	if int(o) < len(opcodeNames) {
		return opcodeNames[o]
	}
	return opcodeNames[OpInvalid]
}

// Valid reports whether o is a member of the closed opcode set.
func (o Opcode) Valid() bool {
	return o > OpInvalid && o <= OpFin
}

// ExpectsReply reports whether the sender waits for a RET to this message.
// FLW is rejected without a reply.
func (o Opcode) ExpectsReply() bool {
	return o == OpIni || o == OpRun
}

// ParseOpcode decodes a three-letter wire code.
func ParseOpcode(code string) (Opcode, bool) {
	op, ok := opcodeByName[code]
	return op, ok
}
