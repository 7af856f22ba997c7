// logging.go - process-wide syscall/loader trace log
//
// Grounded on the teacher's (and gokvm's) habit of reaching for plain
// log.Printf/fmt.Printf behind a verbosity flag rather than a structured
// logging library; see DESIGN.md for why no third-party logger is used.

package blink16

import (
	"log"
	"os"
)

var sysLog = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)

// traceSyscall records entry/exit for the Linux syscall dispatcher, per
// spec §4.4 "The dispatcher records entry and exit for logging."
func traceSyscall(verbose bool, name string, args [6]uint64, ret int64) {
	if !verbose {
		return
	}
	sysLog.Printf("syscall %-16s args=%v -> %d", name, args, ret)
}
