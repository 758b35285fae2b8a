package concursoprep

import (
	"log"
	"sync/atomic"
)

var verboseMode atomic.Bool

// SetVerbose toggles VerboseLog output for the whole process
func SetVerbose(verbose bool) {
	verboseMode.Store(verbose)
}

// VerboseLog logs only when verbose mode is enabled
func VerboseLog(format string, v ...interface{}) {
	if verboseMode.Load() {
		log.Printf(format, v...)
	}
}

// logTag writes a "[TAG] message" line
func logTag(tag, format string, v ...interface{}) {
	log.Printf("["+tag+"] "+format, v...)
}
