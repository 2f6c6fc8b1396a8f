package measure

import (
	"runtime"
	"strconv"
	"strings"
)

// curGoID returns the current goroutine's ID by parsing the runtime stack
// header ("goroutine N [running]:"). The engine uses it only for ownership
// checks, never for scheduling.
func curGoID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := strings.Fields(string(buf[:n]))
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return id
}
