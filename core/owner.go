package core

import (
	"runtime"
	"strconv"
)

// OwnerID identifies a goroutine. The zero value means "no goroutine".
type OwnerID uint64

// CurrentOwnerID returns the identity of the calling goroutine.
//
// The id is parsed from the "goroutine N [running]:" header of the stack
// trace, so the call costs roughly a microsecond.
func CurrentOwnerID() OwnerID {
	return OwnerID(goroutineID())
}

func (id OwnerID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
