package session

import "code.hybscloud.com/atomix"

// Serial identifies a session within the process. Each New takes the next
// value.
type Serial = uint32

var counter atomix.Uint32

func nextSerial() Serial {
	return counter.Add(1)
}
