package proxy

import "sync"

const relayBufferSize = 32 * 1024

// relayBuffers holds the copy buffers of relaying sessions. Pointers avoid an
// allocation on every Put.
var relayBuffers = sync.Pool{
	New: func() any {
		b := make([]byte, relayBufferSize)
		return &b
	},
}

func getRelayBuffer() *[]byte {
	return relayBuffers.Get().(*[]byte)
}

func putRelayBuffer(b *[]byte) {
	relayBuffers.Put(b)
}
