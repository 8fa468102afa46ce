package hopper

import (
	"fmt"
	"sync"
)

// ChunkKey packs a world hash and chunk coordinates into one integer:
// hash<<48 | (cx&0xFFFFFF)<<24 | (cz&0xFFFFFF). Chunk coordinates are
// truncated to 24 bits; the sign is recovered on unpack.
type ChunkKey uint64

const chunkMask = 0xFFFFFF

func packChunkKey(worldHash uint64, cx, cz int) ChunkKey {
	return ChunkKey(worldHash<<48 |
		(uint64(cx)&chunkMask)<<24 |
		uint64(cz)&chunkMask)
}

func (k ChunkKey) unpack() (worldHash uint64, cx, cz int) {
	worldHash = uint64(k >> 48)
	cx = int((k >> 24) & chunkMask)
	cz = int(k & chunkMask)
	if cx > 0x7FFFFF {
		cx -= 0x1000000
	}
	if cz > 0x7FFFFF {
		cz -= 0x1000000
	}
	return worldHash, cx, cz
}

func (k ChunkKey) String() string {
	h, cx, cz := k.unpack()
	return fmt.Sprintf("world:%d,x:%d,z:%d", h, cx, cz)
}

// ChunkCoords returns the chunk column containing a block position.
func ChunkCoords(l Location) (cx, cz int) {
	return l.X >> 4, l.Z >> 4
}

// worldKeys assigns a small integer to each world name on first sight.
// Hashes are process-local: they are rebuilt in first-seen order after a
// restart and must never be persisted or compared across processes.
type worldKeys struct {
	mu     sync.Mutex
	byName map[string]uint64
	next   uint64
}

func newWorldKeys() *worldKeys {
	return &worldKeys{byName: map[string]uint64{}}
}

func (w *worldKeys) hash(world string) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if h, ok := w.byName[world]; ok {
		return h
	}
	h := w.next
	w.next++
	w.byName[world] = h
	return h
}

func (w *worldKeys) key(l Location) ChunkKey {
	cx, cz := ChunkCoords(l)
	return packChunkKey(w.hash(l.World), cx, cz)
}
