// Package erasure provides Reed-Solomon erasure coding for FilePacket
// payloads.
//
// packet.go optionally shards a packet's (compressed) payload across
// data and parity shards before it goes out on the wire: a shard lost
// or corrupted in transit can be rebuilt from the remaining shards
// without asking the sender to retransmit the whole packet. With 10
// data shards and 4 parity shards, for example, any 4 of the 14 can be
// missing and the packet is still fully recoverable.
//
// This implementation uses the klauspost/reedsolomon library for high performance.
package erasure
