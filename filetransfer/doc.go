// Package transfer drives a queued file copy between two
// filesystems connected by an authenticated channel: one side local,
// one side reached through request/reply messages routed by a Consumer.
//
// An Engine walks a TaskList built by QueueBuilder, moving one file at
// a time through a source/target pair of ProducerProxy adapters. Each
// file crosses the wire as a stream of FilePacket chunks, optionally
// LZ4-compressed and Reed-Solomon erasure coded, with a SHA-256 digest
// attached so the receiving side can detect corruption before it
// writes anything to disk.
package transfer
