package transfer

import (
	"bytes"
	"testing"

	"github.com/coreloop/raccess/wire"
)

func TestBuildReadPacketRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 200)

	packet, err := buildPacket(data, wire.FilePacketFlagLast, PacketOptions{Compress: true})
	if err != nil {
		t.Fatalf("buildPacket: %v", err)
	}
	if !packet.Compressed {
		t.Fatal("expected compressible data to be marked Compressed")
	}
	if len(packet.Hash) == 0 {
		t.Fatal("expected buildPacket to attach a Hash")
	}

	got, err := readPacket(*packet)
	if err != nil {
		t.Fatalf("readPacket: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("round-tripped data does not match original")
	}
}

func TestBuildReadPacketIncompressible(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}

	packet, err := buildPacket(data, wire.FilePacketFlagNone, PacketOptions{Compress: true})
	if err != nil {
		t.Fatalf("buildPacket: %v", err)
	}
	if packet.Compressed {
		t.Fatal("tiny incompressible data should not be marked Compressed")
	}

	got, err := readPacket(*packet)
	if err != nil {
		t.Fatalf("readPacket: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("round-tripped data does not match original")
	}
}

func TestReadPacketDetectsCorruption(t *testing.T) {
	data := []byte("integrity matters")
	packet, err := buildPacket(data, wire.FilePacketFlagLast, PacketOptions{})
	if err != nil {
		t.Fatalf("buildPacket: %v", err)
	}

	packet.Data[0] ^= 0xff

	if _, err := readPacket(*packet); err != ErrPacketCorrupt {
		t.Fatalf("readPacket() error = %v, want ErrPacketCorrupt", err)
	}
}

func TestBuildPacketEmptyData(t *testing.T) {
	packet, err := buildPacket(nil, wire.FilePacketFlagLast, PacketOptions{Compress: true})
	if err != nil {
		t.Fatalf("buildPacket: %v", err)
	}
	if len(packet.Hash) != 0 {
		t.Fatal("empty packet should carry no hash")
	}

	got, err := readPacket(*packet)
	if err != nil {
		t.Fatalf("readPacket: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty payload, got %d bytes", len(got))
	}
}

func TestBuildReadPacketRoundTripWithErasure(t *testing.T) {
	data := bytes.Repeat([]byte("erasure coded payload content "), 500)

	opts := PacketOptions{Compress: true, ErasureDataShards: 4, ErasureParityShards: 2}
	packet, err := buildPacket(data, wire.FilePacketFlagLast, opts)
	if err != nil {
		t.Fatalf("buildPacket: %v", err)
	}
	if len(packet.Data) != 0 {
		t.Fatal("erasure-coded packet should not carry a plain Data payload")
	}
	if len(packet.ErasureShards) != 6 {
		t.Fatalf("expected 6 total shards, got %d", len(packet.ErasureShards))
	}

	got, err := readPacket(*packet)
	if err != nil {
		t.Fatalf("readPacket: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("round-tripped data does not match original")
	}
}

func TestReadPacketWithErasureSurvivesLostShards(t *testing.T) {
	data := bytes.Repeat([]byte("recoverable payload "), 300)

	opts := PacketOptions{ErasureDataShards: 4, ErasureParityShards: 2}
	packet, err := buildPacket(data, wire.FilePacketFlagLast, opts)
	if err != nil {
		t.Fatalf("buildPacket: %v", err)
	}

	packet.ErasureShards[1] = nil
	packet.ErasureShards[4] = nil

	got, err := readPacket(*packet)
	if err != nil {
		t.Fatalf("readPacket: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("round-tripped data does not match original after losing 2 shards")
	}
}

func TestHashChunkDeterministic(t *testing.T) {
	a := HashChunk([]byte("hello"))
	b := HashChunk([]byte("hello"))
	if !bytesEqual(a, b) {
		t.Fatal("HashChunk is not deterministic")
	}

	c := HashChunk([]byte("hellO"))
	if bytesEqual(a, c) {
		t.Fatal("HashChunk collided on different input")
	}
}
