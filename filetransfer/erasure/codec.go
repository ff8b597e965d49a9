package erasure

import (
	"errors"

	"github.com/klauspost/reedsolomon"
)

var (
	ErrTooManyLost       = errors.New("erasure: too many shards lost, cannot recover")
	ErrInvalidConfig     = errors.New("erasure: invalid data/parity configuration")
	ErrShardSizeMismatch = errors.New("erasure: shard sizes do not match")
)

// Codec shards one FilePacket payload at a time. It holds no state
// about which packet it last coded, so packet.go constructs a fresh
// Codec per packet from the data/parity shard counts carried on the
// wire (wire.FilePacket.ErasureParity plus len(ErasureShards)).
type Codec struct {
	enc          reedsolomon.Encoder
	dataShards   int
	parityShards int
}

// NewCodec creates a codec for a payload split into dataShards pieces
// protected by parityShards additional pieces.
func NewCodec(dataShards, parityShards int) (*Codec, error) {
	if dataShards <= 0 || parityShards <= 0 {
		return nil, ErrInvalidConfig
	}
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, err
	}
	return &Codec{
		enc:          enc,
		dataShards:   dataShards,
		parityShards: parityShards,
	}, nil
}

// DataShards returns the number of data shards.
func (c *Codec) DataShards() int { return c.dataShards }

// ParityShards returns the number of parity shards.
func (c *Codec) ParityShards() int { return c.parityShards }

// TotalShards returns the total number of shards (data + parity).
func (c *Codec) TotalShards() int { return c.dataShards + c.parityShards }

// Split splits a packet payload into data shards (does not compute
// parity yet). The payload is padded if necessary.
func (c *Codec) Split(data []byte) ([][]byte, error) {
	return c.enc.Split(data)
}

// Encode computes parity shards for the given data shards. shards must
// have exactly TotalShards() elements, with the first DataShards()
// containing payload and the rest being parity (to be filled).
func (c *Codec) Encode(shards [][]byte) error {
	return c.enc.Encode(shards)
}

// EncodeData is what buildPacket calls: it splits a packet's (already
// compressed, if applicable) payload and computes its parity shards in
// one step, returning every shard — data followed by parity.
func (c *Codec) EncodeData(data []byte) ([][]byte, error) {
	shards, err := c.Split(data)
	if err != nil {
		return nil, err
	}
	if err := c.Encode(shards); err != nil {
		return nil, err
	}
	return shards, nil
}

// Verify checks whether the parity shards are consistent with the data
// shards, without attempting to fix anything that isn't.
func (c *Codec) Verify(shards [][]byte) (bool, error) {
	return c.enc.Verify(shards)
}

// Reconstruct rebuilds every missing shard (data and parity), where a
// missing shard is represented as a nil entry in shards. Returns
// ErrTooManyLost if more shards are missing than ParityShards() covers.
func (c *Codec) Reconstruct(shards [][]byte) error {
	err := c.enc.Reconstruct(shards)
	if err != nil {
		if err == reedsolomon.ErrTooFewShards {
			return ErrTooManyLost
		}
		return err
	}
	return nil
}

// ReconstructData is what readPacket calls: it rebuilds only the
// missing data shards, skipping parity shards the receiver has no
// further use for once the payload itself is recovered.
func (c *Codec) ReconstructData(shards [][]byte) error {
	err := c.enc.ReconstructData(shards)
	if err != nil {
		if err == reedsolomon.ErrTooFewShards {
			return ErrTooManyLost
		}
		return err
	}
	return nil
}

// Join reassembles a packet's data shards back into its original
// payload. outSize is the payload's length before Split's padding.
func (c *Codec) Join(shards [][]byte, outSize int) ([]byte, error) {
	data := make([]byte, 0, outSize)
	for i := 0; i < c.dataShards && len(data) < outSize; i++ {
		remaining := outSize - len(data)
		if remaining >= len(shards[i]) {
			data = append(data, shards[i]...)
		} else {
			data = append(data, shards[i][:remaining]...)
		}
	}
	return data, nil
}

// ShardSize returns the per-shard size for a payload of dataSize bytes.
func (c *Codec) ShardSize(dataSize int) int {
	shardSize := dataSize / c.dataShards
	if dataSize%c.dataShards != 0 {
		shardSize++
	}
	return shardSize
}

// EncodedSize returns the total size of all shards for a payload of
// dataSize bytes — what a packet's ErasureShards actually cost on the
// wire versus its uncoded payload.
func (c *Codec) EncodedSize(dataSize int) int {
	return c.ShardSize(dataSize) * c.TotalShards()
}

// Overhead returns the shard-count ratio applied to every erasure-coded
// packet, e.g. 1.4 for a 10-data/4-parity configuration.
func (c *Codec) Overhead() float64 {
	return float64(c.TotalShards()) / float64(c.dataShards)
}
