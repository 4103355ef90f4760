// Package persist implements the self-describing byte streams that the
// sketch and language model round-trip through: a tagged binary encoding,
// written atomically and, for the model file, transparently
// gzip-compressed.
package persist

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/natefinch/atomic"

	"github.com/naclave/password-oracle/internal/ngram"
	"github.com/naclave/password-oracle/internal/sketch"
)

// ErrIO wraps a persistence failure. SaveSketch and SaveModel return it
// when encoding or writing fails, and LoadModel returns it for a model
// file that exists but cannot be opened or decoded. LoadSketch never
// returns it: a missing or unreadable sketch file yields a fresh sketch.
var ErrIO = errors.New("persist: io error")

const (
	sketchMagic   = "PQOS"
	sketchVersion = 1

	modelMagic   = "PQOM"
	modelVersion = 1

	gzipMagic0 = 0x1f
	gzipMagic1 = 0x8b
)

// SaveSketch writes sketch's (queue, head, S, k) tuple to path; the
// derived slots array is never stored, only recomputed on load. The write
// is atomic: a crash mid-write never leaves a torn file.
func SaveSketch(s *sketch.Sketch, path string) error {
	queue, head, numSlots, perItem := s.Snapshot()

	var buf bytes.Buffer
	buf.WriteString(sketchMagic)
	_ = binary.Write(&buf, binary.BigEndian, uint8(sketchVersion))
	_ = binary.Write(&buf, binary.BigEndian, uint32(numSlots))
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(queue)))
	_ = binary.Write(&buf, binary.BigEndian, uint32(perItem))
	_ = binary.Write(&buf, binary.BigEndian, uint32(head))
	for _, v := range queue {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return fmt.Errorf("%w: encode queue: %v", ErrIO, err)
		}
	}

	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrIO, path, err)
	}
	return nil
}

// LoadSketch reads a persisted sketch from path and compares its stored
// (Q, S, k) against the currently configured (items*perItem, slots,
// perItem). On a parameter mismatch, or an unreadable or corrupt file, it
// logs at warn level and returns a fresh empty sketch with the configured
// parameters; a missing file returns a fresh sketch without logging.
// Neither case is treated as an error.
func LoadSketch(logger *slog.Logger, path string, slots, items, perItem int) (*sketch.Sketch, error) {
	fresh := func(reason string, args ...any) (*sketch.Sketch, error) {
		if reason != "" {
			logger.Warn(reason, args...)
		}
		return sketch.New(slots, items, perItem)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fresh("")
		}
		return fresh("could not open bloom filter file, starting fresh", "path", path, "error", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	magic := make([]byte, len(sketchMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != sketchMagic {
		return fresh("bloom filter file is not recognized, starting fresh", "path", path)
	}

	var version uint8
	var storedSlots, storedQueueLen, storedPerItem, storedHead uint32
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return fresh("bloom filter file truncated, starting fresh", "path", path)
	}
	if version != sketchVersion {
		return fresh("bloom filter file has an unsupported version, starting fresh", "path", path, "version", version)
	}
	if err := binary.Read(r, binary.BigEndian, &storedSlots); err != nil {
		return fresh("bloom filter file truncated, starting fresh", "path", path)
	}
	if err := binary.Read(r, binary.BigEndian, &storedQueueLen); err != nil {
		return fresh("bloom filter file truncated, starting fresh", "path", path)
	}
	if err := binary.Read(r, binary.BigEndian, &storedPerItem); err != nil {
		return fresh("bloom filter file truncated, starting fresh", "path", path)
	}
	if err := binary.Read(r, binary.BigEndian, &storedHead); err != nil {
		return fresh("bloom filter file truncated, starting fresh", "path", path)
	}

	queue := make([]int32, storedQueueLen)
	for i := range queue {
		if err := binary.Read(r, binary.BigEndian, &queue[i]); err != nil {
			return fresh("bloom filter file truncated, starting fresh", "path", path)
		}
	}

	configuredQueueLen := uint32(items * perItem)
	if int(storedSlots) != slots || storedQueueLen != configuredQueueLen || int(storedPerItem) != perItem {
		return fresh("bloom filter parameters changed, resetting to an empty sketch",
			"path", path,
			"stored_slots", storedSlots, "configured_slots", slots,
			"stored_queue", storedQueueLen, "configured_queue", configuredQueueLen,
			"stored_per_item", storedPerItem, "configured_per_item", perItem)
	}

	restored, err := sketch.FromQueue(queue, int(storedHead), slots, perItem)
	if err != nil {
		return fresh("bloom filter file is internally inconsistent, starting fresh", "path", path, "error", err)
	}
	return restored, nil
}

// SaveModel writes model to path, gzip-compressed, atomically.
func SaveModel(model *ngram.Model, path string) error {
	var raw bytes.Buffer
	raw.WriteString(modelMagic)
	_ = binary.Write(&raw, binary.BigEndian, uint8(modelVersion))
	_ = binary.Write(&raw, binary.BigEndian, uint32(model.N()))
	_ = binary.Write(&raw, binary.BigEndian, model.DefaultBits())

	contexts := model.RawContexts()
	_ = binary.Write(&raw, binary.BigEndian, uint32(len(contexts)))
	for _, ctx := range contexts {
		_ = binary.Write(&raw, binary.BigEndian, uint32(len(ctx.Symbols)))
		for _, sym := range ctx.Symbols {
			_ = binary.Write(&raw, binary.BigEndian, sym)
		}
		_ = binary.Write(&raw, binary.BigEndian, uint32(len(ctx.Counts)))
		for sym, count := range ctx.Counts {
			_ = binary.Write(&raw, binary.BigEndian, sym)
			_ = binary.Write(&raw, binary.BigEndian, uint32(count))
		}
	}

	var compressed bytes.Buffer
	gw := gzip.NewWriter(&compressed)
	if _, err := gw.Write(raw.Bytes()); err != nil {
		return fmt.Errorf("%w: gzip encode: %v", ErrIO, err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("%w: gzip close: %v", ErrIO, err)
	}

	if err := atomic.WriteFile(path, &compressed); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrIO, path, err)
	}
	return nil
}

// LoadModel reads a language model from path. It peeks the first two
// bytes: if they are the gzip magic number, the rest of the file is
// transparently decompressed; otherwise it is read raw. A missing path
// returns (nil, nil): "no model loaded" is a valid, queryable state, not
// an error.
func LoadModel(path string) (*ngram.Model, error) {
	if path == "" {
		return nil, nil //nolint:nilnil // absence of a configured model is a valid state, not an error
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil //nolint:nilnil // see above
		}
		return nil, fmt.Errorf("%w: open %s: %v", ErrIO, path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	peek, err := br.Peek(2)
	var r io.Reader = br
	if err == nil && len(peek) == 2 && peek[0] == gzipMagic0 && peek[1] == gzipMagic1 {
		gr, gzErr := gzip.NewReader(br)
		if gzErr != nil {
			return nil, fmt.Errorf("%w: gzip header: %v", ErrIO, gzErr)
		}
		defer gr.Close()
		r = gr
	}

	return decodeModel(r)
}

func decodeModel(r io.Reader) (*ngram.Model, error) {
	magic := make([]byte, len(modelMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != modelMagic {
		return nil, fmt.Errorf("%w: not a recognized language model file", ErrIO)
	}

	var version uint8
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: truncated header: %v", ErrIO, err)
	}
	if version != modelVersion {
		return nil, fmt.Errorf("%w: unsupported language model version %d", ErrIO, version)
	}

	var n uint32
	var defaultBits float64
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: truncated n: %v", ErrIO, err)
	}
	if err := binary.Read(r, binary.BigEndian, &defaultBits); err != nil {
		return nil, fmt.Errorf("%w: truncated default_bits: %v", ErrIO, err)
	}

	model := ngram.New(int(n), defaultBits)

	var numContexts uint32
	if err := binary.Read(r, binary.BigEndian, &numContexts); err != nil {
		return nil, fmt.Errorf("%w: truncated context count: %v", ErrIO, err)
	}

	for i := uint32(0); i < numContexts; i++ {
		var symLen uint32
		if err := binary.Read(r, binary.BigEndian, &symLen); err != nil {
			return nil, fmt.Errorf("%w: truncated context %d symbol length: %v", ErrIO, i, err)
		}
		symbols := make([]rune, symLen)
		for j := range symbols {
			if err := binary.Read(r, binary.BigEndian, &symbols[j]); err != nil {
				return nil, fmt.Errorf("%w: truncated context %d symbol %d: %v", ErrIO, i, j, err)
			}
		}

		var numSuccessors uint32
		if err := binary.Read(r, binary.BigEndian, &numSuccessors); err != nil {
			return nil, fmt.Errorf("%w: truncated context %d successor count: %v", ErrIO, i, err)
		}
		counts := make(map[rune]int, numSuccessors)
		for j := uint32(0); j < numSuccessors; j++ {
			var sym rune
			var count uint32
			if err := binary.Read(r, binary.BigEndian, &sym); err != nil {
				return nil, fmt.Errorf("%w: truncated context %d successor %d symbol: %v", ErrIO, i, j, err)
			}
			if err := binary.Read(r, binary.BigEndian, &count); err != nil {
				return nil, fmt.Errorf("%w: truncated context %d successor %d count: %v", ErrIO, i, j, err)
			}
			counts[sym] = int(count)
		}

		if err := model.LoadContext(symbols, counts); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIO, err)
		}
	}

	return model, nil
}
