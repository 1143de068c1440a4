package chunker

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"unicode/utf8"
)

// blockReader reads fixed-size byte blocks from an input and yields the
// longest valid UTF-8 prefix of the accumulated bytes, carrying any
// incomplete trailing sequence over to the next call. Single pass, not
// restartable. One reader exclusively owns its input and leftover buffer.
type blockReader struct {
	r         io.Reader
	blockSize int
	policy    DecodePolicy
	logger    *slog.Logger

	// Undecoded trailing bytes from the previous block. Never more than
	// utf8.UTFMax-1 bytes and never valid on its own.
	leftover []byte
	done     bool
	err      error
}

func newBlockReader(r io.Reader, opts options) *blockReader {
	return &blockReader{
		r:         r,
		blockSize: opts.blockSize,
		policy:    opts.policy,
		logger:    opts.logger,
	}
}

// next returns the next decoded block of text. It returns io.EOF once the
// input is exhausted and every decodable byte has been handed out. Read
// failures and, under DecodeStrict, malformed input permanently fail the
// reader.
func (b *blockReader) next() (string, error) {
	if b.err != nil {
		return "", b.err
	}

	for {
		if b.done && len(b.leftover) == 0 {
			return "", io.EOF
		}

		buf := make([]byte, 0, b.blockSize+utf8.UTFMax)
		buf = append(buf, b.leftover...)
		b.leftover = b.leftover[:0]

		if !b.done {
			block := make([]byte, b.blockSize)
			n, err := io.ReadFull(b.r, block)
			buf = append(buf, block[:n]...)
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				b.done = true
			} else if err != nil {
				b.done = true
				b.err = errors.Join(errors.New("failed to read block from input"), err)
				return "", b.err
			}
		}

		if len(buf) == 0 {
			return "", io.EOF
		}

		text, err := b.decode(buf)
		if err != nil {
			b.err = err
			return "", b.err
		}
		if len(text) > 0 {
			return text, nil
		}
		// Nothing decodable yet: either the whole block was skipped or it
		// ended up in leftover. Pull more bytes.
	}
}

// decode extracts the longest decodable prefix from buf, stashing an
// incomplete trailing sequence as leftover and applying the decode policy
// to bytes that can never become valid.
func (b *blockReader) decode(buf []byte) (string, error) {
	out := make([]byte, 0, len(buf))
	rest := buf
	for len(rest) > 0 {
		n := validPrefixLen(rest)
		out = append(out, rest[:n]...)
		rest = rest[n:]
		if len(rest) == 0 {
			break
		}

		if !b.done && incompleteSequence(rest) {
			// May still complete once the next block arrives.
			b.leftover = append(b.leftover, rest...)
			break
		}

		if b.policy == DecodeStrict {
			return "", errors.Join(ErrMalformedInput, fmt.Errorf("undecodable byte 0x%02x", rest[0]))
		}
		b.logger.Warn("skipping undecodable byte", slog.String("byte", fmt.Sprintf("0x%02x", rest[0])))
		rest = rest[1:]
	}

	return string(out), nil
}

// validPrefixLen returns the length of the longest prefix of p that is
// valid UTF-8.
func validPrefixLen(p []byte) int {
	if utf8.Valid(p) {
		return len(p)
	}
	i := 0
	for i < len(p) {
		if p[i] < utf8.RuneSelf {
			i++
			continue
		}
		r, size := utf8.DecodeRune(p[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return i
}

// incompleteSequence reports whether p is a proper prefix of the encoding
// of a single character, and therefore may become valid once more bytes
// are appended.
func incompleteSequence(p []byte) bool {
	if len(p) == 0 || len(p) >= utf8.UTFMax {
		return false
	}

	var want int
	switch lead := p[0]; {
	case lead&0xE0 == 0xC0:
		want = 2
	case lead&0xF0 == 0xE0:
		want = 3
	case lead&0xF8 == 0xF0:
		want = 4
	default:
		return false
	}
	if len(p) >= want {
		return false
	}

	for _, c := range p[1:] {
		if c&0xC0 != 0x80 {
			return false
		}
	}
	return true
}
