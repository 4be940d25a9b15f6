package keytangle

import (
	"fmt"
	"unicode"

	"github.com/alan-christopher/keytanglement/keytangle/bitmap"
)

// Encrypt XORs message with the first message.Size() bits of key.
func Encrypt(message, key bitmap.Dense) (bitmap.Dense, error) {
	return applyPad(message, key)
}

// Decrypt XORs cipher with the first cipher.Size() bits of key. It is the same
// operation as Encrypt.
func Decrypt(cipher, key bitmap.Dense) (bitmap.Dense, error) {
	return applyPad(cipher, key)
}

func applyPad(in, key bitmap.Dense) (bitmap.Dense, error) {
	if key.Size() < in.Size() {
		return bitmap.Empty(), fmt.Errorf("%w: need %d bits, have %d", ErrInsufficientKeyMaterial, in.Size(), key.Size())
	}
	pad, err := bitmap.Slice(key, 0, in.Size())
	if err != nil {
		return bitmap.Empty(), err
	}
	return bitmap.XOr(in, pad), nil
}

// EncodeMessage converts ASCII text to bits, eight per character, most
// significant bit first. Text containing anything outside 7-bit ASCII is
// rejected before any bits are produced.
func EncodeMessage(text string) (bitmap.Dense, error) {
	for i, c := range text {
		if c > unicode.MaxASCII {
			return bitmap.Empty(), fmt.Errorf("%w: %q at byte %d", ErrInvalidMessageEncoding, c, i)
		}
	}
	var d bitmap.Dense
	for i := 0; i < len(text); i++ {
		for bit := 7; bit >= 0; bit-- {
			d.AppendBit(text[i]&(1<<bit) != 0)
		}
	}
	return d, nil
}

// DecodeMessage is the inverse of EncodeMessage.
func DecodeMessage(bits bitmap.Dense) (string, error) {
	if bits.Size()%8 != 0 {
		return "", fmt.Errorf("%w: %d bits is not a whole number of characters", ErrInvalidMessageEncoding, bits.Size())
	}
	text := make([]byte, 0, bits.Size()/8)
	for i := 0; i < bits.Size(); i += 8 {
		var c byte
		for j := 0; j < 8; j++ {
			c <<= 1
			if bits.Get(i + j) {
				c |= 1
			}
		}
		if c > unicode.MaxASCII {
			return "", fmt.Errorf("%w: byte %#x at character %d", ErrInvalidMessageEncoding, c, i/8)
		}
		text = append(text, c)
	}
	return string(text), nil
}
