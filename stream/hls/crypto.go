package hls

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"github.com/streamkit/segmented/stream/common"
)

// sequenceIV derives the IV for a segment without an explicit IV
// attribute: the media sequence number as a big-endian 128-bit value
func sequenceIV(sequence int64) []byte {
	iv := make([]byte, aes.BlockSize)
	binary.BigEndian.PutUint64(iv[8:], uint64(sequence))
	return iv
}

// decryptSegment decrypts an AES-128-CBC payload in place and strips the
// PKCS#7 padding
func decryptSegment(data, key, iv []byte, url string) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, common.NewStreamError(common.StreamTypeHLS, url,
			common.ErrCodeSegment, "invalid decryption key", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, common.NewStreamError(common.StreamTypeHLS, url,
			common.ErrCodeSegment,
			fmt.Sprintf("invalid IV length %d", len(iv)), nil)
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, common.NewStreamError(common.StreamTypeHLS, url,
			common.ErrCodeSegment,
			fmt.Sprintf("encrypted segment length %d is not a multiple of the block size", len(data)), nil)
	}

	cipher.NewCBCDecrypter(block, iv).CryptBlocks(data, data)

	return stripPKCS7(data, url)
}

func stripPKCS7(data []byte, url string) ([]byte, error) {
	padding := int(data[len(data)-1])
	if padding < 1 || padding > aes.BlockSize || padding > len(data) {
		return nil, common.NewStreamError(common.StreamTypeHLS, url,
			common.ErrCodeSegment, "invalid segment padding", nil)
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, common.NewStreamError(common.StreamTypeHLS, url,
				common.ErrCodeSegment, "invalid segment padding", nil)
		}
	}
	return data[:len(data)-padding], nil
}
