// Copyright 2024 Michael J. Fromberger. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chromedb

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyBytes = 16
	keySalt  = "saltysalt"
	ivString = "                " // 16 ASCII spaces
)

var versionTags = [][]byte{[]byte("v10"), []byte("v11")}

// ErrNotEncrypted is reported by DecryptValue for a blob that carries no
// known version prefix. The caller should fall back to the plaintext value
// column.
var ErrNotEncrypted = errors.New("value is not encrypted")

// ErrCipherLength is reported for ciphertext whose length is not a positive
// multiple of the AES block size after prefix stripping.
var ErrCipherLength = errors.New("ciphertext is not a whole number of blocks")

// EncryptionKey derives the AES key for cookie values from the browser's
// keychain passphrase, using the specified number of PBKDF2 iterations.
func EncryptionKey(passphrase string, iterations int) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(keySalt), iterations, keyBytes, sha1.New)
}

// DecryptValue decrypts an encrypted_value blob with the given key.
//
// The blob is expected to carry a "v10" or "v11" version prefix followed by
// AES-128-CBC ciphertext with Chromium's fixed IV. Trailing PKCS#7-style
// padding is stripped when the final byte is a plausible pad length; there
// is no authenticated padding check, so a wrong key yields garbage rather
// than an error. The input is not modified.
func DecryptValue(key, val []byte) ([]byte, error) {
	tagged := false
	for _, tag := range versionTags {
		if bytes.HasPrefix(val, tag) {
			val = val[len(tag):]
			tagged = true
			break
		}
	}
	if !tagged {
		return nil, ErrNotEncrypted
	}
	if len(val) == 0 || len(val)%aes.BlockSize != 0 {
		return nil, ErrCipherLength
	}
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(val))
	cipher.NewCBCDecrypter(c, []byte(ivString)).CryptBlocks(out, val)

	if pad := int(out[len(out)-1]); pad > 0 && pad <= aes.BlockSize {
		out = out[:len(out)-pad]
	}
	return out, nil
}

// EncryptValue encrypts a cookie value with the given key, producing a blob
// in the same layout DecryptValue consumes: the "v10" version tag followed
// by AES-128-CBC ciphertext of the value with PKCS#7-style padding.
//
//	| clear | encrypted            |
//	+-------+-----...--+-----...---+
//	| v 1 0 | val ...  | p p ... p |
//	+-------+-----...--+-----...---+
func EncryptValue(key, val []byte) ([]byte, error) {
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padBytes := padLength(len(val))
	tag := versionTags[0]
	buf := make([]byte, len(tag)+len(val)+padBytes)
	copy(buf, tag)
	copy(buf[len(tag):], val)
	for i := len(tag) + len(val); i < len(buf); i++ {
		buf[i] = byte(padBytes)
	}

	cipher.NewCBCEncrypter(c, []byte(ivString)).CryptBlocks(buf[len(tag):], buf[len(tag):])
	return buf, nil
}

func padLength(n int) int {
	if n%aes.BlockSize == 0 {
		return aes.BlockSize // always at least 1 byte of padding
	}
	return aes.BlockSize - n%aes.BlockSize
}
