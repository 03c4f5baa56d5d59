package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
)

// authenticateAES256 implements Algorithm 2.A (R6, with the R5 case falling
// out of the same hash when the iteration loop exits immediately). It tries
// the user password and then the owner password.
func (h *standardHandler) authenticateAES256(pwd []byte) error {
	if len(pwd) > 127 {
		pwd = pwd[:127]
	}
	if len(h.user) >= 48 && len(h.ue) >= 32 {
		validationSalt := h.user[32:40]
		keySalt := h.user[40:48]
		if equalPrefix(hash2B(pwd, validationSalt, nil, h.r)[:32], h.user[:32]) {
			fileKey, err := aesCBC(hash2B(pwd, keySalt, nil, h.r)[:32], make([]byte, aes.BlockSize), h.ue[:32])
			if err != nil {
				return err
			}
			h.key = fileKey
			return nil
		}
	}
	if len(h.owner) >= 48 && len(h.oe) >= 32 && len(h.user) >= 48 {
		validationSalt := h.owner[32:40]
		keySalt := h.owner[40:48]
		if equalPrefix(hash2B(pwd, validationSalt, h.user[:48], h.r)[:32], h.owner[:32]) {
			fileKey, err := aesCBC(hash2B(pwd, keySalt, h.user[:48], h.r)[:32], make([]byte, aes.BlockSize), h.oe[:32])
			if err != nil {
				return err
			}
			h.key = fileKey
			return nil
		}
	}
	return fmt.Errorf("password rejected: %w", ErrDecryptionFailed)
}

// hash2B is the iterated hash of Algorithm 2.B. For R5 it reduces to a
// single SHA-256.
func hash2B(pwd, salt, extra []byte, r int) []byte {
	sum := sha256.Sum256(concat(pwd, salt, extra))
	h := sum[:]
	if r < 6 {
		return h
	}
	for round := 0; ; round++ {
		block := make([]byte, 0, 64*(len(pwd)+len(h)+len(extra)))
		for len(block) < 64*(len(pwd)+len(h)+len(extra)) {
			block = append(block, pwd...)
			block = append(block, h...)
			block = append(block, extra...)
		}
		enc, err := aesCBCEncryptNoPad(h[:16], h[16:32], block)
		if err != nil {
			return h
		}
		var mod int
		for _, b := range enc[:16] {
			mod += int(b)
		}
		switch mod % 3 {
		case 0:
			s := sha256.Sum256(enc)
			h = s[:]
		case 1:
			s := sha512.Sum384(enc)
			h = s[:]
		default:
			s := sha512.Sum512(enc)
			h = s[:]
		}
		if round >= 63 && int(enc[len(enc)-1]) <= round-32 {
			return h[:32]
		}
	}
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// aesDecrypt decrypts CBC data whose first block is the IV, stripping PKCS#7
// padding.
func aesDecrypt(key, data []byte) ([]byte, error) {
	if len(data) < aes.BlockSize {
		return nil, errors.New("aes ciphertext too short")
	}
	iv := data[:aes.BlockSize]
	ct := data[aes.BlockSize:]
	if len(ct) == 0 {
		return nil, nil
	}
	if len(ct)%aes.BlockSize != 0 {
		return nil, errors.New("aes ciphertext not a multiple of the block size")
	}
	out, err := aesCBC(key, iv, ct)
	if err != nil {
		return nil, err
	}
	pad := int(out[len(out)-1])
	if pad <= 0 || pad > aes.BlockSize || pad > len(out) {
		// Broken padding is common in the wild; return the unstripped data
		// rather than failing the whole object.
		return out, nil
	}
	return out[:len(out)-pad], nil
}

func aesCBC(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, errors.New("aes data not a multiple of the block size")
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

func aesCBCEncryptNoPad(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, errors.New("aes data not a multiple of the block size")
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}
