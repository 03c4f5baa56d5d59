// Package security implements the decrypt side of the PDF Standard security
// handler: password authentication and string/stream decryption for RC4
// (R2-R4), AES-128 (V4) and AES-256 (R5/R6) documents.
package security

import (
	"crypto/md5"
	"crypto/rc4"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/StrongheartedX/onyx/object"
)

// ErrDecryptionFailed reports that the supplied password does not open the
// document. It is also returned for decrypt calls made before a successful
// Authenticate.
var ErrDecryptionFailed = errors.New("pdf: decryption failed")

// DataClass identifies the kind of payload being decrypted.
type DataClass int

const (
	DataClassStream DataClass = iota
	DataClassString
	DataClassMetadataStream
)

// Permissions describes the actions the document grants.
type Permissions struct {
	Print, Modify, Copy, ModifyAnnotations, FillForms, ExtractAccessible, Assemble, PrintHighQuality bool
}

// Handler authenticates passwords and decrypts payloads.
type Handler interface {
	IsEncrypted() bool
	Authenticate(password string) error
	Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error)
	Permissions() Permissions
	EncryptMetadata() bool
	// Params exposes the algorithm/strength parameters for diagnostics.
	Params() (v, r, bits int)
}

// NewHandler builds a handler from the Encrypt dictionary and the first
// element of the trailer ID array. A nil encDict yields the pass-through
// handler.
func NewHandler(encDict *object.Dict, fileID []byte) (Handler, error) {
	if encDict == nil {
		return NoopHandler(), nil
	}
	if filter, ok := encDict.Name("Filter"); ok && filter != "Standard" {
		return nil, fmt.Errorf("unsupported security handler %q", filter)
	}
	v := int64(1)
	if n, ok := encDict.Int("V"); ok && n > 0 {
		v = n
	}
	r := int64(2)
	if n, ok := encDict.Int("R"); ok && n > 0 {
		r = n
	}
	if v > 5 || r > 6 {
		return nil, fmt.Errorf("unsupported encryption version V=%d R=%d", v, r)
	}
	keyBits := 40
	if v >= 5 {
		keyBits = 256
	}
	if n, ok := encDict.Int("Length"); ok && n > 0 {
		keyBits = int(n)
	}
	if v >= 4 && keyBits < 128 {
		keyBits = 128
	}
	if keyBits%8 != 0 {
		return nil, errors.New("encryption key length must be a multiple of 8")
	}
	owner, _ := encDict.StringBytes("O")
	user, _ := encDict.StringBytes("U")
	oe, _ := encDict.StringBytes("OE")
	ue, _ := encDict.StringBytes("UE")
	pVal, _ := encDict.Int("P")
	encryptMeta := true
	if b, ok := encDict.Bool("EncryptMetadata"); ok {
		encryptMeta = b
	}

	streamAlgo, stringAlgo := algoRC4, algoRC4
	if v >= 4 {
		cryptFilters, err := parseCryptFilters(encDict, algoAES)
		if err != nil {
			return nil, err
		}
		streamAlgo, err = resolveCryptFilter(encDict, "StmF", cryptFilters)
		if err != nil {
			return nil, err
		}
		stringAlgo, err = resolveCryptFilter(encDict, "StrF", cryptFilters)
		if err != nil {
			return nil, err
		}
	}
	return &standardHandler{
		v:           int(v),
		r:           int(r),
		keyBits:     keyBits,
		owner:       owner,
		user:        user,
		oe:          oe,
		ue:          ue,
		p:           int32(pVal),
		fileID:      fileID,
		encryptMeta: encryptMeta,
		streamAlgo:  streamAlgo,
		stringAlgo:  stringAlgo,
	}, nil
}

type cryptAlgo int

const (
	algoNone cryptAlgo = iota
	algoRC4
	algoAES
)

type standardHandler struct {
	key         []byte
	v, r        int
	keyBits     int
	owner, user []byte
	oe, ue      []byte
	p           int32
	fileID      []byte
	encryptMeta bool
	authed      bool
	streamAlgo  cryptAlgo
	stringAlgo  cryptAlgo
}

func (h *standardHandler) IsEncrypted() bool        { return true }
func (h *standardHandler) EncryptMetadata() bool    { return h.encryptMeta }
func (h *standardHandler) Params() (v, r, bits int) { return h.v, h.r, h.keyBits }

// Authenticate derives the file key from password and validates it against
// the U/O entries. It tries the user password first, then the owner
// password, and is idempotent: re-authentication with the same password
// yields the same outcome.
func (h *standardHandler) Authenticate(password string) error {
	h.authed = false
	h.key = nil
	if h.r >= 5 {
		if err := h.authenticateAES256([]byte(password)); err != nil {
			return err
		}
		h.authed = true
		return nil
	}
	keyBytes := h.keyBits / 8
	if keyBytes > 16 {
		keyBytes = 16
	}
	key := deriveKey([]byte(password), h.owner, h.p, h.fileID, keyBytes, h.r, h.encryptMeta)
	if checkUserPassword(key, h.user, h.fileID, h.r) {
		h.key = key
		h.authed = true
		return nil
	}
	// The password may be the owner password: recover the user password from
	// the O entry and retry.
	if userPwd, ok := recoverUserPassword([]byte(password), h.owner, keyBytes, h.r); ok {
		key = deriveKey(userPwd, h.owner, h.p, h.fileID, keyBytes, h.r, h.encryptMeta)
		if checkUserPassword(key, h.user, h.fileID, h.r) {
			h.key = key
			h.authed = true
			return nil
		}
	}
	return fmt.Errorf("password rejected: %w", ErrDecryptionFailed)
}

func (h *standardHandler) Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	if !h.authed {
		return nil, ErrDecryptionFailed
	}
	if class == DataClassMetadataStream && !h.encryptMeta {
		return data, nil
	}
	algo := h.streamAlgo
	if class == DataClassString {
		algo = h.stringAlgo
	}
	if algo == algoNone || len(data) == 0 {
		return data, nil
	}
	key := objectKey(h.key, objNum, gen, h.r, algo == algoAES)
	if algo == algoAES {
		return aesDecrypt(key, data)
	}
	return rc4Apply(key, data)
}

func (h *standardHandler) Permissions() Permissions {
	return Permissions{
		Print:             h.p&0x4 != 0,
		Modify:            h.p&0x8 != 0,
		Copy:              h.p&0x10 != 0,
		ModifyAnnotations: h.p&0x20 != 0,
		FillForms:         h.p&0x100 != 0,
		ExtractAccessible: h.p&0x200 != 0,
		Assemble:          h.p&0x400 != 0,
		PrintHighQuality:  h.p&0x800 != 0,
	}
}

type noopHandler struct{}

func (noopHandler) IsEncrypted() bool         { return false }
func (noopHandler) Authenticate(string) error { return nil }
func (noopHandler) EncryptMetadata() bool     { return false }
func (noopHandler) Params() (int, int, int)   { return 0, 0, 0 }
func (noopHandler) Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	return data, nil
}
func (noopHandler) Permissions() Permissions {
	return Permissions{Print: true, Modify: true, Copy: true, ModifyAnnotations: true,
		FillForms: true, ExtractAccessible: true, Assemble: true, PrintHighQuality: true}
}

// NoopHandler returns the pass-through handler used for unencrypted
// documents.
func NoopHandler() Handler { return noopHandler{} }

var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

func padPassword(pwd []byte) []byte {
	padded := make([]byte, 32)
	n := copy(padded, pwd)
	copy(padded[n:], passwordPadding[:32-n])
	return padded
}

// deriveKey implements Algorithm 2 (ISO 32000-1, 7.6.3.3).
func deriveKey(pwd, owner []byte, pVal int32, fileID []byte, keyBytes, r int, encryptMeta bool) []byte {
	data := make([]byte, 0, 32+len(owner)+8+len(fileID))
	data = append(data, padPassword(pwd)...)
	data = append(data, owner...)
	var pBuf [4]byte
	binary.LittleEndian.PutUint32(pBuf[:], uint32(pVal))
	data = append(data, pBuf[:]...)
	data = append(data, fileID...)
	if r >= 4 && !encryptMeta {
		data = append(data, 0xFF, 0xFF, 0xFF, 0xFF)
	}
	sum := md5.Sum(data)
	key := sum[:]
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(key[:keyBytes])
			key = sum[:]
		}
	}
	return key[:keyBytes]
}

// checkUserPassword implements Algorithms 6 (R2) and 7 (R3/R4).
func checkUserPassword(key, userEntry, fileID []byte, r int) bool {
	if len(userEntry) < 16 {
		return false
	}
	if r <= 2 {
		expect, err := rc4Apply(key, passwordPadding)
		if err != nil {
			return false
		}
		return equalPrefix(expect[:16], userEntry[:16])
	}
	sum := md5.Sum(append(append([]byte{}, passwordPadding...), fileID...))
	val := sum[:]
	for i := 0; i <= 19; i++ {
		step := make([]byte, len(key))
		for j := range key {
			step[j] = key[j] ^ byte(i)
		}
		out, err := rc4Apply(step, val)
		if err != nil {
			return false
		}
		val = out
	}
	return equalPrefix(val[:16], userEntry[:16])
}

// recoverUserPassword decrypts the O entry with the owner-password key
// (Algorithm 7 owner branch) to give the user password candidate.
func recoverUserPassword(ownerPwd, oEntry []byte, keyBytes, r int) ([]byte, bool) {
	if len(oEntry) < 32 {
		return nil, false
	}
	sum := md5.Sum(padPassword(ownerPwd))
	key := sum[:]
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(key)
			key = sum[:]
		}
	}
	key = key[:keyBytes]
	data := append([]byte{}, oEntry[:32]...)
	if r <= 2 {
		out, err := rc4Apply(key, data)
		if err != nil {
			return nil, false
		}
		return out, true
	}
	for i := 19; i >= 0; i-- {
		step := make([]byte, len(key))
		for j := range key {
			step[j] = key[j] ^ byte(i)
		}
		out, err := rc4Apply(step, data)
		if err != nil {
			return nil, false
		}
		data = out
	}
	return data, true
}

// objectKey implements Algorithm 1: per-object keys for R<=4, the file key
// itself for R>=5.
func objectKey(fileKey []byte, objNum, gen, r int, useAES bool) []byte {
	if r >= 5 {
		return fileKey
	}
	key := append([]byte{}, fileKey...)
	key = append(key,
		byte(objNum), byte(objNum>>8), byte(objNum>>16),
		byte(gen), byte(gen>>8))
	if useAES {
		key = append(key, 0x73, 0x41, 0x6C, 0x54) // "sAlT"
	}
	sum := md5.Sum(key)
	n := len(fileKey) + 5
	if n > 16 {
		n = 16
	}
	return sum[:n]
}

func rc4Apply(key, data []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}

func equalPrefix(a, b []byte) bool {
	if len(a) > len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func parseCryptFilters(dict *object.Dict, base cryptAlgo) (map[string]cryptAlgo, error) {
	out := make(map[string]cryptAlgo)
	cfObj, ok := dict.Get("CF")
	if !ok {
		return out, nil
	}
	cfDict, ok := cfObj.(*object.Dict)
	if !ok {
		return nil, errors.New("CF must be a dictionary")
	}
	for _, name := range cfDict.Keys() {
		entryObj, _ := cfDict.Get(name)
		entry, ok := entryObj.(*object.Dict)
		if !ok {
			return nil, errors.New("crypt filter entry must be a dictionary")
		}
		algo := base
		if cfm, ok := entry.Name("CFM"); ok {
			switch cfm {
			case "V2":
				algo = algoRC4
			case "AESV2", "AESV3":
				algo = algoAES
			case "None":
				algo = algoNone
			default:
				return nil, fmt.Errorf("unsupported crypt filter method %q", cfm)
			}
		}
		out[string(name)] = algo
	}
	return out, nil
}

func resolveCryptFilter(dict *object.Dict, key object.Name, cf map[string]cryptAlgo) (cryptAlgo, error) {
	name, ok := dict.Name(key)
	if !ok || name == "" || name == "Identity" {
		// StmF/StrF default to Identity (ISO 32000-1, table 20).
		return algoNone, nil
	}
	if algo, exists := cf[string(name)]; exists {
		return algo, nil
	}
	return algoNone, fmt.Errorf("crypt filter %q not defined", name)
}
