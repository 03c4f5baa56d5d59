package security

import (
	"bytes"
	"crypto/md5"
	"crypto/rc4"
	"errors"
	"testing"

	"github.com/StrongheartedX/onyx/object"
)

// Test fixtures derive O, U, and keys directly from the algorithms in
// ISO 32000-1 using the standard library, independent of the handler code.

func padPw(pw string) []byte {
	out := make([]byte, 32)
	n := copy(out, pw)
	copy(out[n:], passwordPadding[:32-n])
	return out
}

func rc4Bytes(t *testing.T, key, data []byte) []byte {
	t.Helper()
	c, err := rc4.NewCipher(key)
	if err != nil {
		t.Fatalf("rc4: %v", err)
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}

type r2Fixture struct {
	dict    *object.Dict
	fileID  []byte
	fileKey []byte
}

func newR2Fixture(t *testing.T, userPw, ownerPw string) r2Fixture {
	t.Helper()
	fileID := []byte("0123456789abcdef")
	var p int32 = -1

	ownerSum := md5.Sum(padPw(ownerPw))
	o := rc4Bytes(t, ownerSum[:5], padPw(userPw))

	keyInput := append([]byte{}, padPw(userPw)...)
	keyInput = append(keyInput, o...)
	keyInput = append(keyInput, byte(p), byte(uint32(p)>>8), byte(uint32(p)>>16), byte(uint32(p)>>24))
	keyInput = append(keyInput, fileID...)
	keySum := md5.Sum(keyInput)
	fileKey := keySum[:5]

	u := rc4Bytes(t, fileKey, passwordPadding)

	dict := object.NewDict()
	dict.Set("Filter", object.Name("Standard"))
	dict.Set("V", object.Integer(1))
	dict.Set("R", object.Integer(2))
	dict.Set("Length", object.Integer(40))
	dict.Set("P", object.Integer(p))
	dict.Set("O", object.String{Data: o})
	dict.Set("U", object.String{Data: u})
	return r2Fixture{dict: dict, fileID: fileID, fileKey: fileKey}
}

func TestAuthenticateUserPassword(t *testing.T) {
	fx := newR2Fixture(t, "user", "owner")
	h, err := NewHandler(fx.dict, fx.fileID)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	if !h.IsEncrypted() {
		t.Fatalf("IsEncrypted() = false")
	}
	if err := h.Authenticate("user"); err != nil {
		t.Fatalf("Authenticate(user) error = %v", err)
	}
	if v, r, bits := h.Params(); v != 1 || r != 2 || bits != 40 {
		t.Fatalf("Params() = %d %d %d", v, r, bits)
	}
}

func TestAuthenticateOwnerPassword(t *testing.T) {
	fx := newR2Fixture(t, "user", "owner")
	h, err := NewHandler(fx.dict, fx.fileID)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	if err := h.Authenticate("owner"); err != nil {
		t.Fatalf("Authenticate(owner) error = %v", err)
	}
}

func TestAuthenticateWrongPassword(t *testing.T) {
	fx := newR2Fixture(t, "user", "owner")
	h, err := NewHandler(fx.dict, fx.fileID)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	if err := h.Authenticate("nope"); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("Authenticate(wrong) error = %v, want ErrDecryptionFailed", err)
	}
	// Failure then success with the right password: authentication state
	// must not be sticky.
	if err := h.Authenticate("user"); err != nil {
		t.Fatalf("Authenticate(user) after failure error = %v", err)
	}
}

func TestDecryptRequiresAuthentication(t *testing.T) {
	fx := newR2Fixture(t, "user", "owner")
	h, _ := NewHandler(fx.dict, fx.fileID)
	if _, err := h.Decrypt(1, 0, []byte("x"), DataClassString); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("Decrypt before auth error = %v", err)
	}
}

func TestDecryptString(t *testing.T) {
	fx := newR2Fixture(t, "user", "owner")
	h, _ := NewHandler(fx.dict, fx.fileID)
	if err := h.Authenticate("user"); err != nil {
		t.Fatalf("Authenticate error = %v", err)
	}

	// Encrypt with the Algorithm 1 object key computed independently.
	plaintext := []byte("secret contents")
	const objNum, gen = 7, 0
	objKey := append([]byte{}, fx.fileKey...)
	objKey = append(objKey, byte(objNum), byte(objNum>>8), byte(objNum>>16), byte(gen), byte(gen>>8))
	sum := md5.Sum(objKey)
	ciphertext := rc4Bytes(t, sum[:10], plaintext)

	got, err := h.Decrypt(objNum, gen, ciphertext, DataClassString)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("Decrypt() = %q, want %q", got, plaintext)
	}
}

func TestNewHandlerRejectsUnknownFilter(t *testing.T) {
	dict := object.NewDict()
	dict.Set("Filter", object.Name("AcmeSecurity"))
	if _, err := NewHandler(dict, nil); err == nil {
		t.Fatalf("expected unsupported handler error")
	}
}

func TestNewHandlerRejectsFutureVersions(t *testing.T) {
	dict := object.NewDict()
	dict.Set("Filter", object.Name("Standard"))
	dict.Set("V", object.Integer(6))
	if _, err := NewHandler(dict, nil); err == nil {
		t.Fatalf("expected version error")
	}
}

func TestNoopHandlerPassesThrough(t *testing.T) {
	h, err := NewHandler(nil, nil)
	if err != nil {
		t.Fatalf("NewHandler(nil) error = %v", err)
	}
	if h.IsEncrypted() {
		t.Fatalf("noop handler reports encrypted")
	}
	data := []byte("plain")
	got, err := h.Decrypt(1, 0, data, DataClassStream)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("Decrypt() = %q, %v", got, err)
	}
}

func TestCryptFilterIdentityDefault(t *testing.T) {
	// V4 with no StmF names Identity: stream data must pass through.
	fx := newR2Fixture(t, "user", "owner")
	fx.dict.Set("V", object.Integer(4))
	fx.dict.Set("R", object.Integer(4))
	fx.dict.Set("Length", object.Integer(128))
	h, err := NewHandler(fx.dict, fx.fileID)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	sh, ok := h.(*standardHandler)
	if !ok {
		t.Fatalf("unexpected handler type %T", h)
	}
	if sh.streamAlgo != algoNone || sh.stringAlgo != algoNone {
		t.Fatalf("algos = %v %v, want identity", sh.streamAlgo, sh.stringAlgo)
	}
}

func TestParseCryptFilters(t *testing.T) {
	cf := object.NewDict()
	std := object.NewDict()
	std.Set("CFM", object.Name("AESV2"))
	cf.Set("StdCF", std)

	dict := object.NewDict()
	dict.Set("CF", cf)
	dict.Set("StmF", object.Name("StdCF"))

	filters, err := parseCryptFilters(dict, algoAES)
	if err != nil {
		t.Fatalf("parseCryptFilters() error = %v", err)
	}
	algo, err := resolveCryptFilter(dict, "StmF", filters)
	if err != nil {
		t.Fatalf("resolveCryptFilter() error = %v", err)
	}
	if algo != algoAES {
		t.Fatalf("algo = %v, want AES", algo)
	}
	if _, err := resolveCryptFilter(dict, "StrF", filters); err != nil {
		t.Fatalf("absent StrF should default to identity: %v", err)
	}
}
