package cipher

import (
	"crypto/md5"
	"crypto/sha1"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// subkeyInfo is the literal HKDF info string for Shadowsocks subkeys.
var subkeyInfo = []byte("ss-subkey")

type masterKeyCacheKey struct {
	password string
	keyLen   int
}

var (
	masterKeyCacheMu sync.RWMutex
	masterKeyCache   = map[masterKeyCacheKey][]byte{}
)

// MasterKey derives the master key for password and keyLen via the
// EVP_BytesToKey construction (iterated MD5, count=1, no salt), caching the
// result by (password, keyLen).
func MasterKey(password string, keyLen int) []byte {
	ck := masterKeyCacheKey{password, keyLen}

	masterKeyCacheMu.RLock()
	if k, ok := masterKeyCache[ck]; ok {
		masterKeyCacheMu.RUnlock()
		return k
	}
	masterKeyCacheMu.RUnlock()

	k := evpBytesToKey(password, keyLen)

	masterKeyCacheMu.Lock()
	masterKeyCache[ck] = k
	masterKeyCacheMu.Unlock()

	return k
}

// evpBytesToKey implements the classic OpenSSL EVP_BytesToKey(MD5, count=1).
func evpBytesToKey(password string, keyLen int) []byte {
	const md5Len = md5.Size
	cnt := (keyLen-1)/md5Len + 1
	m := make([]byte, cnt*md5Len)

	var prev []byte
	for i := 0; i < cnt; i++ {
		h := md5.New()
		h.Write(prev)
		h.Write([]byte(password))
		d := h.Sum(nil)
		copy(m[i*md5Len:], d)
		prev = d
	}
	return m[:keyLen]
}

// SubKey derives the per-direction subkey from masterKey and a freshly
// generated (or received) salt via HKDF-SHA1 with info "ss-subkey".
func SubKey(masterKey, salt []byte, keyLen int) []byte {
	out := make([]byte, keyLen)
	r := hkdf.New(sha1.New, masterKey, salt, subkeyInfo)
	if _, err := io.ReadFull(r, out); err != nil {
		// HKDF only fails if the requested length exceeds 255*hash size;
		// every supported keyLen here is far below that bound.
		panic(err)
	}
	return out
}
