package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"regexp"
)

const (
	nonceSize    = 16
	nonceLength  = 22 // base64.RawURLEncoding.EncodedLen(nonceSize)
	signedLength = nonceLength + 43
)

// tokenPattern 令牌格式：至少 16 个 [A-Za-z0-9_-] 字符.
var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{16,}$`)

// ErrNoSigningKey 未配置签名密钥.
var ErrNoSigningKey = errors.New("csrf: 未配置签名密钥")

// ValidFormat 检查令牌格式.
//
// 这只是格式校验，不能证明令牌由服务端签发.
func ValidFormat(token string) bool {
	return tokenPattern.MatchString(token)
}

// IssueToken 签发一个 HMAC 签名令牌.
func (p *Protector) IssueToken() (string, error) {
	if len(p.opts.signingKey) == 0 {
		return "", ErrNoSigningKey
	}
	raw := make([]byte, nonceSize)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	nonce := base64.RawURLEncoding.EncodeToString(raw)
	return nonce + p.sign(nonce), nil
}

// VerifyToken 校验令牌格式，配置签名密钥时同时校验签名.
func (p *Protector) VerifyToken(token string) bool {
	if !ValidFormat(token) {
		return false
	}
	if len(p.opts.signingKey) == 0 {
		return true
	}
	if len(token) != signedLength {
		return false
	}
	nonce, sig := token[:nonceLength], token[nonceLength:]
	return hmac.Equal([]byte(sig), []byte(p.sign(nonce)))
}

func (p *Protector) sign(nonce string) string {
	mac := hmac.New(sha256.New, p.opts.signingKey)
	mac.Write([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
