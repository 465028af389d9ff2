// Package session 基于认证服务签发的 HS256 访问令牌实现 auth.SessionProvider.
//
// 令牌优先从 cookie（默认 sb-access-token）读取，其次从 Authorization: Bearer 头读取.
// 配置吊销存储后，Revoke 过的会话在令牌自然过期前都会被拒绝.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Tsukikage7/gatekeeper/auth"
	"github.com/Tsukikage7/gatekeeper/logger"
)

const revokedKeyPrefix = "session:revoked:"

// ErrEmptySecret 签名密钥为空.
var ErrEmptySecret = errors.New("session: 签名密钥不能为空")

// Claims 访问令牌声明.
type Claims struct {
	Email     string `json:"email,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

// Provider JWT 会话提供方.
type Provider struct {
	secret []byte
	opts   *options
	parser *jwt.Parser
	log    logger.Logger
}

var _ auth.SessionProvider = (*Provider)(nil)

// New 创建会话提供方.
func New(secret string, opts ...Option) (*Provider, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(o.leeway),
		jwt.WithTimeFunc(o.now),
	}
	if o.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(o.issuer))
	}

	return &Provider{
		secret: []byte(secret),
		opts:   o,
		parser: jwt.NewParser(parserOpts...),
		log:    o.logger.With(logger.String("component", "session")),
	}, nil
}

// Session 实现 auth.SessionProvider.
//
// 未携带令牌返回 auth.ErrSessionNotFound，令牌无效、过期或已吊销返回 auth.ErrSessionInvalid，
// 吊销存储故障原样返回.
func (p *Provider) Session(ctx context.Context, r *http.Request) (*auth.Session, error) {
	token := p.extract(r)
	if token == "" {
		return nil, auth.ErrSessionNotFound
	}

	claims := &Claims{}
	if _, err := p.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}); err != nil {
		p.log.With(logger.Err(err)).Debug("[Session] 令牌校验失败")
		return nil, fmt.Errorf("%w: %w", auth.ErrSessionInvalid, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: 缺少 sub", auth.ErrSessionInvalid)
	}

	if claims.SessionID != "" && p.opts.revoked != nil {
		revoked, err := p.opts.revoked.Exists(ctx, revokedKeyPrefix+claims.SessionID)
		if err != nil {
			return nil, fmt.Errorf("session: 查询吊销记录失败: %w", err)
		}
		if revoked {
			return nil, fmt.Errorf("%w: 会话已吊销", auth.ErrSessionInvalid)
		}
	}

	s := &auth.Session{
		ID:     claims.SessionID,
		UserID: claims.Subject,
		Email:  claims.Email,
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// extract 从 cookie 或 Bearer 头读取令牌.
func (p *Provider) extract(r *http.Request) string {
	if c, err := r.Cookie(p.opts.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	const prefix = "bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// Issue 为用户签发访问令牌，返回令牌与会话 ID.
func (p *Provider) Issue(userID, email string) (token, sessionID string, err error) {
	now := p.opts.now()
	sessionID = uuid.NewString()
	claims := &Claims{
		Email:     email,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    p.opts.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.opts.ttl)),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		p.log.With(logger.String("user_id", userID), logger.Err(err)).Error("[Session] 签发令牌失败")
		return "", "", fmt.Errorf("session: 签发令牌失败: %w", err)
	}
	return token, sessionID, nil
}

// Revoke 吊销会话直至 expiresAt.
func (p *Provider) Revoke(ctx context.Context, sessionID string, expiresAt time.Time) error {
	if p.opts.revoked == nil || sessionID == "" {
		return nil
	}
	ttl := expiresAt.Sub(p.opts.now()) + p.opts.leeway
	if ttl <= 0 {
		return nil
	}
	if err := p.opts.revoked.Set(ctx, revokedKeyPrefix+sessionID, "1", ttl); err != nil {
		return fmt.Errorf("session: 写入吊销记录失败: %w", err)
	}
	p.log.With(logger.String("session_id", sessionID)).Info("[Session] 会话已吊销")
	return nil
}
