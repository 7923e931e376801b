package security

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Kjeonghyun5142/bap-pool/internal/domain"

	"github.com/golang-jwt/jwt"
)

var (
	ErrTokenExpired     = errors.New("token expired or not valid yet")
	ErrInvalidIssuer    = errors.New("invalid issuer")
	ErrInvalidAudience  = errors.New("invalid audience")
	ErrInvalidSubject   = errors.New("invalid subject")
	ErrSigningKeyAbsent = errors.New("no signing key configured")
)

type Options struct {
	Alg       string // HS256 | RS256
	Secret    []byte
	Public    *rsa.PublicKey
	Private   *rsa.PrivateKey
	Issuer    string
	Audience  string
	TTL       time.Duration
	ClockSkew time.Duration
}

// Tokens verifies access tokens issued by the BapPool auth endpoints.
// Signing is only used by tooling and tests; the service itself never issues tokens.
type Tokens struct {
	method    jwt.SigningMethod
	secret    []byte
	public    *rsa.PublicKey
	private   *rsa.PrivateKey
	issuer    string
	audience  string
	ttl       time.Duration
	clockSkew time.Duration
	now       func() time.Time
}

func NewTokens(opts Options) (*Tokens, error) {
	t := &Tokens{
		secret:    opts.Secret,
		public:    opts.Public,
		private:   opts.Private,
		issuer:    opts.Issuer,
		audience:  opts.Audience,
		ttl:       opts.TTL,
		clockSkew: opts.ClockSkew,
		now:       time.Now,
	}
	if t.ttl <= 0 {
		t.ttl = 24 * time.Hour
	}

	switch opts.Alg {
	case "", jwt.SigningMethodHS256.Alg():
		if len(opts.Secret) == 0 {
			return nil, errors.New("security: HS256 requires a secret")
		}
		t.method = jwt.SigningMethodHS256
	case jwt.SigningMethodRS256.Alg():
		if opts.Public == nil {
			return nil, errors.New("security: RS256 requires a public key")
		}
		t.method = jwt.SigningMethodRS256
	default:
		return nil, fmt.Errorf("security: unsupported alg %q", opts.Alg)
	}

	return t, nil
}

// AccessClaims carries the user id both as sub and as the legacy "id" claim.
type AccessClaims struct {
	jwt.StandardClaims
	UserID int64 `json:"id,omitempty"`
}

func (t *Tokens) Sign(userID int64) (string, error) {
	now := t.now()
	claims := AccessClaims{
		StandardClaims: jwt.StandardClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    t.issuer,
			Audience:  t.audience,
			IssuedAt:  now.Unix(),
			NotBefore: now.Add(-t.clockSkew).Unix(),
			ExpiresAt: now.Add(t.ttl).Unix(),
		},
		UserID: userID,
	}
	token := jwt.NewWithClaims(t.method, claims)

	switch t.method {
	case jwt.SigningMethodRS256:
		if t.private == nil {
			return "", ErrSigningKeyAbsent
		}
		return token.SignedString(t.private)
	default:
		return token.SignedString(t.secret)
	}
}

// Verify checks signature, issuer, audience and time claims and returns the user id.
// Every failure wraps domain.ErrInvalidToken.
func (t *Tokens) Verify(tokenStr string) (int64, error) {
	claims, err := t.parse(tokenStr)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrInvalidToken, err)
	}
	return claims.userID()
}

func (t *Tokens) parse(tokenStr string) (*AccessClaims, error) {
	parser := jwt.Parser{
		ValidMethods:         []string{t.method.Alg()},
		SkipClaimsValidation: true,
	}
	claims := &AccessClaims{}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(tok *jwt.Token) (any, error) {
		if tok.Method.Alg() != t.method.Alg() {
			return nil, fmt.Errorf("unexpected alg %s", tok.Method.Alg())
		}
		if t.method == jwt.SigningMethodRS256 {
			return t.public, nil
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token not valid")
	}

	if t.issuer != "" && !claims.VerifyIssuer(t.issuer, true) {
		return nil, ErrInvalidIssuer
	}
	if t.audience != "" && !claims.VerifyAudience(t.audience, true) {
		return nil, ErrInvalidAudience
	}

	now := t.now()
	if claims.ExpiresAt != 0 && now.After(time.Unix(claims.ExpiresAt, 0).Add(t.clockSkew)) {
		return nil, ErrTokenExpired
	}
	if claims.NotBefore != 0 && now.Before(time.Unix(claims.NotBefore, 0).Add(-t.clockSkew)) {
		return nil, ErrTokenExpired
	}

	return claims, nil
}

func (c *AccessClaims) userID() (int64, error) {
	if c.Subject != "" {
		id, err := strconv.ParseInt(c.Subject, 10, 64)
		if err != nil || id <= 0 {
			return 0, fmt.Errorf("%w: %w", domain.ErrInvalidToken, ErrInvalidSubject)
		}
		return id, nil
	}
	if c.UserID > 0 {
		return c.UserID, nil
	}
	return 0, fmt.Errorf("%w: %w", domain.ErrInvalidToken, ErrInvalidSubject)
}

func LoadRSAPublicKeyFromPEM(path string) (*rsa.PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPublicKeyFromPEM(b)
}
